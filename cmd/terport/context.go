package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"terport/internal/config"
	"terport/internal/store"
)

// skipConfigAnnotation marks commands that must run without a loaded config.
const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries the --config flag and the lazily loaded config
// shared by every subcommand.
type commandContext struct {
	configFlag *string

	loadOnce sync.Once
	cfg      *config.Config
	loadErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// ensureConfig loads the config once and creates its directories.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.loadOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		c.cfg, c.loadErr = cfg, err
	})
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return c.cfg, nil
}

// withStore opens the database for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

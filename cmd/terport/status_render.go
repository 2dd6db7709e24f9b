package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"terport/internal/terport"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

// statusStyles is indexed by statusKind.
var statusStyles = [...]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const ansiReset = "\x1b[0m"

func paint(text string, kind statusKind, colorize bool) string {
	if !colorize {
		return text
	}
	return statusStyles[kind].color + text + ansiReset
}

// renderStatusLine formats "  Label:   [KIND] message" with the label padded
// to a fixed column.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	text := fmt.Sprintf("  %-24s [%s]", label+":", statusStyles[kind].label)
	if message != "" {
		text += " " + message
	}
	return paint(text, kind, colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	title = "== " + strings.TrimSpace(title) + " =="
	return []string{
		paint(title, statusInfo, colorize),
		paint(strings.Repeat("-", len(title)), statusInfo, colorize),
	}
}

func runStatusKind(status terport.RunStatus) statusKind {
	switch status {
	case terport.RunStatusCompleted:
		return statusOK
	case terport.RunStatusCompletedWithErrors:
		return statusWarn
	case terport.RunStatusFailed:
		return statusError
	}
	return statusInfo
}

// shouldColorize is true only for terminals; pipes and buffers get plain text.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

package preflight

import (
	"context"

	"terport/internal/config"
	"terport/internal/research"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config: data and log
// directories, one reachability probe per model in the hierarchy, and one
// ASK probe per knowledge-base endpoint.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	llmCfg := cfg.GetLLM()
	for _, model := range cfg.ModelHierarchy() {
		results = append(results, CheckLLM(ctx, "Model "+model, llmCfg, model))
	}

	client := research.NewClient(research.WithResultLimit(cfg.Knowledge.ResultLimit))
	for _, ep := range research.EndpointsFromConfig(cfg.Knowledge.Endpoints) {
		results = append(results, CheckEndpoint(ctx, client, ep, cfg.QueryTimeout()))
	}

	return results
}

// Package services defines shared utilities consumed by the generation
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, topic titles, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the orchestrator
//     tell topic-level failures from run-level ones.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform.
package services

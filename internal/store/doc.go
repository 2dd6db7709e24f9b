// Package store persists terport state in SQLite.
//
// One database holds the version gate (a single version_state row), the
// generation history (generation_runs plus the per-topic generation_topics
// ledger), the trigger job queue consumed by the background tick, and the
// document store the pipeline writes generated terports into together with
// their key/value metadata.
//
// The schema is embedded and versioned; a mismatch is reported as
// ErrSchemaMismatch rather than migrated. Writes retry while SQLite reports
// busy. Errors that mean the database itself is unreachable carry
// ErrUnavailable, which wraps services.ErrStorage; other failures are plain
// wrapped errors scoped to the failing operation.
package store

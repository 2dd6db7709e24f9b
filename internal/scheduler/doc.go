// Package scheduler adapts lifecycle events and background ticks into
// generation runs.
//
// OnActivationOrUpdate only enqueues a job and returns. OnBackgroundTick
// claims the oldest pending job and runs the orchestrator for it; with no job
// pending it performs an idempotent self-check so a missed activation still
// converges. At most one run is in flight: an in-process mutex guards the
// daemon and a file lock guards against a concurrent CLI run.
//
// CheckStatus and History are the read-only status surface. Both require the
// manage_options capability and a valid anti-forgery nonce and never reveal
// more than "access denied" on failure.
package scheduler

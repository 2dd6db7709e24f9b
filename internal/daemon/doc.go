// Package daemon coordinates the long-running terport process.
//
// It wires configuration, the SQLite store, and the scheduler into a single
// lifecycle with flock-based locking to prevent multiple instances, and
// serves the read-only status API (health, nonce issue, status, history).
//
// Generation logic lives in the generation and scheduler packages; the
// daemon only handles startup, shutdown, and the HTTP surface.
package daemon

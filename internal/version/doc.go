// Package version implements the version gate that keeps generation
// idempotent across deployments.
package version

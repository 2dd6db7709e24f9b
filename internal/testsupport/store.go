package testsupport

import (
	"context"
	"testing"

	"terport/internal/config"
	"terport/internal/store"
	"terport/internal/terport"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedVersion writes a version gate so tests can start from a prior release.
func SeedVersion(t testing.TB, st *store.Store, version string) {
	t.Helper()

	if err := st.SaveVersionState(context.Background(), terport.VersionState{LastGeneratedVersion: version}); err != nil {
		t.Fatalf("store.SaveVersionState: %v", err)
	}
}

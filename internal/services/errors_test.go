package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"terport/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalService, "research", "query", "endpoint failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"research", "query", "endpoint failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestRunFatalClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"storage", services.Wrap(services.ErrStorage, "store", "insert", "", errors.New("closed")), true},
		{"configuration", services.Wrap(services.ErrConfiguration, "synthesis", "", "no models", nil), true},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), true},
		{"transient", services.Wrap(services.ErrTransient, "synthesis", "complete", "", errors.New("502")), false},
		{"validation", services.Wrap(services.ErrValidation, "synthesis", "validate", "empty body", nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.RunFatal(tc.err); got != tc.want {
				t.Fatalf("RunFatal(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

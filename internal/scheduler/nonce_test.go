package scheduler

import (
	"testing"
	"time"
)

func TestNonceValidForCurrentAndPreviousWindow(t *testing.T) {
	issuer := NewNonceIssuer("secret", 2*time.Hour)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return base }
	token := issuer.Issue(ActionStatus)

	if !issuer.Verify(ActionStatus, token) {
		t.Fatal("expected token valid in its own window")
	}
	if issuer.Verify("terport_other", token) {
		t.Fatal("token must be bound to its action")
	}

	issuer.now = func() time.Time { return base.Add(time.Hour) }
	if !issuer.Verify(ActionStatus, token) {
		t.Fatal("expected token valid in the next window")
	}

	issuer.now = func() time.Time { return base.Add(2 * time.Hour) }
	if issuer.Verify(ActionStatus, token) {
		t.Fatal("expected token expired two windows later")
	}
}

func TestNonceRejectsOtherSecretsAndEmptySecret(t *testing.T) {
	a := NewNonceIssuer("secret-a", time.Hour)
	b := NewNonceIssuer("secret-b", time.Hour)
	if b.Verify(ActionStatus, a.Issue(ActionStatus)) {
		t.Fatal("token from another secret must not verify")
	}
	empty := NewNonceIssuer(" ", time.Hour)
	if empty.Verify(ActionStatus, empty.Issue(ActionStatus)) {
		t.Fatal("issuer without a secret must never verify")
	}
	var missing *NonceIssuer
	if missing.Verify(ActionStatus, "anything") {
		t.Fatal("nil issuer must not verify")
	}
}

package scheduler

import (
	"errors"

	"terport/internal/services"
)

// ErrRunInProgress is returned when another run holds the run lock.
var ErrRunInProgress = errors.New("generation run already in progress")

// ErrUnauthorized is matched by every *AuthorizationError.
var ErrUnauthorized = services.ErrUnauthorized

// AuthorizationError rejects a status query. Its message never varies;
// reason is kept for server-side logging only.
type AuthorizationError struct {
	reason string
}

func (e *AuthorizationError) Error() string { return "access denied" }

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

// Reason returns the internal rejection reason.
func (e *AuthorizationError) Reason() string { return e.reason }

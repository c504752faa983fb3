package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrNotConnected indicates the user has no credential record for
	// the provider. It is an expected condition, not a failure.
	ErrNotConnected = errors.New("provider not connected")
	// ErrReauthRequired indicates the stored refresh token was rejected
	// and the user must reauthorize. The stale tokens are kept.
	ErrReauthRequired = errors.New("reauthorization required")
)

// RemoteCallError wraps a failed call to a provider API. The provider
// and operation are preserved for logging while the HTTP surface
// collapses all of these into a generic "sync failed".
type RemoteCallError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// Package provider defines the contract between the sync reconciler
// and the remote calendar adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plannerhq/schedsync/internal/domain"
)

// ErrNotFound reports that the remote event no longer exists. Callers
// treat it as success when deleting.
var ErrNotFound = errors.New("remote event not found")

// StatusError is a non-2xx response from a provider API.
type StatusError struct {
	Provider   domain.Provider
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Provider, e.Op, e.StatusCode)
}

// RemoteEvent is the transient, provider-owned representation of an
// event inside a pull window. Only its id (plus a provider tag on the
// activity) survives a sync pass.
type RemoteEvent struct {
	ID          string
	Title       string
	Description string
	Start       time.Time
	End         *time.Time
	Location    string
	Priority    string
}

// EventRef addresses one remote event. CalendarID is only meaningful
// for providers with multiple calendars; adapters that have a single
// event container ignore it.
type EventRef struct {
	EventID    string
	CalendarID string
}

// Window bounds a pull relative to now. The defaults differ per
// provider on purpose and are configuration, not constants.
type Window struct {
	Back    time.Duration
	Forward time.Duration
}

// Bounds resolves the window against a reference instant.
func (w Window) Bounds(now time.Time) (time.Time, time.Time) {
	return now.Add(-w.Back), now.Add(w.Forward)
}

// Adapter bridges activities and one provider's wire format. All
// methods take an access token already validated by the token
// lifecycle manager.
type Adapter interface {
	Provider() domain.Provider

	// Push creates a remote event from the activity and returns its
	// reference. The caller stores the correlation id; Push is never
	// used for an activity that already carries one.
	Push(ctx context.Context, token, calendarID string, activity domain.Activity) (EventRef, error)

	// Update rewrites the remote event the activity is correlated to.
	// It is a no-op when the activity carries no correlation id.
	Update(ctx context.Context, token string, activity domain.Activity) error

	// Delete removes the remote event. A missing event surfaces as
	// ErrNotFound, which callers tolerate.
	Delete(ctx context.Context, token string, ref EventRef) error

	// List returns remote events starting inside the window.
	List(ctx context.Context, token, calendarID string, window Window) ([]RemoteEvent, error)

	// Materialize converts a pulled remote event into a new local
	// activity with this provider's defaults applied.
	Materialize(userID, calendarID string, event RemoteEvent) domain.Activity
}

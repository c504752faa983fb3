// Package sync reconciles locally owned activities with remote
// calendar events, one (user, provider) pair at a time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/observability"
	"github.com/plannerhq/schedsync/internal/provider"
)

// TokenSource yields access tokens valid for immediate use.
type TokenSource interface {
	ValidToken(ctx context.Context, userID string) (string, error)
}

// EventRecorder persists a sync-completed event for downstream
// consumers. Recording is best-effort; failures are logged, not fatal.
type EventRecorder interface {
	RecordSyncCompleted(ctx context.Context, userID string, p domain.Provider, result Result) error
}

// Result summarizes one pull pass.
type Result struct {
	Provider    domain.Provider `json:"provider"`
	Pulled      int             `json:"pulled"`
	Created     int             `json:"created"`
	Skipped     int             `json:"skipped"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Binding couples one provider's adapter with its token source and
// pull window.
type Binding struct {
	Adapter provider.Adapter
	Tokens  TokenSource
	Window  provider.Window
}

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithRecorder attaches a sync-event recorder.
func WithRecorder(recorder EventRecorder) Option {
	return func(r *Reconciler) { r.recorder = recorder }
}

// Reconciler runs pull passes and per-activity push hooks.
type Reconciler struct {
	store    domain.ActivityRepository
	bindings map[domain.Provider]Binding
	recorder EventRecorder
	locks    *keyedLocks
	logger   *log.Logger
}

// NewReconciler constructs a Reconciler over the configured providers.
func NewReconciler(store domain.ActivityRepository, bindings map[domain.Provider]Binding, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		bindings: bindings,
		locks:    newKeyedLocks(),
		logger:   log.New(log.Writer(), "[sync] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Providers lists the providers the reconciler is bound to.
func (r *Reconciler) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.bindings))
	for _, p := range domain.Providers() {
		if _, ok := r.bindings[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// SyncNow runs one pull pass for the (user, provider) pair. Passes for
// the same pair are serialized; an adapter failure aborts the rest of
// the pass but keeps activities already materialized.
func (r *Reconciler) SyncNow(ctx context.Context, userID string, p domain.Provider, calendarID string) (Result, error) {
	binding, ok := r.bindings[p]
	if !ok {
		return Result{}, fmt.Errorf("unknown provider %q", p)
	}

	unlock := r.locks.lock(userID + "|" + string(p))
	defer unlock()

	result := Result{Provider: p}

	token, err := binding.Tokens.ValidToken(ctx, userID)
	if err != nil {
		observability.RecordSyncPass(string(p), "error", time.Time{})
		return result, err
	}

	events, err := binding.Adapter.List(ctx, token, calendarID, binding.Window)
	if err != nil {
		observability.RecordSyncPass(string(p), "error", time.Time{})
		return result, err
	}
	result.Pulled = len(events)
	observability.RecordPulled(string(p), len(events))

	// The at-most-once check needs the complete local set; List is
	// unpaginated for exactly this reason.
	existing, err := r.store.List(ctx, userID)
	if err != nil {
		return result, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, activity := range existing {
		if id := activity.RemoteEventID(p); id != "" {
			seen[id] = struct{}{}
		}
	}

	for _, event := range events {
		if event.Start.IsZero() {
			result.Skipped++
			continue
		}
		if _, ok := seen[event.ID]; ok {
			result.Skipped++
			continue
		}

		activity := binding.Adapter.Materialize(userID, calendarID, event)
		activity.ID = newActivityID()
		now := time.Now().UTC()
		activity.CreatedAt = now
		activity.UpdatedAt = now

		if err := r.store.Create(ctx, activity); err != nil {
			// Abort the pass; earlier materializations stand and the
			// next periodic pass picks up the remainder.
			observability.RecordSyncPass(string(p), "error", time.Time{})
			return result, err
		}
		seen[event.ID] = struct{}{}
		result.Created++
	}

	result.CompletedAt = time.Now().UTC()
	observability.RecordMaterialized(string(p), result.Created)
	observability.RecordSyncPass(string(p), "ok", result.CompletedAt)

	if r.recorder != nil {
		if err := r.recorder.RecordSyncCompleted(ctx, userID, p, result); err != nil {
			r.logger.Printf("record sync event (user=%s provider=%s): %v", userID, p, err)
		}
	}
	return result, nil
}

// PushCreated pushes a newly created activity to every connected
// provider it is not yet correlated with, writing each assigned
// correlation id back only after the remote call succeeded. Providers
// the user never connected are skipped silently; other failures are
// reported per provider without aborting the rest.
func (r *Reconciler) PushCreated(ctx context.Context, activity domain.Activity, calendarID string) (domain.Activity, map[domain.Provider]error) {
	failures := make(map[domain.Provider]error)

	for _, p := range r.Providers() {
		if activity.RemoteEventID(p) != "" {
			continue
		}
		binding := r.bindings[p]

		token, err := binding.Tokens.ValidToken(ctx, activity.UserID)
		if errors.Is(err, domain.ErrNotConnected) {
			continue
		}
		if err != nil {
			failures[p] = err
			continue
		}

		ref, err := binding.Adapter.Push(ctx, token, calendarID, activity)
		if err != nil {
			failures[p] = err
			continue
		}

		patch := domain.RemoteRefPatch(p, ref.EventID, ref.CalendarID)
		if _, err := r.store.Update(ctx, activity.UserID, activity.ID, patch); err != nil {
			failures[p] = err
			continue
		}
		activity.SetRemoteRef(p, ref.EventID, ref.CalendarID)
		observability.RecordPushed(string(p), "create")
	}
	return activity, failures
}

// PushUpdated propagates an update to every provider the activity is
// already correlated with. Never-pushed activities are left alone.
func (r *Reconciler) PushUpdated(ctx context.Context, activity domain.Activity) map[domain.Provider]error {
	failures := make(map[domain.Provider]error)

	for _, p := range r.Providers() {
		if activity.RemoteEventID(p) == "" {
			continue
		}
		binding := r.bindings[p]

		token, err := binding.Tokens.ValidToken(ctx, activity.UserID)
		if errors.Is(err, domain.ErrNotConnected) {
			continue
		}
		if err != nil {
			failures[p] = err
			continue
		}

		if err := binding.Adapter.Update(ctx, token, activity); err != nil {
			failures[p] = err
			continue
		}
		observability.RecordPushed(string(p), "update")
	}
	return failures
}

// PushDeleted removes the activity's remote events before the local
// record is discarded. An already-deleted remote event is success.
func (r *Reconciler) PushDeleted(ctx context.Context, activity domain.Activity) map[domain.Provider]error {
	failures := make(map[domain.Provider]error)

	for _, p := range r.Providers() {
		eventID := activity.RemoteEventID(p)
		if eventID == "" {
			continue
		}
		binding := r.bindings[p]

		token, err := binding.Tokens.ValidToken(ctx, activity.UserID)
		if errors.Is(err, domain.ErrNotConnected) {
			continue
		}
		if err != nil {
			failures[p] = err
			continue
		}

		ref := provider.EventRef{EventID: eventID, CalendarID: activity.GoogleCalendarID}
		if err := binding.Adapter.Delete(ctx, token, ref); err != nil && !errors.Is(err, provider.ErrNotFound) {
			failures[p] = err
			continue
		}
		observability.RecordPushed(string(p), "delete")
	}
	return failures
}

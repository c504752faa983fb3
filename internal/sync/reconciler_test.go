package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/provider"
)

type memoryStore struct {
	mu         stdsync.Mutex
	activities map[string]domain.Activity
	createErr  error
	createN    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{activities: make(map[string]domain.Activity)}
}

func (s *memoryStore) List(_ context.Context, userID string) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Activity, 0, len(s.activities))
	for _, activity := range s.activities {
		if activity.UserID == userID {
			out = append(out, activity)
		}
	}
	return out, nil
}

func (s *memoryStore) Get(_ context.Context, userID, activityID string) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	activity, ok := s.activities[activityID]
	if !ok || activity.UserID != userID {
		return nil, nil
	}
	return &activity, nil
}

func (s *memoryStore) Create(_ context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createN++
	if s.createErr != nil {
		return s.createErr
	}
	s.activities[activity.ID] = activity
	return nil
}

func (s *memoryStore) Update(_ context.Context, userID, activityID string, patch domain.ActivityPatch) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	activity, ok := s.activities[activityID]
	if !ok || activity.UserID != userID {
		return nil, nil
	}
	if patch.GoogleEventID != nil {
		activity.GoogleEventID = *patch.GoogleEventID
	}
	if patch.GoogleCalendarID != nil {
		activity.GoogleCalendarID = *patch.GoogleCalendarID
	}
	if patch.OutlookEventID != nil {
		activity.OutlookEventID = *patch.OutlookEventID
	}
	if patch.Title != nil {
		activity.Title = *patch.Title
	}
	s.activities[activityID] = activity
	return &activity, nil
}

func (s *memoryStore) Delete(_ context.Context, userID, activityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	activity, ok := s.activities[activityID]
	if !ok || activity.UserID != userID {
		return false, nil
	}
	delete(s.activities, activityID)
	return true, nil
}

type stubTokens struct {
	token string
	err   error
}

func (s stubTokens) ValidToken(context.Context, string) (string, error) {
	return s.token, s.err
}

type stubAdapter struct {
	name      domain.Provider
	events    []provider.RemoteEvent
	listErr   error
	pushRef   provider.EventRef
	pushErr   error
	updateErr error
	deleteErr error
	pushes    int
	updates   int
	deletes   int
}

func (a *stubAdapter) Provider() domain.Provider { return a.name }

func (a *stubAdapter) Push(context.Context, string, string, domain.Activity) (provider.EventRef, error) {
	a.pushes++
	return a.pushRef, a.pushErr
}

func (a *stubAdapter) Update(context.Context, string, domain.Activity) error {
	a.updates++
	return a.updateErr
}

func (a *stubAdapter) Delete(context.Context, string, provider.EventRef) error {
	a.deletes++
	return a.deleteErr
}

func (a *stubAdapter) List(context.Context, string, string, provider.Window) ([]provider.RemoteEvent, error) {
	return a.events, a.listErr
}

func (a *stubAdapter) Materialize(userID, calendarID string, event provider.RemoteEvent) domain.Activity {
	activity := domain.Activity{
		UserID:    userID,
		Title:     event.Title,
		Category:  domain.CategoryEvent,
		StartTime: event.Start,
		EndTime:   event.End,
		Priority:  domain.PriorityMedium,
		Status:    domain.StatusPending,
	}
	activity.SetRemoteRef(a.name, event.ID, calendarID)
	return activity
}

func testReconciler(store domain.ActivityRepository, adapters ...*stubAdapter) *Reconciler {
	bindings := make(map[domain.Provider]Binding)
	for _, adapter := range adapters {
		bindings[adapter.name] = Binding{
			Adapter: adapter,
			Tokens:  stubTokens{token: "tok"},
			Window:  provider.Window{Back: time.Hour, Forward: time.Hour},
		}
	}
	return NewReconciler(store, bindings)
}

func remoteEvent(id string, start time.Time) provider.RemoteEvent {
	return provider.RemoteEvent{ID: id, Title: "evt " + id, Start: start}
}

func TestSyncNowMaterializesOnlyOnce(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	adapter := &stubAdapter{
		name:   domain.ProviderGoogle,
		events: []provider.RemoteEvent{remoteEvent("g-1", start), remoteEvent("g-2", start.Add(time.Hour))},
	}
	store := newMemoryStore()
	reconciler := testReconciler(store, adapter)

	result, err := reconciler.SyncNow(context.Background(), "user-1", domain.ProviderGoogle, "primary")
	require.NoError(t, err)
	require.Equal(t, 2, result.Pulled)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 0, result.Skipped)
	require.False(t, result.CompletedAt.IsZero())

	// The second pass sees the correlation ids and creates nothing.
	result, err = reconciler.SyncNow(context.Background(), "user-1", domain.ProviderGoogle, "primary")
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, 2, result.Skipped)

	activities, err := store.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, activities, 2)
	for _, activity := range activities {
		require.NotEmpty(t, activity.ID)
		require.NotEmpty(t, activity.GoogleEventID)
		require.Equal(t, "primary", activity.GoogleCalendarID)
	}
}

func TestSyncNowSkipsAlreadyCorrelatedEvents(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	adapter := &stubAdapter{
		name:   domain.ProviderGoogle,
		events: []provider.RemoteEvent{remoteEvent("g-1", start), remoteEvent("g-2", start.Add(time.Hour))},
	}
	store := newMemoryStore()
	require.NoError(t, store.Create(context.Background(), domain.Activity{
		ID:            "a-1",
		UserID:        "user-1",
		Title:         "existing",
		StartTime:     start,
		GoogleEventID: "g-1",
	}))
	reconciler := testReconciler(store, adapter)

	result, err := reconciler.SyncNow(context.Background(), "user-1", domain.ProviderGoogle, "primary")
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 1, result.Skipped)
}

func TestPushThenPullDoesNotRematerialize(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	adapter := &stubAdapter{
		name:    domain.ProviderGoogle,
		pushRef: provider.EventRef{EventID: "g-1", CalendarID: "primary"},
	}
	store := newMemoryStore()
	reconciler := testReconciler(store, adapter)

	activity := domain.Activity{ID: "a-1", UserID: "user-1", Title: "standup", StartTime: start}
	require.NoError(t, store.Create(context.Background(), activity))
	_, failures := reconciler.PushCreated(context.Background(), activity, "primary")
	require.Empty(t, failures)

	// The pushed event shows up in the next pull window; the stored
	// correlation id suppresses it.
	adapter.events = []provider.RemoteEvent{remoteEvent("g-1", start)}
	result, err := reconciler.SyncNow(context.Background(), "user-1", domain.ProviderGoogle, "primary")
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, 1, result.Skipped)

	activities, err := store.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, activities, 1)
}

func TestSyncNowSkipsMalformedEvents(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	adapter := &stubAdapter{
		name: domain.ProviderOutlook,
		events: []provider.RemoteEvent{
			remoteEvent("o-1", start),
			{ID: "o-allday"}, // no start time
		},
	}
	store := newMemoryStore()
	reconciler := testReconciler(store, adapter)

	result, err := reconciler.SyncNow(context.Background(), "user-1", domain.ProviderOutlook, "")
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 1, result.Skipped)
}

func TestSyncNowAbortsOnStoreErrorKeepingProgress(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	adapter := &stubAdapter{
		name: domain.ProviderGoogle,
		events: []provider.RemoteEvent{
			remoteEvent("g-1", start),
			remoteEvent("g-2", start.Add(time.Hour)),
			remoteEvent("g-3", start.Add(2*time.Hour)),
		},
	}
	store := newMemoryStore()

	// First create succeeds, then the store starts failing.
	boom := errors.New("store down")
	wrapped := &failAfterStore{memoryStore: store, failAfter: 1, err: boom}
	reconciler := testReconciler(wrapped, adapter)

	result, err := reconciler.SyncNow(context.Background(), "user-1", domain.ProviderGoogle, "primary")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, result.Created)

	activities, listErr := store.List(context.Background(), "user-1")
	require.NoError(t, listErr)
	require.Len(t, activities, 1)

	// The next pass picks up the remainder without duplicating g-1.
	wrapped.err = nil
	result, err = reconciler.SyncNow(context.Background(), "user-1", domain.ProviderGoogle, "primary")
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 1, result.Skipped)
}

type failAfterStore struct {
	*memoryStore
	failAfter int
	created   int
	err       error
}

func (s *failAfterStore) Create(ctx context.Context, activity domain.Activity) error {
	if s.err != nil && s.created >= s.failAfter {
		return s.err
	}
	s.created++
	return s.memoryStore.Create(ctx, activity)
}

func TestSyncNowPropagatesTokenErrors(t *testing.T) {
	adapter := &stubAdapter{name: domain.ProviderGoogle}
	reconciler := NewReconciler(newMemoryStore(), map[domain.Provider]Binding{
		domain.ProviderGoogle: {
			Adapter: adapter,
			Tokens:  stubTokens{err: domain.ErrReauthRequired},
		},
	})

	_, err := reconciler.SyncNow(context.Background(), "user-1", domain.ProviderGoogle, "")
	require.ErrorIs(t, err, domain.ErrReauthRequired)
}

func TestSyncNowUnknownProvider(t *testing.T) {
	reconciler := NewReconciler(newMemoryStore(), nil)
	_, err := reconciler.SyncNow(context.Background(), "user-1", domain.Provider("caldav"), "")
	require.Error(t, err)
}

func TestSyncNowSerializesPerPair(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	adapter := &stubAdapter{
		name:   domain.ProviderGoogle,
		events: []provider.RemoteEvent{remoteEvent("g-1", start)},
	}
	store := newMemoryStore()
	reconciler := testReconciler(store, adapter)

	var wg stdsync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reconciler.SyncNow(context.Background(), "user-1", domain.ProviderGoogle, "primary")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Serialized passes observe each other's writes, so the event
	// materializes exactly once despite the contention.
	activities, err := store.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, activities, 1)
}

func TestPushCreatedWritesCorrelationBack(t *testing.T) {
	google := &stubAdapter{name: domain.ProviderGoogle, pushRef: provider.EventRef{EventID: "g-9", CalendarID: "primary"}}
	outlook := &stubAdapter{name: domain.ProviderOutlook, pushRef: provider.EventRef{EventID: "o-9"}}
	store := newMemoryStore()
	reconciler := testReconciler(store, google, outlook)

	activity := domain.Activity{ID: "a-1", UserID: "user-1", Title: "standup", StartTime: time.Now().UTC()}
	require.NoError(t, store.Create(context.Background(), activity))

	pushed, failures := reconciler.PushCreated(context.Background(), activity, "primary")
	require.Empty(t, failures)
	require.Equal(t, "g-9", pushed.GoogleEventID)
	require.Equal(t, "primary", pushed.GoogleCalendarID)
	require.Equal(t, "o-9", pushed.OutlookEventID)

	stored, err := store.Get(context.Background(), "user-1", "a-1")
	require.NoError(t, err)
	require.Equal(t, "g-9", stored.GoogleEventID)
	require.Equal(t, "o-9", stored.OutlookEventID)
}

func TestPushCreatedSkipsCorrelatedAndDisconnected(t *testing.T) {
	google := &stubAdapter{name: domain.ProviderGoogle, pushRef: provider.EventRef{EventID: "g-9"}}
	outlook := &stubAdapter{name: domain.ProviderOutlook}
	store := newMemoryStore()

	bindings := map[domain.Provider]Binding{
		domain.ProviderGoogle:  {Adapter: google, Tokens: stubTokens{token: "tok"}},
		domain.ProviderOutlook: {Adapter: outlook, Tokens: stubTokens{err: domain.ErrNotConnected}},
	}
	reconciler := NewReconciler(store, bindings)

	activity := domain.Activity{ID: "a-1", UserID: "user-1", GoogleEventID: "already"}
	require.NoError(t, store.Create(context.Background(), activity))

	pushed, failures := reconciler.PushCreated(context.Background(), activity, "")
	require.Empty(t, failures)
	require.Zero(t, google.pushes)
	require.Zero(t, outlook.pushes)
	require.Equal(t, "already", pushed.GoogleEventID)
	require.Empty(t, pushed.OutlookEventID)
}

func TestPushCreatedReportsFailuresWithoutWriteBack(t *testing.T) {
	boom := fmt.Errorf("graph down")
	outlook := &stubAdapter{name: domain.ProviderOutlook, pushErr: boom}
	store := newMemoryStore()
	reconciler := testReconciler(store, outlook)

	activity := domain.Activity{ID: "a-1", UserID: "user-1"}
	require.NoError(t, store.Create(context.Background(), activity))

	pushed, failures := reconciler.PushCreated(context.Background(), activity, "")
	require.ErrorIs(t, failures[domain.ProviderOutlook], boom)
	require.Empty(t, pushed.OutlookEventID)

	stored, err := store.Get(context.Background(), "user-1", "a-1")
	require.NoError(t, err)
	require.Empty(t, stored.OutlookEventID)
}

func TestPushUpdatedOnlyCorrelatedProviders(t *testing.T) {
	google := &stubAdapter{name: domain.ProviderGoogle}
	outlook := &stubAdapter{name: domain.ProviderOutlook}
	reconciler := testReconciler(newMemoryStore(), google, outlook)

	activity := domain.Activity{ID: "a-1", UserID: "user-1", GoogleEventID: "g-1"}
	failures := reconciler.PushUpdated(context.Background(), activity)
	require.Empty(t, failures)
	require.Equal(t, 1, google.updates)
	require.Zero(t, outlook.updates)
}

func TestPushDeletedToleratesMissingRemote(t *testing.T) {
	google := &stubAdapter{name: domain.ProviderGoogle, deleteErr: provider.ErrNotFound}
	reconciler := testReconciler(newMemoryStore(), google)

	activity := domain.Activity{ID: "a-1", UserID: "user-1", GoogleEventID: "g-1"}
	failures := reconciler.PushDeleted(context.Background(), activity)
	require.Empty(t, failures)
	require.Equal(t, 1, google.deletes)
}

func TestPushDeletedReportsHardFailures(t *testing.T) {
	boom := errors.New("google down")
	google := &stubAdapter{name: domain.ProviderGoogle, deleteErr: boom}
	reconciler := testReconciler(newMemoryStore(), google)

	activity := domain.Activity{ID: "a-1", UserID: "user-1", GoogleEventID: "g-1"}
	failures := reconciler.PushDeleted(context.Background(), activity)
	require.ErrorIs(t, failures[domain.ProviderGoogle], boom)
}

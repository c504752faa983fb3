package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	created   *Activity
	getResult *Activity
	updated   *Activity
	deleted   bool
}

func (r *stubRepo) List(context.Context, string) ([]Activity, error) { return nil, nil }

func (r *stubRepo) Get(context.Context, string, string) (*Activity, error) {
	return r.getResult, nil
}

func (r *stubRepo) Create(_ context.Context, activity Activity) error {
	r.created = &activity
	return nil
}

func (r *stubRepo) Update(context.Context, string, string, ActivityPatch) (*Activity, error) {
	return r.updated, nil
}

func (r *stubRepo) Delete(context.Context, string, string) (bool, error) {
	return r.deleted, nil
}

func TestCreateActivityAppliesDefaults(t *testing.T) {
	repo := &stubRepo{}
	service := NewService(repo)

	activity, err := service.CreateActivity(context.Background(), CreateActivityInput{
		UserID:    "user-1",
		Title:     "Algorithms lecture",
		Category:  CategoryLecture,
		StartTime: time.Date(2026, 3, 10, 9, 0, 0, 0, time.FixedZone("CET", 3600)),
	})
	require.NoError(t, err)
	require.NotEmpty(t, activity.ID)
	require.Equal(t, PriorityMedium, activity.Priority)
	require.Equal(t, StatusPending, activity.Status)
	require.Equal(t, time.UTC, activity.StartTime.Location())
	require.False(t, activity.CreatedAt.IsZero())
	require.NotNil(t, repo.created)
}

func TestCreateActivityKeepsExplicitFields(t *testing.T) {
	service := NewService(&stubRepo{})

	activity, err := service.CreateActivity(context.Background(), CreateActivityInput{
		UserID:    "user-1",
		Title:     "Deadline",
		Category:  CategoryTask,
		StartTime: time.Now(),
		Priority:  PriorityHigh,
		Status:    StatusInProgress,
	})
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, activity.Priority)
	require.Equal(t, StatusInProgress, activity.Status)
}

func TestGetActivityNotFound(t *testing.T) {
	service := NewService(&stubRepo{})
	_, err := service.GetActivity(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, ErrActivityNotFound)
}

func TestUpdateActivityNotFound(t *testing.T) {
	service := NewService(&stubRepo{})
	_, err := service.UpdateActivity(context.Background(), "user-1", "missing", ActivityPatch{})
	require.ErrorIs(t, err, ErrActivityNotFound)
}

func TestDeleteActivityNotFound(t *testing.T) {
	service := NewService(&stubRepo{})
	err := service.DeleteActivity(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, ErrActivityNotFound)
}

func TestRemoteRefAccessors(t *testing.T) {
	activity := Activity{}
	require.Empty(t, activity.RemoteEventID(ProviderGoogle))

	activity.SetRemoteRef(ProviderGoogle, "g-1", "primary")
	require.Equal(t, "g-1", activity.RemoteEventID(ProviderGoogle))
	require.Equal(t, "primary", activity.GoogleCalendarID)

	activity.SetRemoteRef(ProviderOutlook, "o-1", "")
	require.Equal(t, "o-1", activity.RemoteEventID(ProviderOutlook))

	require.Empty(t, activity.RemoteEventID(Provider("caldav")))
}

func TestRemoteRefPatch(t *testing.T) {
	patch := RemoteRefPatch(ProviderGoogle, "g-1", "primary")
	require.NotNil(t, patch.GoogleEventID)
	require.Equal(t, "g-1", *patch.GoogleEventID)
	require.NotNil(t, patch.GoogleCalendarID)
	require.Nil(t, patch.OutlookEventID)

	patch = RemoteRefPatch(ProviderOutlook, "o-1", "")
	require.NotNil(t, patch.OutlookEventID)
	require.Nil(t, patch.GoogleEventID)
}

func TestProviderValid(t *testing.T) {
	require.True(t, ProviderGoogle.Valid())
	require.True(t, ProviderOutlook.Valid())
	require.False(t, Provider("caldav").Valid())
	require.Equal(t, []Provider{ProviderGoogle, ProviderOutlook}, Providers())
}

func TestCredentialExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cred := Credential{Expiry: now.Add(time.Minute)}
	require.False(t, cred.Expired(now))

	cred.Expiry = now
	require.True(t, cred.Expired(now))

	cred.Expiry = now.Add(-time.Minute)
	require.True(t, cred.Expired(now))
}

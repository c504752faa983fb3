package msgraph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/provider"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	prefer string
	body   []byte
}

func graphServer(t *testing.T, status int, response string) (*Adapter, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.auth = r.Header.Get("Authorization")
		rec.prefer = r.Header.Get("Prefer")
		if r.Body != nil {
			rec.body, _ = io.ReadAll(r.Body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return New(ClientOptions{BaseURL: server.URL}), rec
}

func TestPushCreatesEvent(t *testing.T) {
	adapter, rec := graphServer(t, http.StatusCreated, `{"id":"evt-123"}`)

	end := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	activity := domain.Activity{
		Title:       "Study group",
		Description: "Chapter 4",
		StartTime:   time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		EndTime:     &end,
		Location:    "Library",
		Priority:    domain.PriorityHigh,
	}

	ref, err := adapter.Push(context.Background(), "tok", "", activity)
	require.NoError(t, err)
	require.Equal(t, "evt-123", ref.EventID)
	require.Equal(t, http.MethodPost, rec.method)
	require.Equal(t, "/me/events", rec.path)
	require.Equal(t, "Bearer tok", rec.auth)
	require.Equal(t, `outlook.timezone="UTC"`, rec.prefer)

	var sent graphEvent
	require.NoError(t, json.Unmarshal(rec.body, &sent))
	require.Equal(t, "Study group", sent.Subject)
	require.Equal(t, "high", sent.Importance)
	require.Equal(t, "2026-03-10T14:00:00", sent.Start.DateTime)
	require.Equal(t, "UTC", sent.Start.TimeZone)
	require.Equal(t, "2026-03-10T15:00:00", sent.End.DateTime)
}

func TestPushMissingResponseID(t *testing.T) {
	adapter, _ := graphServer(t, http.StatusCreated, `{}`)

	_, err := adapter.Push(context.Background(), "tok", "", domain.Activity{Title: "x", StartTime: time.Now()})
	require.Error(t, err)
	var remoteErr *domain.RemoteCallError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, domain.ProviderOutlook, remoteErr.Provider)
}

func TestUpdateSkipsUncorrelatedActivity(t *testing.T) {
	adapter, rec := graphServer(t, http.StatusOK, `{}`)

	err := adapter.Update(context.Background(), "tok", domain.Activity{Title: "x"})
	require.NoError(t, err)
	require.Empty(t, rec.method)
}

func TestUpdatePatchesCorrelatedEvent(t *testing.T) {
	adapter, rec := graphServer(t, http.StatusOK, `{}`)

	err := adapter.Update(context.Background(), "tok", domain.Activity{
		Title:          "Renamed",
		StartTime:      time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		OutlookEventID: "evt-123",
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPatch, rec.method)
	require.Equal(t, "/me/events/evt-123", rec.path)
}

func TestDeleteMissingEventIsNotFound(t *testing.T) {
	adapter, _ := graphServer(t, http.StatusNotFound, `{"error":{"code":"ErrorItemNotFound"}}`)

	err := adapter.Delete(context.Background(), "tok", provider.EventRef{EventID: "gone"})
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestDeleteServerErrorCarriesStatus(t *testing.T) {
	adapter, _ := graphServer(t, http.StatusInternalServerError, `{}`)

	err := adapter.Delete(context.Background(), "tok", provider.EventRef{EventID: "evt-123"})
	var statusErr *provider.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestListFiltersWindowAndParsesEvents(t *testing.T) {
	response := `{"value":[
        {"id":"evt-1","subject":"Lunch","start":{"dateTime":"2026-03-11T12:00:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2026-03-11T13:00:00.0000000","timeZone":"UTC"},"importance":"normal"},
        {"id":"evt-2","subject":"Review","start":{"dateTime":"2026-03-12T09:00:00","timeZone":"UTC"},"importance":"high"},
        {"id":"","subject":"ghost","start":{"dateTime":"2026-03-12T10:00:00","timeZone":"UTC"}},
        {"id":"evt-3","subject":"Broken","start":{"dateTime":"tomorrow","timeZone":"UTC"}}
    ]}`
	adapter, rec := graphServer(t, http.StatusOK, response)

	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	oldNow := nowUTC
	nowUTC = func() time.Time { return fixed }
	defer func() { nowUTC = oldNow }()

	events, err := adapter.List(context.Background(), "tok", "", provider.Window{Back: 24 * time.Hour, Forward: 72 * time.Hour})
	require.NoError(t, err)

	require.Contains(t, rec.query, "start%2FdateTime+ge+%272026-03-09T12%3A00%3A00%27")
	require.Contains(t, rec.query, "end%2FdateTime+le+%272026-03-13T12%3A00%3A00%27")

	require.Len(t, events, 2)
	require.Equal(t, "evt-1", events[0].ID)
	require.Equal(t, time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), events[0].Start)
	require.NotNil(t, events[0].End)
	require.Equal(t, domain.PriorityMedium, events[0].Priority)
	require.Equal(t, "evt-2", events[1].ID)
	require.Nil(t, events[1].End)
	require.Equal(t, domain.PriorityHigh, events[1].Priority)
}

func TestMaterializeAppliesOutlookDefaults(t *testing.T) {
	adapter := New(ClientOptions{})
	start := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	activity := adapter.Materialize("user-1", "", provider.RemoteEvent{
		ID:    "evt-1",
		Title: "Lunch",
		Start: start,
	})
	require.Equal(t, "user-1", activity.UserID)
	require.Equal(t, domain.CategorySocial, activity.Category)
	require.Equal(t, domain.PriorityMedium, activity.Priority)
	require.Equal(t, domain.StatusPending, activity.Status)
	require.Equal(t, "evt-1", activity.OutlookEventID)
	require.Empty(t, activity.GoogleEventID)
}

func TestParseGraphTimeStripsFractionalSeconds(t *testing.T) {
	parsed, ok := parseGraphTime(graphDateTime{DateTime: "2026-03-11T12:00:00.1234567", TimeZone: "UTC"})
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), parsed)

	_, ok = parseGraphTime(graphDateTime{})
	require.False(t, ok)
}

// Package googlecal adapts activities to the Google Calendar API.
package googlecal

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/provider"
)

// DefaultCalendarID is used when no calendar is selected for the user.
const DefaultCalendarID = "primary"

// Adapter implements provider.Adapter for Google Calendar.
type Adapter struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithEndpoint overrides the API base URL, for tests.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) { a.endpoint = endpoint }
}

// WithHTTPClient overrides the underlying transport.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.httpClient = client }
}

// New constructs the adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider reports the provider tag.
func (a *Adapter) Provider() domain.Provider { return domain.ProviderGoogle }

func (a *Adapter) service(ctx context.Context, token string) (*calendar.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
	}
	if a.httpClient != nil {
		opts = []option.ClientOption{option.WithHTTPClient(a.httpClient)}
	}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

// Push inserts a new event and returns its reference.
func (a *Adapter) Push(ctx context.Context, token, calendarID string, activity domain.Activity) (provider.EventRef, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	svc, err := a.service(ctx, token)
	if err != nil {
		return provider.EventRef{}, err
	}

	created, err := svc.Events.Insert(calendarID, eventFromActivity(activity)).Context(ctx).Do()
	if err != nil {
		return provider.EventRef{}, wrapErr("insert", err)
	}
	return provider.EventRef{EventID: created.Id, CalendarID: calendarID}, nil
}

// Update rewrites the correlated event in place.
func (a *Adapter) Update(ctx context.Context, token string, activity domain.Activity) error {
	if activity.GoogleEventID == "" {
		return nil
	}
	calendarID := activity.GoogleCalendarID
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	svc, err := a.service(ctx, token)
	if err != nil {
		return err
	}

	if _, err := svc.Events.Update(calendarID, activity.GoogleEventID, eventFromActivity(activity)).Context(ctx).Do(); err != nil {
		return wrapErr("update", err)
	}
	return nil
}

// Delete removes the remote event.
func (a *Adapter) Delete(ctx context.Context, token string, ref provider.EventRef) error {
	calendarID := ref.CalendarID
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	svc, err := a.service(ctx, token)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(calendarID, ref.EventID).Context(ctx).Do(); err != nil {
		return wrapErr("delete", err)
	}
	return nil
}

// List returns single events starting inside the window.
func (a *Adapter) List(ctx context.Context, token, calendarID string, window provider.Window) ([]provider.RemoteEvent, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, err
	}

	min, max := window.Bounds(nowUTC())
	resp, err := svc.Events.List(calendarID).
		TimeMin(min.Format(timeFormat)).
		TimeMax(max.Format(timeFormat)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapErr("list", err)
	}

	events := make([]provider.RemoteEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		remote, ok := remoteFromEvent(item)
		if !ok {
			continue
		}
		events = append(events, remote)
	}
	return events, nil
}

// Materialize builds the local activity for a pulled Google event.
func (a *Adapter) Materialize(userID, calendarID string, event provider.RemoteEvent) domain.Activity {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	return domain.Activity{
		UserID:           userID,
		Title:            event.Title,
		Description:      event.Description,
		Category:         domain.CategoryEvent,
		StartTime:        event.Start,
		EndTime:          event.End,
		Location:         event.Location,
		Priority:         domain.PriorityMedium,
		Status:           domain.StatusPending,
		GoogleEventID:    event.ID,
		GoogleCalendarID: calendarID,
	}
}

// Calendars lists the calendars the user can write to, for the
// calendar-picker surface.
func (a *Adapter) Calendars(ctx context.Context, token string) ([]CalendarInfo, error) {
	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("calendar_list", err)
	}

	calendars := make([]CalendarInfo, 0, len(resp.Items))
	for _, item := range resp.Items {
		calendars = append(calendars, CalendarInfo{
			ID:         item.Id,
			Summary:    item.Summary,
			Primary:    item.Primary,
			AccessRole: item.AccessRole,
		})
	}
	return calendars, nil
}

// CalendarInfo describes one entry of the user's calendar list.
type CalendarInfo struct {
	ID         string `json:"id"`
	Summary    string `json:"summary"`
	Primary    bool   `json:"primary"`
	AccessRole string `json:"access_role"`
}

func wrapErr(op string, err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		if apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone {
			return provider.ErrNotFound
		}
		return &domain.RemoteCallError{Provider: domain.ProviderGoogle, Op: op, Err: &provider.StatusError{
			Provider:   domain.ProviderGoogle,
			Op:         op,
			StatusCode: apiErr.Code,
		}}
	}
	return &domain.RemoteCallError{Provider: domain.ProviderGoogle, Op: op, Err: err}
}

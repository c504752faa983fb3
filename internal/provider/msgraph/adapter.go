// Package msgraph adapts activities to the Microsoft Graph events API.
package msgraph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/provider"
)

// Adapter implements provider.Adapter for Outlook calendars reached
// through Microsoft Graph. Graph events live in a single default
// calendar per user, so calendar ids are ignored.
type Adapter struct {
	client *Client
}

// New constructs the adapter.
func New(opts ClientOptions) *Adapter {
	return &Adapter{client: NewClient(opts)}
}

// Provider reports the provider tag.
func (a *Adapter) Provider() domain.Provider { return domain.ProviderOutlook }

// Push creates a new event and returns its reference.
func (a *Adapter) Push(ctx context.Context, token, _ string, activity domain.Activity) (provider.EventRef, error) {
	var created graphEvent
	if err := a.client.do(ctx, http.MethodPost, "/me/events", token, eventFromActivity(activity), &created); err != nil {
		return provider.EventRef{}, a.wrapErr("create", err)
	}
	if created.ID == "" {
		return provider.EventRef{}, &domain.RemoteCallError{
			Provider: domain.ProviderOutlook,
			Op:       "create",
			Err:      errors.New("response missing event id"),
		}
	}
	return provider.EventRef{EventID: created.ID}, nil
}

// Update patches the correlated event; a no-op without a correlation id.
func (a *Adapter) Update(ctx context.Context, token string, activity domain.Activity) error {
	if activity.OutlookEventID == "" {
		return nil
	}
	path := "/me/events/" + url.PathEscape(activity.OutlookEventID)
	if err := a.client.do(ctx, http.MethodPatch, path, token, eventFromActivity(activity), nil); err != nil {
		return a.wrapErr("update", err)
	}
	return nil
}

// Delete removes the remote event.
func (a *Adapter) Delete(ctx context.Context, token string, ref provider.EventRef) error {
	path := "/me/events/" + url.PathEscape(ref.EventID)
	if err := a.client.do(ctx, http.MethodDelete, path, token, nil, nil); err != nil {
		return a.wrapErr("delete", err)
	}
	return nil
}

// List queries events inside the window using a server-side time-range
// filter expression.
func (a *Adapter) List(ctx context.Context, token, _ string, window provider.Window) ([]provider.RemoteEvent, error) {
	min, max := window.Bounds(nowUTC())
	filter := fmt.Sprintf("start/dateTime ge '%s' and end/dateTime le '%s'",
		min.Format(graphTimeFormat), max.Format(graphTimeFormat))
	path := "/me/events?$filter=" + url.QueryEscape(filter)

	var resp struct {
		Value []graphEvent `json:"value"`
	}
	if err := a.client.do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, a.wrapErr("list", err)
	}

	events := make([]provider.RemoteEvent, 0, len(resp.Value))
	for _, item := range resp.Value {
		remote, ok := remoteFromEvent(item)
		if !ok {
			continue
		}
		events = append(events, remote)
	}
	return events, nil
}

// Materialize builds the local activity for a pulled Outlook event.
func (a *Adapter) Materialize(userID, _ string, event provider.RemoteEvent) domain.Activity {
	priority := event.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	return domain.Activity{
		UserID:         userID,
		Title:          event.Title,
		Description:    event.Description,
		Category:       domain.CategorySocial,
		StartTime:      event.Start,
		EndTime:        event.End,
		Location:       event.Location,
		Priority:       priority,
		Status:         domain.StatusPending,
		OutlookEventID: event.ID,
	}
}

func (a *Adapter) wrapErr(op string, err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.status == http.StatusNotFound || statusErr.status == http.StatusGone {
			return provider.ErrNotFound
		}
		return &domain.RemoteCallError{Provider: domain.ProviderOutlook, Op: op, Err: &provider.StatusError{
			Provider:   domain.ProviderOutlook,
			Op:         op,
			StatusCode: statusErr.status,
		}}
	}
	return &domain.RemoteCallError{Provider: domain.ProviderOutlook, Op: op, Err: err}
}

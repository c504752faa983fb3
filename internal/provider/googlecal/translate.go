package googlecal

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/provider"
)

const timeFormat = time.RFC3339

var nowUTC = func() time.Time { return time.Now().UTC() }

// eventFromActivity maps the pushable subset of an activity onto the
// wire event. Course/club linkage never crosses the boundary. An
// absent end time defaults to one hour after the start.
func eventFromActivity(activity domain.Activity) *calendar.Event {
	start := activity.StartTime.UTC()
	end := start.Add(time.Hour)
	if activity.EndTime != nil {
		end = activity.EndTime.UTC()
	}

	return &calendar.Event{
		Summary:     activity.Title,
		Description: activity.Description,
		Location:    activity.Location,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(timeFormat),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(timeFormat),
			TimeZone: "UTC",
		},
	}
}

// remoteFromEvent converts a listed event. Events without an id,
// title, or timed start (all-day events carry only a date) are
// reported unusable and skipped by the caller.
func remoteFromEvent(event *calendar.Event) (provider.RemoteEvent, bool) {
	if event == nil || event.Id == "" || event.Summary == "" {
		return provider.RemoteEvent{}, false
	}
	if event.Start == nil || event.Start.DateTime == "" {
		return provider.RemoteEvent{}, false
	}

	start, err := time.Parse(timeFormat, event.Start.DateTime)
	if err != nil {
		return provider.RemoteEvent{}, false
	}

	remote := provider.RemoteEvent{
		ID:          event.Id,
		Title:       event.Summary,
		Description: event.Description,
		Start:       start.UTC(),
		Location:    event.Location,
		Priority:    domain.PriorityMedium,
	}

	if event.End != nil && event.End.DateTime != "" {
		if end, err := time.Parse(timeFormat, event.End.DateTime); err == nil {
			endUTC := end.UTC()
			remote.End = &endUTC
		}
	}

	return remote, true
}

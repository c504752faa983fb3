package msgraph

import (
	"strings"
	"time"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/provider"
)

// graphTimeFormat is the local date-time form Graph uses together with
// a separate timeZone field.
const graphTimeFormat = "2006-01-02T15:04:05"

var nowUTC = func() time.Time { return time.Now().UTC() }

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphEvent struct {
	ID         string        `json:"id,omitempty"`
	Subject    string        `json:"subject"`
	Body       graphBody     `json:"body"`
	Start      graphDateTime `json:"start"`
	End        graphDateTime `json:"end"`
	Location   graphLocation `json:"location"`
	Importance string        `json:"importance"`
}

// eventFromActivity maps the pushable subset of an activity onto the
// Graph wire format. An absent end time defaults to one hour after the
// start; priority maps onto the coarse importance flag.
func eventFromActivity(activity domain.Activity) graphEvent {
	start := activity.StartTime.UTC()
	end := start.Add(time.Hour)
	if activity.EndTime != nil {
		end = activity.EndTime.UTC()
	}

	importance := "normal"
	if activity.Priority == domain.PriorityHigh {
		importance = "high"
	}

	return graphEvent{
		Subject: activity.Title,
		Body: graphBody{
			ContentType: "Text",
			Content:     activity.Description,
		},
		Start:      graphDateTime{DateTime: start.Format(graphTimeFormat), TimeZone: "UTC"},
		End:        graphDateTime{DateTime: end.Format(graphTimeFormat), TimeZone: "UTC"},
		Location:   graphLocation{DisplayName: activity.Location},
		Importance: importance,
	}
}

// remoteFromEvent converts a listed Graph event. Events without an id,
// subject, or parseable start are skipped.
func remoteFromEvent(event graphEvent) (provider.RemoteEvent, bool) {
	if event.ID == "" || event.Subject == "" {
		return provider.RemoteEvent{}, false
	}
	start, ok := parseGraphTime(event.Start)
	if !ok {
		return provider.RemoteEvent{}, false
	}

	priority := domain.PriorityMedium
	if event.Importance == "high" {
		priority = domain.PriorityHigh
	}

	remote := provider.RemoteEvent{
		ID:          event.ID,
		Title:       event.Subject,
		Description: event.Body.Content,
		Start:       start,
		Location:    event.Location.DisplayName,
		Priority:    priority,
	}
	if end, ok := parseGraphTime(event.End); ok {
		remote.End = &end
	}
	return remote, true
}

// parseGraphTime handles Graph's local date-time, which may carry a
// fractional-seconds suffix. Responses are requested in UTC.
func parseGraphTime(value graphDateTime) (time.Time, bool) {
	raw := value.DateTime
	if raw == "" {
		return time.Time{}, false
	}
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		raw = raw[:idx]
	}
	parsed, err := time.ParseInLocation(graphTimeFormat, raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

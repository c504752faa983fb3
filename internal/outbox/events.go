package outbox

import "time"

// Topics for the schedule event stream.
const (
	TopicScheduleEvents = "schedule_events"
	TopicSyncEvents     = "calendar_sync_events"
)

// Event types stored in outbox rows.
const (
	EventActivityCreated = "activity.created"
	EventActivityUpdated = "activity.updated"
	EventActivityDeleted = "activity.deleted"
	EventSyncCompleted   = "calendar.sync.completed"
)

// ActivityEvent is the payload for activity lifecycle events.
type ActivityEvent struct {
	ActivityID string     `json:"activity_id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title,omitempty"`
	Category   string     `json:"category,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	Status     string     `json:"status,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// SyncCompleted is emitted after a pull pass finishes.
type SyncCompleted struct {
	UserID      string    `json:"user_id"`
	Provider    string    `json:"provider"`
	Pulled      int       `json:"pulled"`
	Created     int       `json:"created"`
	Skipped     int       `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
}

// TopicFor maps an event type to its Kafka topic.
func TopicFor(eventType string) string {
	if eventType == EventSyncCompleted {
		return TopicSyncEvents
	}
	return TopicScheduleEvents
}

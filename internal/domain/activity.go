package domain

import "time"

// Provider identifies an external calendar system.
type Provider string

const (
	// ProviderGoogle is the primary calendar provider.
	ProviderGoogle Provider = "google"
	// ProviderOutlook is the corporate mail/calendar provider.
	ProviderOutlook Provider = "outlook"
)

// Providers lists every supported provider in a stable order.
func Providers() []Provider {
	return []Provider{ProviderGoogle, ProviderOutlook}
}

// Valid reports whether p names a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderOutlook
}

// Activity categories. Pulled Google events materialize as "event",
// pulled Outlook events as "social".
const (
	CategoryLecture = "lecture"
	CategoryTask    = "task"
	CategorySocial  = "social"
	CategoryClub    = "club"
	CategoryEvent   = "event"
)

// Activity priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Activity statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Activity is the locally owned schedule entry stored in Postgres.
// The remote event ids are the correlation keys for two-way sync; an
// empty id means the activity has never been pushed to (or pulled
// from) that provider.
type Activity struct {
	ID               string
	UserID           string
	Title            string
	Description      string
	Category         string
	StartTime        time.Time
	EndTime          *time.Time
	Location         string
	Priority         string
	Status           string
	GoogleEventID    string
	GoogleCalendarID string
	OutlookEventID   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RemoteEventID returns the correlation id stored for the provider.
func (a Activity) RemoteEventID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return a.GoogleEventID
	case ProviderOutlook:
		return a.OutlookEventID
	}
	return ""
}

// SetRemoteRef stores the correlation id (and, for Google, the
// calendar it lives in) on the activity.
func (a *Activity) SetRemoteRef(p Provider, eventID, calendarID string) {
	switch p {
	case ProviderGoogle:
		a.GoogleEventID = eventID
		a.GoogleCalendarID = calendarID
	case ProviderOutlook:
		a.OutlookEventID = eventID
	}
}

// ActivityPatch carries a partial update. Nil fields are left
// unchanged by the store.
type ActivityPatch struct {
	Title            *string
	Description      *string
	Category         *string
	StartTime        *time.Time
	EndTime          *time.Time
	Location         *string
	Priority         *string
	Status           *string
	GoogleEventID    *string
	GoogleCalendarID *string
	OutlookEventID   *string
}

// RemoteRefPatch builds the patch that records a freshly assigned
// correlation id after a successful push.
func RemoteRefPatch(p Provider, eventID, calendarID string) ActivityPatch {
	switch p {
	case ProviderGoogle:
		return ActivityPatch{GoogleEventID: &eventID, GoogleCalendarID: &calendarID}
	case ProviderOutlook:
		return ActivityPatch{OutlookEventID: &eventID}
	}
	return ActivityPatch{}
}

package auth

// Known OAuth scopes used by the schedule service.
const (
	ScopeScheduleRead  = "schedule:read"
	ScopeScheduleWrite = "schedule:write"
	ScopeCalendarSync  = "calendar:sync"
)

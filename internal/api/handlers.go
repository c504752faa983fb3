// Package api exposes HTTP handlers for the schedule sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/plannerhq/schedsync/internal/auth"
	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/provider/googlecal"
	"github.com/plannerhq/schedsync/internal/oauth"
	syncpkg "github.com/plannerhq/schedsync/internal/sync"
)

// CalendarLister exposes the calendar-picker listing of the primary
// provider.
type CalendarLister interface {
	Calendars(ctx context.Context, token string) ([]googlecal.CalendarInfo, error)
}

// Handler coordinates HTTP requests with the domain service and the
// sync reconciler.
type Handler struct {
	service    *domain.Service
	reconciler *syncpkg.Reconciler
	managers   map[domain.Provider]*oauth.Manager
	calendars  CalendarLister
	logger     *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, reconciler *syncpkg.Reconciler, managers map[domain.Provider]*oauth.Manager, calendars CalendarLister) *Handler {
	return &Handler{
		service:    service,
		reconciler: reconciler,
		managers:   managers,
		calendars:  calendars,
		logger:     log.New(log.Writer(), "[api] ", log.LstdFlags),
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/calendar/", h.calendar)
	mux.HandleFunc("/healthz", healthz)
}

// SkipAuth reports requests served without bearer auth: health checks
// and the OAuth browser callbacks (the provider redirect carries no
// JWT; the user id rides in the state parameter instead).
func SkipAuth(r *http.Request) bool {
	if r.URL.Path == "/healthz" {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/v1/calendar/") && strings.HasSuffix(r.URL.Path, "/callback")
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getActivity(w, r, id)
	case http.MethodPut:
		h.updateActivity(w, r, id)
	case http.MethodDelete:
		h.deleteActivity(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// calendar routes /v1/calendar/{provider}/{action}.
func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/calendar/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not_found", "unknown calendar endpoint")
		return
	}

	p := domain.Provider(parts[0])
	if !p.Valid() {
		writeError(w, http.StatusNotFound, "not_found", "unknown provider")
		return
	}
	manager, ok := h.managers[p]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "provider not configured")
		return
	}

	switch {
	case parts[1] == "auth" && r.Method == http.MethodGet:
		h.authorize(w, r, manager)
	case parts[1] == "callback" && r.Method == http.MethodGet:
		h.callback(w, r, manager)
	case parts[1] == "sync" && r.Method == http.MethodPost:
		h.syncNow(w, r, p)
	case parts[1] == "connection" && r.Method == http.MethodGet:
		h.connectionStatus(w, r, manager)
	case parts[1] == "connection" && r.Method == http.MethodDelete:
		h.disconnect(w, r, manager)
	case parts[1] == "calendars" && r.Method == http.MethodGet && p == domain.ProviderGoogle:
		h.listCalendars(w, r, manager)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown calendar endpoint")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeScheduleWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activity, err := h.service.CreateActivity(r.Context(), domain.CreateActivityInput{
		UserID:      claims.Subject,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Location:    req.Location,
		Priority:    req.Priority,
		Status:      req.Status,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	pushed, failures := h.reconciler.PushCreated(r.Context(), *activity, req.CalendarID)
	h.logPushFailures(claims.Subject, failures)

	writeJSON(w, http.StatusCreated, CreateActivityResponse{
		Activity:   toActivityView(pushed),
		SyncFailed: failedProviders(failures),
	})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeScheduleRead, auth.ScopeScheduleWrite)
	if !ok {
		return
	}

	activity, err := h.service.GetActivity(r.Context(), claims.Subject, id)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeScheduleRead, auth.ScopeScheduleWrite)
	if !ok {
		return
	}

	activities, err := h.service.ListActivities(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeScheduleWrite)
	if !ok {
		return
	}

	var req UpdateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.service.UpdateActivity(r.Context(), claims.Subject, id, req.toPatch())
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	failures := h.reconciler.PushUpdated(r.Context(), *activity)
	h.logPushFailures(claims.Subject, failures)

	writeJSON(w, http.StatusOK, UpdateActivityResponse{
		Activity:   toActivityView(*activity),
		SyncFailed: failedProviders(failures),
	})
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeScheduleWrite)
	if !ok {
		return
	}

	activity, err := h.service.GetActivity(r.Context(), claims.Subject, id)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	// Remote events go first; the correlation ids are discarded with
	// the local record.
	failures := h.reconciler.PushDeleted(r.Context(), *activity)
	if len(failures) > 0 {
		h.logPushFailures(claims.Subject, failures)
		writeError(w, http.StatusBadGateway, "sync_failed", "sync failed, try again")
		return
	}

	if err := h.service.DeleteActivity(r.Context(), claims.Subject, id); err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, manager *oauth.Manager) {
	claims, ok := requireScope(w, r, auth.ScopeCalendarSync)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": manager.AuthorizationURL(claims.Subject)})
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request, manager *oauth.Manager) {
	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("state")
	if code == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code or state")
		return
	}

	if err := manager.CompleteAuthorization(r.Context(), code, userID); err != nil {
		h.logger.Printf("authorization callback failed (provider=%s): %v", manager.Provider(), err)
		writeError(w, http.StatusBadGateway, "authorization_failed", "could not complete authorization")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

func (h *Handler) syncNow(w http.ResponseWriter, r *http.Request, p domain.Provider) {
	claims, ok := requireScope(w, r, auth.ScopeCalendarSync)
	if !ok {
		return
	}

	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	result, err := h.reconciler.SyncNow(r.Context(), claims.Subject, p, req.CalendarID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotConnected):
			writeError(w, http.StatusConflict, "not_connected", "calendar not connected")
		case errors.Is(err, domain.ErrReauthRequired):
			writeError(w, http.StatusUnauthorized, "reauth_required", "please reconnect the calendar")
		default:
			// Root cause stays in the logs; the user sees one message.
			h.logger.Printf("sync failed (user=%s provider=%s): %v", claims.Subject, p, err)
			writeError(w, http.StatusBadGateway, "sync_failed", "sync failed, try again")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) connectionStatus(w http.ResponseWriter, r *http.Request, manager *oauth.Manager) {
	claims, ok := requireScope(w, r, auth.ScopeCalendarSync)
	if !ok {
		return
	}

	status, err := manager.Status(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request, manager *oauth.Manager) {
	claims, ok := requireScope(w, r, auth.ScopeCalendarSync)
	if !ok {
		return
	}

	if err := manager.Disconnect(r.Context(), claims.Subject); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
}

func (h *Handler) listCalendars(w http.ResponseWriter, r *http.Request, manager *oauth.Manager) {
	claims, ok := requireScope(w, r, auth.ScopeCalendarSync)
	if !ok {
		return
	}
	if h.calendars == nil {
		writeError(w, http.StatusNotFound, "not_found", "calendar listing unavailable")
		return
	}

	token, err := manager.ValidToken(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			writeError(w, http.StatusConflict, "not_connected", "calendar not connected")
			return
		}
		if errors.Is(err, domain.ErrReauthRequired) {
			writeError(w, http.StatusUnauthorized, "reauth_required", "please reconnect the calendar")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	calendars, err := h.calendars.Calendars(r.Context(), token)
	if err != nil {
		h.logger.Printf("calendar list failed (user=%s): %v", claims.Subject, err)
		writeError(w, http.StatusBadGateway, "sync_failed", "sync failed, try again")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"calendars": calendars})
}

func (h *Handler) logPushFailures(userID string, failures map[domain.Provider]error) {
	for p, err := range failures {
		h.logger.Printf("push failed (user=%s provider=%s): %v", userID, p, err)
	}
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+strings.Join(scopes, " or ")+" required")
	return nil, false
}

func failedProviders(failures map[domain.Provider]error) []string {
	if len(failures) == 0 {
		return nil
	}
	out := make([]string, 0, len(failures))
	for _, p := range domain.Providers() {
		if _, ok := failures[p]; ok {
			out = append(out, string(p))
		}
	}
	return out
}

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Location    string     `json:"location"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	CalendarID  string     `json:"calendar_id"`
}

// Validate ensures request correctness.
func (r CreateActivityRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return errors.New("category is required")
	}
	if r.StartTime.IsZero() {
		return errors.New("start_time is required")
	}
	if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
		return errors.New("end_time must not precede start_time")
	}
	return nil
}

// UpdateActivityRequest carries a partial update; absent fields stay
// untouched.
type UpdateActivityRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Location    *string    `json:"location"`
	Priority    *string    `json:"priority"`
	Status      *string    `json:"status"`
}

func (r UpdateActivityRequest) toPatch() domain.ActivityPatch {
	return domain.ActivityPatch{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Location:    r.Location,
		Priority:    r.Priority,
		Status:      r.Status,
	}
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID       string     `json:"activity_id"`
	UserID           string     `json:"user_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Category         string     `json:"category"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Location         string     `json:"location,omitempty"`
	Priority         string     `json:"priority"`
	Status           string     `json:"status"`
	GoogleEventID    string     `json:"google_event_id,omitempty"`
	GoogleCalendarID string     `json:"google_calendar_id,omitempty"`
	OutlookEventID   string     `json:"outlook_event_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CreateActivityResponse describes the response body for create.
type CreateActivityResponse struct {
	Activity   ActivityView `json:"activity"`
	SyncFailed []string     `json:"sync_failed,omitempty"`
}

// UpdateActivityResponse describes the response body for update.
type UpdateActivityResponse struct {
	Activity   ActivityView `json:"activity"`
	SyncFailed []string     `json:"sync_failed,omitempty"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items []ActivityView `json:"items"`
}

// SyncRequest optionally selects the calendar for the primary provider.
type SyncRequest struct {
	CalendarID string `json:"calendar_id"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:       activity.ID,
		UserID:           activity.UserID,
		Title:            activity.Title,
		Description:      activity.Description,
		Category:         activity.Category,
		StartTime:        activity.StartTime,
		EndTime:          activity.EndTime,
		Location:         activity.Location,
		Priority:         activity.Priority,
		Status:           activity.Status,
		GoogleEventID:    activity.GoogleEventID,
		GoogleCalendarID: activity.GoogleCalendarID,
		OutlookEventID:   activity.OutlookEventID,
		CreatedAt:        activity.CreatedAt,
		UpdatedAt:        activity.UpdatedAt,
	}
}

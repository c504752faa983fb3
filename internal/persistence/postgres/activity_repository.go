// Package postgres provides pgx-backed persistence for activities,
// calendar credentials, and the event outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/outbox"
	syncpkg "github.com/plannerhq/schedsync/internal/sync"
)

const activityColumns = `activity_id, user_id, title, description, category, start_time, end_time, location,
        priority, status, google_event_id, google_calendar_id, outlook_event_id, created_at, updated_at`

// ActivityRepository implements domain.ActivityRepository and records
// outbox events inside the same transaction as each mutation.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// List returns the user's complete activity set ordered by start time.
// It is deliberately unpaginated: the sync reconciler's duplicate
// check requires seeing every correlation id.
func (r *ActivityRepository) List(ctx context.Context, userID string) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1 ORDER BY start_time, activity_id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

// Get retrieves one activity scoped to the user, or nil when absent.
func (r *ActivityRepository) Get(ctx context.Context, userID, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1 AND activity_id=$2`

	row := r.pool.QueryRow(ctx, query, userID, activityID)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// Create persists the activity and an activity.created outbox row in
// one transaction.
func (r *ActivityRepository) Create(ctx context.Context, activity domain.Activity) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insert = `INSERT INTO activities (activity_id, user_id, title, description, category, start_time, end_time,
        location, priority, status, google_event_id, google_calendar_id, outlook_event_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err = tx.Exec(ctx, insert,
		activity.ID,
		activity.UserID,
		activity.Title,
		activity.Description,
		activity.Category,
		activity.StartTime,
		activity.EndTime,
		activity.Location,
		activity.Priority,
		activity.Status,
		nullIfEmpty(activity.GoogleEventID),
		nullIfEmpty(activity.GoogleCalendarID),
		nullIfEmpty(activity.OutlookEventID),
		activity.CreatedAt,
		activity.UpdatedAt,
	)
	if err != nil {
		return err
	}

	startTime := activity.StartTime
	if err = insertOutbox(ctx, tx, outbox.EventActivityCreated, activity.UserID, activity.ID, outbox.ActivityEvent{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
		Title:      activity.Title,
		Category:   activity.Category,
		StartTime:  &startTime,
		Status:     activity.Status,
		OccurredAt: activity.CreatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// Update applies the non-nil patch fields and records an
// activity.updated outbox row. Returns nil when no row matched.
func (r *ActivityRepository) Update(ctx context.Context, userID, activityID string, patch domain.ActivityPatch) (*domain.Activity, error) {
	sets, args := buildPatch(patch)
	if len(sets) == 0 {
		return r.Get(ctx, userID, activityID)
	}
	sets = append(sets, fmt.Sprintf("updated_at=$%d", len(args)+1))
	args = append(args, time.Now().UTC())

	args = append(args, userID, activityID)
	query := fmt.Sprintf(`UPDATE activities SET %s WHERE user_id=$%d AND activity_id=$%d RETURNING `+activityColumns,
		strings.Join(sets, ", "), len(args)-1, len(args))

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, query, args...)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			tx.Rollback(ctx)
			return nil, nil
		}
		return nil, err
	}

	if err = insertOutbox(ctx, tx, outbox.EventActivityUpdated, userID, activityID, outbox.ActivityEvent{
		ActivityID: activityID,
		UserID:     userID,
		Title:      activity.Title,
		Category:   activity.Category,
		Status:     activity.Status,
		OccurredAt: activity.UpdatedAt,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Delete removes the activity and records an activity.deleted outbox
// row. Reports whether a row was removed.
func (r *ActivityRepository) Delete(ctx context.Context, userID, activityID string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM activities WHERE user_id=$1 AND activity_id=$2`, userID, activityID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		tx.Rollback(ctx)
		return false, nil
	}

	if err = insertOutbox(ctx, tx, outbox.EventActivityDeleted, userID, activityID, outbox.ActivityEvent{
		ActivityID: activityID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RecordSyncCompleted writes a calendar.sync.completed outbox row. It
// implements the reconciler's EventRecorder.
func (r *ActivityRepository) RecordSyncCompleted(ctx context.Context, userID string, p domain.Provider, result syncpkg.Result) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = insertOutbox(ctx, tx, outbox.EventSyncCompleted, userID, userID+"/"+string(p), outbox.SyncCompleted{
		UserID:      userID,
		Provider:    string(p),
		Pulled:      result.Pulled,
		Created:     result.Created,
		Skipped:     result.Skipped,
		CompletedAt: result.CompletedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, partitionKey, aggregateID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6)`

	_, err = tx.Exec(ctx, stmt, "activity", aggregateID, eventType, outbox.TopicFor(eventType), partitionKey, body)
	return err
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var activity domain.Activity
	var googleEventID, googleCalendarID, outlookEventID *string

	err := row.Scan(
		&activity.ID,
		&activity.UserID,
		&activity.Title,
		&activity.Description,
		&activity.Category,
		&activity.StartTime,
		&activity.EndTime,
		&activity.Location,
		&activity.Priority,
		&activity.Status,
		&googleEventID,
		&googleCalendarID,
		&outlookEventID,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	)
	if err != nil {
		return domain.Activity{}, err
	}

	if googleEventID != nil {
		activity.GoogleEventID = *googleEventID
	}
	if googleCalendarID != nil {
		activity.GoogleCalendarID = *googleCalendarID
	}
	if outlookEventID != nil {
		activity.OutlookEventID = *outlookEventID
	}
	return activity, nil
}

func buildPatch(patch domain.ActivityPatch) ([]string, []interface{}) {
	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.StartTime != nil {
		add("start_time", patch.StartTime.UTC())
	}
	if patch.EndTime != nil {
		add("end_time", patch.EndTime.UTC())
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.GoogleEventID != nil {
		add("google_event_id", nullIfEmpty(*patch.GoogleEventID))
	}
	if patch.GoogleCalendarID != nil {
		add("google_calendar_id", nullIfEmpty(*patch.GoogleCalendarID))
	}
	if patch.OutlookEventID != nil {
		add("outlook_event_id", nullIfEmpty(*patch.OutlookEventID))
	}
	return sets, args
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

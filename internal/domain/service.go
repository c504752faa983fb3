// Package domain defines the schedule entities and business logic.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityRepository captures persistence operations for activities.
// List must return the user's complete activity set: the sync
// reconciler's duplicate check scans it in full.
type ActivityRepository interface {
	List(ctx context.Context, userID string) ([]Activity, error)
	Get(ctx context.Context, userID, activityID string) (*Activity, error)
	Create(ctx context.Context, activity Activity) error
	Update(ctx context.Context, userID, activityID string, patch ActivityPatch) (*Activity, error)
	Delete(ctx context.Context, userID, activityID string) (bool, error)
}

// Service orchestrates activity workflows.
type Service struct {
	repo ActivityRepository
}

// NewService constructs a Service.
func NewService(repo ActivityRepository) *Service {
	return &Service{repo: repo}
}

// CreateActivityInput captures the payload from the API layer.
type CreateActivityInput struct {
	UserID      string
	Title       string
	Description string
	Category    string
	StartTime   time.Time
	EndTime     *time.Time
	Location    string
	Priority    string
	Status      string
}

// CreateActivity persists a new activity with generated id and defaults.
func (s *Service) CreateActivity(ctx context.Context, input CreateActivityInput) (*Activity, error) {
	now := time.Now().UTC()

	priority := input.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	status := input.Status
	if status == "" {
		status = StatusPending
	}

	activity := Activity{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		StartTime:   input.StartTime.UTC(),
		EndTime:     input.EndTime,
		Location:    input.Location,
		Priority:    priority,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// GetActivity fetches one activity scoped to the user.
func (s *Service) GetActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListActivities returns the user's full activity set.
func (s *Service) ListActivities(ctx context.Context, userID string) ([]Activity, error) {
	return s.repo.List(ctx, userID)
}

// UpdateActivity applies a partial update.
func (s *Service) UpdateActivity(ctx context.Context, userID, activityID string, patch ActivityPatch) (*Activity, error) {
	activity, err := s.repo.Update(ctx, userID, activityID, patch)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// DeleteActivity removes the local record.
func (s *Service) DeleteActivity(ctx context.Context, userID, activityID string) error {
	deleted, err := s.repo.Delete(ctx, userID, activityID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrActivityNotFound
	}
	return nil
}

// Package scheduler runs the periodic background sync pass.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/plannerhq/schedsync/internal/domain"
	syncpkg "github.com/plannerhq/schedsync/internal/sync"
)

// ConnectionLister enumerates the (user, provider) pairs to sync.
type ConnectionLister interface {
	ListConnected(ctx context.Context) ([]domain.Connection, error)
}

// Syncer runs one reconciliation pass for a single pair.
type Syncer interface {
	SyncNow(ctx context.Context, userID string, p domain.Provider, calendarID string) (syncpkg.Result, error)
}

// Scheduler fires a reconciliation sweep on a cron schedule. Each
// sweep pulls every connected pair; one pair failing does not stop
// the sweep.
type Scheduler struct {
	cron        *cron.Cron
	syncer      Syncer
	connections ConnectionLister
	passTimeout time.Duration
	logger      *log.Logger
}

// New builds a Scheduler. schedule uses cron syntax, descriptors
// like "@every 15m" included.
func New(syncer Syncer, connections ConnectionLister, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(),
		syncer:      syncer,
		connections: connections,
		passTimeout: 5 * time.Minute,
		logger:      log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.passTimeout)
	defer cancel()

	conns, err := s.connections.ListConnected(ctx)
	if err != nil {
		s.logger.Printf("listing connections failed: %v", err)
		return
	}

	for _, conn := range conns {
		result, err := s.syncer.SyncNow(ctx, conn.UserID, conn.Provider, "")
		if err != nil {
			s.logger.Printf("pass failed (user=%s provider=%s): %v", conn.UserID, conn.Provider, err)
			continue
		}
		s.logger.Printf("pass done (user=%s provider=%s pulled=%d created=%d skipped=%d)",
			conn.UserID, conn.Provider, result.Pulled, result.Created, result.Skipped)
	}
}

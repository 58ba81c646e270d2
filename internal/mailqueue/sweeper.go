package mailqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention is how long sent emails are kept before cleanup.
const DefaultRetention = 30 * 24 * time.Hour

// Sweeper deletes sent jobs older than the retention window. Pending,
// processing, and failed jobs are never touched regardless of age; dead
// letters are retained indefinitely.
type Sweeper struct {
	repo      Repository
	retention time.Duration
	nowFunc   func() time.Time
}

// NewSweeper creates a Sweeper. retention <= 0 falls back to
// DefaultRetention.
func NewSweeper(repo Repository, retention time.Duration) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{
		repo:      repo,
		retention: retention,
		nowFunc:   time.Now,
	}
}

// Sweep deletes sent jobs processed before now minus the retention window.
// Idempotent and safe to run concurrently with dispatch: the two operate
// on disjoint status classes.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.nowFunc().Add(-s.retention)

	deleted, err := s.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sent emails: %w", err)
	}

	if deleted > 0 {
		recordSwept(deleted)
		slog.Info("swept old sent emails", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

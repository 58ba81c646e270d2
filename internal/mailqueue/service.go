package mailqueue

import (
	"context"
	"fmt"
)

// Service is the operations surface of the mail queue, consumed by the
// account flows (enqueue wrappers via the embedded Enqueuer) and by
// operational tooling (manual drain, stats, history, cleanup).
type Service struct {
	*Enqueuer

	repo      Repository
	scheduler *Scheduler
}

// NewService creates the mail queue service.
func NewService(enqueuer *Enqueuer, repo Repository, scheduler *Scheduler) *Service {
	return &Service{
		Enqueuer:  enqueuer,
		repo:      repo,
		scheduler: scheduler,
	}
}

// TriggerDispatchNow drains due-pending and retry-eligible jobs once.
func (s *Service) TriggerDispatchNow(ctx context.Context) {
	s.scheduler.DispatchNow(ctx)
}

// CleanupNow runs the retention sweep once and returns the deleted count.
func (s *Service) CleanupNow(ctx context.Context) (int64, error) {
	return s.scheduler.CleanupNow(ctx)
}

// Stats returns queue counts by status.
func (s *Service) Stats(ctx context.Context) (*QueueStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// HistoryFor returns the sent emails for a recipient, newest first.
func (s *Service) HistoryFor(ctx context.Context, email string) ([]*EmailJob, error) {
	jobs, err := s.repo.HistoryForRecipient(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("email history for %s: %w", email, err)
	}
	return jobs, nil
}

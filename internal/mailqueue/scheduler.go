package mailqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig contains trigger intervals and batch sizing.
type SchedulerConfig struct {
	// DispatchInterval drives the due-pending selection.
	DispatchInterval time.Duration
	// RetryInterval drives the retry-eligible selection.
	RetryInterval time.Duration
	// CleanupInterval drives the retention sweep.
	CleanupInterval time.Duration
	// StuckGrace is how long a job may sit in processing before the
	// supervisory pass releases it back to failed.
	StuckGrace time.Duration
	// BatchSize caps how many jobs one trigger fire selects.
	BatchSize int
}

// DefaultSchedulerConfig returns the default trigger configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		DispatchInterval: 30 * time.Second,
		RetryInterval:    5 * time.Minute,
		CleanupInterval:  24 * time.Hour,
		StuckGrace:       10 * time.Minute,
		BatchSize:        100,
	}
}

// Scheduler runs the recurring triggers driving the dispatch pipeline:
// a fast due-pending trigger, a slower retry trigger, and a low-frequency
// cleanup trigger. Each fire is stateless; selection is re-derived from
// store state every time, so missed or overlapping fires are tolerated.
type Scheduler struct {
	config     SchedulerConfig
	repo       Repository
	dispatcher *Dispatcher
	sweeper    *Sweeper
	nowFunc    func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler with the dispatcher and sweeper as
// injected dependencies.
func NewScheduler(config SchedulerConfig, repo Repository, dispatcher *Dispatcher, sweeper *Sweeper) *Scheduler {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSchedulerConfig().BatchSize
	}
	return &Scheduler{
		config:     config,
		repo:       repo,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		nowFunc:    time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the trigger goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting mail queue scheduler",
		"dispatch_interval", s.config.DispatchInterval,
		"retry_interval", s.config.RetryInterval,
		"cleanup_interval", s.config.CleanupInterval,
		"batch_size", s.config.BatchSize,
	)

	s.wg.Add(3)
	go s.loop(ctx, s.config.DispatchInterval, s.dispatchPending)
	go s.loop(ctx, s.config.RetryInterval, s.dispatchRetries)
	go s.loop(ctx, s.config.CleanupInterval, s.cleanup)
}

// Stop waits for in-flight trigger fires to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("mail queue scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fire func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			fire(ctx)
		}
	}
}

func (s *Scheduler) dispatchPending(ctx context.Context) {
	jobs, err := s.repo.FetchDuePending(ctx, s.nowFunc(), s.config.BatchSize)
	if err != nil {
		// Store unreachable: abort this fire and wait for the next one.
		slog.Error("failed to fetch due pending emails", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	slog.Info("processing pending emails", "count", len(jobs))
	s.dispatcher.DispatchBatch(ctx, jobs)
}

func (s *Scheduler) dispatchRetries(ctx context.Context) {
	s.releaseStuck(ctx)

	jobs, err := s.repo.FetchRetryEligible(ctx, s.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch retry-eligible emails", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	slog.Info("retrying failed emails", "count", len(jobs))
	s.dispatcher.DispatchBatch(ctx, jobs)
}

// releaseStuck fails processing jobs whose dispatcher died mid-flight so
// they become retry-eligible again instead of dangling forever.
func (s *Scheduler) releaseStuck(ctx context.Context) {
	if s.config.StuckGrace <= 0 {
		return
	}

	cutoff := s.nowFunc().Add(-s.config.StuckGrace)
	released, err := s.repo.ReleaseStuckProcessing(ctx, cutoff)
	if err != nil {
		slog.Error("failed to release stuck processing emails", "error", err)
		return
	}
	if released > 0 {
		slog.Warn("released stuck processing emails", "count", released)
	}
}

func (s *Scheduler) cleanup(ctx context.Context) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		slog.Error("email cleanup failed", "error", err)
	}
}

// DispatchNow drains the due-pending selection and then the retry-eligible
// selection once, synchronously. Used by the ops API for manual drains.
func (s *Scheduler) DispatchNow(ctx context.Context) {
	s.dispatchPending(ctx)
	s.dispatchRetries(ctx)
}

// CleanupNow runs the retention sweep once, synchronously.
func (s *Scheduler) CleanupNow(ctx context.Context) (int64, error) {
	return s.sweeper.Sweep(ctx)
}

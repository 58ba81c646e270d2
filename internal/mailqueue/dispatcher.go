package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/imajkumar/chakra-user-service/internal/directory"
	"golang.org/x/time/rate"
)

// Message is the composed email handed to the outbound transport.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers a composed message. Implementations wrap errors so that
// IsRetryable() reflects whether a retry can succeed.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// EventPublisher emits email lifecycle events. Publishing is best-effort
// and must never block or fail dispatch.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any)
}

// DispatcherConfig contains dispatcher tuning knobs.
type DispatcherConfig struct {
	// MaxInFlight bounds concurrent sends within one batch.
	MaxInFlight int
	// SendsPerSecond caps the outbound send rate. Zero means unlimited.
	SendsPerSecond float64
}

// DefaultDispatcherConfig returns the default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxInFlight:    5,
		SendsPerSecond: 10,
	}
}

// Dispatcher processes one email job end to end: claim, resolve recipient,
// assemble content, send, commit the resulting status transition.
type Dispatcher struct {
	repo       Repository
	dir        directory.Directory
	sender     Sender
	assemblers *AssemblerSet
	events     EventPublisher // may be nil
	limiter    *rate.Limiter
	inFlight   int
	nowFunc    func() time.Time
}

// NewDispatcher creates a Dispatcher. events may be nil.
func NewDispatcher(cfg DispatcherConfig, repo Repository, dir directory.Directory, sender Sender, assemblers *AssemblerSet, events EventPublisher) *Dispatcher {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}

	var limiter *rate.Limiter
	if cfg.SendsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), 1)
	}

	return &Dispatcher{
		repo:       repo,
		dir:        dir,
		sender:     sender,
		assemblers: assemblers,
		events:     events,
		limiter:    limiter,
		inFlight:   cfg.MaxInFlight,
		nowFunc:    time.Now,
	}
}

// DispatchBatch dispatches jobs with bounded parallelism. A failure on one
// job never interrupts its siblings.
func (d *Dispatcher) DispatchBatch(ctx context.Context, jobs []*EmailJob) {
	if len(jobs) == 0 {
		return
	}

	recordQueueFetched(len(jobs))

	sem := make(chan struct{}, d.inFlight)
	var wg sync.WaitGroup

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(job *EmailJob) {
			defer wg.Done()
			defer func() { <-sem }()
			d.Dispatch(ctx, job)
		}(job)
	}

	wg.Wait()
}

// Dispatch processes a single job. The claim step guarantees at most one
// dispatcher works on a job even when trigger fires overlap.
func (d *Dispatcher) Dispatch(ctx context.Context, job *EmailJob) {
	claimed, err := d.repo.Claim(ctx, job.ID, job.Status)
	if err != nil {
		slog.Error("failed to claim email job", "job_id", job.ID, "error", err)
		return
	}
	if !claimed {
		slog.Debug("email job claimed elsewhere, skipping", "job_id", job.ID)
		return
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			// Shutdown mid-batch; the stuck-release pass will requeue.
			return
		}
	}

	start := d.nowFunc()

	recipient, err := d.dir.Lookup(ctx, job.RecipientEmail)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			d.fail(ctx, job, transientFailure(FailureResolution,
				fmt.Errorf("no profile for recipient %s: %w", job.RecipientEmail, err)))
			return
		}
		d.fail(ctx, job, transientFailure(FailureResolution, err))
		return
	}

	content, err := d.assemblers.Assemble(job, recipient)
	if err != nil {
		d.fail(ctx, job, err)
		return
	}

	err = d.sender.Send(ctx, Message{
		To:       job.RecipientEmail,
		Subject:  content.Subject,
		HTMLBody: content.HTMLBody,
		TextBody: content.TextBody,
	})
	if err != nil {
		if !isRetryable(err) {
			d.fail(ctx, job, permanentFailure(FailureTransport, err))
			return
		}
		d.fail(ctx, job, transientFailure(FailureTransport, err))
		return
	}

	sentAt := d.nowFunc()
	if err := d.repo.MarkSent(ctx, job.ID, sentAt); err != nil {
		// The mail is out; the row stays processing until the
		// stuck-release pass picks it up.
		slog.Error("failed to mark email as sent", "job_id", job.ID, "error", err)
		return
	}

	recordProcessed(string(job.Kind), "sent")
	recordSendDuration(string(job.Kind), sentAt.Sub(start))
	d.publish(ctx, "email_sent", job)

	slog.Debug("email sent",
		"job_id", job.ID,
		"kind", job.Kind,
		"recipient", job.RecipientEmail,
		"duration", sentAt.Sub(start),
	)
}

func (d *Dispatcher) fail(ctx context.Context, job *EmailJob, err error) {
	var derr *DispatchError
	if !errors.As(err, &derr) {
		derr = transientFailure(FailureTransport, err)
	}

	if derr.Permanent {
		if markErr := d.repo.MarkDeadLetter(ctx, job.ID, derr.Error()); markErr != nil {
			slog.Error("failed to dead-letter email job", "job_id", job.ID, "error", markErr)
			return
		}
		recordProcessed(string(job.Kind), "dead_letter")
		d.publish(ctx, "email_dead_lettered", job)

		slog.Warn("email job dead-lettered",
			"job_id", job.ID,
			"kind", job.Kind,
			"failure", derr.Kind,
			"error", derr.Err,
		)
		return
	}

	if markErr := d.repo.MarkFailed(ctx, job.ID, derr.Error()); markErr != nil {
		slog.Error("failed to mark email job as failed", "job_id", job.ID, "error", markErr)
		return
	}
	recordProcessed(string(job.Kind), "failed")

	slog.Warn("email dispatch failed",
		"job_id", job.ID,
		"kind", job.Kind,
		"failure", derr.Kind,
		"attempt", job.RetryCount+1,
		"max_retries", job.MaxRetries,
		"error", derr.Err,
	)
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, job *EmailJob) {
	if d.events == nil {
		return
	}
	d.events.Publish(ctx, eventType, lifecyclePayload(job))
}

func lifecyclePayload(job *EmailJob) map[string]any {
	return map[string]any{
		"job_id":    job.ID,
		"kind":      string(job.Kind),
		"recipient": job.RecipientEmail,
	}
}

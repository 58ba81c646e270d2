package mailqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Enqueuer creates pending email jobs. Callers treat enqueue failures as
// best-effort: an error is returned for logging but must never abort the
// caller's primary operation (registration, login, password reset).
type Enqueuer struct {
	repo       Repository
	events     EventPublisher // may be nil
	maxRetries int
	nowFunc    func() time.Time
}

// NewEnqueuer creates an Enqueuer. events may be nil. maxRetries <= 0
// falls back to DefaultMaxRetries.
func NewEnqueuer(repo Repository, maxRetries int, events EventPublisher) *Enqueuer {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Enqueuer{
		repo:       repo,
		events:     events,
		maxRetries: maxRetries,
		nowFunc:    time.Now,
	}
}

// EnqueueWelcome queues a welcome email for a newly registered account.
func (e *Enqueuer) EnqueueWelcome(ctx context.Context, email string, p WelcomePayload) (*EmailJob, error) {
	return e.enqueue(ctx, email, p, time.Time{})
}

// EnqueueLoginSuccess queues a login security alert.
func (e *Enqueuer) EnqueueLoginSuccess(ctx context.Context, email string, p LoginSuccessPayload) (*EmailJob, error) {
	return e.enqueue(ctx, email, p, time.Time{})
}

// EnqueuePasswordReset queues a password reset OTP email.
func (e *Enqueuer) EnqueuePasswordReset(ctx context.Context, email string, p PasswordResetPayload) (*EmailJob, error) {
	return e.enqueue(ctx, email, p, time.Time{})
}

// EnqueuePasswordChange queues a password change confirmation.
func (e *Enqueuer) EnqueuePasswordChange(ctx context.Context, email string, p PasswordChangePayload) (*EmailJob, error) {
	return e.enqueue(ctx, email, p, time.Time{})
}

// EnqueueAccountStatusChange queues an account status change notice.
func (e *Enqueuer) EnqueueAccountStatusChange(ctx context.Context, email string, p AccountStatusPayload) (*EmailJob, error) {
	return e.enqueue(ctx, email, p, time.Time{})
}

// EnqueueNotification queues a generic notification email.
func (e *Enqueuer) EnqueueNotification(ctx context.Context, email string, p NotificationPayload) (*EmailJob, error) {
	return e.enqueue(ctx, email, p, time.Time{})
}

// EnqueueNotificationAt queues a generic notification for delivery no
// earlier than the given time.
func (e *Enqueuer) EnqueueNotificationAt(ctx context.Context, email string, p NotificationPayload, at time.Time) (*EmailJob, error) {
	return e.enqueue(ctx, email, p, at)
}

func (e *Enqueuer) enqueue(ctx context.Context, email string, p Payload, scheduledAt time.Time) (*EmailJob, error) {
	raw, err := EncodePayload(p)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s email: %w", p.Kind(), err)
	}

	if scheduledAt.IsZero() {
		scheduledAt = e.nowFunc()
	}

	job := &EmailJob{
		ID:             uuid.NewString(),
		RecipientEmail: email,
		Kind:           p.Kind(),
		Status:         StatusPending,
		Payload:        raw,
		RetryCount:     0,
		MaxRetries:     e.maxRetries,
		ScheduledAt:    scheduledAt,
	}

	if err := e.repo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue %s email: %w", p.Kind(), err)
	}

	recordEnqueued(string(p.Kind()))

	if e.events != nil {
		e.events.Publish(ctx, "email_queued", lifecyclePayload(job))
	}

	slog.Info("email queued",
		"job_id", job.ID,
		"kind", job.Kind,
		"recipient", job.RecipientEmail,
		"scheduled_at", job.ScheduledAt,
	)
	return job, nil
}

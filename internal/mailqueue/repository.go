package mailqueue

import (
	"context"
	"time"
)

// Repository is the durable store for email jobs. All mutating operations
// are single-row and atomic; no transaction ever spans a selection and a
// later update, which is why the dispatcher claims each job with a
// conditional update before touching it.
type Repository interface {
	// Enqueue inserts a new job and fills in CreatedAt/UpdatedAt.
	Enqueue(ctx context.Context, job *EmailJob) error

	// FetchDuePending returns pending jobs with scheduled_at <= now,
	// oldest first.
	FetchDuePending(ctx context.Context, now time.Time, limit int) ([]*EmailJob, error)

	// FetchRetryEligible returns failed jobs still under their retry
	// budget, oldest first.
	FetchRetryEligible(ctx context.Context, limit int) ([]*EmailJob, error)

	// Claim transitions a job from the expected prior status to
	// processing. Returns false if another dispatcher got there first.
	Claim(ctx context.Context, id string, from Status) (bool, error)

	// MarkSent records the terminal success transition.
	MarkSent(ctx context.Context, id string, processedAt time.Time) error

	// MarkFailed records a failed attempt, atomically incrementing
	// retry_count (capped at max_retries) and storing the error message.
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// MarkDeadLetter fails the job and exhausts its retry budget in one
	// update so it is never selected for retry.
	MarkDeadLetter(ctx context.Context, id string, errMsg string) error

	// ReleaseStuckProcessing fails processing jobs whose last update is
	// older than the cutoff, consuming one retry slot each. Returns the
	// number of released jobs.
	ReleaseStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteSentBefore removes sent jobs processed before the cutoff.
	// Returns the number of deleted rows.
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CountByStatus(ctx context.Context, status Status) (int64, error)

	// HistoryForRecipient returns sent jobs for a recipient, newest first.
	HistoryForRecipient(ctx context.Context, email string) ([]*EmailJob, error)

	Stats(ctx context.Context) (*QueueStats, error)
}

// Package postgres provides the PostgreSQL implementation of the mail
// queue repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/imajkumar/chakra-user-service/internal/mailqueue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `
	id, recipient_email, kind, status, subject, html_body, text_body,
	payload, retry_count, max_retries, last_error, scheduled_at,
	processed_at, created_at, updated_at
`

// Repository implements mailqueue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL mail queue repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Enqueue inserts a new email job.
func (r *Repository) Enqueue(ctx context.Context, job *mailqueue.EmailJob) error {
	query := `
		INSERT INTO email_queue (
			id, recipient_email, kind, status, subject, html_body, text_body,
			payload, retry_count, max_retries, last_error, scheduled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		job.ID,
		job.RecipientEmail,
		job.Kind,
		job.Status,
		job.Subject,
		job.HTMLBody,
		job.TextBody,
		job.Payload,
		job.RetryCount,
		job.MaxRetries,
		job.LastError,
		job.ScheduledAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue email job: %w", err)
	}
	return nil
}

// FetchDuePending returns pending jobs due for dispatch, oldest first.
func (r *Repository) FetchDuePending(ctx context.Context, now time.Time, limit int) ([]*mailqueue.EmailJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM email_queue
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, mailqueue.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due pending: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// FetchRetryEligible returns failed jobs under their retry budget, oldest
// first.
func (r *Repository) FetchRetryEligible(ctx context.Context, limit int) ([]*mailqueue.EmailJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM email_queue
		WHERE status = $1 AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, mailqueue.StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch retry eligible: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// Claim conditionally transitions a job to processing. The WHERE clause on
// the prior status makes the claim atomic: only one of two overlapping
// dispatchers wins.
func (r *Repository) Claim(ctx context.Context, id string, from mailqueue.Status) (bool, error) {
	query := `
		UPDATE email_queue
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.Exec(ctx, query, id, from, mailqueue.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("claim email job: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkSent records the terminal success transition.
func (r *Repository) MarkSent(ctx context.Context, id string, processedAt time.Time) error {
	query := `
		UPDATE email_queue
		SET status = $2, processed_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, mailqueue.StatusSent, processedAt)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return mailqueue.ErrJobNotFound
	}
	return nil
}

// MarkFailed records a failed attempt in a single atomic update.
func (r *Repository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE email_queue
		SET status = $2,
		    retry_count = LEAST(retry_count + 1, max_retries),
		    last_error = $3,
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, mailqueue.StatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return mailqueue.ErrJobNotFound
	}
	return nil
}

// MarkDeadLetter fails the job and exhausts its retry budget so it never
// re-enters retry selection.
func (r *Repository) MarkDeadLetter(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE email_queue
		SET status = $2,
		    retry_count = max_retries,
		    last_error = $3,
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, mailqueue.StatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark dead letter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return mailqueue.ErrJobNotFound
	}
	return nil
}

// ReleaseStuckProcessing fails processing jobs not updated since the
// cutoff, consuming one retry slot each.
func (r *Repository) ReleaseStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE email_queue
		SET status = $1,
		    retry_count = LEAST(retry_count + 1, max_retries),
		    last_error = 'dispatch interrupted: released after grace period',
		    updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`
	result, err := r.db.Exec(ctx, query, mailqueue.StatusFailed, mailqueue.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stuck processing: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteSentBefore removes sent jobs processed before the cutoff.
func (r *Repository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM email_queue WHERE status = $1 AND processed_at < $2`
	result, err := r.db.Exec(ctx, query, mailqueue.StatusSent, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old sent emails: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountByStatus returns the number of jobs in the given status.
func (r *Repository) CountByStatus(ctx context.Context, status mailqueue.Status) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM email_queue WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by status: %w", err)
	}
	return count, nil
}

// HistoryForRecipient returns sent jobs for a recipient, newest first.
func (r *Repository) HistoryForRecipient(ctx context.Context, email string) ([]*mailqueue.EmailJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM email_queue
		WHERE recipient_email = $1 AND status = $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, email, mailqueue.StatusSent)
	if err != nil {
		return nil, fmt.Errorf("history for recipient: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// Stats returns per-status counts in a single query.
func (r *Repository) Stats(ctx context.Context) (*mailqueue.QueueStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'failed' AND retry_count >= max_retries)
		FROM email_queue
	`
	var stats mailqueue.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Processing,
		&stats.Sent,
		&stats.Failed,
		&stats.DeadLetters,
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}

func scanJobs(rows pgx.Rows) ([]*mailqueue.EmailJob, error) {
	jobs := make([]*mailqueue.EmailJob, 0)
	for rows.Next() {
		var job mailqueue.EmailJob
		err := rows.Scan(
			&job.ID,
			&job.RecipientEmail,
			&job.Kind,
			&job.Status,
			&job.Subject,
			&job.HTMLBody,
			&job.TextBody,
			&job.Payload,
			&job.RetryCount,
			&job.MaxRetries,
			&job.LastError,
			&job.ScheduledAt,
			&job.ProcessedAt,
			&job.CreatedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan email job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate email jobs: %w", err)
	}
	return jobs, nil
}

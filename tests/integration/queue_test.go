//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imajkumar/chakra-user-service/internal/mailqueue"
	mailqueuepostgres "github.com/imajkumar/chakra-user-service/internal/mailqueue/postgres"
)

func newTestJob(email string, kind mailqueue.Kind) *mailqueue.EmailJob {
	return &mailqueue.EmailJob{
		ID:             uuid.NewString(),
		RecipientEmail: email,
		Kind:           kind,
		Status:         mailqueue.StatusPending,
		Payload:        []byte(`{}`),
		MaxRetries:     3,
		ScheduledAt:    time.Now(),
	}
}

func TestQueueRepository_EnqueueAndFetch(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	job := newTestJob("fetch@example.com", mailqueue.KindWelcome)
	require.NoError(t, repo.Enqueue(ctx, job))
	assert.False(t, job.CreatedAt.IsZero())

	due, err := repo.FetchDuePending(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, job.ID, due[0].ID)
	assert.Equal(t, mailqueue.StatusPending, due[0].Status)
}

func TestQueueRepository_FIFOWithinBatch(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		job := newTestJob("fifo@example.com", mailqueue.KindNotification)
		require.NoError(t, repo.Enqueue(ctx, job))
		ids = append(ids, job.ID)
		time.Sleep(10 * time.Millisecond)
	}

	due, err := repo.FetchDuePending(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	for i, job := range due {
		assert.Equal(t, ids[i], job.ID, "jobs must come back oldest first")
	}
}

func TestQueueRepository_FutureJobsNotDue(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	job := newTestJob("later@example.com", mailqueue.KindNotification)
	job.ScheduledAt = time.Now().Add(time.Hour)
	require.NoError(t, repo.Enqueue(ctx, job))

	due, err := repo.FetchDuePending(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.FetchDuePending(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestQueueRepository_ClaimIsExclusive(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	job := newTestJob("claim@example.com", mailqueue.KindWelcome)
	require.NoError(t, repo.Enqueue(ctx, job))

	first, err := repo.Claim(ctx, job.ID, mailqueue.StatusPending)
	require.NoError(t, err)
	assert.True(t, first)

	// Second claim against the same prior status loses.
	second, err := repo.Claim(ctx, job.ID, mailqueue.StatusPending)
	require.NoError(t, err)
	assert.False(t, second)

	assert.Equal(t, mailqueue.StatusProcessing, getJob(t, job.ID).Status)
}

func TestQueueRepository_MarkFailedCapsRetryCount(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	job := newTestJob("retries@example.com", mailqueue.KindWelcome)
	require.NoError(t, repo.Enqueue(ctx, job))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.MarkFailed(ctx, job.ID, "smtp timeout"))
	}

	stored := getJob(t, job.ID)
	assert.Equal(t, mailqueue.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Equal(t, "smtp timeout", stored.LastError)

	// Exhausted jobs are excluded from retry selection.
	eligible, err := repo.FetchRetryEligible(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestQueueRepository_MarkDeadLetterExhaustsBudget(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	job := newTestJob("dead@example.com", mailqueue.KindWelcome)
	require.NoError(t, repo.Enqueue(ctx, job))

	require.NoError(t, repo.MarkDeadLetter(ctx, job.ID, "unknown email kind"))

	stored := getJob(t, job.ID)
	assert.Equal(t, mailqueue.StatusFailed, stored.Status)
	assert.Equal(t, stored.MaxRetries, stored.RetryCount)
	assert.True(t, stored.DeadLettered())

	eligible, err := repo.FetchRetryEligible(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestQueueRepository_ReleaseStuckProcessing(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	job := newTestJob("stuck@example.com", mailqueue.KindWelcome)
	require.NoError(t, repo.Enqueue(ctx, job))
	claimed, err := repo.Claim(ctx, job.ID, mailqueue.StatusPending)
	require.NoError(t, err)
	require.True(t, claimed)

	// A fresh claim is within the grace window.
	released, err := repo.ReleaseStuckProcessing(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, released)

	// Age the claim beyond the grace window.
	_, err = testDB.Exec(ctx, `UPDATE email_queue SET updated_at = NOW() - INTERVAL '1 hour' WHERE id = $1`, job.ID)
	require.NoError(t, err)

	released, err = repo.ReleaseStuckProcessing(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	stored := getJob(t, job.ID)
	assert.Equal(t, mailqueue.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	// Released jobs become retry-eligible again.
	eligible, err := repo.FetchRetryEligible(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, eligible, 1)
}

func TestQueueRepository_DeleteSentBefore(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	oldSent := newTestJob("old@example.com", mailqueue.KindWelcome)
	recentSent := newTestJob("recent@example.com", mailqueue.KindWelcome)
	deadLetter := newTestJob("dead@example.com", mailqueue.KindWelcome)
	for _, job := range []*mailqueue.EmailJob{oldSent, recentSent, deadLetter} {
		require.NoError(t, repo.Enqueue(ctx, job))
	}

	require.NoError(t, repo.MarkSent(ctx, oldSent.ID, time.Now().Add(-40*24*time.Hour)))
	require.NoError(t, repo.MarkSent(ctx, recentSent.ID, time.Now()))
	require.NoError(t, repo.MarkDeadLetter(ctx, deadLetter.ID, "permanent failure"))

	deleted, err := repo.DeleteSentBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Recent sent and dead letters survive.
	assert.Equal(t, mailqueue.StatusSent, getJob(t, recentSent.ID).Status)
	assert.True(t, getJob(t, deadLetter.ID).DeadLettered())

	// Sweeping again is a no-op.
	deleted, err = repo.DeleteSentBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestQueueRepository_StatsAndHistory(t *testing.T) {
	cleanQueue(t)
	repo := mailqueuepostgres.NewRepository(testDB)
	ctx := context.Background()

	pending := newTestJob("stats@example.com", mailqueue.KindWelcome)
	sent := newTestJob("stats@example.com", mailqueue.KindNotification)
	dead := newTestJob("stats@example.com", mailqueue.KindPasswordReset)
	for _, job := range []*mailqueue.EmailJob{pending, sent, dead} {
		require.NoError(t, repo.Enqueue(ctx, job))
	}
	require.NoError(t, repo.MarkSent(ctx, sent.ID, time.Now()))
	require.NoError(t, repo.MarkDeadLetter(ctx, dead.ID, "boom"))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.DeadLetters)

	// History exposes sent mail only.
	history, err := repo.HistoryForRecipient(ctx, "stats@example.com")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)
}

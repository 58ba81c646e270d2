//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/imajkumar/chakra-user-service/internal/domain"
	"github.com/imajkumar/chakra-user-service/internal/mailqueue"
)

// seedUser inserts a recipient profile and returns it.
func seedUser(t *testing.T, email, firstName, lastName string) *domain.User {
	t.Helper()

	user := &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      domain.RoleUser,
		Status:    domain.UserStatusActive,
	}

	_, err := testDB.Exec(context.Background(), `
		INSERT INTO users (id, email, first_name, last_name, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
	`, user.ID, user.Email, user.FirstName, user.LastName, user.Role, user.Status)
	require.NoError(t, err)

	return user
}

// cleanQueue removes all email jobs between tests.
func cleanQueue(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `DELETE FROM email_queue`)
	require.NoError(t, err)
}

// getJob reads a job row directly from the store.
func getJob(t *testing.T, id string) *mailqueue.EmailJob {
	t.Helper()

	var job mailqueue.EmailJob
	err := testDB.QueryRow(context.Background(), `
		SELECT id, recipient_email, kind, status, retry_count, max_retries,
		       last_error, scheduled_at, processed_at, created_at, updated_at
		FROM email_queue WHERE id = $1
	`, id).Scan(
		&job.ID, &job.RecipientEmail, &job.Kind, &job.Status,
		&job.RetryCount, &job.MaxRetries, &job.LastError,
		&job.ScheduledAt, &job.ProcessedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	require.NoError(t, err)
	return &job
}

// doGET performs a GET against the test server and decodes the body.
func doGET(t *testing.T, path string, out any) *http.Response {
	t.Helper()

	resp, err := http.Get(testServer.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// doPOST performs a POST with no body against the test server.
func doPOST(t *testing.T, path string, out any) *http.Response {
	t.Helper()

	resp, err := http.Post(testServer.URL+path, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// waitForJobStatus polls until a job reaches the wanted status.
func waitForJobStatus(t *testing.T, id string, want mailqueue.Status, timeout time.Duration) *mailqueue.EmailJob {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job := getJob(t, id)
		if job.Status == want {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}

	job := getJob(t, id)
	require.Equal(t, want, job.Status, fmt.Sprintf("job %s did not reach status %s", id, want))
	return job
}

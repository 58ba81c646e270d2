// Package mailqueue implements the durable email dispatch queue: persisted
// email jobs, the status state machine, periodic selection/dispatch/retry,
// and retention cleanup.
package mailqueue

import "time"

// Kind identifies the notification type of a queued email.
type Kind string

// Email kinds.
const (
	KindWelcome             Kind = "welcome"
	KindLoginSuccess        Kind = "login_success"
	KindPasswordReset       Kind = "password_reset"
	KindPasswordChange      Kind = "password_change"
	KindAccountStatusChange Kind = "account_status_change"
	KindNotification        Kind = "notification"
)

// Status represents the lifecycle state of a queued email.
type Status string

// Email statuses. Transitions are monotonic with one exception:
// failed -> processing is allowed for retries. Nothing ever returns
// to pending.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// DefaultMaxRetries is the per-job retry budget.
const DefaultMaxRetries = 3

// EmailJob is a single unit of queued email work.
type EmailJob struct {
	ID             string
	RecipientEmail string
	Kind           Kind
	Status         Status
	Subject        string
	HTMLBody       string
	TextBody       string
	Payload        []byte // kind-specific side-channel data, JSON
	RetryCount     int
	MaxRetries     int
	LastError      string
	ScheduledAt    time.Time
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeadLettered reports whether the job has exhausted its retry budget
// and is permanently excluded from retry selection.
func (j *EmailJob) DeadLettered() bool {
	return j.Status == StatusFailed && j.RetryCount >= j.MaxRetries
}

// QueueStats holds per-status counts for the queue.
type QueueStats struct {
	Total       int64 `json:"total"`
	Pending     int64 `json:"pending"`
	Processing  int64 `json:"processing"`
	Sent        int64 `json:"sent"`
	Failed      int64 `json:"failed"`
	DeadLetters int64 `json:"dead_letters"`
}

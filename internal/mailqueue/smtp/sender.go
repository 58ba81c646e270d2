// Package smtp delivers queued emails over SMTP.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/imajkumar/chakra-user-service/internal/mailqueue"
	gomail "gopkg.in/gomail.v2"
)

// Config holds SMTP sender configuration.
type Config struct {
	Enabled     bool
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// Sender implements mailqueue.Sender via SMTP.
type Sender struct {
	config Config
	dialer *gomail.Dialer
}

// NewSender creates a new SMTP sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.Host == "" {
			return nil, errors.New("smtp sender: host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("smtp sender: from address is required when enabled")
		}
	}

	// Set defaults
	if config.Port == 0 {
		config.Port = 587
	}
	if config.FromName == "" {
		config.FromName = "ChakraERP"
	}

	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	dialer.TLSConfig = &tls.Config{
		ServerName: config.Host,
		MinVersion: tls.VersionTLS12,
	}

	slog.Info("smtp sender configured",
		"enabled", config.Enabled,
		"host", config.Host,
		"port", config.Port,
		"from_address", config.FromAddress,
	)

	return &Sender{
		config: config,
		dialer: dialer,
	}, nil
}

// Send delivers a single message. Failures are classified so the queue can
// decide between retrying and dead-lettering.
func (s *Sender) Send(ctx context.Context, msg mailqueue.Message) error {
	if !s.config.Enabled {
		slog.Warn("smtp sender disabled, skipping send",
			"to", msg.To,
		)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return &sendError{err: err, retryable: true}
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.config.FromAddress, s.config.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return &sendError{
			err:       fmt.Errorf("smtp deliver to %s: %w", msg.To, err),
			retryable: isTemporary(err),
		}
	}

	return nil
}

// sendError carries retryability alongside the underlying SMTP failure.
type sendError struct {
	err       error
	retryable bool
}

func (e *sendError) Error() string { return e.err.Error() }

func (e *sendError) Unwrap() error { return e.err }

// IsRetryable reports whether the delivery failure is transient.
func (e *sendError) IsRetryable() bool { return e.retryable }

// isTemporary classifies SMTP and network failures.
func isTemporary(err error) bool {
	if err == nil {
		return false
	}

	// Network timeout errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection refused is retryable
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := err.Error()

	// SMTP 4xx codes are temporary failures (retryable)
	if strings.Contains(errStr, "421") || // Service not available
		strings.Contains(errStr, "450") || // Mailbox unavailable
		strings.Contains(errStr, "451") || // Local error
		strings.Contains(errStr, "452") { // Insufficient storage
		return true
	}

	// 552 - Mailbox full is sometimes retryable
	if strings.Contains(errStr, "552") {
		return true
	}

	// Permanent rejections (bad mailbox, policy) should dead-letter
	if strings.Contains(errStr, "550") ||
		strings.Contains(errStr, "551") ||
		strings.Contains(errStr, "553") ||
		strings.Contains(errStr, "554") {
		return false
	}

	// Unclassified errors default to retryable
	return true
}

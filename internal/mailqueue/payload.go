package mailqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Payload is the kind-specific side-channel data attached to a job at
// enqueue time and consumed only at dispatch time. Each kind has its own
// variant; payloads are validated before the job is persisted so dispatch
// never hits a missing required field.
type Payload interface {
	Kind() Kind
	Validate() error
}

// Payload validation errors.
var (
	ErrMissingOTP     = errors.New("password reset payload: otp is required")
	ErrMissingStatus  = errors.New("account status payload: new status is required")
	ErrMissingMessage = errors.New("notification payload: message is required")
)

// WelcomePayload accompanies a welcome email.
type WelcomePayload struct {
	UserID       string    `json:"user_id,omitempty"`
	UserRole     string    `json:"user_role,omitempty"`
	RegisteredAt time.Time `json:"registered_at,omitempty"`
	LoginURL     string    `json:"login_url,omitempty"`
}

func (WelcomePayload) Kind() Kind      { return KindWelcome }
func (WelcomePayload) Validate() error { return nil }

// LoginSuccessPayload accompanies a login alert email.
type LoginSuccessPayload struct {
	IPAddress  string    `json:"ip_address,omitempty"`
	DeviceInfo string    `json:"device_info,omitempty"`
	LoginAt    time.Time `json:"login_at,omitempty"`
}

func (LoginSuccessPayload) Kind() Kind      { return KindLoginSuccess }
func (LoginSuccessPayload) Validate() error { return nil }

// PasswordResetPayload accompanies a password reset OTP email.
type PasswordResetPayload struct {
	OTP       string `json:"otp"`
	IPAddress string `json:"ip_address,omitempty"`
}

func (PasswordResetPayload) Kind() Kind { return KindPasswordReset }

func (p PasswordResetPayload) Validate() error {
	if p.OTP == "" {
		return ErrMissingOTP
	}
	return nil
}

// PasswordChangePayload accompanies a password change confirmation email.
type PasswordChangePayload struct {
	IPAddress  string    `json:"ip_address,omitempty"`
	DeviceInfo string    `json:"device_info,omitempty"`
	ChangedAt  time.Time `json:"changed_at,omitempty"`
}

func (PasswordChangePayload) Kind() Kind      { return KindPasswordChange }
func (PasswordChangePayload) Validate() error { return nil }

// AccountStatusPayload accompanies an account status change email.
type AccountStatusPayload struct {
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
}

func (AccountStatusPayload) Kind() Kind { return KindAccountStatusChange }

func (p AccountStatusPayload) Validate() error {
	if p.NewStatus == "" {
		return ErrMissingStatus
	}
	return nil
}

// NotificationPayload is the generic free-form notification.
type NotificationPayload struct {
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

func (NotificationPayload) Kind() Kind { return KindNotification }

func (p NotificationPayload) Validate() error {
	if p.Message == "" {
		return ErrMissingMessage
	}
	return nil
}

// EncodePayload validates and serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return raw, nil
}

// DecodePayload deserializes the stored side channel for the given kind.
// The set of kinds is closed; an unknown kind is a permanent dispatch
// failure, not a retryable one.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var p Payload
	switch kind {
	case KindWelcome:
		p = &WelcomePayload{}
	case KindLoginSuccess:
		p = &LoginSuccessPayload{}
	case KindPasswordReset:
		p = &PasswordResetPayload{}
	case KindPasswordChange:
		p = &PasswordChangePayload{}
	case KindAccountStatusChange:
		p = &AccountStatusPayload{}
	case KindNotification:
		p = &NotificationPayload{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

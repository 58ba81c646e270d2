package mailqueue

import (
	"fmt"

	"github.com/imajkumar/chakra-user-service/internal/domain"
)

// Content is the assembled message ready for the outbound transport.
type Content struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// Assembler composes subject and bodies for one email kind from the job's
// side channel and the resolved recipient profile.
type Assembler func(job *EmailJob, recipient *domain.User) (*Content, error)

// AssemblerSet maps each kind to its content assembler. Kinds are
// registered explicitly so adding one is a local change, not an edit to a
// central switch.
type AssemblerSet struct {
	renderer   *Renderer
	loginURL   string
	assemblers map[Kind]Assembler
}

// NewAssemblerSet creates an AssemblerSet with assemblers for all built-in
// kinds registered.
func NewAssemblerSet(renderer *Renderer, loginURL string) *AssemblerSet {
	s := &AssemblerSet{
		renderer:   renderer,
		loginURL:   loginURL,
		assemblers: make(map[Kind]Assembler),
	}

	s.Register(KindWelcome, s.assembleWelcome)
	s.Register(KindLoginSuccess, s.assembleLoginSuccess)
	s.Register(KindPasswordReset, s.assemblePasswordReset)
	s.Register(KindPasswordChange, s.assemblePasswordChange)
	s.Register(KindAccountStatusChange, s.assembleAccountStatusChange)
	s.Register(KindNotification, s.assembleNotification)

	return s
}

// Register binds an assembler to a kind, replacing any existing binding.
func (s *AssemblerSet) Register(kind Kind, fn Assembler) {
	s.assemblers[kind] = fn
}

// Assemble runs the registered assembler for the job's kind. An unknown
// kind is permanent: retrying an identical job cannot succeed.
func (s *AssemblerSet) Assemble(job *EmailJob, recipient *domain.User) (*Content, error) {
	fn, ok := s.assemblers[job.Kind]
	if !ok {
		return nil, permanentFailure(FailureRender, fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind))
	}

	content, err := fn(job, recipient)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (s *AssemblerSet) assembleWelcome(job *EmailJob, recipient *domain.User) (*Content, error) {
	p, err := decodeFor[*WelcomePayload](job)
	if err != nil {
		return nil, err
	}

	loginURL := p.LoginURL
	if loginURL == "" {
		loginURL = s.loginURL
	}

	htmlBody, err := s.render(job.Kind, map[string]any{
		"Name":     recipient.FullName(),
		"LoginURL": loginURL,
		"Role":     p.UserRole,
	})
	if err != nil {
		return nil, err
	}

	return &Content{
		Subject:  "Welcome to ChakraERP - Your Account is Ready",
		HTMLBody: htmlBody,
		TextBody: fmt.Sprintf("Hello %s, your ChakraERP account is ready. Sign in at %s", recipient.FullName(), loginURL),
	}, nil
}

func (s *AssemblerSet) assembleLoginSuccess(job *EmailJob, recipient *domain.User) (*Content, error) {
	p, err := decodeFor[*LoginSuccessPayload](job)
	if err != nil {
		return nil, err
	}

	htmlBody, err := s.render(job.Kind, map[string]any{
		"Name":       recipient.FullName(),
		"IPAddress":  orUnknown(p.IPAddress),
		"DeviceInfo": orUnknown(p.DeviceInfo),
		"LoginAt":    p.LoginAt,
	})
	if err != nil {
		return nil, err
	}

	return &Content{
		Subject:  "Login Successful - ChakraERP Security Alert",
		HTMLBody: htmlBody,
		TextBody: fmt.Sprintf("New sign-in to your ChakraERP account from IP %s (%s).", orUnknown(p.IPAddress), orUnknown(p.DeviceInfo)),
	}, nil
}

func (s *AssemblerSet) assemblePasswordReset(job *EmailJob, recipient *domain.User) (*Content, error) {
	p, err := decodeFor[*PasswordResetPayload](job)
	if err != nil {
		return nil, err
	}
	if p.OTP == "" {
		return nil, permanentFailure(FailureRender, ErrMissingOTP)
	}

	htmlBody, err := s.render(job.Kind, map[string]any{
		"Name":      recipient.FullName(),
		"OTP":       p.OTP,
		"IPAddress": p.IPAddress,
	})
	if err != nil {
		return nil, err
	}

	return &Content{
		Subject:  "Password Reset OTP - ChakraERP",
		HTMLBody: htmlBody,
		TextBody: "Your password reset OTP is: " + p.OTP,
	}, nil
}

func (s *AssemblerSet) assemblePasswordChange(job *EmailJob, recipient *domain.User) (*Content, error) {
	p, err := decodeFor[*PasswordChangePayload](job)
	if err != nil {
		return nil, err
	}

	htmlBody, err := s.render(job.Kind, map[string]any{
		"Name":       recipient.FullName(),
		"IPAddress":  orUnknown(p.IPAddress),
		"DeviceInfo": orUnknown(p.DeviceInfo),
		"ChangedAt":  p.ChangedAt,
	})
	if err != nil {
		return nil, err
	}

	return &Content{
		Subject:  "Password Changed Successfully - ChakraERP Security Alert",
		HTMLBody: htmlBody,
		TextBody: "Your password has been successfully changed.",
	}, nil
}

func (s *AssemblerSet) assembleAccountStatusChange(job *EmailJob, recipient *domain.User) (*Content, error) {
	p, err := decodeFor[*AccountStatusPayload](job)
	if err != nil {
		return nil, err
	}
	if p.NewStatus == "" {
		return nil, permanentFailure(FailureRender, ErrMissingStatus)
	}

	htmlBody, err := s.render(job.Kind, map[string]any{
		"Name":      recipient.FullName(),
		"NewStatus": p.NewStatus,
		"Reason":    p.Reason,
	})
	if err != nil {
		return nil, err
	}

	return &Content{
		Subject:  "Account Status Update - ChakraERP",
		HTMLBody: htmlBody,
		TextBody: "Your account status has been updated to: " + p.NewStatus,
	}, nil
}

func (s *AssemblerSet) assembleNotification(job *EmailJob, recipient *domain.User) (*Content, error) {
	p, err := decodeFor[*NotificationPayload](job)
	if err != nil {
		return nil, err
	}

	subject := p.Subject
	if subject == "" {
		subject = "Notification - ChakraERP"
	}

	htmlBody, err := s.render(job.Kind, map[string]any{
		"Name":    recipient.FullName(),
		"Subject": subject,
		"Message": p.Message,
	})
	if err != nil {
		return nil, err
	}

	return &Content{
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: p.Message,
	}, nil
}

func (s *AssemblerSet) render(kind Kind, data any) (string, error) {
	body, err := s.renderer.Render(kind, data)
	if err != nil {
		return "", permanentFailure(FailureRender, err)
	}
	return body, nil
}

// decodeFor decodes the job's side channel into the typed variant for T.
// A malformed payload is permanent: the stored bytes will not fix
// themselves on retry.
func decodeFor[T Payload](job *EmailJob) (T, error) {
	var zero T
	p, err := DecodePayload(job.Kind, job.Payload)
	if err != nil {
		return zero, permanentFailure(FailureRender, err)
	}
	typed, ok := p.(T)
	if !ok {
		return zero, permanentFailure(FailureRender, fmt.Errorf("payload type mismatch for kind %s", job.Kind))
	}
	return typed, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

package mailqueue

import "errors"

// Repository errors.
var (
	ErrJobNotFound = errors.New("email job not found")
)

// Dispatch errors.
var (
	ErrUnknownKind = errors.New("unknown email kind")
)

// FailureKind classifies where in the dispatch pipeline a failure occurred.
type FailureKind string

const (
	FailureResolution FailureKind = "resolution"
	FailureRender     FailureKind = "render"
	FailureTransport  FailureKind = "transport"
	FailureStore      FailureKind = "store"
)

// DispatchError carries the failure kind and whether the failure is
// permanent. Permanent failures dead-letter the job immediately instead of
// burning through the retry budget one attempt at a time.
type DispatchError struct {
	Kind      FailureKind
	Permanent bool
	Err       error
}

func (e *DispatchError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsRetryable reports whether the wrapped failure may succeed on retry.
func (e *DispatchError) IsRetryable() bool { return !e.Permanent }

func permanentFailure(kind FailureKind, err error) *DispatchError {
	return &DispatchError{Kind: kind, Permanent: true, Err: err}
}

func transientFailure(kind FailureKind, err error) *DispatchError {
	return &DispatchError{Kind: kind, Permanent: false, Err: err}
}

// isRetryable classifies an arbitrary error. Errors that implement
// IsRetryable() decide for themselves; everything else defaults to
// retryable so transient infrastructure hiccups are not dead-lettered.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

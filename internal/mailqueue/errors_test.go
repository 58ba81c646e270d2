package mailqueue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "transient dispatch error",
			err:      transientFailure(FailureTransport, errors.New("timeout")),
			expected: true,
		},
		{
			name:     "permanent dispatch error",
			err:      permanentFailure(FailureRender, errors.New("bad template")),
			expected: false,
		},
		{
			name:     "generic error defaults to retryable",
			err:      errors.New("unknown error"),
			expected: true,
		},
		{
			name:     "wrapped permanent error",
			err:      &nonRetryableError{err: errors.New("550 no such mailbox")},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestDispatchError(t *testing.T) {
	inner := errors.New("boom")
	err := permanentFailure(FailureRender, inner)

	assert.Equal(t, "render: boom", err.Error())
	assert.False(t, err.IsRetryable())
	assert.ErrorIs(t, err, inner)
}

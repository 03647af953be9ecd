package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := Newf(ErrDocumentNotFound, "doc %d", 42)
	wrapped := fmt.Errorf("candidates: %w", err)

	assert.True(t, errors.Is(wrapped, ErrDocumentNotFound))
	assert.Equal(t, "document not found: doc 42", err.Error())
}

func TestThresholdBelowBandingIsConfigError(t *testing.T) {
	assert.True(t, errors.Is(ErrThresholdBelowBanding, ErrInvalidConfig))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", New(ErrThresholdBelowBanding, "0.3 < 0.5"), ExitConfig},
		{"duplicate", fmt.Errorf("add: %w", ErrDuplicateDocument), ExitInput},
		{"missing signature", ErrSignatureNotFound, ExitInput},
		{"unavailable", fmt.Errorf("redis: %w", ErrUnavailable), ExitUnavailable},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

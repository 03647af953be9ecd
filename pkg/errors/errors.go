package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrThresholdBelowBanding = fmt.Errorf("clustering threshold below banding threshold: %w", ErrInvalidConfig)
	ErrDuplicateDocument     = errors.New("document already indexed")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrSignatureNotFound     = errors.New("signature not found")
	ErrSignatureLength       = errors.New("signature length mismatch")
	ErrPipelineClosed        = errors.New("pipeline closed")
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnavailable           = errors.New("dependency unavailable")
)

// Exit codes reported by the CLI.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitInput       = 3
	ExitUnavailable = 4
)

type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// ExitCode maps an error chain to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfig
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrDuplicateDocument),
		errors.Is(err, ErrDocumentNotFound),
		errors.Is(err, ErrSignatureNotFound),
		errors.Is(err, ErrSignatureLength):
		return ExitInput
	case errors.Is(err, ErrUnavailable):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}

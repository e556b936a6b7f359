// Package errors defines the failure taxonomy of an index build. Every
// failure is fatal to the build; callers classify errors with errors.Is
// against the sentinels below and pick a process exit code via ExitCode.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfig      = errors.New("config error")
	ErrIO          = errors.New("io error")
	ErrEmptyCorpus = errors.New("empty corpus")
	ErrInvariant   = errors.New("invariant violation")
	ErrAnnounce    = errors.New("announce error")
)

// Exit codes returned by the indexer command.
const (
	ExitOK          = 0
	ExitInternal    = 1
	ExitConfig      = 2
	ExitIO          = 3
	ExitEmptyCorpus = 4
	ExitInvariant   = 5
	ExitAnnounce    = 6
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

// Wrap attaches sentinel to cause so that both errors.Is(err, sentinel) and
// errors.Is(err, cause) hold.
func Wrap(sentinel error, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", sentinel, fmt.Sprintf(format, args...), cause)
}

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrIO):
		return ExitIO
	case errors.Is(err, ErrEmptyCorpus):
		return ExitEmptyCorpus
	case errors.Is(err, ErrInvariant):
		return ExitInvariant
	case errors.Is(err, ErrAnnounce):
		return ExitAnnounce
	default:
		return ExitInternal
	}
}

// Package errors defines the sentinel errors shared across indexgen and maps
// them onto process exit codes. Fatal conditions are grouped the same way the
// CLI reports them: usage/configuration, resource creation, I/O, and
// communication between the orchestrator and its workers.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrUnroutableWord     = errors.New("word cannot be routed")
	ErrWordTooLong        = errors.New("word exceeds maximum length")
	ErrSendFailed         = errors.New("message send failed")
	ErrReceiveFailed      = errors.New("message receive failed")
	ErrIdleTimeout        = errors.New("worker idle timeout")
	ErrWorkerFailed       = errors.New("worker failed")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrWordNotFound       = errors.New("word not in index")
	ErrIO                 = errors.New("i/o error")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInternal           = errors.New("internal error")
)

// Exit codes returned by the indexgen binary.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitResource      = 3
	ExitIO            = 4
	ExitCommunication = 5
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCode,
	}
}

func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCode,
	}
}

// ExitCode classifies err into the process exit code for its category.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.ExitCode != 0 {
		return appErr.ExitCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidWorkerCount):
		return ExitUsage
	case errors.Is(err, ErrBackendUnavailable):
		return ExitResource
	case errors.Is(err, ErrIO), errors.Is(err, ErrArtifactNotFound):
		return ExitIO
	case errors.Is(err, ErrSendFailed), errors.Is(err, ErrReceiveFailed),
		errors.Is(err, ErrIdleTimeout), errors.Is(err, ErrWorkerFailed):
		return ExitCommunication
	default:
		return ExitFailure
	}
}

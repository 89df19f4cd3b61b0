package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure modes
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrAudioNotFound = errors.New("audio not found")
	ErrUnknownType   = errors.New("unknown job type")
)

// ValidationError signals a malformed request at job-creation time.
// It is surfaced synchronously to the caller; no job is persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError creates a ValidationError
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ProcessError represents a failure in an external inference process
type ProcessError struct {
	Tool     string // "demucs", "basic-pitch"
	Stage    string // "stem_separation", "midi_conversion"
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed at %s (exit %d): %s", e.Tool, e.Stage, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed at %s (exit %d)", e.Tool, e.Stage, e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// NewProcessError creates a ProcessError
func NewProcessError(tool, stage string, exitCode int, stderr string, cause error) *ProcessError {
	return &ProcessError{
		Tool:     tool,
		Stage:    stage,
		ExitCode: exitCode,
		Stderr:   stderr,
		Cause:    cause,
	}
}

// IsPermanent reports whether err is terminal for a job: retrying with the
// same input would reproduce the same failure. Everything else is treated
// as transient and left to the queue's retry policy.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	var pe *ProcessError
	switch {
	case errors.As(err, &ve), errors.As(err, &pe):
		return true
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrAudioNotFound),
		errors.Is(err, ErrUnknownType):
		return true
	}
	return false
}

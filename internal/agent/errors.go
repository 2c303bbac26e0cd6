package agent

import (
	"errors"
	"fmt"
)

// CommError reports a failed communication with a participant backend.
// Recoverable with bounded retry; fatal after exhaustion.
type CommError struct {
	ParticipantID string
	Err           error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("agent communication with %s failed: %v", e.ParticipantID, e.Err)
}

func (e *CommError) Unwrap() error { return e.Err }

// NewCommError wraps a transport failure for the given participant.
func NewCommError(participantID string, err error) *CommError {
	return &CommError{ParticipantID: participantID, Err: err}
}

// IsCommError reports whether err is (or wraps) a CommError.
func IsCommError(err error) bool {
	var ce *CommError
	return errors.As(err, &ce)
}

// ValidationError reports that free text could not be shaped into a valid
// structured result (for example, a constraint principle without an amount).
// Recoverable via re-prompt; the caller decides the fallback policy.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// NewValidationError builds a ValidationError with the given reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

package engines

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrUnknownEngine is returned by New for an unrecognised engine name.
	ErrUnknownEngine = errors.New("unknown TTS engine")
)

// ErrorCode identifies specific error types
type ErrorCode string

const (
	CodeUnavailable  ErrorCode = "ENGINE_UNAVAILABLE"
	CodeFailure      ErrorCode = "ENGINE_FAILURE"
	CodeTimeout      ErrorCode = "ENGINE_TIMEOUT"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeRateLimited  ErrorCode = "RATE_LIMITED"
)

// EngineError is returned by synthesizers with enough context to decide
// whether a retry could help.
type EngineError struct {
	Engine  string
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Engine, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Engine, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same request may succeed later.
func (e *EngineError) Retryable() bool {
	return e.Code == CodeTimeout || e.Code == CodeRateLimited
}

func newError(engine string, code ErrorCode, msg string, cause error) *EngineError {
	return &EngineError{Engine: engine, Code: code, Message: msg, Cause: cause}
}

// IsRetryable reports whether err is an EngineError worth retrying.
func IsRetryable(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Retryable()
}

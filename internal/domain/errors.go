package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every module. Callers match with errors.Is.
var (
	// ErrSourceUnavailable means an external quote or balance source failed or timed out.
	// Never returned from the quote cache; it is folded into the per-asset quote status.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrInsufficientData means a computation lacks the inputs it needs (zero total, no buckets).
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidInput means a caller-supplied value was rejected.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConvergenceFailure means the XIRR solver gave up. Surfaced as an absent rate.
	ErrConvergenceFailure = errors.New("convergence failure")
	// ErrInconsistentState means caller-held state no longer matches the system.
	ErrInconsistentState = errors.New("inconsistent state")
	// ErrMissingBaseline is the inconsistent state raised when a crypto
	// confirmation arrives without a usable baseline.
	ErrMissingBaseline = fmt.Errorf("%w: missing crypto baseline", ErrInconsistentState)
	// ErrNotFound means a referenced record does not exist.
	ErrNotFound = errors.New("not found")
)

// InvalidInput wraps ErrInvalidInput with a formatted message.
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// InsufficientData wraps ErrInsufficientData with a formatted message.
func InsufficientData(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInsufficientData, fmt.Sprintf(format, args...))
}

// SourceUnavailable wraps a source failure so it matches ErrSourceUnavailable
// while keeping the underlying error reachable.
func SourceUnavailable(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, source, err)
}

// NotFound wraps ErrNotFound for the given kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

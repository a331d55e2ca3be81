package analysis

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes exposed to callers alongside messages, mirroring the
// machine-readable code field of the surrounding platform's error
// payloads.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnknownMethod     = "UNKNOWN_METHOD"
	CodeDuplicateMethod   = "DUPLICATE_METHOD"
	CodeDisconnectedGraph = "DISCONNECTED_GRAPH"
	CodeSingularMatrix    = "SINGULAR_MATRIX"
	CodeCollinearity      = "COLLINEARITY"
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeCancelled         = "CANCELLED"
	CodePartitionFailure  = "PARTITION_FAILURE"
	CodeComputation       = "COMPUTATION_ERROR"
)

// UnknownMethodError reports a lookup for a method that was never
// registered.
type UnknownMethodError struct {
	Category string
	Name     string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown method: %s/%s", e.Category, e.Name)
}

// Code returns the machine-readable error code.
func (e *UnknownMethodError) Code() string { return CodeUnknownMethod }

// DuplicateMethodError reports a second registration under an existing
// (category, name) key. Re-registration is disallowed to guard against
// silent overrides from plugin loading order.
type DuplicateMethodError struct {
	Category string
	Name     string
}

func (e *DuplicateMethodError) Error() string {
	return fmt.Sprintf("method already registered: %s/%s", e.Category, e.Name)
}

// Code returns the machine-readable error code.
func (e *DuplicateMethodError) Code() string { return CodeDuplicateMethod }

// Issue is one violated constraint found during validation.
type Issue struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// ValidationError accumulates every violated constraint of a request so
// the caller can fix them in one round-trip.
type ValidationError struct {
	Category string
	Method   string
	Issues   []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return fmt.Sprintf("validation failed for %s/%s: %s",
		e.Category, e.Method, strings.Join(msgs, "; "))
}

// Code returns the machine-readable error code.
func (e *ValidationError) Code() string { return CodeValidation }

// ComputationError is a terminal numeric failure inside a method. The
// code names the precise failure mode; category, method and fingerprint
// are filled in by the engine so callers can correlate the failure with
// a specific cache key.
type ComputationError struct {
	ErrCode     string
	Category    string
	Method      string
	Fingerprint string
	Message     string
	Err         error
}

func (e *ComputationError) Error() string {
	scope := ""
	if e.Category != "" || e.Method != "" {
		scope = fmt.Sprintf(" (%s/%s fp=%s)", e.Category, e.Method, e.Fingerprint)
	}
	return fmt.Sprintf("%s: %s%s", strings.ToLower(e.ErrCode), e.Message, scope)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// Code returns the machine-readable error code.
func (e *ComputationError) Code() string { return e.ErrCode }

// ErrDisconnectedGraph builds the failure for unreachable source and
// destination nodes.
func ErrDisconnectedGraph(format string, args ...any) *ComputationError {
	return &ComputationError{ErrCode: CodeDisconnectedGraph, Message: fmt.Sprintf(format, args...)}
}

// ErrSingularMatrix builds the failure for a degenerate point
// configuration that makes a linear system unsolvable.
func ErrSingularMatrix(format string, args ...any) *ComputationError {
	return &ComputationError{ErrCode: CodeSingularMatrix, Message: fmt.Sprintf(format, args...)}
}

// ErrCollinearity builds the failure for a near-singular design matrix.
func ErrCollinearity(format string, args ...any) *ComputationError {
	return &ComputationError{ErrCode: CodeCollinearity, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidParameter builds the failure for a parameter value that is
// schema-valid but numerically undefined (radius 0, empty breaks...).
func ErrInvalidParameter(format string, args ...any) *ComputationError {
	return &ComputationError{ErrCode: CodeInvalidParameter, Message: fmt.Sprintf(format, args...)}
}

// CancelledError marks cooperative cancellation of an in-flight
// request. It is not a defect.
type CancelledError struct {
	Category    string
	Method      string
	Fingerprint string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("analysis cancelled: %s/%s fp=%s", e.Category, e.Method, e.Fingerprint)
}

// Code returns the machine-readable error code.
func (e *CancelledError) Code() string { return CodeCancelled }

// PartitionFailure wraps the first partition error (by partition index,
// not completion order) of a chunked run.
type PartitionFailure struct {
	Partition int
	Err       error
}

func (e *PartitionFailure) Error() string {
	return fmt.Sprintf("partition %d failed: %v", e.Partition, e.Err)
}

func (e *PartitionFailure) Unwrap() error { return e.Err }

// Code returns the machine-readable error code.
func (e *PartitionFailure) Code() string { return CodePartitionFailure }

// Annotate stamps category, method and fingerprint onto computation and
// cancellation errors anywhere in the wrap chain, so every failure the
// engine returns can be correlated with its cache key. The input error
// is never mutated: a cached failure is replayed to every waiter within
// its TTL, so the shared value must stay read-only. The stamped copy
// wraps the original, keeping the full chain visible to errors.Is/As.
func Annotate(err error, category, method, fingerprint string) error {
	if err == nil {
		return nil
	}
	var comp *ComputationError
	if errors.As(err, &comp) {
		stamped := *comp
		stamped.Category = category
		stamped.Method = method
		stamped.Fingerprint = fingerprint
		stamped.Err = err
		return &stamped
	}
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		stamped := *cancelled
		stamped.Category = category
		stamped.Method = method
		stamped.Fingerprint = fingerprint
		return &stamped
	}
	return err
}

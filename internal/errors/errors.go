// Package errors provides structured error types for the Quillstream pipeline.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline component.
type ErrorCategory string

const (
	ErrCategorySource     ErrorCategory = "SOURCE"
	ErrCategoryParse      ErrorCategory = "PARSE"
	ErrCategoryWarehouse  ErrorCategory = "WAREHOUSE"
	ErrCategoryCheckpoint ErrorCategory = "CHECKPOINT"
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Source codes
	CodeListFailed = "LIST_FAILED"
	CodeReadFailed = "READ_FAILED"

	// Parse codes
	CodeMalformedRecord      = "MALFORMED_RECORD"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"

	// Warehouse codes
	CodeWriteFailed      = "WRITE_FAILED"
	CodeSchemaInitFailed = "SCHEMA_INIT_FAILED"
	CodeQueryFailed      = "QUERY_FAILED"

	// Checkpoint codes
	CodeCheckpointLoadFailed   = "CHECKPOINT_LOAD_FAILED"
	CodeCheckpointAppendFailed = "CHECKPOINT_APPEND_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PipelineError is the structured error type used throughout the system.
type PipelineError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PipelineError) WithDetails(details map[string]interface{}) *PipelineError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
// Re-running the driver is the retry mechanism: a retryable error means the
// same file may succeed on a later run without operator intervention.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Malformed input never
// is; transient I/O against the source or warehouse is.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategorySource && code == CodeListFailed:
		return true
	case category == ErrCategorySource && code == CodeReadFailed:
		return true
	case category == ErrCategoryWarehouse && code == CodeWriteFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewSourceError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategorySource, code, message, cause)
}

func NewParseError(code, message string) *PipelineError {
	return New(ErrCategoryParse, code, message)
}

func NewWarehouseError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryWarehouse, code, message, cause)
}

func NewCheckpointError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryCheckpoint, code, message, cause)
}

func NewConfigError(message string) *PipelineError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

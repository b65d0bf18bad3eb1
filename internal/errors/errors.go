// Package errors provides structured error types for the snapshot
// governance system. All errors include a category, code, message, and
// retryable flag for consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategorySelection ErrorCategory = "SELECTION"
	ErrCategoryRegistry  ErrorCategory = "REGISTRY"
	ErrCategoryIntegrity ErrorCategory = "INTEGRITY"
	ErrCategoryCoverage  ErrorCategory = "COVERAGE"
	ErrCategoryStorage   ErrorCategory = "STORAGE"
	ErrCategoryConfig    ErrorCategory = "CONFIG"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Selection codes
	CodeNoSnapshotAvailable = "NO_SNAPSHOT_AVAILABLE"
	CodeBaselineNotFound    = "BASELINE_NOT_FOUND"
	CodeAmbiguousSnapshot   = "AMBIGUOUS_SNAPSHOT"

	// Registry codes
	CodeEntryNotFound               = "ENTRY_NOT_FOUND"
	CodeImmutablePartitionViolation = "IMMUTABLE_PARTITION_VIOLATION"
	CodeInvalidTransition           = "INVALID_TRANSITION"
	CodeWriteConflict               = "WRITE_CONFLICT"

	// Integrity codes
	CodeDuplicateFile    = "DUPLICATE_FILE"
	CodePartitionMissing = "PARTITION_MISSING"
	CodeManifestMissing  = "MANIFEST_MISSING"
	CodeManifestMismatch = "MANIFEST_MISMATCH"
	CodeRegistryMismatch = "REGISTRY_MISMATCH"

	// Coverage codes
	CodeInsufficientHistory = "INSUFFICIENT_HISTORY"

	// Storage codes
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeReadFailed     = "READ_FAILED"
	CodeListFailed     = "LIST_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// GovError is the structured error type used throughout the system.
type GovError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *GovError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *GovError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *GovError) Is(target error) bool {
	var t *GovError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new GovError.
func New(category ErrorCategory, code, message string) *GovError {
	return &GovError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new GovError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *GovError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new GovError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *GovError {
	return &GovError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *GovError) WithDetails(details map[string]interface{}) *GovError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ge *GovError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a GovError.
func GetCategory(err error) ErrorCategory {
	var ge *GovError
	if errors.As(err, &ge) {
		return ge.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a GovError.
func GetCode(err error) string {
	var ge *GovError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// isRetryable determines if an error code is retryable.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryRegistry && code == CodeWriteConflict:
		return true
	case category == ErrCategoryStorage && code == CodeReadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeListFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewSelectionError(code, message string) *GovError {
	return New(ErrCategorySelection, code, message)
}

func NewRegistryError(code, message string, cause error) *GovError {
	return Wrap(ErrCategoryRegistry, code, message, cause)
}

func NewIntegrityError(code, message string) *GovError {
	return New(ErrCategoryIntegrity, code, message)
}

func NewStorageError(code, message string, cause error) *GovError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewConfigError(message string) *GovError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *GovError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

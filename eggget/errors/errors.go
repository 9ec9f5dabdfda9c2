package errors

import (
	stderrors "errors"
	"fmt"
)

// Error values for egg-get operations. Derived errors keep the Code of the
// sentinel they were built from, so errors.Is(err, ErrTruncated) holds for any
// ErrTruncated.WithDetail(...) value.
var (
	// ErrIO is returned when an archive cannot be opened or mapped
	ErrIO = &EggError{Code: "IO_ERROR", Message: "failed to open archive"}

	// ErrTruncated is returned when fewer bytes remain than a chunk declares
	ErrTruncated = &EggError{Code: "TRUNCATED", Message: "archive truncated"}

	// ErrUnrecognizedTag is returned when a magic tag is outside the known set
	ErrUnrecognizedTag = &EggError{Code: "UNRECOGNIZED_TAG", Message: "unrecognized chunk tag"}

	// ErrUnsupportedChunk is returned for comment headers and unknown encryption methods
	ErrUnsupportedChunk = &EggError{Code: "UNSUPPORTED_CHUNK", Message: "unsupported chunk"}

	// ErrDecode is returned for invalid filenames and corrupt compressed data
	ErrDecode = &EggError{Code: "DECODE_ERROR", Message: "decode failed"}

	// ErrNotFound is returned when a named entry is not present in the archive
	ErrNotFound = &EggError{Code: "NOT_FOUND", Message: "entry not found"}

	// ErrUnsupportedMethod is returned when a block declares an unknown compression method
	ErrUnsupportedMethod = &EggError{Code: "UNSUPPORTED_METHOD", Message: "unsupported compression method"}

	// ErrBadArchiveHeader is returned when offset 0 does not hold a valid archive header
	ErrBadArchiveHeader = &EggError{Code: "BAD_ARCHIVE_HEADER", Message: "not an egg archive"}

	// ErrArchiveClosed is returned when an operation runs after Close
	ErrArchiveClosed = &EggError{Code: "ARCHIVE_CLOSED", Message: "archive is closed"}

	// ErrExtractFailed is returned when an entry cannot be written to disk
	ErrExtractFailed = &EggError{Code: "EXTRACT_FAILED", Message: "extract failed"}

	// ErrReportFailed is returned when a file list report cannot be written
	ErrReportFailed = &EggError{Code: "REPORT_FAILED", Message: "report failed"}
)

// EggError represents a structured error in egg-get operations
type EggError struct {
	Code    string                 // Error code for programmatic handling
	Message string                 // Human-readable error message
	Cause   error                  // Underlying error, if any
	Details map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *EggError) Error() string {
	if e.Cause != nil {
		if len(e.Details) > 0 {
			return fmt.Sprintf("[%s] %s (details: %v): %v", e.Code, e.Message, e.Details, e.Cause)
		}
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	if len(e.Details) > 0 {
		return fmt.Sprintf("[%s] %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EggError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an EggError with the same code
func (e *EggError) Is(target error) bool {
	t, ok := target.(*EggError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause adds a cause to the error
func (e *EggError) WithCause(cause error) *EggError {
	return &EggError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   cause,
		Details: e.Details,
	}
}

// WithDetail adds a detail key-value pair to the error
func (e *EggError) WithDetail(key string, value interface{}) *EggError {
	details := make(map[string]interface{})
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &EggError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: details,
	}
}

// WithMessage overrides the error message
func (e *EggError) WithMessage(message string) *EggError {
	return &EggError{
		Code:    e.Code,
		Message: message,
		Cause:   e.Cause,
		Details: e.Details,
	}
}

// IsEggError checks if err is, or wraps, an EggError
func IsEggError(err error) bool {
	var eggErr *EggError
	return stderrors.As(err, &eggErr)
}

// GetErrorCode extracts the error code from the outermost EggError in err's chain
func GetErrorCode(err error) string {
	var eggErr *EggError
	if stderrors.As(err, &eggErr) {
		return eggErr.Code
	}
	return ""
}

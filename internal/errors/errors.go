package errors

import (
	stderrors "errors"
	"fmt"
)

// DocSearchError is the structured error type for docsearch.
// Every error a strategy returns across the library boundary is one of these,
// so callers can branch on the code with errors.Is.
type DocSearchError struct {
	// Code is the unique error code (e.g., "ERR_207_INDEX_WRITE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Index, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DocSearchError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocSearchError) Unwrap() error {
	return e.Cause
}

// Is matches another DocSearchError by code.
func (e *DocSearchError) Is(target error) bool {
	if t, ok := target.(*DocSearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *DocSearchError) WithDetail(key, value string) *DocSearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DocSearchError) WithSuggestion(suggestion string) *DocSearchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DocSearchError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *DocSearchError {
	return &DocSearchError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a DocSearchError from an existing error.
func Wrap(code string, err error) *DocSearchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrIndexWrite          = &DocSearchError{Code: ErrCodeIndexWrite}
	ErrIndexNotInitialized = &DocSearchError{Code: ErrCodeIndexNotInitialized}
	ErrInvalidFilter       = &DocSearchError{Code: ErrCodeInvalidFilter}
	ErrInvalidQuery        = &DocSearchError{Code: ErrCodeInvalidQuery}
	ErrConfigInvalid       = &DocSearchError{Code: ErrCodeConfigInvalid}
	ErrCorruptIndex        = &DocSearchError{Code: ErrCodeCorruptIndex}
)

// IndexWrite reports a mutation that could not be persisted.
func IndexWrite(strategy string, cause error) *DocSearchError {
	return New(ErrCodeIndexWrite, "index write failed", cause).
		WithDetail("strategy", strategy)
}

// IndexNotInitialized reports a search against a store that was never created.
func IndexNotInitialized(strategy string) *DocSearchError {
	return New(ErrCodeIndexNotInitialized, "index not initialized", nil).
		WithDetail("strategy", strategy).
		WithSuggestion("call Open before using the strategy")
}

// InvalidFilter reports a filter value the strategy cannot compare.
func InvalidFilter(key string, value any) *DocSearchError {
	return New(ErrCodeInvalidFilter,
		fmt.Sprintf("filter key %q has non-scalar value of type %T", key, value), nil).
		WithDetail("key", key)
}

// InvalidQuery reports an empty or malformed query.
func InvalidQuery(message string, cause error) *DocSearchError {
	return New(ErrCodeInvalidQuery, message, cause)
}

// ConfigError reports an invalid strategy or engine configuration.
func ConfigError(message string, cause error) *DocSearchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// CorruptIndex reports a backing store that failed its integrity check.
func CorruptIndex(path string, cause error) *DocSearchError {
	return New(ErrCodeCorruptIndex, "index is corrupt", cause).
		WithDetail("path", path).
		WithSuggestion("clear the index directory and rebuild with InitFromDB")
}

// IsIndexWrite reports whether err carries ERR_207_INDEX_WRITE.
func IsIndexWrite(err error) bool { return stderrors.Is(err, ErrIndexWrite) }

// IsIndexNotInitialized reports whether err carries ERR_208_INDEX_NOT_INITIALIZED.
func IsIndexNotInitialized(err error) bool { return stderrors.Is(err, ErrIndexNotInitialized) }

// IsInvalidFilter reports whether err carries ERR_407_INVALID_FILTER.
func IsInvalidFilter(err error) bool { return stderrors.Is(err, ErrInvalidFilter) }

// IsInvalidQuery reports whether err carries ERR_403_INVALID_QUERY.
func IsInvalidQuery(err error) bool { return stderrors.Is(err, ErrInvalidQuery) }

// IsConfigInvalid reports whether err carries ERR_102_CONFIG_INVALID.
func IsConfigInvalid(err error) bool { return stderrors.Is(err, ErrConfigInvalid) }

// GetCode extracts the error code from a DocSearchError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var de *DocSearchError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from a DocSearchError anywhere in the chain.
func GetCategory(err error) Category {
	var de *DocSearchError
	if stderrors.As(err, &de) {
		return de.Category
	}
	return ""
}

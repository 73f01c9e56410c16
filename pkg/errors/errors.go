package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeDataLoad         ErrorType = "data_load"
	ErrorTypeSchema           ErrorType = "schema"
	ErrorTypeInsufficientData ErrorType = "insufficient_data"
	ErrorTypeConfiguration    ErrorType = "configuration"
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeStorage          ErrorType = "storage"
	ErrorTypeInternal         ErrorType = "internal"
)

// Error codes for different error scenarios
const (
	CodeFetchFailed        = "FETCH_FAILED"
	CodeFetchTimeout       = "FETCH_TIMEOUT"
	CodeBadStatus          = "BAD_STATUS"
	CodeParseFailed        = "PARSE_FAILED"
	CodeUnsupportedSource  = "UNSUPPORTED_SOURCE"
	CodeMissingDateColumn  = "MISSING_DATE_COLUMN"
	CodeMissingValueColumn = "MISSING_VALUE_COLUMN"
	CodeEmptyDataset       = "EMPTY_DATASET"
	CodeTooFewRows         = "TOO_FEW_ROWS"
	CodeUnknownStrategy    = "UNKNOWN_STRATEGY"
	CodeUnknownMethod      = "UNKNOWN_METHOD"
	CodeUnknownGranularity = "UNKNOWN_GRANULARITY"
	CodeInvalidHorizon     = "INVALID_HORIZON"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeCacheFailed        = "CACHE_FAILED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Sentinels usable with errors.Is; matching compares Type and Code.
var (
	ErrDataLoad         = &AppError{Type: ErrorTypeDataLoad, Code: CodeFetchFailed}
	ErrSchema           = &AppError{Type: ErrorTypeSchema, Code: CodeMissingDateColumn}
	ErrInsufficientData = &AppError{Type: ErrorTypeInsufficientData, Code: CodeTooFewRows}
	ErrConfiguration    = &AppError{Type: ErrorTypeConfiguration, Code: CodeUnknownStrategy}
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		Retryable:  errType == ErrorTypeDataLoad && IsTimeout(err),
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// NewDataLoadError creates an error for sources that could not be fetched or parsed
func NewDataLoadError(code, message string) *AppError {
	return NewAppError(ErrorTypeDataLoad, code, message)
}

// NewSchemaError creates an error for datasets without usable date/value columns
func NewSchemaError(code, message string) *AppError {
	return NewAppError(ErrorTypeSchema, code, message)
}

// NewInsufficientDataError creates an error for datasets that are too small to forecast
func NewInsufficientDataError(message string) *AppError {
	return NewAppError(ErrorTypeInsufficientData, CodeTooFewRows, message)
}

// NewConfigurationError creates an error for unknown strategies, methods or granularities
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewValidationError creates a request validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// NewRateLimitError creates an error for clients that exceeded their request budget
func NewRateLimitError(message string) *AppError {
	err := NewAppError(ErrorTypeValidation, CodeRateLimited, message)
	err.Retryable = true
	err.HTTPStatus = http.StatusTooManyRequests
	return err
}

// IsType reports whether err carries an AppError of the given type anywhere in its chain
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// HTTPStatus returns the status code an API layer should answer with
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation, ErrorTypeConfiguration:
		return http.StatusBadRequest
	case ErrorTypeSchema, ErrorTypeInsufficientData:
		return http.StatusUnprocessableEntity
	case ErrorTypeDataLoad:
		return http.StatusBadGateway
	case ErrorTypeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// NewFetchTimeoutError reports a source that did not answer within the loader timeout
func NewFetchTimeoutError(source string, timeout time.Duration, cause error) *AppError {
	err := WrapError(cause, ErrorTypeDataLoad, CodeFetchTimeout,
		fmt.Sprintf("timed out after %s fetching dataset", timeout))
	err.Retryable = true
	return err.WithContext("source", source)
}

// NewHTTPStatusError reports a non-2xx answer from an HTTP source
func NewHTTPStatusError(statusCode int, source string) *AppError {
	err := NewDataLoadError(CodeBadStatus, fmt.Sprintf("dataset request returned HTTP %d", statusCode))
	err.Retryable = isRetryableHTTPStatus(statusCode)
	return err.WithContext("source", source).WithContext("status_code", statusCode)
}

// WrapFetchError classifies a transport error from any source
func WrapFetchError(err error, source string, timeout time.Duration) *AppError {
	if IsTimeout(err) {
		return NewFetchTimeoutError(source, timeout, err)
	}
	return WrapError(err, ErrorTypeDataLoad, CodeFetchFailed, "failed to fetch dataset").
		WithContext("source", source)
}

// IsTimeout reports deadline and network timeouts
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

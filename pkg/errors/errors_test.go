package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusByType(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewValidationError(CodeInvalidHorizon, "bad horizon"), http.StatusBadRequest},
		{NewConfigurationError(CodeUnknownStrategy, "nope"), http.StatusBadRequest},
		{NewSchemaError(CodeMissingValueColumn, "no value"), http.StatusUnprocessableEntity},
		{NewInsufficientDataError("3 rows"), http.StatusUnprocessableEntity},
		{NewDataLoadError(CodeParseFailed, "bad csv"), http.StatusBadGateway},
		{NewStorageError(CodeCacheFailed, "down"), http.StatusServiceUnavailable},
		{NewInternalError("boom"), http.StatusInternalServerError},
		{NewRateLimitError("slow down"), http.StatusTooManyRequests},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestHTTPStatusThroughWrapping(t *testing.T) {
	err := fmt.Errorf("pipeline: %w", NewInsufficientDataError("too few"))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
	assert.True(t, IsType(err, ErrorTypeInsufficientData))
	assert.False(t, IsType(err, ErrorTypeSchema))
}

func TestIsMatchesSentinels(t *testing.T) {
	err := NewInsufficientDataError("only 4 rows")
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.NotErrorIs(t, err, ErrSchema)

	err = NewConfigurationError(CodeUnknownStrategy, "unknown strategy lstm")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestErrorMessage(t *testing.T) {
	err := NewSchemaError(CodeMissingDateColumn, "no date column").WithDetails("columns: a, b")
	assert.Equal(t, "MISSING_DATE_COLUMN: no date column - columns: a, b", err.Error())

	wrapped := WrapError(stderrors.New("eof"), ErrorTypeDataLoad, CodeParseFailed, "parse")
	assert.Equal(t, "PARSE_FAILED: parse: eof", wrapped.Error())
	assert.False(t, wrapped.Retryable)
}

func TestRateLimitErrorRetryable(t *testing.T) {
	err := NewRateLimitError("too many requests")
	assert.True(t, err.Retryable)
	assert.Equal(t, CodeRateLimited, err.Code)
	assert.Equal(t, ErrorTypeValidation, err.Type)
}

func TestWrapFetchErrorClassifiesTimeout(t *testing.T) {
	err := WrapFetchError(context.DeadlineExceeded, "https://example.com/sales.csv", 10*time.Second)
	require.NotNil(t, err)
	assert.Equal(t, CodeFetchTimeout, err.Code)
	assert.True(t, err.Retryable)
	assert.Equal(t, "https://example.com/sales.csv", err.Context["source"])
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = WrapFetchError(stderrors.New("connection refused"), "https://example.com/sales.csv", time.Second)
	assert.Equal(t, CodeFetchFailed, err.Code)
	assert.False(t, err.Retryable)
}

func TestHTTPStatusErrorRetryable(t *testing.T) {
	assert.True(t, NewHTTPStatusError(503, "u").Retryable)
	assert.False(t, NewHTTPStatusError(404, "u").Retryable)
	assert.Equal(t, 404, NewHTTPStatusError(404, "u").Context["status_code"])
}

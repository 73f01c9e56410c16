package responses

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// RequestIDHeader carries the per-request correlation ID
const RequestIDHeader = "X-Request-ID"

// WriteJSON writes data as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", constants.MimeTypeJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		logrus.WithError(err).Warn("Failed to encode response body")
	}
}

// WriteError maps err onto its HTTP status and writes the standard error
// envelope. Errors that are not AppErrors are reported as internal errors
// without leaking their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "internal server error")
	}

	status := errors.HTTPStatus(appErr)
	if appErr.Retryable && status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}

	WriteJSON(w, status, &errors.ErrorResponse{
		Error:     appErr,
		RequestID: w.Header().Get(RequestIDHeader),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

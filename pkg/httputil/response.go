// Package httputil writes the service's JSON response envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/productsearch/pkg/errors"
	"github.com/utafrali/productsearch/pkg/logger"
	"github.com/utafrali/productsearch/pkg/validator"
)

// Response is the {"data": ...} or {"error": ...} envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON encodes v with status. Encoding errors are dropped since the
// header is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an error envelope carrying the request's
// correlation ID. 5xx responses hide the cause and log it, preferring the
// request-scoped logger over fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	ctx := r.Context()
	kind := apperrors.Classify(err)

	if kind.Status >= http.StatusInternalServerError && kind.Status != http.StatusServiceUnavailable {
		l := logger.FromContext(ctx)
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(ctx, "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, kind.Status, Response{Error: &ErrorResponse{
		Code:      kind.Code,
		Message:   kind.Message,
		RequestID: logger.CorrelationIDFromContext(ctx),
	}})
}

// WriteValidationError answers 400 with per-field messages for validation
// failures and INVALID_INPUT for anything else, such as a malformed body.
func WriteValidationError(w http.ResponseWriter, err error) {
	body := &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		body = &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		}
	}
	WriteJSON(w, http.StatusBadRequest, Response{Error: body})
}

package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/productsearch/pkg/errors"
)

// envelopeError is the {"error":{"code","message"}} body written by
// httputil.WriteError.
type envelopeError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// flatError is the {"error":"Type","message":"..."} body used by the vector
// store API.
type flatError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an appropriate AppError. Structured bodies keep their code and
// message; anything else becomes a generic error carrying the status and the
// raw body.
//
// The caller should only invoke this when resp.StatusCode indicates an error.
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var envelope envelopeError
	if json.Unmarshal(bodyBytes, &envelope) == nil && envelope.Error != nil {
		return mapDownstreamError(resp.StatusCode, envelope.Error.Code, envelope.Error.Message, serviceName)
	}
	var flat flatError
	if json.Unmarshal(bodyBytes, &flat) == nil && flat.Error != "" && flat.Message != "" {
		return mapDownstreamError(resp.StatusCode, flat.Error, flat.Message, serviceName)
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

// mapDownstreamError keeps the downstream code and message, prefixed with
// the service name, and ties the result to the matching sentinel so callers
// can still branch with errors.Is. 5xx other than 503 become plain errors.
func mapDownstreamError(status int, code, message, serviceName string) error {
	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = apperrors.ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		sentinel = apperrors.ErrInvalidInput
	case status == http.StatusServiceUnavailable:
		sentinel = apperrors.ErrServiceUnavail
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	}
	return &apperrors.AppError{
		Code:    code,
		Message: serviceName + ": " + message,
		Status:  status,
		Err:     sentinel,
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
// Client errors are not counted against the circuit breaker.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

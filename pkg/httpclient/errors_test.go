package httpclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/productsearch/pkg/errors"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestParseResponseError_Structured(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		code     string
	}{
		{"envelope not found", http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"collection products missing"}}`, apperrors.ErrNotFound, "NOT_FOUND"},
		{"envelope bad request", http.StatusBadRequest, `{"error":{"code":"INVALID_INPUT","message":"bad where clause"}}`, apperrors.ErrInvalidInput, "INVALID_INPUT"},
		{"flat unprocessable", http.StatusUnprocessableEntity, `{"error":"ValueError","message":"dimension mismatch"}`, apperrors.ErrInvalidInput, "ValueError"},
		{"envelope unavailable", http.StatusServiceUnavailable, `{"error":{"code":"SERVICE_UNAVAILABLE","message":"warming up"}}`, apperrors.ErrServiceUnavail, "SERVICE_UNAVAILABLE"},
		{"other 4xx keeps status", http.StatusTooManyRequests, `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`, nil, "RATE_LIMITED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &closeTracker{Reader: strings.NewReader(tt.body)}
			err := ParseResponseError(&http.Response{StatusCode: tt.status, Body: body}, "vector-store")
			assert.True(t, body.closed)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.Status)
			assert.True(t, strings.HasPrefix(appErr.Message, "vector-store: "), appErr.Message)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestParseResponseError_Plain(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   []string
	}{
		{"structured 500", http.StatusInternalServerError, `{"error":{"code":"INTERNAL_ERROR","message":"boom"}}`, []string{"vector-store server error", "500", "boom"}},
		{"html 502", http.StatusBadGateway, "<h1>502 Bad Gateway</h1>", []string{"vector-store returned status 502", "Bad Gateway"}},
		{"empty body", http.StatusInternalServerError, "", []string{"returned status 500"}},
		{"null error field", http.StatusBadRequest, `{"error":null}`, []string{"returned status 400"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}
			err := ParseResponseError(resp, "vector-store")
			require.Error(t, err)

			var appErr *apperrors.AppError
			assert.NotErrorAs(t, err, &appErr)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	for status, want := range map[int]bool{
		http.StatusOK:                  false,
		399:                            false,
		http.StatusBadRequest:          true,
		http.StatusNotFound:            true,
		499:                            true,
		http.StatusInternalServerError: false,
	} {
		assert.Equal(t, want, IsClientError(status), "status %d", status)
	}
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	cause := errors.New("redis: connection refused")
	assert.Equal(t, "SERVICE_UNAVAILABLE: cache down: redis: connection refused",
		(&AppError{Code: "SERVICE_UNAVAILABLE", Message: "cache down", Err: cause}).Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "product p-1 not found"}
	assert.Equal(t, "NOT_FOUND: product p-1 not found", bare.Error())
	assert.NoError(t, bare.Unwrap())
}

func TestConstructors(t *testing.T) {
	nf := NotFound("product", "p-1")
	assert.Equal(t, "NOT_FOUND", nf.Code)
	assert.Equal(t, http.StatusNotFound, nf.Status)
	assert.Equal(t, "product p-1 not found", nf.Message)
	assert.ErrorIs(t, nf, ErrNotFound)

	in := InvalidInput("limit must be a valid integer")
	assert.Equal(t, http.StatusBadRequest, in.Status)
	assert.ErrorIs(t, in, ErrInvalidInput)

	down := ServiceUnavailable("semantic search unavailable", nil)
	assert.ErrorIs(t, down, ErrServiceUnavail)

	cause := errors.New("dial tcp: refused")
	down = ServiceUnavailable("catalog unavailable", cause)
	assert.Equal(t, http.StatusServiceUnavailable, down.Status)
	assert.ErrorIs(t, down, ErrServiceUnavail)
	assert.ErrorIs(t, down, cause)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    string
		status  int
		message string
	}{
		{
			name: "app error keeps its own face",
			err:  fmt.Errorf("handler: %w", NotFound("product", "p-9")),
			code: "NOT_FOUND", status: http.StatusNotFound, message: "product p-9 not found",
		},
		{
			name: "wrapped not found",
			err:  fmt.Errorf("lookup: %w", ErrNotFound),
			code: "NOT_FOUND", status: http.StatusNotFound, message: "resource not found",
		},
		{
			name: "wrapped invalid input shows its text",
			err:  fmt.Errorf("%w: price_min exceeds price_max", ErrInvalidInput),
			code: "INVALID_INPUT", status: http.StatusBadRequest, message: "invalid input: price_min exceeds price_max",
		},
		{
			name: "unavailable hides the cause",
			err:  fmt.Errorf("vector store: %w", ErrServiceUnavail),
			code: "SERVICE_UNAVAILABLE", status: http.StatusServiceUnavailable, message: "a dependency is temporarily unavailable",
		},
		{
			name: "anything else is internal",
			err:  errors.New("boom"),
			code: "INTERNAL_ERROR", status: http.StatusInternalServerError, message: "an internal error occurred",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := Classify(tt.err)
			require.Equal(t, tt.code, k.Code)
			assert.Equal(t, tt.status, k.Status)
			assert.Equal(t, tt.message, k.Message)
		})
	}
}

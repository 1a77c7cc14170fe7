package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{InvalidInput("bad page"), http.StatusBadRequest},
		{NotFound("no session"), http.StatusNotFound},
		{Timeout("store timeout", nil), http.StatusGatewayTimeout},
		{Unavailable("breaker open", nil), http.StatusServiceUnavailable},
		{Internal("boom", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus(), "type %s", tt.err.Type)
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Timeout("t", nil).Retryable())
	assert.True(t, Unavailable("u", nil).Retryable())
	assert.False(t, NotFound("n").Retryable())
	assert.False(t, InvalidInput("i").Retryable())
	assert.False(t, Internal("x", nil).Retryable())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("store unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAsStructuredError(t *testing.T) {
	original := NotFound("gone")
	assert.Same(t, original, AsStructuredError(original))

	wrapped := AsStructuredError(errors.New("raw"))
	require.NotNil(t, wrapped)
	assert.Equal(t, TypeInternal, wrapped.Type)

	assert.Nil(t, AsStructuredError(nil))
}

func TestToResponse_DetailGating(t *testing.T) {
	err := Unavailable("store unavailable", errors.New("dial tcp: refused"))

	prod := err.ToResponse(5, false)
	assert.Empty(t, prod.Detail)
	assert.Equal(t, 5, prod.RetryAfter)

	dev := err.ToResponse(5, true)
	assert.Equal(t, "dial tcp: refused", dev.Detail)
}

func TestToResponse_NoRetryHintForClientErrors(t *testing.T) {
	resp := NotFound("gone").ToResponse(5, false)
	assert.Zero(t, resp.RetryAfter)
}

func TestWithContext(t *testing.T) {
	err := InvalidInput("page out of range").WithContext("page", 7).WithContext("total_pages", 5)
	assert.Equal(t, 7, err.Context["page"])
	assert.Equal(t, 5, err.Context["total_pages"])
}

package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad %s", "input"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("no token"), http.StatusUnauthorized},
		{"forbidden", Forbidden("nope"), http.StatusForbidden},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"conflict", Conflict("dup"), http.StatusConflict},
		{"payment required", PaymentRequired("pay first"), http.StatusPaymentRequired},
		{"wrapped conflict", fmt.Errorf("respond: %w", Conflict("dup")), http.StatusConflict},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestMessage_HidesInternalCause(t *testing.T) {
	err := Internal("failed to load group", errors.New("sql: connection refused"))
	assert.Equal(t, "failed to load group", Message(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "internal server error", Message(errors.New("raw")))
}

func TestIs(t *testing.T) {
	assert.True(t, Is(PaymentRequired("locked"), KindPaymentRequired))
	assert.False(t, Is(nil, KindPaymentRequired))
	assert.False(t, Is(NotFound("x"), KindConflict))
}

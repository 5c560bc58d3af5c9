package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{Validation("name is required"), http.StatusBadRequest},
		{NotFound("License not found"), http.StatusNotFound},
		{StateConflict("License is revoked"), http.StatusBadRequest},
		{ResourceExhausted("Device limit exceeded"), http.StatusForbidden},
		{Duplicate("Email already registered"), http.StatusConflict},
		{Auth("Invalid or expired token"), http.StatusUnauthorized},
		{Forbidden("Admin access required"), http.StatusForbidden},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(KindOf(tt.err)), tt.err.Error())
	}
}

func TestSentinelMatchingSurvivesWrapping(t *testing.T) {
	sentinel := NotFound("License not found")
	wrapped := fmt.Errorf("activate: %w", Wrap(sentinel, errors.New("sql: no rows")))

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, NotFound("Plan not found")))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, "License not found", MessageOf(wrapped))
}

func TestInternalMessageIsRedacted(t *testing.T) {
	err := fmt.Errorf("query licenses: %w", errors.New("pq: relation does not exist"))
	assert.Equal(t, "Internal server error", MessageOf(err))
}

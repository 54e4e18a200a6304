package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "not found maps to 404",
			err:        vcerrors.NotFound("assessment", "abc"),
			expectCode: http.StatusNotFound,
			expectMsg:  `"abc" not found`,
		},
		{
			name:       "wrapped validation error maps to 400",
			err:        fmt.Errorf("wrapped: %w", vcerrors.Validation("mode", "mode is required")),
			expectCode: http.StatusBadRequest,
			expectMsg:  "mode is required",
		},
		{
			name:       "duplicate idempotency key maps to 409",
			err:        vcerrors.DuplicateIdempotencyKey("key-1"),
			expectCode: http.StatusConflict,
			expectMsg:  "already used with a different mode",
		},
		{
			name:       "target unreachable maps to 502",
			err:        vcerrors.TargetUnreachable("https://example.com", errors.New("dial tcp: timeout")),
			expectCode: http.StatusBadGateway,
			expectMsg:  "unreachable",
		},
		{
			name:       "unknown error maps to 500",
			err:        errors.New("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)

			env, ok := he.Message.(*ErrorEnvelope)
			if assert.True(t, ok, "expected *ErrorEnvelope message") {
				assert.Contains(t, env.Error.Message, tt.expectMsg)
			}
		})
	}
}

func TestMapError_PreservesParam(t *testing.T) {
	he := mapError(vcerrors.UnknownAgent("ghost-agent"))
	env, ok := he.Message.(*ErrorEnvelope)
	if assert.True(t, ok) {
		assert.Equal(t, "agents", env.Error.Param)
		assert.Equal(t, "UNKNOWN_AGENT", env.Error.Code)
	}
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platformbridge/backend/internal/application/dispatch"
	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/httpclient"
	"github.com/platformbridge/backend/internal/interfaces/http/dto"
)

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"not installed", &integration.NotInstalledError{Platform: integration.PlatformKick}, dto.ErrCodeNotInstalled},
		{"unsupported", &integration.UnsupportedOperationError{Operation: integration.OpGetUserMetadata}, dto.ErrCodeUnsupportedOperation},
		{"not configured", fmt.Errorf("%w: x", integration.ErrOperationNotConfigured), dto.ErrCodeOperationNotConfigured},
		{"in flight", dispatch.ErrOperationInFlight, dto.ErrCodeOperationInProgress},
		{"invalid platform", integration.ErrInvalidPlatform, dto.ErrCodeInvalidPlatform},
		{"invalid payload", fmt.Errorf("%w: bad", integration.ErrInvalidPayload), dto.ErrCodeBadRequest},
		{"rejected", &dispatch.RemoteRejectedError{Platform: integration.PlatformKick, Operation: integration.OpSendChatMessage, StatusCode: 400, Status: "400 Bad Request"}, dto.ErrCodeUpstreamRejected},
		{"aborted", &httpclient.AbortedError{Method: http.MethodPost, URL: "http://localhost"}, dto.ErrCodeUpstreamTimeout},
		{"deadline", context.DeadlineExceeded, dto.ErrCodeUpstreamTimeout},
		{"server error", &httpclient.StatusError{StatusCode: 503, Status: "503 Service Unavailable"}, dto.ErrCodeUpstream},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), dto.ErrCodeUpstream},
		{"anything else", errors.New("boom"), dto.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := ErrorCodeFor(tt.err)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, message)
		})
	}
}

func TestErrorCodeFor_HidesInternalDetails(t *testing.T) {
	_, message := ErrorCodeFor(errors.New("database password is hunter2"))
	assert.NotContains(t, message, "hunter2")
}

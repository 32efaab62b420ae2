package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbridge/backend/internal/application/dispatch"
	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/httpclient"
	"github.com/platformbridge/backend/internal/interfaces/http/dto"
	"github.com/platformbridge/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, code, message string) {
	h.Error(c, http.StatusBadRequest, code, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// HandleError converts dispatch and transport errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	code, message := ErrorCodeFor(err)
	h.ErrorWithCode(c, code, message)
}

// ErrorCodeFor maps an error to its API error code and client message
func ErrorCodeFor(err error) (string, string) {
	var (
		notInstalled *integration.NotInstalledError
		rejected     *dispatch.RemoteRejectedError
		aborted      *httpclient.AbortedError
		statusErr    *httpclient.StatusError
	)
	switch {
	case errors.As(err, &notInstalled):
		return dto.ErrCodeNotInstalled, err.Error()
	case errors.Is(err, integration.ErrUnsupportedOperation):
		return dto.ErrCodeUnsupportedOperation, err.Error()
	case errors.Is(err, integration.ErrOperationNotConfigured):
		return dto.ErrCodeOperationNotConfigured, err.Error()
	case errors.Is(err, dispatch.ErrOperationInFlight):
		return dto.ErrCodeOperationInProgress, err.Error()
	case errors.Is(err, integration.ErrInvalidPlatform):
		return dto.ErrCodeInvalidPlatform, err.Error()
	case errors.Is(err, integration.ErrInvalidPayload):
		return dto.ErrCodeBadRequest, err.Error()
	case errors.As(err, &rejected):
		return dto.ErrCodeUpstreamRejected, rejected.Error()
	case errors.As(err, &aborted), errors.Is(err, context.DeadlineExceeded):
		return dto.ErrCodeUpstreamTimeout, err.Error()
	case errors.As(err, &statusErr):
		return dto.ErrCodeUpstream, statusErr.Error()
	case httpclient.Classify(err).Kind != httpclient.KindUnknown:
		return dto.ErrCodeUpstream, err.Error()
	default:
		return dto.ErrCodeInternal, "An unexpected error occurred"
	}
}

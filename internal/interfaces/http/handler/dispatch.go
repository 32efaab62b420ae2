package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbridge/backend/internal/application/dispatch"
	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/interfaces/http/dto"
	"github.com/platformbridge/backend/internal/interfaces/http/middleware"
)

// DispatchHandler lets operators run an operation on one or many platforms
type DispatchHandler struct {
	BaseHandler
	dispatcher *dispatch.Dispatcher
}

// NewDispatchHandler creates a new DispatchHandler
func NewDispatchHandler(dispatcher *dispatch.Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

// Dispatch runs :operation on :platform with the request body as payload
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	platform, err := integration.ParsePlatformID(c.Param("platform"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	kind, ok := parseOperation(c)
	if !ok {
		h.HandleError(c, &integration.UnsupportedOperationError{Operation: integration.OperationKind(c.Param("operation"))})
		return
	}
	payload, err := readPayload(c)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidJSON, err.Error())
		return
	}

	resp, err := h.dispatcher.Dispatch(c.Request.Context(), kind, platform, payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Broadcast runs :operation on several platforms at once
func (h *DispatchHandler) Broadcast(c *gin.Context) {
	kind, ok := parseOperation(c)
	if !ok {
		h.HandleError(c, &integration.UnsupportedOperationError{Operation: integration.OperationKind(c.Param("operation"))})
		return
	}
	var req dto.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidJSON, err.Error())
		return
	}

	var platforms []integration.PlatformID
	if len(req.Platforms) == 0 {
		platforms = h.dispatcher.Detector().AvailablePlatforms()
	}
	for _, p := range req.Platforms {
		platform, err := integration.ParsePlatformID(p)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		platforms = append(platforms, platform)
	}

	results := h.dispatcher.Broadcast(c.Request.Context(), kind, platforms, req.Payload)
	out := make([]dto.BroadcastResult, 0, len(results))
	for _, r := range results {
		item := dto.BroadcastResult{Platform: r.Platform.String(), Success: r.Err == nil, Data: r.Response}
		if r.Err != nil {
			code, message := ErrorCodeFor(r.Err)
			item.Error = &dto.ErrorInfo{Code: code, Message: message, RequestID: middleware.GetRequestID(c)}
		}
		out = append(out, item)
	}
	h.Success(c, out)
}

func parseOperation(c *gin.Context) (integration.OperationKind, bool) {
	return integration.ParseOperationKind(c.Param("operation"))
}

// readPayload returns the raw JSON body, or null for an empty body
func readPayload(c *gin.Context) (json.RawMessage, error) {
	raw, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, err
	}
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("request body is not valid JSON")
	}
	return raw, nil
}

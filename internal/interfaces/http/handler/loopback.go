package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbridge/backend/internal/application/dispatch"
	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/interfaces/http/dto"
)

// LoopbackHandler serves the loopback wire protocol for siblings calling
// the home platform. Request and response bodies are the bare operation
// payloads, without the API envelope.
type LoopbackHandler struct {
	BaseHandler
	dispatcher *dispatch.Dispatcher
	handlers   *dispatch.LocalHandlers
	routingID  string
}

// NewLoopbackHandler creates a LoopbackHandler answering for the home routing id
func NewLoopbackHandler(dispatcher *dispatch.Dispatcher, handlers *dispatch.LocalHandlers) *LoopbackHandler {
	return &LoopbackHandler{
		dispatcher: dispatcher,
		handlers:   handlers,
		routingID:  integration.RoutingIDFor(integration.KnownIntegrations, integration.HomePlatform),
	}
}

// LoopbackStatus is the status document of the home platform
type LoopbackStatus struct {
	Status     string                      `json:"status"`
	Platform   integration.PlatformID      `json:"platform"`
	Operations []integration.OperationKind `json:"operations"`
}

// Operation runs :operation locally and writes the bare response payload
func (h *LoopbackHandler) Operation(c *gin.Context) {
	if c.Param("routingId") != h.routingID {
		h.NotFound(c, "unknown routing id "+c.Param("routingId"))
		return
	}
	kind := integration.OperationKind(c.Param("operation"))
	payload, err := readPayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, integration.Failed(err))
		return
	}

	resp, err := h.dispatcher.DispatchLocal(c.Request.Context(), kind, payload)
	if err != nil {
		_ = c.Error(err)
		code, _ := ErrorCodeFor(err)
		c.JSON(dto.GetHTTPStatus(code), integration.Failed(err))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", resp)
}

// Status reports that the home platform is serving loopback calls
func (h *LoopbackHandler) Status(c *gin.Context) {
	if c.Param("routingId") != h.routingID {
		h.NotFound(c, "unknown routing id "+c.Param("routingId"))
		return
	}
	c.JSON(http.StatusOK, LoopbackStatus{
		Status:     "ok",
		Platform:   integration.HomePlatform,
		Operations: h.handlers.Kinds(),
	})
}

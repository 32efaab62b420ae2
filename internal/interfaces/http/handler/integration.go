package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/platformbridge/backend/internal/application/dispatch"
	appintegration "github.com/platformbridge/backend/internal/application/integration"
	"github.com/platformbridge/backend/internal/domain/integration"
)

// IntegrationHandler exposes sibling detection and reachability
type IntegrationHandler struct {
	BaseHandler
	startup    *appintegration.StartupService
	dispatcher *dispatch.Dispatcher
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(startup *appintegration.StartupService, dispatcher *dispatch.Dispatcher) *IntegrationHandler {
	return &IntegrationHandler{startup: startup, dispatcher: dispatcher}
}

// List returns every available platform with its detection and compatibility state
func (h *IntegrationHandler) List(c *gin.Context) {
	h.Success(c, h.startup.Report())
}

// Scan runs a new detection pass and returns the resulting report
func (h *IntegrationHandler) Scan(c *gin.Context) {
	h.Success(c, h.startup.Initialize(c.Request.Context()))
}

// Status probes the sibling for a platform over loopback
func (h *IntegrationHandler) Status(c *gin.Context) {
	platform, err := integration.ParsePlatformID(c.Param("platform"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.dispatcher.Probe(c.Request.Context(), platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

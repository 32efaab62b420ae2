package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/interfaces/http/dto"
)

// ViewerCounter reports how many viewer documents are stored
type ViewerCounter interface {
	Count(ctx context.Context, platform integration.PlatformID) (int64, error)
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	viewers   ViewerCounter
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. viewers may be nil.
func NewSystemHandler(name, version string, viewers ViewerCounter) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		viewers:   viewers,
		startTime: time.Now(),
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	GoVersion    string `json:"go_version"`
	Uptime       string `json:"uptime"`
	HomePlatform string `json:"home_platform"`
	Viewers      *int64 `json:"viewers,omitempty"`
}

// GetSystemInfo returns version, uptime and home platform details
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:         h.name,
		Version:      h.version,
		GoVersion:    runtime.Version(),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		HomePlatform: integration.HomePlatform.String(),
	}
	if h.viewers != nil {
		if n, err := h.viewers.Count(c.Request.Context(), integration.HomePlatform); err == nil {
			info.Viewers = &n
		}
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping is a liveness check for the API
func (h *SystemHandler) Ping(c *gin.Context) {
	response := PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(response))
}

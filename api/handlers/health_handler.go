package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/fundl-go/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	queueMgr *app.QueueManager
	version  string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queueMgr *app.QueueManager, version string) *HealthHandler {
	return &HealthHandler{
		queueMgr: queueMgr,
		version:  version,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Length int    `json:"length"`
		Active string `json:"active,omitempty"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	response.Queue.Length = len(h.queueMgr.Episodes())
	if active, ok := h.queueMgr.Active(); ok {
		response.Queue.Active = active.ID
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.queueMgr.IsClosed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue is closed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

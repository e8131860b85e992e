package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
)

// QueueHandler handles queue-related HTTP requests
type QueueHandler struct {
	queueMgr *app.QueueManager
	validate *validator.Validate
	logger   *zap.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queueMgr *app.QueueManager, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{
		queueMgr: queueMgr,
		validate: validator.New(),
		logger:   logger,
	}
}

// EnqueueRequest represents a request to queue episodes
type EnqueueRequest struct {
	Episodes []domain.Episode `json:"episodes" binding:"required,min=1"`
}

// QueueResponse describes the queue
type QueueResponse struct {
	Status   []string         `json:"status"`
	Episodes []domain.Episode `json:"episodes"`
	Active   *domain.Episode  `json:"active,omitempty"`
}

// ListQueue handles GET /api/v1/queue
func (h *QueueHandler) ListQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.queueResponse())
}

// Enqueue handles POST /api/v1/queue
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	episodes := make([]*domain.Episode, 0, len(req.Episodes))
	for i := range req.Episodes {
		ep := &req.Episodes[i]
		if err := h.validate.Struct(ep); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("episode %d: %v", i+1, err)})
			return
		}
		if err := checkSubmittedEpisode(ep); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("episode %d: %v", i+1, err)})
			return
		}
		episodes = append(episodes, ep)
	}

	if err := h.queueMgr.EnqueueAll(episodes); err != nil {
		switch {
		case errors.Is(err, domain.ErrQueueClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		case errors.Is(err, domain.ErrDirectoryCreation):
			// the failed episode is shown in the queue, later ones still run
			h.logger.Error("Failed to start transfer", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "queue": h.queueResponse()})
			return
		default:
			h.logger.Error("Failed to enqueue episodes", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusAccepted, h.queueResponse())
}

// Cancel handles DELETE /api/v1/queue/:id
func (h *QueueHandler) Cancel(c *gin.Context) {
	id := c.Param("id")

	if err := h.queueMgr.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrEpisodeNotQueued) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "episode cancelled", "id": id})
}

// Status handles GET /api/v1/status
func (h *QueueHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lines": h.queueMgr.Status()})
}

func (h *QueueHandler) queueResponse() QueueResponse {
	response := QueueResponse{
		Status:   h.queueMgr.Status(),
		Episodes: h.queueMgr.Episodes(),
	}
	if active, ok := h.queueMgr.Active(); ok {
		response.Active = &active
	}
	return response
}

// checkSubmittedEpisode rejects locators and paths that would point yt-dlp
// outside the working directory, and resets the fields the queue owns.
// The archive file and base directory are always derived by the queue.
func checkSubmittedEpisode(ep *domain.Episode) error {
	if !domain.IsWebURL(ep.Locator) {
		return fmt.Errorf("locator must be an http or https URL")
	}
	if !domain.IsContainedPath(ep.PreferredDownloadPath) {
		return fmt.Errorf("preferred_download_path must be relative to the working directory")
	}

	ep.ArchiveFile = ""
	ep.BaseDirectory = ""
	ep.Progress = nil
	ep.Error = ""
	ep.Downloading = false
	return nil
}

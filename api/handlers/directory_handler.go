package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
)

// DirectoryHandler exposes the working directory that new downloads use
type DirectoryHandler struct {
	dirMgr *app.DirectoryManager
}

// NewDirectoryHandler creates a new directory handler
func NewDirectoryHandler(dirMgr *app.DirectoryManager) *DirectoryHandler {
	return &DirectoryHandler{dirMgr: dirMgr}
}

// ChangeDirectoryRequest represents a request to change directory
type ChangeDirectoryRequest struct {
	Path string `json:"path" binding:"required"`
}

// GetDirectory handles GET /api/v1/directory
func (h *DirectoryHandler) GetDirectory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"path": h.dirMgr.CurrentDirectory()})
}

// ChangeDirectory handles PUT /api/v1/directory
func (h *DirectoryHandler) ChangeDirectory(c *gin.Context) {
	var req ChangeDirectoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path, err := h.dirMgr.ChangeDirectory(req.Path)
	if err != nil {
		if errors.Is(err, domain.ErrDirectoryNotFound) || errors.Is(err, domain.ErrNotADirectory) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"path": path})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
)

// CatalogHandler handles catalog browsing requests
type CatalogHandler struct {
	catalog  *app.CatalogService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *app.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog:  catalog,
		validate: validator.New(),
		logger:   logger,
	}
}

// SeasonsResponse lists the seasons of a show with their display labels
type SeasonsResponse struct {
	Seasons []domain.Season `json:"seasons"`
	Labels  []string        `json:"labels"`
}

// EpisodesResponse lists the episodes of a season with their display labels
type EpisodesResponse struct {
	Episodes []*domain.Episode `json:"episodes"`
	Labels   []string          `json:"labels"`
}

// Search handles GET /api/v1/catalog/search?q=
func (h *CatalogHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	shows, err := h.catalog.Search(c.Request.Context(), query)
	if err != nil {
		h.providerError(c, err)
		return
	}
	if shows == nil {
		shows = []domain.Show{}
	}

	c.JSON(http.StatusOK, gin.H{
		"provider": h.catalog.ProviderName(),
		"query":    query,
		"shows":    shows,
	})
}

// Seasons handles POST /api/v1/catalog/seasons with a show as body
func (h *CatalogHandler) Seasons(c *gin.Context) {
	var show domain.Show
	if err := c.ShouldBindJSON(&show); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(&show); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !webURLOrEmpty(show.URL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an http or https URL"})
		return
	}

	seasons, err := h.catalog.Seasons(c.Request.Context(), show)
	if err != nil {
		h.providerError(c, err)
		return
	}
	if seasons == nil {
		seasons = []domain.Season{}
	}

	c.JSON(http.StatusOK, SeasonsResponse{
		Seasons: seasons,
		Labels:  domain.SeasonLabels(seasons),
	})
}

// Episodes handles POST /api/v1/catalog/episodes with a season as body
func (h *CatalogHandler) Episodes(c *gin.Context) {
	var season domain.Season
	if err := c.ShouldBindJSON(&season); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(&season); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !webURLOrEmpty(season.URL) || !webURLOrEmpty(season.Series.URL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an http or https URL"})
		return
	}

	episodes, err := h.catalog.Episodes(c.Request.Context(), season)
	if err != nil {
		h.providerError(c, err)
		return
	}

	labels := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		labels = append(labels, ep.Label())
	}
	if episodes == nil {
		episodes = []*domain.Episode{}
	}

	c.JSON(http.StatusOK, EpisodesResponse{
		Episodes: episodes,
		Labels:   labels,
	})
}

func (h *CatalogHandler) providerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrShowNotFound), errors.Is(err, domain.ErrSeasonNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Catalog provider failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": domain.SummarizeError(err)})
	}
}

// webURLOrEmpty accepts a missing URL, which the library catalog never sets
func webURLOrEmpty(s string) bool {
	return s == "" || domain.IsWebURL(s)
}

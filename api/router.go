package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/api/handlers"
	"github.com/yourusername/fundl-go/api/middleware"
	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
	"github.com/yourusername/fundl-go/pkg/logger"
)

// Dependencies are the services the HTTP API exposes. History is optional.
type Dependencies struct {
	Queue       *app.QueueManager
	Catalog     *app.CatalogService
	Directory   *app.DirectoryManager
	History     domain.HistoryRepository
	StatusHub   *handlers.StatusHub
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger
	LogsDir     string
	Version     string

	// AllowedOrigins are the browser origins besides the server's own
	// that may call the API
	AllowedOrigins []string
	ServerHost     string
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps Dependencies) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(deps.Logger, deps.MultiLogger))
	router.Use(middleware.Recovery(deps.Logger, deps.MultiLogger))
	router.Use(middleware.CORS(deps.AllowedOrigins, deps.ServerHost))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Queue, deps.Version)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		catalogHandler := handlers.NewCatalogHandler(deps.Catalog, deps.Logger)
		catalog := v1.Group("/catalog")
		{
			catalog.GET("/search", catalogHandler.Search)
			catalog.POST("/seasons", catalogHandler.Seasons)
			catalog.POST("/episodes", catalogHandler.Episodes)
		}

		queueHandler := handlers.NewQueueHandler(deps.Queue, deps.Logger)
		queue := v1.Group("/queue")
		{
			queue.GET("", queueHandler.ListQueue)
			queue.POST("", queueHandler.Enqueue)
			queue.DELETE("/:id", queueHandler.Cancel)
		}

		v1.GET("/status", queueHandler.Status)
		if deps.StatusHub != nil {
			v1.GET("/status/ws", deps.StatusHub.HandleWebSocket)
		}

		directoryHandler := handlers.NewDirectoryHandler(deps.Directory)
		v1.GET("/directory", directoryHandler.GetDirectory)
		v1.PUT("/directory", directoryHandler.ChangeDirectory)

		if deps.History != nil {
			historyHandler := handlers.NewHistoryHandler(deps.History, deps.Logger)
			history := v1.Group("/history")
			{
				history.GET("", historyHandler.ListHistory)
				history.GET("/stats", historyHandler.GetStats)
			}
		}

		logHandler := handlers.NewLogHandler(deps.LogsDir)
		logWebSocket := handlers.NewLogWebSocketHandler(deps.LogsDir, deps.Logger)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/ws", logWebSocket.HandleWebSocket)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

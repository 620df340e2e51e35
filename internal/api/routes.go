// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/floorplan-studio/backend/internal/storage"
	"github.com/floorplan-studio/backend/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store       storage.Store
	SessionMgr  SessionManager
	UploadMgr   *upload.Manager
	PlanArchive PlanArchive
	Version     string

	// AllowFileDeletion gates the DELETE file route
	AllowFileDeletion bool
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Upload  UploadHandler
	Extract ExtractHandler
	Archive ArchiveHandler

	allowFileDeletion bool
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := &Handlers{
		Health:            NewHealthHandler(deps.Version),
		Upload:            NewUploadHandler(deps.Store, deps.UploadMgr),
		Extract:           NewExtractHandler(deps.Store, deps.SessionMgr),
		allowFileDeletion: deps.AllowFileDeletion,
	}
	if deps.PlanArchive != nil {
		h.Archive = NewArchiveHandler(deps.PlanArchive)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// File upload routes
	uploadGroup := e.Group("/api/files")
	uploadGroup.POST("/upload", handlers.Upload.HandleUploadFile)
	uploadGroup.POST("/upload/chunk", handlers.Upload.HandleUploadChunk)
	uploadGroup.POST("/upload/complete", handlers.Upload.HandleCompleteUpload)
	uploadGroup.POST("/upload/binary", handlers.Upload.HandleUploadBinary)
	uploadGroup.GET("/upload/jobs/:jobId", handlers.Upload.HandleUploadJobStatus)
	uploadGroup.GET("/recent", handlers.Upload.HandleGetRecentFiles)
	uploadGroup.GET("/:id", handlers.Upload.HandleGetFile)
	uploadGroup.PUT("/:id", handlers.Upload.HandleRenameFile)

	// Conditional delete based on config
	if handlers.allowFileDeletion {
		uploadGroup.DELETE("/:id", handlers.Upload.HandleDeleteFile)
	}

	// Extraction session routes
	extractGroup := e.Group("/api/extract")
	extractGroup.POST("", handlers.Extract.HandleStartExtract)
	extractGroup.GET("/:sessionId/status", handlers.Extract.HandleExtractStatus)
	extractGroup.POST("/:sessionId/keepalive", handlers.Extract.HandleSessionKeepAlive)
	extractGroup.GET("/:sessionId/progress", handlers.Extract.HandleExtractProgressStream)
	extractGroup.GET("/:sessionId/result", handlers.Extract.HandleExtractResult)
	extractGroup.GET("/:sessionId/result/msgpack", handlers.Extract.HandleExtractResultMsgpack)
	extractGroup.GET("/:sessionId/health", handlers.Extract.HandleExtractHealth)

	// Plan archive routes (only when the archive is enabled)
	if handlers.Archive != nil {
		archiveGroup := e.Group("/api/plans")
		archiveGroup.GET("", handlers.Archive.HandleListPlans)
		archiveGroup.GET("/:sessionId", handlers.Archive.HandleGetPlan)
		archiveGroup.DELETE("/:sessionId", handlers.Archive.HandleDeletePlan)
	}
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}

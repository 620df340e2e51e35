// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/floorplan-studio/backend/internal/archive"
	"github.com/floorplan-studio/backend/internal/models"
)

// UploadHandler handles drawing upload operations
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleUploadJobStatus(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// ExtractHandler handles extraction session operations
type ExtractHandler interface {
	HandleStartExtract(c echo.Context) error
	HandleExtractStatus(c echo.Context) error
	HandleExtractProgressStream(c echo.Context) error
	HandleExtractResult(c echo.Context) error
	HandleExtractResultMsgpack(c echo.Context) error
	HandleExtractHealth(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
}

// ArchiveHandler handles the persisted plan archive
type ArchiveHandler interface {
	HandleListPlans(c echo.Context) error
	HandleGetPlan(c echo.Context) error
	HandleDeletePlan(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for the extraction host.
// This allows mocking in tests
type SessionManager interface {
	StartSession(fileID, fileName, filePath string) (*models.ParseSession, error)
	ExtractDegraded(fileName, filePath, reason string) (*models.ParseResult, error)
	GetSession(id string) (*models.ParseSession, bool)
	GetResult(id string) (*models.ParseResult, bool)
	TouchSession(id string) bool
}

// PlanArchive defines the interface for the persisted plan store.
type PlanArchive interface {
	SavePlan(session *models.ParseSession, result *models.ParseResult) error
	ListRecent(limit int) ([]archive.PlanRecord, error)
	GetPlan(sessionID string) (*models.ParseResult, bool, error)
	DeletePlan(sessionID string) error
}

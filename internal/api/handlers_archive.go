// handlers_archive.go - Persisted plan archive handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ArchiveHandlerImpl implements the ArchiveHandler interface
type ArchiveHandlerImpl struct {
	planArchive PlanArchive
}

// NewArchiveHandler creates a new archive handler instance
func NewArchiveHandler(planArchive PlanArchive) ArchiveHandler {
	return &ArchiveHandlerImpl{planArchive: planArchive}
}

// HandleListPlans returns recent archived plan summaries
func (h *ArchiveHandlerImpl) HandleListPlans(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, err := h.planArchive.ListRecent(limit)
	if err != nil {
		return NewInternalError("failed to list archived plans", err)
	}

	return c.JSON(http.StatusOK, records)
}

// HandleGetPlan returns the full archived result for a session
func (h *ArchiveHandlerImpl) HandleGetPlan(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	result, ok, err := h.planArchive.GetPlan(id)
	if err != nil {
		return NewInternalError("failed to load archived plan", err)
	}
	if !ok {
		return NewNotFoundError("plan", id)
	}

	return c.JSON(http.StatusOK, result)
}

// HandleDeletePlan removes an archived plan
func (h *ArchiveHandlerImpl) HandleDeletePlan(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if err := h.planArchive.DeletePlan(id); err != nil {
		return NewInternalError("failed to delete archived plan", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// handlers_extract.go - Extraction session operation handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/floorplan-studio/backend/internal/models"
	"github.com/floorplan-studio/backend/internal/session"
	"github.com/floorplan-studio/backend/internal/storage"
)

// ExtractHandlerImpl implements the ExtractHandler interface
type ExtractHandlerImpl struct {
	store      storage.Store
	sessionMgr SessionManager
}

// NewExtractHandler creates a new extraction handler instance
func NewExtractHandler(store storage.Store, sessionMgr SessionManager) ExtractHandler {
	return &ExtractHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
	}
}

// HandleStartExtract starts a background extraction for an uploaded drawing.
// When no background slot is available it falls through to the synchronous
// degraded path and returns the reduced result directly.
func (h *ExtractHandlerImpl) HandleStartExtract(c echo.Context) error {
	var req startExtractRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}

	info, err := h.store.Get(req.FileID)
	if err != nil {
		return NewNotFoundError("file", req.FileID)
	}
	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return NewInternalError("failed to get file path", err)
	}

	sess, err := h.sessionMgr.StartSession(info.ID, info.Name, path)
	if errors.Is(err, session.ErrSessionLimit) {
		result, degErr := h.sessionMgr.ExtractDegraded(info.Name, path, err.Error())
		if degErr != nil {
			return NewInternalError("degraded extraction failed", degErr)
		}
		return c.JSON(http.StatusOK, result)
	}
	if err != nil {
		return NewInternalError("failed to start session", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleExtractStatus returns the current status of an extraction session
func (h *ExtractHandlerImpl) HandleExtractStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessionMgr.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *ExtractHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessionMgr.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleExtractProgressStream streams extraction progress via SSE
func (h *ExtractHandlerImpl) HandleExtractProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		h.sendSSEError(c, "session not found")
		return nil
	}

	// Send initial status
	h.sendSSEData(c, sess)
	if isTerminal(sess.Status) {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			sess, ok := h.sessionMgr.GetSession(id)
			if !ok {
				h.sendSSEError(c, "session not found")
				return nil
			}

			h.sendSSEData(c, sess)

			if isTerminal(sess.Status) {
				return nil
			}

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// HandleExtractResult returns the full extraction result as JSON
func (h *ExtractHandlerImpl) HandleExtractResult(c echo.Context) error {
	result, apiErr := h.lookupResult(c)
	if apiErr != nil {
		return apiErr
	}
	return c.JSON(http.StatusOK, result)
}

// HandleExtractResultMsgpack returns the result in MessagePack format for
// viewers that render large plans.
func (h *ExtractHandlerImpl) HandleExtractResultMsgpack(c echo.Context) error {
	result, apiErr := h.lookupResult(c)
	if apiErr != nil {
		return apiErr
	}

	data, err := msgpack.Marshal(result)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleExtractHealth returns only the health report for a completed run
func (h *ExtractHandlerImpl) HandleExtractHealth(c echo.Context) error {
	result, apiErr := h.lookupResult(c)
	if apiErr != nil {
		return apiErr
	}
	return c.JSON(http.StatusOK, result.HealthCheck)
}

// lookupResult resolves a session to its completed result, distinguishing
// unknown sessions, unfinished runs and failed runs.
func (h *ExtractHandlerImpl) lookupResult(c echo.Context) (*models.ParseResult, *APIError) {
	id := c.Param("sessionId")
	if id == "" {
		return nil, NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	h.sessionMgr.TouchSession(id)

	switch sess.Status {
	case models.SessionStatusComplete:
		result, ok := h.sessionMgr.GetResult(id)
		if !ok {
			return nil, NewInternalError("completed session has no result", nil)
		}
		return result, nil
	case models.SessionStatusError, models.SessionStatusTimeout:
		return nil, NewConflictError(fmt.Sprintf("extraction %s: %s", sess.Status, sess.Error))
	default:
		return nil, NewConflictError("extraction still in progress")
	}
}

func isTerminal(status models.SessionStatus) bool {
	switch status {
	case models.SessionStatusComplete, models.SessionStatusError, models.SessionStatusTimeout:
		return true
	}
	return false
}

// Request types

type startExtractRequest struct {
	FileID string `json:"fileId"`
}

// SSE helpers

func (h *ExtractHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *ExtractHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}

// handlers_extract_test.go - Tests for extraction handlers
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/floorplan-studio/backend/internal/models"
	"github.com/floorplan-studio/backend/internal/session"
	"github.com/floorplan-studio/backend/internal/testutil"
)

// MockSessionManager is a mock implementation for testing
type MockSessionManager struct {
	sessions   map[string]*models.ParseSession
	results    map[string]*models.ParseResult
	startErr   error
	degradeErr error
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*models.ParseSession),
		results:  make(map[string]*models.ParseResult),
	}
}

func (m *MockSessionManager) StartSession(fileID, fileName, filePath string) (*models.ParseSession, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	sess := models.NewParseSession("test-session-123", fileID, fileName)
	sess.Status = models.SessionStatusRunning
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *MockSessionManager) ExtractDegraded(fileName, filePath, reason string) (*models.ParseResult, error) {
	if m.degradeErr != nil {
		return nil, m.degradeErr
	}
	return &models.ParseResult{
		Success:     true,
		SourceType:  models.SourceTypeFallback,
		CADMetadata: models.CADMetadata{FileName: fileName},
		HealthCheck: models.HealthReport{Score: 100},
	}, nil
}

func (m *MockSessionManager) GetSession(id string) (*models.ParseSession, bool) {
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *MockSessionManager) GetResult(id string) (*models.ParseResult, bool) {
	result, ok := m.results[id]
	return result, ok
}

func (m *MockSessionManager) TouchSession(id string) bool {
	_, ok := m.sessions[id]
	return ok
}

func completedResult() *models.ParseResult {
	return &models.ParseResult{
		Success:    true,
		SourceType: models.SourceTypeDXF,
		CADMetadata: models.CADMetadata{
			FileName: "plan.dxf",
			Entities: 8,
		},
		FloorPlan: models.FloorPlanSummary{
			TotalArea: 15,
			Bounds:    models.Bounds{Width: 5, Height: 3, Scale: 1},
			Scale:     1,
		},
		Walls: []models.Wall{
			{ID: "wall-0", Start: models.Point2D{X: 0, Y: 0}, End: models.Point2D{X: 5, Y: 0}},
		},
		Rooms: []models.Room{
			{ID: "room-0", Label: "Kitchen", Area: 15},
		},
		HealthCheck: models.HealthReport{Score: 95},
	}
}

func TestExtractHandler_HandleStartExtract(t *testing.T) {
	tests := []struct {
		name       string
		request    startExtractRequest
		setupFiles map[string][]byte
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name: "start extraction for uploaded drawing",
			request: startExtractRequest{
				FileID: "file-1",
			},
			setupFiles: map[string][]byte{
				"file-1": []byte("0\nSECTION\n2\nENTITIES\n0\nENDSEC\n0\nEOF\n"),
			},
			wantStatus: http.StatusAccepted,
			wantErr:    false,
		},
		{
			name:       "no file specified",
			request:    startExtractRequest{},
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "file not found",
			request: startExtractRequest{
				FileID: "non-existent",
			},
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			for id, data := range tt.setupFiles {
				store.AddFile(id, "plan.dxf", data)
			}
			sessionMgr := NewMockSessionManager()
			handler := NewExtractHandler(store, sessionMgr)

			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			// Execute
			err := handler.HandleStartExtract(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				var response models.ParseSession
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Errorf("failed to unmarshal response: %v", err)
					return
				}
				if response.ID == "" {
					t.Error("expected non-empty session ID")
				}
			}
		})
	}
}

func TestExtractHandler_DegradedFallbackOnSessionLimit(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("file-1", "plan.dxf", []byte("0\nEOF\n"))

	sessionMgr := NewMockSessionManager()
	sessionMgr.startErr = session.ErrSessionLimit
	handler := NewExtractHandler(store, sessionMgr)

	e := echo.New()
	body, _ := json.Marshal(startExtractRequest{FileID: "file-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.HandleStartExtract(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The degraded path responds synchronously with the reduced result
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var result models.ParseResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !result.Success {
		t.Error("expected degraded result to report success")
	}
	if result.SourceType != models.SourceTypeFallback {
		t.Errorf("expected source type %s, got %s", models.SourceTypeFallback, result.SourceType)
	}
}

func TestExtractHandler_HandleExtractStatus(t *testing.T) {
	tests := []struct {
		name         string
		sessionID    string
		setupSession *models.ParseSession
		wantStatus   int
		wantErr      bool
		errCode      string
	}{
		{
			name:      "existing session",
			sessionID: "session-1",
			setupSession: &models.ParseSession{
				ID:       "session-1",
				Status:   models.SessionStatusRunning,
				Progress: 55,
			},
			wantStatus: http.StatusOK,
			wantErr:    false,
		},
		{
			name:       "missing session id",
			sessionID:  "",
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "non-existent session",
			sessionID:  "does-not-exist",
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			sessionMgr := NewMockSessionManager()
			if tt.setupSession != nil {
				sessionMgr.sessions[tt.setupSession.ID] = tt.setupSession
			}
			handler := NewExtractHandler(store, sessionMgr)

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/extract/:sessionId/status", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("sessionId")
			c.SetParamValues(tt.sessionID)

			err := handler.HandleExtractStatus(c)

			if tt.wantErr {
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Fatalf("expected APIError, got %T", err)
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				var response models.ParseSession
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if response.Progress != tt.setupSession.Progress {
					t.Errorf("expected progress %v, got %v", tt.setupSession.Progress, response.Progress)
				}
			}
		})
	}
}

func TestExtractHandler_HandleExtractResult(t *testing.T) {
	tests := []struct {
		name         string
		sessionID    string
		setupSession *models.ParseSession
		setupResult  *models.ParseResult
		wantStatus   int
		wantErr      bool
		errCode      string
	}{
		{
			name:      "completed session returns result",
			sessionID: "session-1",
			setupSession: &models.ParseSession{
				ID:     "session-1",
				Status: models.SessionStatusComplete,
			},
			setupResult: completedResult(),
			wantStatus:  http.StatusOK,
			wantErr:     false,
		},
		{
			name:      "running session conflicts",
			sessionID: "session-2",
			setupSession: &models.ParseSession{
				ID:     "session-2",
				Status: models.SessionStatusRunning,
			},
			wantStatus: http.StatusConflict,
			wantErr:    true,
			errCode:    "CONFLICT",
		},
		{
			name:      "timed out session conflicts",
			sessionID: "session-3",
			setupSession: &models.ParseSession{
				ID:     "session-3",
				Status: models.SessionStatusTimeout,
				Error:  "extraction exceeded the 30s deadline",
			},
			wantStatus: http.StatusConflict,
			wantErr:    true,
			errCode:    "CONFLICT",
		},
		{
			name:       "unknown session",
			sessionID:  "nope",
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			sessionMgr := NewMockSessionManager()
			if tt.setupSession != nil {
				sessionMgr.sessions[tt.setupSession.ID] = tt.setupSession
			}
			if tt.setupResult != nil {
				sessionMgr.results[tt.sessionID] = tt.setupResult
			}
			handler := NewExtractHandler(store, sessionMgr)

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/extract/:sessionId/result", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("sessionId")
			c.SetParamValues(tt.sessionID)

			err := handler.HandleExtractResult(c)

			if tt.wantErr {
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Fatalf("expected APIError, got %T", err)
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				var result models.ParseResult
				if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if len(result.Walls) != 1 {
					t.Errorf("expected 1 wall, got %d", len(result.Walls))
				}
				if result.HealthCheck.Score != 95 {
					t.Errorf("expected health score 95, got %d", result.HealthCheck.Score)
				}
			}
		})
	}
}

func TestExtractHandler_HandleExtractResultMsgpack(t *testing.T) {
	store := testutil.NewMockStorage()
	sessionMgr := NewMockSessionManager()
	sessionMgr.sessions["session-1"] = &models.ParseSession{
		ID:     "session-1",
		Status: models.SessionStatusComplete,
	}
	sessionMgr.results["session-1"] = completedResult()
	handler := NewExtractHandler(store, sessionMgr)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/extract/:sessionId/result/msgpack", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues("session-1")

	if err := handler.HandleExtractResultMsgpack(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/msgpack" {
		t.Errorf("expected content type application/msgpack, got %s", ct)
	}

	var result models.ParseResult
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode msgpack body: %v", err)
	}
	if result.FloorPlan.TotalArea != 15 {
		t.Errorf("expected total area 15, got %v", result.FloorPlan.TotalArea)
	}
	if len(result.Rooms) != 1 || result.Rooms[0].Label != "Kitchen" {
		t.Errorf("unexpected rooms in decoded result: %+v", result.Rooms)
	}
}

func TestExtractHandler_HandleExtractHealth(t *testing.T) {
	store := testutil.NewMockStorage()
	sessionMgr := NewMockSessionManager()
	sessionMgr.sessions["session-1"] = &models.ParseSession{
		ID:     "session-1",
		Status: models.SessionStatusComplete,
	}
	sessionMgr.results["session-1"] = completedResult()
	handler := NewExtractHandler(store, sessionMgr)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/extract/:sessionId/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues("session-1")

	if err := handler.HandleExtractHealth(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report models.HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if report.Score != 95 {
		t.Errorf("expected score 95, got %d", report.Score)
	}
}

func TestExtractHandler_HandleSessionKeepAlive(t *testing.T) {
	store := testutil.NewMockStorage()
	sessionMgr := NewMockSessionManager()
	sessionMgr.sessions["session-1"] = &models.ParseSession{
		ID:     "session-1",
		Status: models.SessionStatusRunning,
	}
	handler := NewExtractHandler(store, sessionMgr)

	e := echo.New()

	t.Run("live session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/extract/:sessionId/keepalive", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("sessionId")
		c.SetParamValues("session-1")

		if err := handler.HandleSessionKeepAlive(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/extract/:sessionId/keepalive", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("sessionId")
		c.SetParamValues("gone")

		err := handler.HandleSessionKeepAlive(c)
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Status != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, apiErr.Status)
		}
	})
}

func TestExtractHandler_ProgressStreamTerminalSession(t *testing.T) {
	store := testutil.NewMockStorage()
	sessionMgr := NewMockSessionManager()
	sessionMgr.sessions["session-1"] = &models.ParseSession{
		ID:       "session-1",
		Status:   models.SessionStatusComplete,
		Progress: 100,
	}
	handler := NewExtractHandler(store, sessionMgr)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/extract/:sessionId/progress", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues("session-1")

	// A terminal session sends one event and closes the stream immediately
	if err := handler.HandleExtractProgressStream(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected content type text/event-stream, got %s", ct)
	}
	body := rec.Body.String()
	if !bytes.Contains([]byte(body), []byte(`"progress":100`)) {
		t.Errorf("expected progress event in stream, got %q", body)
	}
}

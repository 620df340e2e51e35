package session

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floorplan-studio/backend/internal/models"
	"github.com/floorplan-studio/backend/internal/parser"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// DefaultTimeout is the hard deadline for one extraction run. A run that
// exceeds it is marked timed out and its result, if it ever arrives, is
// discarded.
const DefaultTimeout = 30 * time.Second

// ErrSessionLimit is returned when no background extraction slot is
// available. Callers fall back to the synchronous degraded path.
var ErrSessionLimit = fmt.Errorf("session limit reached (%d concurrent extractions)", MaxSessions)

// Extractor runs the extraction pipeline. *parser.Pipeline satisfies it;
// tests substitute a controllable fake.
type Extractor interface {
	Run(text, fileName string, onProgress parser.ProgressFunc) (*models.ParseResult, error)
	RunDegraded(text, fileName, reason string) *models.ParseResult
}

// Manager hosts extraction sessions: it starts background runs, enforces
// the hard timeout, recovers panics, and retains completed results for
// later retrieval.
type Manager struct {
	sessions   map[string]*SessionState
	mu         sync.RWMutex
	extractor  Extractor
	timeout    time.Duration
	onComplete func(session *models.ParseSession, result *models.ParseResult)
}

// SessionState holds the session metadata and the completed result.
type SessionState struct {
	Session      *models.ParseSession
	Result       *models.ParseResult
	LastAccessed time.Time
}

// NewManager creates a session manager running the real pipeline.
func NewManager(cfg parser.Config) *Manager {
	return NewManagerWithExtractor(parser.NewPipeline(cfg), DefaultTimeout)
}

// NewManagerWithExtractor creates a session manager with a specific
// extractor and deadline.
func NewManagerWithExtractor(extractor Extractor, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		sessions:  make(map[string]*SessionState),
		extractor: extractor,
		timeout:   timeout,
	}
}

// SetCompletionHook registers a callback invoked after each successful
// extraction, outside the session lock. Used to archive completed plans.
func (m *Manager) SetCompletionHook(hook func(session *models.ParseSession, result *models.ParseResult)) {
	m.onComplete = hook
}

// StartSession begins a background extraction for an uploaded file. It
// returns ErrSessionLimit when every slot is occupied by a run that is
// still pending or running; the caller then uses ExtractDegraded.
func (m *Manager) StartSession(fileID, fileName, filePath string) (*models.ParseSession, error) {
	m.cleanupOldSessionsIfNeeded()

	m.mu.Lock()
	active := 0
	for _, state := range m.sessions {
		if state.Session.Status == models.SessionStatusPending ||
			state.Session.Status == models.SessionStatusRunning {
			active++
		}
	}
	if active >= MaxSessions {
		m.mu.Unlock()
		return nil, ErrSessionLimit
	}

	sessionID := uuid.New().String()
	session := models.NewParseSession(sessionID, fileID, fileName)
	session.Status = models.SessionStatusRunning

	m.sessions[sessionID] = &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
	}
	m.mu.Unlock()

	go m.runExtraction(sessionID, fileName, filePath)

	return session, nil
}

// ExtractDegraded is the synchronous fallback when no background slot is
// available. It never blocks on the full pipeline and always produces a
// result.
func (m *Manager) ExtractDegraded(fileName, filePath, reason string) (*models.ParseResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read drawing: %w", err)
	}
	return m.extractor.RunDegraded(string(data), fileName, reason), nil
}

func (m *Manager) runExtraction(sessionID, fileName, filePath string) {
	start := time.Now()
	fmt.Printf("[Parse %s] Starting extraction of %s\n", sessionID[:8], filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Printf("[Parse %s] ERROR reading file: %v\n", sessionID[:8], err)
		m.updateSessionError(sessionID, fmt.Sprintf("failed to read drawing: %v", err))
		return
	}

	type outcome struct {
		result *models.ParseResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		// Recover from panics to prevent backend crash
		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("[Parse %s] PANIC recovered: %v\n", sessionID[:8], r)
				done <- outcome{err: &parser.PipelineError{
					Stage:  "extraction",
					Reason: fmt.Sprintf("extraction panicked: %v", r),
				}}
			}
		}()

		result, err := m.extractor.Run(string(data), fileName, func(stage string, pct float64) {
			// Hold at 99 until the result is stored.
			if pct > 99 {
				pct = 99
			}
			m.updateProgress(sessionID, stage, pct)
		})
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			fmt.Printf("[Parse %s] ERROR: extraction failed: %v\n", sessionID[:8], out.err)
			m.updateSessionError(sessionID, out.err.Error())
			return
		}
		m.completeSession(sessionID, out.result, time.Since(start))
	case <-time.After(m.timeout):
		fmt.Printf("[Parse %s] TIMEOUT after %s, discarding run\n", sessionID[:8], m.timeout)
		m.timeoutSession(sessionID)
	}
}

// updateProgress advances a running session. A session that already
// reached a terminal state (timeout, error) is never touched again.
func (m *Manager) updateProgress(sessionID, stage string, pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok || state.Session.Status != models.SessionStatusRunning {
		return
	}
	_ = stage
	state.Session.Progress = pct
}

func (m *Manager) completeSession(sessionID string, result *models.ParseResult, elapsed time.Duration) {
	m.mu.Lock()

	state, ok := m.sessions[sessionID]
	if !ok || state.Session.Status != models.SessionStatusRunning {
		// Timed out or cleaned up while the run finished; discard.
		m.mu.Unlock()
		return
	}

	state.Result = result
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.EntityCount = result.CADMetadata.Entities
	state.Session.WallCount = len(result.Walls)
	state.Session.RoomCount = len(result.Rooms)
	state.Session.HealthScore = result.HealthCheck.Score
	state.Session.SourceType = result.SourceType
	state.Session.ProcessingTimeMs = elapsed.Milliseconds()

	session := state.Session
	hook := m.onComplete
	m.mu.Unlock()

	fmt.Printf("[Parse %s] Extraction complete: %d walls, %d rooms, health %d (%dms)\n",
		sessionID[:8], session.WallCount, session.RoomCount, session.HealthScore, session.ProcessingTimeMs)

	if hook != nil {
		hook(session, result)
	}
}

func (m *Manager) timeoutSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok || state.Session.Status != models.SessionStatusRunning {
		return
	}
	state.Session.Status = models.SessionStatusTimeout
	state.Session.Error = fmt.Sprintf("extraction exceeded the %s deadline", m.timeout)
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok || state.Session.Status != models.SessionStatusRunning {
		return
	}
	state.Session.Status = models.SessionStatusError
	state.Session.Error = reason
}

// cleanupOldSessionsIfNeeded removes oldest completed sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	var toDelete []string
	for id, state := range m.sessions {
		switch state.Session.Status {
		case models.SessionStatusComplete, models.SessionStatusError, models.SessionStatusTimeout:
			toDelete = append(toDelete, id)
		}
	}

	toFree := len(m.sessions) - MaxSessions + 1
	deleted := 0
	for _, id := range toDelete {
		if deleted >= toFree {
			break
		}
		delete(m.sessions, id)
		deleted++
		fmt.Printf("[Manager] Cleaned up old session %s to free memory\n", id[:8])
	}
}

// CleanupOldSessions removes terminal sessions older than maxAge, but keeps
// sessions that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	for id, state := range m.sessions {
		switch state.Session.Status {
		case models.SessionStatusComplete, models.SessionStatusError, models.SessionStatusTimeout:
		default:
			continue
		}

		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}

		sessionTime := state.LastAccessed
		if sessionTime.IsZero() {
			sessionTime = time.Now().Add(-maxAge - time.Hour)
		}

		if sessionTime.Before(cutoff) {
			delete(m.sessions, id)
			fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n",
				id[:8], time.Since(state.LastAccessed).Round(time.Second))
		}
	}
}

// GetSession returns a session by ID.
func (m *Manager) GetSession(id string) (*models.ParseSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.Session, true
}

// GetResult returns the completed extraction result for a session. The
// second return distinguishes "no such session" from "not finished yet":
// it is true only when a result is available.
func (m *Manager) GetResult(id string) (*models.ParseResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Result == nil {
		return nil, false
	}
	return state.Result, true
}

// TouchSession updates the LastAccessed timestamp for a session so active
// consumers keep it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

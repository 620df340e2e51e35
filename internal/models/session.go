package models

// SessionStatus represents the status of an extraction session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusRunning  SessionStatus = "running"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
	SessionStatusTimeout  SessionStatus = "timeout"
)

// ParseSession represents one extraction invocation over an uploaded file.
type ParseSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	FileName         string        `json:"fileName"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	EntityCount      int           `json:"entityCount,omitempty"`
	WallCount        int           `json:"wallCount,omitempty"`
	RoomCount        int           `json:"roomCount,omitempty"`
	HealthScore      int           `json:"healthScore,omitempty"`
	SourceType       SourceType    `json:"sourceType,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// NewParseSession creates a new ParseSession in pending status.
func NewParseSession(id, fileID, fileName string) *ParseSession {
	return &ParseSession{
		ID:       id,
		FileID:   fileID,
		FileName: fileName,
		Status:   SessionStatusPending,
		Progress: 0,
	}
}

package upload

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floorplan-studio/backend/internal/models"
)

// Status represents the drawing ingest status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusInspecting    Status = "inspecting"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Job represents one async drawing ingest: chunk assembly, optional gzip
// inflation, then a cheap content sniff before the drawing is offered for
// extraction.
type Job struct {
	ID             string           `json:"id"`
	UploadID       string           `json:"uploadId"`
	FileName       string           `json:"fileName"`
	TotalChunks    int              `json:"totalChunks"`
	OriginalSize   int64            `json:"originalSize"`
	CompressedSize int64            `json:"compressedSize"`
	Encoding       string           `json:"encoding"`
	Status         Status           `json:"status"`
	Progress       float64          `json:"progress"`
	Stage          string           `json:"stage"`
	StageProgress  float64          `json:"stageProgress"`
	FileInfo       *models.FileInfo `json:"fileInfo,omitempty"`
	// Warning carries non-fatal ingest diagnostics, e.g. a payload that
	// does not look like a group-code stream. The extraction pipeline
	// still gets to try such files.
	Warning     string     `json:"warning,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Manager runs drawing ingest jobs.
type Manager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	uploadDir string
	store     Store
}

// Store defines the interface needed from the storage layer.
type Store interface {
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	RegisterFile(info *models.FileInfo)
}

// NewManager creates a new drawing ingest manager.
func NewManager(uploadDir string, store Store) *Manager {
	return &Manager{
		jobs:      make(map[string]*Job),
		uploadDir: uploadDir,
		store:     store,
	}
}

// StartJob begins async ingest of an uploaded drawing.
func (m *Manager) StartJob(uploadID, fileName string, totalChunks int, originalSize, compressedSize int64, encoding string) *Job {
	job := &Job{
		ID:             uuid.New().String(),
		UploadID:       uploadID,
		FileName:       fileName,
		TotalChunks:    totalChunks,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Encoding:       encoding,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.ingest(job)

	return job
}

// GetJob retrieves a job by ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// ingest runs the drawing through assembly, inflation and inspection.
func (m *Manager) ingest(job *Job) {
	fmt.Printf("[Ingest %s] Starting: %s\n", job.ID[:8], job.FileName)

	m.setStage(job, StatusAssembling, "assembling drawing chunks", 0)

	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.failJob(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}

	m.setStage(job, StatusAssembling, "assembling drawing chunks", 100)
	fmt.Printf("[Ingest %s] Drawing assembled: %s (%d bytes)\n", job.ID[:8], info.ID, info.Size)

	if job.Encoding == "gzip" || job.Encoding == "binary-gzip" {
		m.setStage(job, StatusDecompressing, "inflating drawing", 0)

		if err := m.inflateDrawing(job, info.ID); err != nil {
			// The extraction pipeline may still make sense of the raw
			// bytes, so inflation failure is a warning, not a job error.
			fmt.Printf("[Ingest %s] Warning: failed to inflate %s: %v\n", job.ID[:8], info.ID, err)
			m.setWarning(job, fmt.Sprintf("inflation failed, keeping raw upload: %v", err))
		} else {
			info.Size = job.OriginalSize
			m.store.RegisterFile(info)
			fmt.Printf("[Ingest %s] Inflated drawing %s to %d bytes\n", job.ID[:8], info.ID, info.Size)
		}

		m.setStage(job, StatusDecompressing, "inflating drawing", 100)
	}

	m.setStage(job, StatusInspecting, "inspecting drawing content", 0)
	if err := m.inspectDrawing(info.ID); err != nil {
		fmt.Printf("[Ingest %s] Warning: %s does not look like a drawing: %v\n", job.ID[:8], info.ID, err)
		m.setWarning(job, fmt.Sprintf("content check: %v", err))
	}
	m.setStage(job, StatusInspecting, "inspecting drawing content", 100)

	job.FileInfo = info
	m.finishJob(job)
	fmt.Printf("[Ingest %s] Ingest complete: %s (%d bytes)\n", job.ID[:8], info.ID, info.Size)
}

// inflateDrawing streams a gzip-compressed drawing out to a sibling file and
// renames it over the original once the size checks out.
func (m *Manager) inflateDrawing(job *Job, fileID string) error {
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		return err
	}

	compressed, err := os.Open(path)
	if err != nil {
		return err
	}
	defer compressed.Close()

	magic := make([]byte, 2)
	if _, err := compressed.Read(magic); err != nil {
		return err
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return fmt.Errorf("not a gzip stream")
	}
	compressed.Seek(0, 0)

	reader, err := gzip.NewReader(compressed)
	if err != nil {
		return err
	}
	defer reader.Close()

	tempPath := path + ".inflating"
	outFile, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	buf := make([]byte, 1024*1024)
	var written int64
	lastUpdate := time.Now()

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := outFile.Write(buf[:n]); writeErr != nil {
				outFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("write error: %w", writeErr)
			}
			written += int64(n)

			if time.Since(lastUpdate) > 100*time.Millisecond {
				progress := float64(written) / float64(job.OriginalSize) * 100
				if progress > 99 {
					progress = 99
				}
				m.setStage(job, StatusDecompressing, "inflating drawing", progress)
				lastUpdate = time.Now()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				outFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("read error: %w", readErr)
			}
			break
		}
	}

	outFile.Close()

	if written != job.OriginalSize {
		os.Remove(tempPath)
		return fmt.Errorf("inflated size mismatch: got %d bytes, expected %d bytes", written, job.OriginalSize)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}

	return nil
}

// inspectDrawing sniffs the head of the file for a group-code stream:
// alternating lines of integer codes and values. The check is advisory; a
// failure becomes a job warning only.
func (m *Manager) inspectDrawing(fileID string) error {
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	pairs := 0
	for pairs < 4 {
		if !scanner.Scan() {
			break
		}
		code := strings.TrimSpace(scanner.Text())
		if _, err := strconv.Atoi(code); err != nil {
			return fmt.Errorf("expected an integer group code on line %d, got %q", pairs*2+1, code)
		}
		if !scanner.Scan() {
			return fmt.Errorf("group code %q has no value line", code)
		}
		pairs++
	}
	if pairs == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}

// setStage updates the job's stage and overall progress (thread-safe).
// Assembly covers 0-35%, inflation 35-80%, inspection 80-100%.
func (m *Manager) setStage(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.35
	case StatusDecompressing:
		job.Progress = 35 + stageProgress*0.45
	case StatusInspecting:
		job.Progress = 80 + stageProgress*0.2
	case StatusComplete:
		job.Progress = 100
	}
}

// setWarning records a non-fatal diagnostic on the job (thread-safe).
func (m *Manager) setWarning(job *Job, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.Warning != "" {
		job.Warning += "; " + msg
	} else {
		job.Warning = msg
	}
}

// finishJob marks the job complete (thread-safe).
func (m *Manager) finishJob(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

// failJob marks the job as failed (thread-safe).
func (m *Manager) failJob(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	fmt.Printf("[Ingest %s] Error: %s\n", job.ID[:8], errMsg)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
			}
		}
	}
}

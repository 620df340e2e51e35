// mock_storage.go - In-memory drawing store for handler tests
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/floorplan-studio/backend/internal/models"
	"github.com/floorplan-studio/backend/internal/storage"
)

// MockStorage implements storage.Store over in-memory maps. Drawings never
// touch disk; GetFilePath returns a synthetic path for handlers that only
// forward it.
type MockStorage struct {
	drawings map[string]*models.FileInfo
	contents map[string][]byte
	chunks   map[string]map[int][]byte // uploadID -> chunkIndex -> data
	mu       sync.RWMutex
}

// NewMockStorage creates an empty in-memory store
func NewMockStorage() *MockStorage {
	return &MockStorage{
		drawings: make(map[string]*models.FileInfo),
		contents: make(map[string][]byte),
		chunks:   make(map[string]map[int][]byte),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, data)
}

func (m *MockStorage) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := nextDrawingID()
	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}

	m.drawings[id] = info
	m.contents[id] = data
	return info, nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.drawings[id]
	if !ok {
		return nil, errors.New("drawing not found")
	}
	return info, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []*models.FileInfo
	for _, info := range m.drawings {
		infos = append(infos, info)
		if limit > 0 && len(infos) >= limit {
			break
		}
	}
	return infos, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.drawings[id]; !exists {
		return errors.New("drawing not found")
	}

	delete(m.drawings, id)
	delete(m.contents, id)
	return nil
}

func (m *MockStorage) Rename(id string, newName string) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.drawings[id]
	if !ok {
		return nil, errors.New("drawing not found")
	}

	info.Name = newName
	return info, nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	return "/mock/drawings/" + id, nil
}

func (m *MockStorage) RegisterFile(info *models.FileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drawings[info.ID] = info
}

func (m *MockStorage) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return m.SaveChunkBytes(uploadID, chunkIndex, data)
}

func (m *MockStorage) SaveChunkBytes(uploadID string, chunkIndex int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chunks[uploadID] == nil {
		m.chunks[uploadID] = make(map[int][]byte)
	}
	m.chunks[uploadID][chunkIndex] = data
	return nil
}

func (m *MockStorage) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uploadChunks, ok := m.chunks[uploadID]
	if !ok {
		return nil, errors.New("upload not found")
	}

	var data bytes.Buffer
	for i := 0; i < totalChunks; i++ {
		chunk, ok := uploadChunks[i]
		if !ok {
			return nil, fmt.Errorf("missing chunk %d", i)
		}
		data.Write(chunk)
	}

	id := nextDrawingID()
	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(data.Len()),
		UploadedAt: time.Now(),
	}

	m.drawings[id] = info
	m.contents[id] = data.Bytes()
	delete(m.chunks, uploadID)

	return info, nil
}

var _ storage.Store = (*MockStorage)(nil)

// Test helpers

// AddFile seeds a drawing with a fixed id
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}
	m.drawings[id] = info
	m.contents[id] = data
	return info
}

// GetFileData returns the stored drawing content
func (m *MockStorage) GetFileData(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.contents[id]
	if !ok {
		return nil, errors.New("drawing not found")
	}
	return data, nil
}

// GetFileCount returns the number of stored drawings
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.drawings)
}

var drawingIDCounter int
var drawingIDMutex sync.Mutex

func nextDrawingID() string {
	drawingIDMutex.Lock()
	defer drawingIDMutex.Unlock()
	drawingIDCounter++
	return fmt.Sprintf("drawing-%d", drawingIDCounter)
}

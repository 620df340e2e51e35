// manager_test.go - Tests for drawing file storage
package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/floorplan-studio/backend/internal/models"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		store := createTestStore(t)
		if store.uploadDir == "" {
			t.Error("Expected uploadDir to be set")
		}
	})

	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves drawing from reader", func(t *testing.T) {
		store := createTestStore(t)

		content := "0\nEOF\n"
		info, err := store.Save("plan.dxf", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "plan.dxf" {
			t.Errorf("Expected name 'plan.dxf', got %v", info.Name)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.Status != "uploaded" {
			t.Errorf("Expected status 'uploaded', got %v", info.Status)
		}
	})

	t.Run("saves empty file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("empty.dxf", strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty file: %v", err)
		}

		if info.Size != 0 {
			t.Errorf("Expected size 0, got %d", info.Size)
		}
	})

	t.Run("creates physical file", func(t *testing.T) {
		store := createTestStore(t)

		content := "0\nSECTION\n2\nENTITIES\n0\nENDSEC\n0\nEOF\n"
		info, err := store.Save("plan.dxf", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}

		if string(data) != content {
			t.Errorf("Expected content %q, got %q", content, string(data))
		}
	})
}

func TestLocalStore_SaveBytes(t *testing.T) {
	store := createTestStore(t)

	data := []byte("0\nEOF\n")
	info, err := store.SaveBytes("bytes.dxf", data)
	if err != nil {
		t.Fatalf("Failed to save bytes: %v", err)
	}

	if info.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), info.Size)
	}

	savedData, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if !bytes.Equal(savedData, data) {
		t.Error("Saved data doesn't match original")
	}
}

func TestLocalStore_Get(t *testing.T) {
	t.Run("gets existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("plan.dxf", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		retrieved, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Failed to get file: %v", err)
		}

		if retrieved.ID != info.ID {
			t.Errorf("Expected ID %s, got %s", info.ID, retrieved.ID)
		}
		if retrieved.Name != info.Name {
			t.Errorf("Expected name %s, got %s", info.Name, retrieved.Name)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Get("non-existent-id"); err == nil {
			t.Error("Expected error for non-existent file")
		}
	})
}

func TestLocalStore_List(t *testing.T) {
	t.Run("lists files", func(t *testing.T) {
		store := createTestStore(t)

		for i := 0; i < 5; i++ {
			if _, err := store.Save("plan.dxf", strings.NewReader("content")); err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			time.Sleep(10 * time.Millisecond) // Ensure different timestamps
		}

		files, err := store.List(10)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}

		if len(files) != 5 {
			t.Errorf("Expected 5 files, got %d", len(files))
		}
	})

	t.Run("limits results", func(t *testing.T) {
		store := createTestStore(t)

		for i := 0; i < 10; i++ {
			if _, err := store.Save("plan.dxf", strings.NewReader("content")); err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			time.Sleep(5 * time.Millisecond)
		}

		files, err := store.List(3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}

		if len(files) != 3 {
			t.Errorf("Expected 3 files, got %d", len(files))
		}
	})

	t.Run("sorts by upload time descending", func(t *testing.T) {
		store := createTestStore(t)

		ids := make([]string, 3)
		for i := 0; i < 3; i++ {
			info, err := store.Save("plan.dxf", strings.NewReader("content"))
			if err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			ids[i] = info.ID
			time.Sleep(20 * time.Millisecond)
		}

		files, err := store.List(3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}

		if files[0].ID != ids[2] {
			t.Error("Expected files to be sorted by time descending")
		}
	})
}

func TestLocalStore_Delete(t *testing.T) {
	t.Run("deletes existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("plan.dxf", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		filePath := filepath.Join(store.uploadDir, info.ID)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			t.Fatal("File should exist before deletion")
		}

		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}

		if _, err := store.Get(info.ID); err == nil {
			t.Error("Expected error when getting deleted file")
		}
		if _, err := os.Stat(filePath); !os.IsNotExist(err) {
			t.Error("Physical file should be deleted")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.Delete("non-existent-id"); err == nil {
			t.Error("Expected error when deleting non-existent file")
		}
	})
}

func TestLocalStore_Rename(t *testing.T) {
	t.Run("renames existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("oldname.dxf", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		updated, err := store.Rename(info.ID, "newname.dxf")
		if err != nil {
			t.Fatalf("Failed to rename file: %v", err)
		}

		if updated.Name != "newname.dxf" {
			t.Errorf("Expected name 'newname.dxf', got %v", updated.Name)
		}

		retrieved, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Failed to get file: %v", err)
		}
		if retrieved.Name != "newname.dxf" {
			t.Errorf("Expected persisted name 'newname.dxf', got %v", retrieved.Name)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Rename("non-existent-id", "newname.dxf"); err == nil {
			t.Error("Expected error when renaming non-existent file")
		}
	})
}

func TestLocalStore_GetFilePath(t *testing.T) {
	t.Run("returns file path for existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("plan.dxf", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		path, err := store.GetFilePath(info.ID)
		if err != nil {
			t.Fatalf("Failed to get file path: %v", err)
		}

		expectedPath := filepath.Join(store.uploadDir, info.ID)
		if path != expectedPath {
			t.Errorf("Expected path %s, got %s", expectedPath, path)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.GetFilePath("non-existent-id"); err == nil {
			t.Error("Expected error when getting path for non-existent file")
		}
	})
}

func TestLocalStore_SaveChunk(t *testing.T) {
	t.Run("saves chunk", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.SaveChunk("upload-123", 0, strings.NewReader("Chunk data")); err != nil {
			t.Fatalf("Failed to save chunk: %v", err)
		}

		chunkPath := filepath.Join(store.uploadDir, "chunks", "upload-123", "chunk_0")
		data, err := os.ReadFile(chunkPath)
		if err != nil {
			t.Fatalf("Failed to read chunk: %v", err)
		}
		if string(data) != "Chunk data" {
			t.Errorf("Expected chunk content 'Chunk data', got %q", string(data))
		}
	})

	t.Run("saves multiple chunks", func(t *testing.T) {
		store := createTestStore(t)

		for i := 0; i < 3; i++ {
			content := "Chunk " + string(rune('A'+i))
			if err := store.SaveChunk("upload-456", i, strings.NewReader(content)); err != nil {
				t.Fatalf("Failed to save chunk %d: %v", i, err)
			}
		}

		for i := 0; i < 3; i++ {
			chunkPath := filepath.Join(store.uploadDir, "chunks", "upload-456", "chunk_"+string(rune('0'+i)))
			if _, err := os.Stat(chunkPath); os.IsNotExist(err) {
				t.Errorf("Chunk %d should exist", i)
			}
		}
	})
}

func TestLocalStore_SaveChunkBytes(t *testing.T) {
	store := createTestStore(t)

	data := []byte("Chunk bytes data")
	if err := store.SaveChunkBytes("upload-789", 0, data); err != nil {
		t.Fatalf("Failed to save chunk bytes: %v", err)
	}

	chunkPath := filepath.Join(store.uploadDir, "chunks", "upload-789", "chunk_0")
	savedData, err := os.ReadFile(chunkPath)
	if err != nil {
		t.Fatalf("Failed to read chunk: %v", err)
	}
	if !bytes.Equal(savedData, data) {
		t.Error("Saved chunk data doesn't match original")
	}
}

func TestLocalStore_CompleteChunkedUpload(t *testing.T) {
	t.Run("assembles chunks into final file", func(t *testing.T) {
		store := createTestStore(t)

		uploadID := "upload-complete"
		chunks := []string{"0\nSECTION\n", "2\nENTITIES\n0\nENDSEC\n", "0\nEOF\n"}

		for i, content := range chunks {
			if err := store.SaveChunk(uploadID, i, strings.NewReader(content)); err != nil {
				t.Fatalf("Failed to save chunk %d: %v", i, err)
			}
		}

		info, err := store.CompleteChunkedUpload(uploadID, "assembled.dxf", len(chunks))
		if err != nil {
			t.Fatalf("Failed to complete upload: %v", err)
		}

		if info.Name != "assembled.dxf" {
			t.Errorf("Expected name 'assembled.dxf', got %v", info.Name)
		}

		var expectedSize int64
		for _, c := range chunks {
			expectedSize += int64(len(c))
		}
		if info.Size != expectedSize {
			t.Errorf("Expected size %d, got %d", expectedSize, info.Size)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read assembled file: %v", err)
		}
		if string(data) != strings.Join(chunks, "") {
			t.Errorf("Assembled content mismatch: %q", string(data))
		}

		chunkDir := filepath.Join(store.uploadDir, "chunks", uploadID)
		if _, err := os.Stat(chunkDir); !os.IsNotExist(err) {
			t.Error("Chunk directory should be cleaned up")
		}
	})

	t.Run("returns error for missing chunks", func(t *testing.T) {
		store := createTestStore(t)

		uploadID := "upload-incomplete"
		if err := store.SaveChunk(uploadID, 0, strings.NewReader("chunk0")); err != nil {
			t.Fatalf("Failed to save chunk: %v", err)
		}

		if _, err := store.CompleteChunkedUpload(uploadID, "incomplete.dxf", 3); err == nil {
			t.Error("Expected error when chunks are missing")
		}
	})
}

func TestLocalStore_RegisterFile(t *testing.T) {
	store := createTestStore(t)

	filePath := filepath.Join(store.uploadDir, "existing-file")
	content := []byte("0\nEOF\n")
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	info := &models.FileInfo{
		ID:         "existing-file",
		Name:       "registered.dxf",
		Size:       int64(len(content)),
		UploadedAt: time.Now(),
		Status:     "uploaded",
	}
	store.RegisterFile(info)

	retrieved, err := store.Get("existing-file")
	if err != nil {
		t.Fatalf("Failed to get registered file: %v", err)
	}
	if retrieved.Name != "registered.dxf" {
		t.Errorf("Expected name 'registered.dxf', got %v", retrieved.Name)
	}
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store := createTestStore(t)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			content := "Content " + string(rune('0'+n))
			if _, err := store.Save("plan.dxf", strings.NewReader(content)); err != nil {
				t.Errorf("Failed to save file: %v", err)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	files, err := store.List(20)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if len(files) != 10 {
		t.Errorf("Expected 10 files, got %d", len(files))
	}
}

// failReader simulates a broken upload stream.
type failReader struct{}

func (failReader) Read(p []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestLocalStore_ErrorHandling(t *testing.T) {
	store := createTestStore(t)

	if _, err := store.Save("plan.dxf", failReader{}); err == nil {
		t.Error("Expected error when reader fails")
	}
}

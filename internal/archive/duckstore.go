// Package archive persists completed floor plan extractions in a DuckDB
// file so recent results survive restarts and can be listed without
// re-running the pipeline.
package archive

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/floorplan-studio/backend/internal/models"
)

// PlanRecord is one archived extraction summary row.
type PlanRecord struct {
	SessionID   string            `json:"sessionId"`
	FileName    string            `json:"fileName"`
	CreatedAt   time.Time         `json:"createdAt"`
	WallCount   int               `json:"wallCount"`
	RoomCount   int               `json:"roomCount"`
	TotalArea   float64           `json:"totalArea"`
	HealthScore int               `json:"healthScore"`
	SourceType  models.SourceType `json:"sourceType"`
}

// DuckStore is a DuckDB-backed archive of completed extraction results.
// Summaries live in typed columns for cheap listing; the full result is
// kept as a JSON document.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewDuckStore creates or opens the plan archive at dbPath.
func NewDuckStore(dbPath string) (*DuckStore, error) {
	fmt.Printf("[Archive] Opening database at: %s\n", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[Archive] Pragma error: %v\n", err)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS plans (
			session_id   VARCHAR PRIMARY KEY,
			file_name    VARCHAR NOT NULL,
			created_at   BIGINT NOT NULL,
			wall_count   INTEGER NOT NULL,
			room_count   INTEGER NOT NULL,
			total_area   DOUBLE NOT NULL,
			health_score INTEGER NOT NULL,
			source_type  VARCHAR NOT NULL,
			result       VARCHAR NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create plans table: %w", err)
	}

	return &DuckStore{db: db, dbPath: dbPath}, nil
}

// SavePlan archives a completed extraction. Re-archiving the same session
// replaces the previous row.
func (ds *DuckStore) SavePlan(session *models.ParseSession, result *models.ParseResult) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	_, err = ds.db.Exec(`
		INSERT OR REPLACE INTO plans
			(session_id, file_name, created_at, wall_count, room_count, total_area, health_score, source_type, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		result.CADMetadata.FileName,
		time.Now().UnixMilli(),
		len(result.Walls),
		len(result.Rooms),
		result.FloorPlan.TotalArea,
		result.HealthCheck.Score,
		string(result.SourceType),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to archive plan: %w", err)
	}
	return nil
}

// ListRecent returns the newest archived plans, most recent first.
func (ds *DuckStore) ListRecent(limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := ds.db.Query(`
		SELECT session_id, file_name, created_at, wall_count, room_count, total_area, health_score, source_type
		FROM plans
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	records := make([]PlanRecord, 0, limit)
	for rows.Next() {
		var rec PlanRecord
		var createdAt int64
		var sourceType string
		if err := rows.Scan(&rec.SessionID, &rec.FileName, &createdAt, &rec.WallCount,
			&rec.RoomCount, &rec.TotalArea, &rec.HealthScore, &sourceType); err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		rec.SourceType = models.SourceType(sourceType)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetPlan loads the full archived result for a session. The second return
// is false when the session was never archived.
func (ds *DuckStore) GetPlan(sessionID string) (*models.ParseResult, bool, error) {
	var doc string
	err := ds.db.QueryRow("SELECT result FROM plans WHERE session_id = ?", sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load plan: %w", err)
	}

	var result models.ParseResult
	if err := json.Unmarshal([]byte(doc), &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode archived result: %w", err)
	}
	return &result, true, nil
}

// DeletePlan removes an archived plan. Deleting an unknown session is not
// an error.
func (ds *DuckStore) DeletePlan(sessionID string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if _, err := ds.db.Exec("DELETE FROM plans WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (ds *DuckStore) Close() error {
	return ds.db.Close()
}

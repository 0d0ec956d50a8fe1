package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/baronglock/Site-legendas/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Cache keeps the last job list on disk so a new view has rows to show
// before its first refresh.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the sqlite snapshot at path.
func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save replaces the stored snapshot with jobs, keeping their order.
func (c *Cache) Save(ctx context.Context, jobs []domain.JobSummary) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_rows`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO history_rows (id, position, filename, status, progress, created_at, detected_language, downloads_json, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for i, job := range jobs {
		var createdMs int64
		if !job.CreatedAt.IsZero() {
			createdMs = job.CreatedAt.UnixMilli()
		}
		downloads, err := json.Marshal(job.DownloadURLs)
		if err != nil {
			return fmt.Errorf("encode downloads of %s: %w", job.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			job.ID,
			i,
			job.Filename,
			string(job.Status),
			job.Progress,
			createdMs,
			job.DetectedLanguage,
			string(downloads),
			job.Error,
		); err != nil {
			return fmt.Errorf("insert %s: %w", job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache write: %w", err)
	}
	return nil
}

// Load returns the stored snapshot in its saved order.
func (c *Cache) Load(ctx context.Context) ([]domain.JobSummary, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT id, filename, status, progress, created_at, detected_language, downloads_json, error_message
  FROM history_rows ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	var out []domain.JobSummary
	for rows.Next() {
		var (
			job       domain.JobSummary
			status    string
			createdMs int64
			downloads string
		)
		if err := rows.Scan(&job.ID, &job.Filename, &status, &job.Progress, &createdMs, &job.DetectedLanguage, &downloads, &job.Error); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		job.Status = domain.JobStatus(status)
		if createdMs != 0 {
			job.CreatedAt = time.UnixMilli(createdMs)
		}
		if downloads != "" && downloads != "null" {
			if err := json.Unmarshal([]byte(downloads), &job.DownloadURLs); err != nil {
				return nil, fmt.Errorf("decode downloads of %s: %w", job.ID, err)
			}
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

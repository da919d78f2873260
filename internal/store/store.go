// Package store persists test-run history in SQLite and screenshots on
// the filesystem under the storage root:
//
//	rootDir/
//	  hashi.db
//	  screenshots/
//	    <test_id>_step_<n>[_FAILED].<ext>
//	    <test_id>_ERROR.<ext>
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/hashi/internal/logging"
	"github.com/raysh454/hashi/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when no stored run matches a query.
var ErrNotFound = errors.New("result not found")

type Store struct {
	db       *sql.DB
	rootDir  string
	shotsDir string
	logger   logging.Logger
}

// New runs the schema against db and prepares the screenshots
// directory. db should typically be the SQLite DB at rootDir/hashi.db.
func New(db *sql.DB, rootDir string, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if rootDir == "" {
		return nil, fmt.Errorf("rootDir is required")
	}
	rootDir = filepath.Clean(rootDir)
	shotsDir := filepath.Join(rootDir, "screenshots")
	if err := os.MkdirAll(shotsDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure screenshots dir %s: %w", shotsDir, err)
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{db: db, rootDir: rootDir, shotsDir: shotsDir, logger: logger}, nil
}

// SaveResult appends one completed run to the history.
func (s *Store) SaveResult(ctx context.Context, res *model.TestResult) error {
	if res == nil {
		return fmt.Errorf("result is nil")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	createdAt := res.Timestamp
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, test_id, status, duration, steps_executed, steps_passed, steps_failed, created_at, result_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), res.TestID, string(res.Status), res.Duration,
		res.StepsExecuted, res.StepsPassed, res.StepsFailed, createdAt, string(payload))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecentResults returns the latest runs, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]model.TestResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT result_json FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// ResultsByTestID returns every stored run for a test id, newest first.
func (s *Store) ResultsByTestID(ctx context.Context, testID string) ([]model.TestResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT result_json FROM runs WHERE test_id = ? ORDER BY created_at DESC, rowid DESC`, testID)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", testID, err)
	}
	defer rows.Close()

	out, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}
	return out, nil
}

func scanResults(rows *sql.Rows) ([]model.TestResult, error) {
	var out []model.TestResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var res model.TestResult
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, fmt.Errorf("unmarshal run: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// SaveScreenshot writes a step screenshot and returns its file name.
func (s *Store) SaveScreenshot(testID string, stepNumber int, failed bool, data []byte, ext string) (string, error) {
	name := fmt.Sprintf("%s_step_%d", sanitizeName(testID), stepNumber)
	if failed {
		name += "_FAILED"
	}
	return s.writeScreenshot(name, data, ext)
}

// SaveErrorScreenshot writes the screenshot captured when a run breaks
// outside step execution.
func (s *Store) SaveErrorScreenshot(testID string, data []byte, ext string) (string, error) {
	return s.writeScreenshot(sanitizeName(testID)+"_ERROR", data, ext)
}

func (s *Store) writeScreenshot(name string, data []byte, ext string) (string, error) {
	if ext == "" {
		ext = "png"
	}
	fileName := name + "." + ext
	path := filepath.Join(s.shotsDir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot %s: %w", fileName, err)
	}
	return fileName, nil
}

// ScreenshotPath resolves a stored screenshot name to an absolute path,
// rejecting anything that would escape the screenshots directory.
func (s *Store) ScreenshotPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid screenshot name %q", name)
	}
	path := filepath.Join(s.shotsDir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("screenshot %s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("stat screenshot %s: %w", name, err)
	}
	return path, nil
}

// sanitizeName makes a test id safe to embed in a file name.
func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" || strings.Trim(out, "._") == "" {
		out = uuid.New().String()[:8]
	}
	return out
}

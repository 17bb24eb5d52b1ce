// Package storage keeps a history of analysis runs in SQLite.
//
// Each run stores its summary, every output series point by point and the
// per-file scalar series, so runs over different manifests or settings can
// be compared later without re-reading the logs.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/rewired-gh/rescatter/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrDuplicateRun is returned when a run ID is saved twice.
var ErrDuplicateRun = errors.New("run already stored")

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Storage is a SQLite-backed run history. It is safe for concurrent use.
type Storage struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// New opens (or creates) the database at path and applies migrations.
// The path ":memory:" opens a private in-memory database.
func New(path string) (*Storage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	memory := path == ":memory:"
	if !memory {
		path = filepath.Clean(path)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if memory {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database handle.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyMigrations runs every embedded migration not yet recorded, in file
// name order.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		content, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores a run summary together with its series and scalars.
func (s *Storage) SaveRun(ctx context.Context, summary models.RunSummary) error {
	if err := summary.Validate(); err != nil {
		return fmt.Errorf("invalid run summary: %w", err)
	}
	errs := summary.Errors
	if errs == nil {
		errs = map[string]string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (
		   id, analysis, channel, manifest,
		   files_listed, files_processed, files_skipped,
		   events, decays, rescattered, malformed_rows,
		   result, result_defined, errors, started_at, finished_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.Analysis, summary.Channel, summary.Manifest,
		summary.FilesListed, summary.FilesProcessed, summary.FilesSkipped,
		summary.Events, summary.Decays, summary.Rescattered, summary.MalformedRows,
		summary.Result, summary.ResultDefined, string(errJSON),
		toMillis(summary.StartedAt), toMillis(summary.FinishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, summary.ID)
		}
		return fmt.Errorf("insert run: %w", err)
	}

	for _, series := range summary.Series {
		if err := insertSeries(ctx, tx, summary.ID, series); err != nil {
			return err
		}
	}
	if err := insertScalars(ctx, tx, summary.ID, summary.Scalars); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSeries(ctx context.Context, tx *sql.Tx, runID string, series models.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("invalid series %s: %w", series.Name, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO series_points (run_id, name, idx, x, y) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, p := range series.Points {
		if _, err := stmt.ExecContext(ctx, runID, series.Name, i, p.X, p.Y); err != nil {
			return fmt.Errorf("insert point %d of %s: %w", i, series.Name, err)
		}
	}
	return nil
}

func insertScalars(ctx context.Context, tx *sql.Tx, runID string, values []float64) error {
	if len(values) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scalars (run_id, idx, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, v := range values {
		if _, err := stmt.ExecContext(ctx, runID, i, v); err != nil {
			return fmt.Errorf("insert scalar %d: %w", i, err)
		}
	}
	return nil
}

const runColumns = `id, analysis, channel, manifest,
	files_listed, files_processed, files_skipped,
	events, decays, rescattered, malformed_rows,
	result, result_defined, errors, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.RunSummary, error) {
	var (
		r                 models.RunSummary
		errJSON           string
		started, finished int64
	)
	if err := row.Scan(
		&r.ID, &r.Analysis, &r.Channel, &r.Manifest,
		&r.FilesListed, &r.FilesProcessed, &r.FilesSkipped,
		&r.Events, &r.Decays, &r.Rescattered, &r.MalformedRows,
		&r.Result, &r.ResultDefined, &errJSON, &started, &finished,
	); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(errJSON), &r.Errors); err != nil {
		return r, fmt.Errorf("decode run errors: %w", err)
	}
	if len(r.Errors) == 0 {
		r.Errors = nil
	}
	r.StartedAt = fromMillis(started)
	r.FinishedAt = fromMillis(finished)
	return r, nil
}

// GetRun returns a stored run with its series and scalars.
func (s *Storage) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if r.Series, err = s.GetSeries(ctx, id); err != nil {
		return nil, err
	}
	if r.Scalars, err = s.GetScalars(ctx, id); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetSeries returns the series of a run, sorted by name.
func (s *Storage) GetSeries(ctx context.Context, runID string) ([]models.Series, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, x, y FROM series_points WHERE run_id = ? ORDER BY name, idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var out []models.Series
	for rows.Next() {
		var name string
		var p models.Point
		if err := rows.Scan(&name, &p.X, &p.Y); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Name != name {
			out = append(out, models.Series{Name: name})
		}
		last := &out[len(out)-1]
		last.Points = append(last.Points, p)
	}
	return out, rows.Err()
}

// GetScalars returns the per-file scalar series of a run.
func (s *Storage) GetScalars(ctx context.Context, runID string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT value FROM scalars WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scalars: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListRuns returns the most recent runs first. An empty analysis lists
// every analysis; a non-positive limit means no limit.
func (s *Storage) ListRuns(ctx context.Context, analysis string, limit int) ([]models.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if analysis != "" {
		query += ` WHERE analysis = ?`
		args = append(args, analysis)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything stored with it.
func (s *Storage) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

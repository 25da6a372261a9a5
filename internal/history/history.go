// Package history records every run in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ivlev/chatreel/internal/pipeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("run not found")

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Run struct {
	ID            string     `json:"id"`
	Status        Status     `json:"status"`
	Stage         string     `json:"stage,omitempty"`
	Error         string     `json:"error,omitempty"`
	Script        string     `json:"script,omitempty"`
	Entries       int        `json:"entries"`
	SkippedFrames int        `json:"skipped_frames"`
	Frames        int        `json:"frames"`
	Total         float64    `json:"total"`
	Output        string     `json:"output,omitempty"`
	TimelinePath  string     `json:"timeline_path,omitempty"`
	AudioFallback bool       `json:"audio_fallback"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open creates the database if needed, applies migrations and marks runs left running by a
// previous process as failed.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to execute %s", pragma)
		}
	}

	s := &Store{conn: conn, logger: logger}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	if err := s.markInterrupted(); err != nil {
		logger.Warn("failed to mark interrupted runs", "error", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return errors.WithStack(err)
	}

	for _, m := range migrations {
		name := m.Name()
		if m.IsDir() || s.applied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration %s", name)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", name)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return errors.Wrapf(err, "failed to record migration %s", name)
		}
		s.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (s *Store) applied(name string) bool {
	var n int
	if err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&n); err != nil {
		return false
	}
	err := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&n)
	return err == nil && n == 1
}

func (s *Store) markInterrupted() error {
	_, err := s.conn.Exec(`UPDATE runs SET status = ?, error = 'interrupted by restart', finished_at = ? WHERE status = ?`,
		StatusFailed, formatTime(time.Now()), StatusRunning)
	return err
}

// RunStarted inserts a running record.
func (s *Store) RunStarted(ctx context.Context, runID, script string, started time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO runs (id, status, script, started_at) VALUES (?, ?, ?, ?)`,
		runID, StatusRunning, script, formatTime(started))
	return errors.Wrapf(err, "failed to insert run %s", runID)
}

// RunFinished stores the report and the outcome. runErr is nil for a successful run.
func (s *Store) RunFinished(ctx context.Context, rep *pipeline.Report, runErr error) error {
	status, stage, msg := StatusSucceeded, "", ""
	if runErr != nil {
		status, stage, msg = StatusFailed, string(pipeline.FailedStage(runErr)), runErr.Error()
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE runs SET status = ?, stage = ?, error = ?, entries = ?, skipped_frames = ?, frames = ?,
			total = ?, output = ?, timeline_path = ?, audio_fallback = ?, finished_at = ?
		WHERE id = ?`,
		status, stage, msg, rep.Entries, rep.SkippedFrames, rep.Frames,
		rep.Total, rep.Output, rep.TimelinePath, rep.AudioFallback, formatTime(time.Now()),
		rep.RunID)
	if err != nil {
		return errors.Wrapf(err, "failed to update run %s", rep.RunID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(ErrNotFound, rep.RunID)
	}
	return nil
}

const runColumns = `id, status, stage, error, script, entries, skipped_frames, frames, total, output,
	timeline_path, audio_fallback, started_at, finished_at`

func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return run, err
}

// List returns the most recent runs first.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, errors.WithStack(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                 Run
		started, finished string
	)
	err := sc.Scan(&r.ID, &r.Status, &r.Stage, &r.Error, &r.Script, &r.Entries, &r.SkippedFrames, &r.Frames,
		&r.Total, &r.Output, &r.TimelinePath, &r.AudioFallback, &started, &finished)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	r.StartedAt, _ = time.Parse(timeLayout, started)
	if finished != "" {
		if t, err := time.Parse(timeLayout, finished); err == nil {
			r.FinishedAt = &t
		}
	}
	return &r, nil
}

// timeLayout is fixed-width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

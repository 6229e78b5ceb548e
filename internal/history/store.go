// Package history persists a summary of every site build in a SQLite database so the
// `history` command can list recent builds and their issues.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"

	_ "modernc.org/sqlite"
)

// Issue is one report issue of a recorded build.
type Issue struct {
	Code     string
	Stage    string
	Severity string
	Message  string
}

// Entry is a recorded build.
type Entry struct {
	BuildID  string
	Start    time.Time
	End      time.Time
	Outcome  string
	Pages    int
	Warnings int
	Errors   int
	// Report is the JSON build report, kept verbatim.
	Report []byte
	Issues []Issue
}

// Duration is the wall time of the build.
func (e Entry) Duration() time.Duration { return e.End.Sub(e.Start) }

// Store records builds. It is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the database at path. ":memory:" gives a private in-memory
// store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "create history directory").
				WithContext("path", path).
				Build()
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "open history database").
			WithContext("path", path).
			Build()
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "initialize history schema").Build()
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		build_id TEXT PRIMARY KEY,
		started INTEGER NOT NULL,
		finished INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		pages INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		report BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started);
	CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL REFERENCES builds(build_id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		stage TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_issues_build_id ON issues(build_id);
	PRAGMA foreign_keys = ON;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores e and its issues in one transaction. Recording the same build id twice
// replaces the earlier row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.BuildID == "" {
		return ferrors.ValidationError("build id is required").Build()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryHistory, "begin transaction").Build()
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM issues WHERE build_id = ?", e.BuildID); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryHistory, "clear previous issues").Build()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO builds (build_id, started, finished, outcome, pages, warnings, errors, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BuildID, e.Start.UnixMilli(), e.End.UnixMilli(), e.Outcome, e.Pages, e.Warnings, e.Errors, e.Report,
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryHistory, "insert build").
			WithContext("build_id", e.BuildID).
			Build()
	}
	for _, is := range e.Issues {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO issues (build_id, code, stage, severity, message) VALUES (?, ?, ?, ?, ?)",
			e.BuildID, is.Code, is.Stage, is.Severity, is.Message,
		)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryHistory, "insert issue").
				WithContext("build_id", e.BuildID).
				Build()
		}
	}
	if err := tx.Commit(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryHistory, "commit build").Build()
	}
	return nil
}

// List returns the most recent builds, newest first, without issues or report. A
// non-positive limit returns every build.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT build_id, started, finished, outcome, pages, warnings, errors FROM builds ORDER BY started DESC, build_id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "query builds").Build()
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		if err := rows.Scan(&e.BuildID, &started, &finished, &e.Outcome, &e.Pages, &e.Warnings, &e.Errors); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "scan build").Build()
		}
		e.Start = time.UnixMilli(started)
		e.End = time.UnixMilli(finished)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "iterate builds").Build()
	}
	return out, nil
}

// Get returns one build with its issues and report.
func (s *Store) Get(ctx context.Context, buildID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e Entry
	var started, finished int64
	err := s.db.QueryRowContext(ctx,
		"SELECT build_id, started, finished, outcome, pages, warnings, errors, report FROM builds WHERE build_id = ?",
		buildID,
	).Scan(&e.BuildID, &started, &finished, &e.Outcome, &e.Pages, &e.Warnings, &e.Errors, &e.Report)
	if err == sql.ErrNoRows {
		return Entry{}, ferrors.NewError(ferrors.CategoryNotFound, fmt.Sprintf("build %s not found", buildID)).
			UserAction().
			Build()
	}
	if err != nil {
		return Entry{}, ferrors.WrapError(err, ferrors.CategoryHistory, "query build").Build()
	}
	e.Start = time.UnixMilli(started)
	e.End = time.UnixMilli(finished)

	rows, err := s.db.QueryContext(ctx,
		"SELECT code, stage, severity, message FROM issues WHERE build_id = ? ORDER BY id",
		buildID,
	)
	if err != nil {
		return Entry{}, ferrors.WrapError(err, ferrors.CategoryHistory, "query issues").Build()
	}
	defer rows.Close()
	for rows.Next() {
		var is Issue
		if err := rows.Scan(&is.Code, &is.Stage, &is.Severity, &is.Message); err != nil {
			return Entry{}, ferrors.WrapError(err, ferrors.CategoryHistory, "scan issue").Build()
		}
		e.Issues = append(e.Issues, is)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, ferrors.WrapError(err, ferrors.CategoryHistory, "iterate issues").Build()
	}
	return e, nil
}

// Prune deletes all but the newest keep builds and returns how many were removed. A
// non-positive keep removes nothing.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM builds WHERE build_id NOT IN (
			SELECT build_id FROM builds ORDER BY started DESC, build_id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryHistory, "prune builds").Build()
	}
	// Databases written before foreign keys were enabled keep orphaned issues.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE build_id NOT IN (SELECT build_id FROM builds)"); err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryHistory, "prune issues").Build()
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

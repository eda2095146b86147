// Package ledger persists the outcome of every class the enhancer has
// processed, so that a rerun over its own output can tell enhanced classes
// apart from fresh compiler output.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the recorded outcome for a class.
type Status string

const (
	StatusEnhanced Status = "enhanced"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Entry is one row of the enhancements table.
type Entry struct {
	Class     string
	InputSHA  string
	OutputSHA string
	Status    Status
	Reason    string
	RunID     string
	UpdatedAt time.Time
}

// Store is the SQLite-backed ledger.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	path   string
}

// Open opens or creates the ledger database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{conn: conn, logger: logger, path: path}
	if err := s.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	logger.Debug("ledger opened", "path", path)
	return s, nil
}

func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS enhancements (
			class TEXT PRIMARY KEY,
			input_sha TEXT NOT NULL,
			output_sha TEXT,
			status TEXT NOT NULL,
			reason TEXT,
			run_id TEXT,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_enhancements_output ON enhancements(output_sha);
		CREATE INDEX IF NOT EXISTS idx_enhancements_run ON enhancements(run_id);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Record inserts or replaces the entry for e.Class. A zero UpdatedAt is
// set to now. An enhanced entry is kept when e is a skip of that
// enhancement's own output, so the output stays recognisable on later
// runs.
func (s *Store) Record(e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO enhancements (class, input_sha, output_sha, status, reason, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(class) DO UPDATE SET
			input_sha = excluded.input_sha,
			output_sha = excluded.output_sha,
			status = excluded.status,
			reason = excluded.reason,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
		WHERE NOT (
			enhancements.status = 'enhanced'
			AND excluded.status = 'skipped'
			AND excluded.input_sha = enhancements.output_sha
		)
	`
	_, err := s.conn.Exec(query,
		e.Class,
		e.InputSHA,
		nullString(e.OutputSHA),
		string(e.Status),
		nullString(e.Reason),
		nullString(e.RunID),
		e.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.Class, err)
	}
	return nil
}

// Get returns the entry for class. ok is false when there is none.
func (s *Store) Get(class string) (Entry, bool, error) {
	row := s.conn.QueryRow(`
		SELECT class, input_sha, output_sha, status, reason, run_id, updated_at
		FROM enhancements WHERE class = ?
	`, class)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read %s: %w", class, err)
	}
	return e, true, nil
}

// IsEnhancedOutput reports whether digest is the recorded output of an
// enhancement of class.
func (s *Store) IsEnhancedOutput(class, digest string) (bool, error) {
	var n int
	err := s.conn.QueryRow(
		`SELECT COUNT(*) FROM enhancements WHERE class = ? AND status = ? AND output_sha = ?`,
		class, string(StatusEnhanced), digest,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", class, err)
	}
	return n > 0, nil
}

// ListRun returns the entries written by one run, ordered by class.
func (s *Store) ListRun(runID string) ([]Entry, error) {
	rows, err := s.conn.Query(`
		SELECT class, input_sha, output_sha, status, reason, run_id, updated_at
		FROM enhancements WHERE run_id = ? ORDER BY class
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                     Entry
		status, updated       string
		output, reason, runID sql.NullString
	)
	if err := row.Scan(&e.Class, &e.InputSHA, &output, &status, &reason, &runID, &updated); err != nil {
		return Entry{}, err
	}
	e.OutputSHA = output.String
	e.Status = Status(status)
	e.Reason = reason.String
	e.RunID = runID.String
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		e.UpdatedAt = t
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

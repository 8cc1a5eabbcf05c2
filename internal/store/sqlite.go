package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fortio.org/safecast"

	"github.com/scbrown/cwhy/internal/model"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// timeLayout is fixed width so timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath.
// It auto-creates the parent directory (e.g. ~/.cwhy/) and runs
// schema migrations to ensure the database is up to date.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for WAL mode simplicity.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate runs schema migrations up to the current version.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	var ver int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&ver)
	if err == sql.ErrNoRows {
		ver = 0
	} else if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if ver > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than this cwhy supports (%d)", ver, schemaVersion)
	}

	if ver < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) migrateV1() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id         TEXT PRIMARY KEY,
			timestamp  TEXT NOT NULL,
			subcommand TEXT NOT NULL,
			command    TEXT NOT NULL,
			exit_code  INTEGER NOT NULL,
			model      TEXT,
			prompt     TEXT NOT NULL,
			response   TEXT NOT NULL,
			cwd        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_subcommand ON entries(subcommand)`,
		`INSERT OR REPLACE INTO schema_version (version) VALUES (1)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}
	return nil
}

// RecordEntry persists a single explanation.
func (s *SQLiteStore) RecordEntry(ctx context.Context, e model.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, timestamp, subcommand, command, exit_code, model, prompt, response, cwd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(timeLayout),
		string(e.Subcommand),
		e.Command,
		e.ExitCode,
		nullableString(e.Model),
		e.Prompt,
		e.Response,
		nullableString(e.CWD),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

const entryColumns = "id, timestamp, subcommand, command, exit_code, model, prompt, response, cwd"

// ListEntries returns entries matching the given filter options.
func (s *SQLiteStore) ListEntries(ctx context.Context, opts ListOpts) ([]model.HistoryEntry, error) {
	query := "SELECT " + entryColumns + " FROM entries WHERE 1=1"
	var args []any

	if !opts.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}
	if opts.Subcommand != "" {
		query += " AND subcommand = ?"
		args = append(args, string(opts.Subcommand))
	}
	if opts.Model != "" {
		query += " AND model = ?"
		args = append(args, opts.Model)
	}
	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []model.HistoryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry returns the entry whose id equals or starts with id.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*model.HistoryEntry, error) {
	if id == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE id = ? OR substr(id, 1, ?) = ? ORDER BY id = ? DESC LIMIT 2",
		id, len(id), id, id)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	defer rows.Close()

	var found []model.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch {
	case len(found) == 0:
		return nil, nil
	case found[0].ID == id || len(found) == 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousID, id)
	}
}

// Stats returns summary statistics about stored entries.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&st.Total); err != nil {
		return st, fmt.Errorf("count entries: %w", err)
	}

	var err error
	st.TopModels, err = s.countBy(ctx,
		"SELECT model, COUNT(*) AS cnt FROM entries WHERE model IS NOT NULL AND model != '' GROUP BY model ORDER BY cnt DESC, model LIMIT 5")
	if err != nil {
		return st, fmt.Errorf("top models: %w", err)
	}
	st.BySubcommand, err = s.countBy(ctx,
		"SELECT subcommand, COUNT(*) AS cnt FROM entries GROUP BY subcommand ORDER BY cnt DESC, subcommand")
	if err != nil {
		return st, fmt.Errorf("count subcommands: %w", err)
	}

	if st.Total > 0 {
		var earliest, latest string
		if err := s.db.QueryRowContext(ctx,
			"SELECT MIN(timestamp), MAX(timestamp) FROM entries").Scan(&earliest, &latest); err != nil {
			return st, fmt.Errorf("date range: %w", err)
		}
		st.Earliest, _ = time.Parse(time.RFC3339Nano, earliest)
		st.Latest, _ = time.Parse(time.RFC3339Nano, latest)
	}
	return st, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, query string) ([]NameCount, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.HistoryEntry, error) {
	var e model.HistoryEntry
	var ts, sub string
	var exitCode int64
	var modelID, cwd sql.NullString
	if err := row.Scan(&e.ID, &ts, &sub, &e.Command, &exitCode, &modelID, &e.Prompt, &e.Response, &cwd); err != nil {
		return e, fmt.Errorf("scan entry: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return e, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	code, err := safecast.Conv[int](exitCode)
	if err != nil {
		return e, fmt.Errorf("entry %s: exit code: %w", e.ID, err)
	}
	e.Timestamp = t
	e.Subcommand = model.Subcommand(sub)
	e.ExitCode = code
	e.Model = modelID.String
	e.CWD = cwd.String
	return e, nil
}

// nullableString returns nil for empty strings, otherwise the string value.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

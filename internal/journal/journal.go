// Package journal persists a transfer history for ETL runs in an embedded
// SQLite database. One row per fetch/delete/upload operation, so a failed
// overnight run can be audited the next morning.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glennpai/graphetl/internal/etl"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// Transfer statuses.
const (
	statusOK    = "ok"
	statusError = "error"
)

// Entry is one journal row as read back by Recent.
type Entry struct {
	RunID      string
	Op         string
	RemotePath string
	Name       string
	Bytes      int64
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Journal is a SQLite-backed transfer journal. It implements etl.Recorder.
type Journal struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger

	insertStmt *sql.Stmt
	recentStmt *sql.Stmt
}

// Open opens (creating if necessary) the journal database at dbPath, applies
// migrations, and prepares statements. Use ":memory:" for tests. Every
// record written by this Journal shares one run ID, grouping the rows of a
// single process run.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening transfer journal", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: set WAL mode: %w", err)
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{
		db:     db,
		runID:  uuid.NewString(),
		logger: logger,
	}

	if err := j.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: prepare statements: %w", err)
	}

	return j, nil
}

func (j *Journal) prepareStatements(ctx context.Context) error {
	var err error

	j.insertStmt, err = j.db.PrepareContext(ctx, `
		INSERT INTO transfers (run_id, op, remote_path, name, bytes, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	j.recentStmt, err = j.db.PrepareContext(ctx, `
		SELECT run_id, op, remote_path, name, bytes, status, error, started_at, finished_at
		FROM transfers ORDER BY id DESC LIMIT ?`)

	return err
}

// RunID returns the identifier shared by all records of this process run.
func (j *Journal) RunID() string {
	return j.runID
}

// Record writes one transfer record. Implements etl.Recorder.
func (j *Journal) Record(ctx context.Context, rec etl.TransferRecord) error {
	status := statusOK
	errText := ""

	if rec.Err != nil {
		status = statusError
		errText = rec.Err.Error()
	}

	_, err := j.insertStmt.ExecContext(ctx,
		j.runID, rec.Op, rec.RemotePath, rec.Name, rec.Bytes, status, errText,
		rec.Started.UTC().Format(time.RFC3339Nano),
		rec.Finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: inserting transfer record: %w", err)
	}

	return nil
}

// Recent returns up to limit journal entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.recentStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: querying recent transfers: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e        Entry
			started  string
			finished string
		)

		if err := rows.Scan(&e.RunID, &e.Op, &e.RemotePath, &e.Name, &e.Bytes,
			&e.Status, &e.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("journal: scanning transfer row: %w", err)
		}

		e.StartedAt = parseStoredTime(started, j.logger)
		e.FinishedAt = parseStoredTime(finished, j.logger)

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating transfer rows: %w", err)
	}

	return entries, nil
}

// parseStoredTime parses an RFC3339Nano timestamp written by Record.
func parseStoredTime(raw string, logger *slog.Logger) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		logger.Warn("invalid timestamp in journal row", "raw", raw)
		return time.Time{}
	}

	return t
}

// Close releases prepared statements and the database handle.
func (j *Journal) Close() error {
	if j.insertStmt != nil {
		j.insertStmt.Close()
	}

	if j.recentStmt != nil {
		j.recentStmt.Close()
	}

	return j.db.Close()
}

// Package store provides SQLite-backed persistence for hivemind execution
// history and decision records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fentz26/hivemind/internal/models"
)

// Store provides access to the hivemind SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		description TEXT NOT NULL,
		task_type TEXT NOT NULL,
		branch_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		duration_seconds REAL,
		recorded_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_task_type ON history(task_type);
	CREATE INDEX IF NOT EXISTS idx_history_recorded_at ON history(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_pdr_task_id ON pdr(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- History Operations ---

// RecordExecution appends a history record.
func (s *Store) RecordExecution(ctx context.Context, rec models.HistoryRecord) error {
	var duration sql.NullFloat64
	if rec.DurationSeconds != nil {
		duration = sql.NullFloat64{Float64: *rec.DurationSeconds, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, task_id, description, task_type, branch_id, success, started_at, completed_at, duration_seconds, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.TaskID, rec.Description, rec.TaskType, rec.BranchID, rec.Success,
		nullTime(rec.StartedAt), nullTime(rec.CompletedAt), duration, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListHistory returns the most recent records, oldest first. A limit of zero
// or less returns all of them.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	query := `SELECT task_id, description, task_type, branch_id, success, started_at, completed_at, duration_seconds
		FROM history ORDER BY recorded_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var recs []models.HistoryRecord
	for rows.Next() {
		var (
			rec       models.HistoryRecord
			started   sql.NullTime
			completed sql.NullTime
			duration  sql.NullFloat64
		)
		if err := rows.Scan(&rec.TaskID, &rec.Description, &rec.TaskType, &rec.BranchID, &rec.Success, &started, &completed, &duration); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if started.Valid {
			t := started.Time.UTC()
			rec.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time.UTC()
			rec.CompletedAt = &t
		}
		if duration.Valid {
			d := duration.Float64
			rec.DurationSeconds = &d
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest first from the query, callers want append order.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// PruneHistory deletes records stored before the given time and returns how
// many were removed.
func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE recorded_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(ctx context.Context, action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error) {
	now := time.Now().UTC()
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.TaskID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns decision records, newest first, optionally for one task.
func (s *Store) ListPDR(ctx context.Context, taskID string, limit int) ([]models.PDREntry, error) {
	query := `SELECT id, action, inputs_hash, outcome, COALESCE(task_id, ''), COALESCE(details, ''), timestamp FROM pdr`
	args := []interface{}{}
	if taskID != "" {
		query += " WHERE task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &e.TaskID, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

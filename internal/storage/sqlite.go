package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/ledgerbench/pkg/types"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (creating if needed) the database at dbPath
// and runs migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode for better concurrent performance
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_reports (
		id TEXT PRIMARY KEY,
		name TEXT,
		started_at DATETIME NOT NULL,
		total_tasks INTEGER NOT NULL,
		concurrency_limit INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		peak_concurrency INTEGER DEFAULT 0,
		success_count INTEGER DEFAULT 0,
		failure_count INTEGER DEFAULT 0,
		attempts_total INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		error_kinds TEXT,
		aggregate_effect TEXT NOT NULL DEFAULT '0',
		initial_state TEXT NOT NULL DEFAULT '0',
		expected_state TEXT NOT NULL DEFAULT '0',
		final_observed_state TEXT NOT NULL DEFAULT '0',
		verified INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_run_reports_started ON run_reports(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveReport inserts a run report, assigning an ID if none is set.
func (s *SQLiteStorage) SaveReport(ctx context.Context, report *types.RunReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}

	kinds, err := json.Marshal(report.ErrorKinds)
	if err != nil {
		return fmt.Errorf("failed to marshal error kinds: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_reports (
			id, name, started_at, total_tasks, concurrency_limit, strategy,
			peak_concurrency, success_count, failure_count, attempts_total,
			duration_ms, error_kinds, aggregate_effect, initial_state,
			expected_state, final_observed_state, verified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Name, report.StartedAt, report.TotalTasks,
		report.ConcurrencyLimit, report.Strategy, report.PeakConcurrency,
		report.SuccessCount, report.FailureCount, report.AttemptsTotal,
		report.DurationMs, string(kinds), report.AggregateEffect,
		report.InitialState, report.ExpectedState, report.FinalObservedState,
		boolToInt(report.Verified),
	)
	if err != nil {
		return fmt.Errorf("failed to save run report: %w", err)
	}
	return nil
}

// GetReport returns the report with the given ID.
func (s *SQLiteStorage) GetReport(ctx context.Context, id string) (*types.RunReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, started_at, total_tasks, concurrency_limit, strategy,
		       peak_concurrency, success_count, failure_count, attempts_total,
		       duration_ms, error_kinds, aggregate_effect, initial_state,
		       expected_state, final_observed_state, verified
		FROM run_reports WHERE id = ?`, id)

	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run report: %w", err)
	}
	return report, nil
}

// ListReports returns reports newest first.
func (s *SQLiteStorage) ListReports(ctx context.Context, limit, offset int) ([]*types.RunReport, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, started_at, total_tasks, concurrency_limit, strategy,
		       peak_concurrency, success_count, failure_count, attempts_total,
		       duration_ms, error_kinds, aggregate_effect, initial_state,
		       expected_state, final_observed_state, verified
		FROM run_reports ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run reports: %w", err)
	}
	defer rows.Close()

	var reports []*types.RunReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// DeleteReport removes a report by ID.
func (s *SQLiteStorage) DeleteReport(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM run_reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*types.RunReport, error) {
	var report types.RunReport
	var name sql.NullString
	var kinds sql.NullString
	var verified int

	err := row.Scan(
		&report.ID, &name, &report.StartedAt, &report.TotalTasks,
		&report.ConcurrencyLimit, &report.Strategy, &report.PeakConcurrency,
		&report.SuccessCount, &report.FailureCount, &report.AttemptsTotal,
		&report.DurationMs, &kinds, &report.AggregateEffect,
		&report.InitialState, &report.ExpectedState,
		&report.FinalObservedState, &verified,
	)
	if err != nil {
		return nil, err
	}

	report.Name = name.String
	report.Verified = verified != 0
	if kinds.Valid && kinds.String != "" && kinds.String != "null" {
		if err := json.Unmarshal([]byte(kinds.String), &report.ErrorKinds); err != nil {
			slog.Warn("failed to unmarshal error kinds",
				"runID", report.ID,
				"error", err.Error())
		}
	}
	return &report, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

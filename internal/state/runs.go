package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = `id, status, counties_path, wards_path, target_crs, map_path,
	join_rows, fragments, clip_total, started_at, completed_at, error`

// CreateRun records a new run in the running state.
func (s *SQLiteStore) CreateRun(ctx context.Context, in RunInput) (*Run, error) {
	run := &Run{
		ID:           generateID(),
		Status:       RunStatusRunning,
		CountiesPath: in.CountiesPath,
		WardsPath:    in.WardsPath,
		TargetCRS:    in.TargetCRS,
		StartedAt:    s.now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, counties_path, wards_path, target_crs, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.CountiesPath, run.WardsPath, run.TargetCRS, formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Debug("run created", "id", run.ID)
	return run, nil
}

// CompleteRun marks a run completed and stores its per-county totals in one
// transaction.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, out Outcome) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, map_path = ?, join_rows = ?, fragments = ?,
		 clip_total = ?, completed_at = ? WHERE id = ?`,
		string(RunStatusCompleted), nullString(out.MapPath), out.JoinRows, out.Fragments,
		out.ClipTotal, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if err = requireRow(res, id); err != nil {
		return err
	}

	for _, c := range out.Counties {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO county_totals (run_id, county, population, wards, boundary_length)
			 VALUES (?, ?, ?, ?, ?)`,
			id, c.County, c.Population, c.Wards, c.BoundaryLength,
		)
		if err != nil {
			return fmt.Errorf("failed to store totals for %s: %w", c.County, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	s.logger.Debug("run completed", "id", id, "counties", len(out.Counties))
	return nil
}

// FailRun marks a run failed with the given cause.
func (s *SQLiteStore) FailRun(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(RunStatusFailed), formatTime(s.now()), msg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to fail run: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	s.logger.Debug("run failed", "id", id, "error", msg)
	return nil
}

// GetRun returns a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// CountyTotals returns the per-county totals stored for a run, ordered by
// county name.
func (s *SQLiteStore) CountyTotals(ctx context.Context, id string) ([]CountyTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT county, population, wards, boundary_length
		 FROM county_totals WHERE run_id = ? ORDER BY county`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query county totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var totals []CountyTotal
	for rows.Next() {
		var c CountyTotal
		if err := rows.Scan(&c.County, &c.Population, &c.Wards, &c.BoundaryLength); err != nil {
			return nil, fmt.Errorf("failed to scan county total: %w", err)
		}
		totals = append(totals, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query county totals: %w", err)
	}
	return totals, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run         Run
		status      string
		mapPath     sql.NullString
		startedAt   string
		completedAt sql.NullString
		errMsg      sql.NullString
	)
	if err := sc.Scan(
		&run.ID, &status, &run.CountiesPath, &run.WardsPath, &run.TargetCRS, &mapPath,
		&run.JoinRows, &run.Fragments, &run.ClipTotal, &startedAt, &completedAt, &errMsg,
	); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.MapPath = mapPath.String
	run.Error = errMsg.String

	t, err := parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	run.StartedAt = t
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ancpsim/internal/stoich"
	"github.com/roach88/ancpsim/internal/thermo"
)

const runColumns = `id, created_at, input_hash, chamber_pressure_bar, recipe, stoichiometry, result`

// GetRun returns the run with the given ID, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// FindConverged returns the most recent converged run with the given input
// hash, or ErrNotFound.
func (s *Store) FindConverged(ctx context.Context, inputHash string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE input_hash = ? AND status = 'converged'
		ORDER BY created_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, inputHash)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("find converged run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit summaries, newest first. A non-positive
// limit returns every run.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, propellant_name, chamber_pressure_bar,
		       status, error_code, t_flame_k, isp_delivered
		FROM runs
		ORDER BY created_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			sum     Summary
			created string
			status  string
		)
		if err := rows.Scan(&sum.ID, &created, &sum.PropellantName, &sum.ChamberPressureBar,
			&status, &sum.ErrorCode, &sum.TFlame, &sum.IspDelivered); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if sum.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		sum.Status = Status(status)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return summaries, nil
}

func scanRun(row *sql.Row) (*Run, error) {
	var (
		run                                 Run
		created, recipe, stoichJSON, result string
	)
	err := row.Scan(&run.ID, &created, &run.InputHash, &run.ChamberPressureBar, &recipe, &stoichJSON, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if run.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("recipe", recipe, &run.Recipe); err != nil {
		return nil, err
	}
	run.Stoichiometry = &stoich.Result{}
	if err := unmarshalJSON("stoichiometry", stoichJSON, run.Stoichiometry); err != nil {
		return nil, err
	}
	run.Result = &thermo.Result{}
	if err := unmarshalJSON("result", result, run.Result); err != nil {
		return nil, err
	}
	return &run, nil
}

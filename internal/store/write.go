package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ancpsim/internal/stoich"
)

// WriteRun inserts run and returns its ID. A missing ID or CreatedAt is
// filled in from the store's generator and clock.
func (s *Store) WriteRun(ctx context.Context, run *Run) (string, error) {
	if run.Result == nil {
		return "", errors.New("write run: nil result")
	}
	if run.InputHash == "" {
		return "", errors.New("write run: empty input hash")
	}
	if run.ID == "" {
		run.ID = s.ids.NewID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.clock()
	}

	recipeJSON, err := marshalJSON("recipe", run.Recipe)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}
	st := run.Stoichiometry
	if st == nil {
		st = &stoich.Result{}
	}
	stoichJSON, err := marshalJSON("stoichiometry", st)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}
	resultJSON, err := marshalJSON("result", run.Result)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, created_at, input_hash, propellant_name, chamber_pressure_bar,
		 status, error_code, t_flame_k, isp_delivered, recipe, stoichiometry, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		formatTime(run.CreatedAt),
		run.InputHash,
		run.Recipe.DisplayName(),
		run.ChamberPressureBar,
		string(run.Status()),
		string(run.Result.ErrorCode),
		run.Result.TFlame,
		run.Result.IspDelivered,
		recipeJSON,
		stoichJSON,
		resultJSON,
	)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	return run.ID, nil
}

package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/ancpsim/internal/config"
	"github.com/roach88/ancpsim/internal/propellant"
	"github.com/roach88/ancpsim/internal/simulate"
	"github.com/roach88/ancpsim/internal/store"
	"github.com/roach88/ancpsim/internal/testutil"
	"github.com/roach88/ancpsim/internal/thermo"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store with sequential run
// IDs and a stepping clock. Failed expectations and assertions are
// reported in the result; the returned error is reserved for scenarios
// that cannot be set up at all.
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewClock(time.Second)
	st, err := store.Open(":memory:",
		store.WithIDGenerator(testutil.NewSequenceIDGenerator("run")),
		store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	cfg, err := config.FromMap(scenario.Config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db := propellant.DefaultDatabase()
	if scenario.Ingredients != "" {
		db, err = propellant.LoadDatabase(scenario.Ingredients)
		if err != nil {
			return nil, fmt.Errorf("ingredients: %w", err)
		}
	}

	pc := scenario.ChamberPressureBar
	if pc == 0 {
		pc = thermo.DefaultChamberPressureBar
	}
	n := scenario.Evaluations
	if n == 0 {
		n = 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	result := NewResult()

	calc := thermo.NewCalculator(scenario.Solver.Build(), logger)
	calc.Observer = result
	calc.Now = testutil.NewClock(time.Millisecond).Now
	ev := &simulate.Evaluator{
		Calculator: calc,
		Store:      st,
		NoCache:    scenario.NoCache,
		Logger:     logger,
	}

	ctx := context.Background()
	for i := 0; i < n; i++ {
		rep, err := ev.Evaluate(ctx, simulate.Input{
			Recipe:             scenario.Recipe.Recipe(),
			Database:           db,
			Config:             &config.Loaded{Simulation: cfg},
			ChamberPressureBar: pc,
		})
		checkError(result, i, err, scenario.ExpectError)
		runID := ""
		if rep != nil {
			runID = rep.RunID
		}
		result.AddEvaluationTrace(evaluationOutcome(rep), runID)
		result.Reports = append(result.Reports, rep)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func checkError(result *Result, i int, err error, expect string) {
	switch {
	case err == nil && expect != "":
		result.AddError(fmt.Sprintf("evaluation %d: expected error containing %q, got none", i+1, expect))
	case err != nil && expect == "":
		result.AddError(fmt.Sprintf("evaluation %d: unexpected error: %v", i+1, err))
	case err != nil && !strings.Contains(err.Error(), expect):
		result.AddError(fmt.Sprintf("evaluation %d: expected error containing %q, got %q", i+1, expect, err.Error()))
	}
}

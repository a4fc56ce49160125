// Package simulate runs the full evaluation of one recipe: stoichiometry,
// the catalyst rule, equilibrium performance, and the optional run store
// and metrics around them.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/ancpsim/internal/canon"
	"github.com/roach88/ancpsim/internal/catalyst"
	"github.com/roach88/ancpsim/internal/config"
	"github.com/roach88/ancpsim/internal/diag"
	"github.com/roach88/ancpsim/internal/metrics"
	"github.com/roach88/ancpsim/internal/propellant"
	"github.com/roach88/ancpsim/internal/stoich"
	"github.com/roach88/ancpsim/internal/store"
	"github.com/roach88/ancpsim/internal/thermo"
)

// Input is one evaluation request.
type Input struct {
	Recipe             *propellant.Recipe
	Database           propellant.Database
	Config             *config.Loaded
	ChamberPressureBar float64
}

// Report is the outcome of an evaluation.
type Report struct {
	Recipe             propellant.Recipe    `json:"recipe"`
	ChamberPressureBar float64              `json:"chamber_pressure_bar"`
	Config             config.Simulation    `json:"config"`
	ConfigFile         string               `json:"config_file,omitempty"`
	Catalyst           *catalyst.Adjustment `json:"catalyst,omitempty"`
	Stoichiometry      *stoich.Result       `json:"stoichiometry"`
	Performance        *thermo.Result       `json:"performance"`

	// BurnRate is r = a·P^n at chamber pressure, mm/s, from the
	// post-catalyst configuration.
	BurnRate float64 `json:"burn_rate_mm_s"`

	InputHash string `json:"input_hash,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Cached    bool   `json:"cached,omitempty"`

	// Diagnostics merges configuration, stoichiometry, catalyst and
	// performance diagnostics in that order.
	Diagnostics diag.List `json:"diagnostics,omitempty"`
}

// Evaluator wires the calculator to optional persistence and metrics.
type Evaluator struct {
	Calculator *thermo.Calculator

	// Store, when set, records every run and serves cached results.
	Store   *store.Store
	NoCache bool

	// SolverID names the equilibrium backend and is part of the input
	// hash, so runs from another solver release are never served from cache.
	SolverID string

	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Evaluate runs in through the pipeline.
//
// Stoichiometry errors (unknown ingredient, malformed formula) abort the
// evaluation and are returned. Performance failures are not errors: they
// are carried in Report.Performance's error variant.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*Report, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if in.Recipe == nil {
		return nil, errors.New("simulate: nil recipe")
	}
	loaded := in.Config
	if loaded == nil {
		loaded = &config.Loaded{Simulation: config.Default()}
	}

	rep := &Report{
		Recipe:             *in.Recipe,
		ChamberPressureBar: in.ChamberPressureBar,
		ConfigFile:         loaded.File,
	}
	rep.Diagnostics = append(rep.Diagnostics, loaded.Diagnostics...)

	st, err := stoich.Calculate(in.Recipe.Composition, in.Database)
	if err != nil {
		return nil, fmt.Errorf("stoichiometry: %w", err)
	}
	rep.Stoichiometry = st
	rep.Diagnostics = append(rep.Diagnostics, st.Diagnostics...)

	cfg, adj := catalyst.Apply(in.Recipe.Composition, loaded.Simulation)
	rep.Config = cfg
	rep.Catalyst = adj
	if adj != nil {
		logger.Info("catalyst rule applied",
			"ingredient", adj.Ingredient,
			"percent", adj.Percent,
			"burn_rate_a", adj.After)
		rep.Diagnostics.Add(adj.Diagnostic())
	}
	rep.BurnRate = cfg.BurnRate.At(in.ChamberPressureBar / 10)

	if e.Store != nil {
		hash, err := canon.InputHash(canon.RunInput{
			Composition:        in.Recipe.Composition,
			Database:           in.Database,
			Config:             cfg,
			ChamberPressureBar: in.ChamberPressureBar,
			Catalog:            e.Calculator.Catalog,
			Policy:             e.Calculator.Policy,
			Solver:             e.SolverID,
		})
		if err != nil {
			return nil, err
		}
		rep.InputHash = hash

		if !e.NoCache {
			cached, err := e.Store.FindConverged(ctx, hash)
			switch {
			case err == nil:
				logger.Info("using cached result", "run_id", cached.ID, "input_hash", hash)
				rep.Performance = cached.Result
				rep.RunID = cached.ID
				rep.Cached = true
				rep.Diagnostics = append(rep.Diagnostics, cached.Result.Diagnostics...)
				rep.Diagnostics.Add(diag.Info(diag.CodeCachedResult, nil,
					"performance served from stored run %s", cached.ID))
				if e.Metrics != nil {
					e.Metrics.ObserveEvaluation(rep.Performance, true)
				}
				return rep, nil
			case !errors.Is(err, store.ErrNotFound):
				return nil, err
			}
		}
	}

	calc := *e.Calculator
	if e.Metrics != nil {
		calc.Observer = e.Metrics
	}
	perf := calc.Calculate(ctx, in.Recipe.Composition, in.Database, cfg, in.ChamberPressureBar)
	rep.Performance = perf
	rep.Diagnostics = append(rep.Diagnostics, perf.Diagnostics...)
	if e.Metrics != nil {
		e.Metrics.ObserveEvaluation(perf, false)
	}

	if e.Store != nil {
		id, err := e.Store.WriteRun(ctx, &store.Run{
			InputHash:          rep.InputHash,
			Recipe:             rep.Recipe,
			ChamberPressureBar: in.ChamberPressureBar,
			Stoichiometry:      st,
			Result:             perf,
		})
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		rep.RunID = id
	}

	return rep, nil
}

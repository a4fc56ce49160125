package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ancpsim/internal/config"
	"github.com/roach88/ancpsim/internal/equilibrium"
	"github.com/roach88/ancpsim/internal/equilibrium/cantera"
	"github.com/roach88/ancpsim/internal/metrics"
	"github.com/roach88/ancpsim/internal/propellant"
	"github.com/roach88/ancpsim/internal/simulate"
	"github.com/roach88/ancpsim/internal/store"
	"github.com/roach88/ancpsim/internal/thermo"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Config      string
	Pressure    float64
	Ingredients string
	Catalog     string
	Python      string
	Database    string
	NoCache     bool
	MetricsOut  string

	// Solver overrides the Cantera subprocess solver (for testing).
	Solver equilibrium.Solver
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	return newSimulateCommand(&SimulateOptions{RootOptions: rootOpts})
}

func newSimulateCommand(opts *SimulateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <recipe-file>",
		Short: "Evaluate a propellant recipe",
		Long: `Evaluate a propellant recipe: stoichiometry, the ferric-oxide catalyst
rule, equilibrium flame temperature and ideal and delivered specific impulse.

The equilibrium solve runs the Cantera toolkit through a Python interpreter.
With --db every run is recorded, and a converged run with identical inputs is
reused unless --no-cache is given.

Exit codes:
  0 - Evaluation converged
  1 - Performance calculation failed
  2 - Command error (missing or invalid input files)

Examples:
  ancp simulate recipe.json
  ancp simulate recipe.json --config config.ini --pc 50
  ancp simulate recipe.json --db runs.db --metrics-out ancp.prom
  ancp simulate recipe.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "config.ini", "configuration file (INI, YAML, TOML or JSON)")
	cmd.Flags().Float64Var(&opts.Pressure, "pc", thermo.DefaultChamberPressureBar, "chamber pressure in bar")
	cmd.Flags().StringVar(&opts.Ingredients, "ingredients", "", "ingredient database file (default: bundled database)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "product species catalog file (default: bundled catalog)")
	cmd.Flags().StringVar(&opts.Python, "python", cantera.DefaultPython, "Python interpreter with Cantera installed")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite run store")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "always recompute, even when a stored run matches")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus metrics to this file")

	return cmd
}

func runSimulate(opts *SimulateOptions, recipePath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	loaded, err := config.Load(opts.Config)
	if err != nil {
		return f.Fail(ExitCommandError, classify(err), "failed to load configuration", err, nil)
	}
	if loaded.File != "" {
		logger.Info("configuration loaded", "file", loaded.File)
	}
	for _, kv := range loaded.Simulation.Settings() {
		logger.Debug("setting", "key", kv[0], "value", kv[1])
	}

	db, err := loadDatabase(opts.Ingredients)
	if err != nil {
		return f.Fail(ExitCommandError, classify(err), "failed to load ingredient database", err, details(err))
	}

	recipe, err := propellant.LoadRecipe(recipePath)
	if err != nil {
		return f.Fail(ExitCommandError, classify(err), "failed to load recipe", err, details(err))
	}

	catalog := equilibrium.DefaultCatalog()
	if opts.Catalog != "" {
		catalog, err = equilibrium.LoadCatalog(opts.Catalog)
		if err != nil {
			return f.Fail(ExitCommandError, classify(err), "failed to load species catalog", err, nil)
		}
	}

	solver := opts.Solver
	var identify func(context.Context) string
	if solver == nil {
		cs := cantera.New(opts.Python, logger)
		solver, identify = cs, cs.Identity
	}
	calc := thermo.NewCalculator(solver, logger)
	calc.Catalog = catalog

	ev := &simulate.Evaluator{Calculator: calc, NoCache: opts.NoCache, Logger: logger}
	if opts.Database != "" {
		if identify != nil {
			ev.SolverID = identify(commandContext(cmd))
		}
		st, err := store.Open(opts.Database)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to open run store", err, nil)
		}
		defer st.Close()
		ev.Store = st
	}
	if opts.MetricsOut != "" {
		ev.Metrics = metrics.New()
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("evaluating recipe", "recipe", recipe.DisplayName(), "pc_bar", opts.Pressure)
	rep, err := ev.Evaluate(ctx, simulate.Input{
		Recipe:             recipe,
		Database:           db,
		Config:             loaded,
		ChamberPressureBar: opts.Pressure,
	})
	if err != nil {
		return f.Fail(ExitCommandError, classify(err), "evaluation failed", err, nil)
	}
	rep.Diagnostics.Log(logger)

	if ev.Metrics != nil {
		if err := ev.Metrics.WriteFile(opts.MetricsOut); err != nil {
			logger.Warn("failed to write metrics", "path", opts.MetricsOut, "error", err)
		}
	}

	if !f.JSON() {
		if err := renderSimulate(f.Writer, simulateInputs{RecipeFile: recipePath}, rep); err != nil {
			return err
		}
		return performanceError(rep.Performance)
	}

	if !rep.Performance.Failed() {
		return f.Success(rep)
	}
	// The report still carries stoichiometry and the stage attempts.
	if err := f.encode(CLIResponse{
		Status: "error",
		Data:   rep,
		Error: &CLIError{
			Code:    ErrCodePerformance,
			Message: rep.Performance.Err().Error(),
		},
	}); err != nil {
		return err
	}
	return performanceError(rep.Performance)
}

func loadDatabase(path string) (propellant.Database, error) {
	if path == "" {
		return propellant.DefaultDatabase(), nil
	}
	return propellant.LoadDatabase(path)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

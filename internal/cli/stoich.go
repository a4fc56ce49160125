package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ancpsim/internal/propellant"
	"github.com/roach88/ancpsim/internal/stoich"
)

// StoichOptions holds flags for the stoich command.
type StoichOptions struct {
	*RootOptions
	Ingredients string
}

// StoichOutput is the JSON payload of the stoich command.
type StoichOutput struct {
	PropellantName string         `json:"propellant_name"`
	Stoichiometry  *stoich.Result `json:"stoichiometry"`
}

// NewStoichCommand creates the stoich command.
func NewStoichCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoichOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stoich <recipe-file>",
		Short: "Compute recipe stoichiometry only",
		Long: `Compute elemental moles per 100 g, reactant enthalpy and oxygen balance
of a recipe without running the equilibrium solver.

Examples:
  ancp stoich recipe.json
  ancp stoich recipe.yaml --ingredients my-ingredients.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoich(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ingredients, "ingredients", "", "ingredient database file (default: bundled database)")

	return cmd
}

func runStoich(opts *StoichOptions, recipePath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	db, err := loadDatabase(opts.Ingredients)
	if err != nil {
		return f.Fail(ExitCommandError, classify(err), "failed to load ingredient database", err, details(err))
	}
	recipe, err := propellant.LoadRecipe(recipePath)
	if err != nil {
		return f.Fail(ExitCommandError, classify(err), "failed to load recipe", err, details(err))
	}

	res, err := stoich.Calculate(recipe.Composition, db)
	if err != nil {
		return f.Fail(ExitCommandError, classify(err), "stoichiometry failed", err, nil)
	}

	if f.JSON() {
		return f.Success(StoichOutput{PropellantName: recipe.DisplayName(), Stoichiometry: res})
	}
	return renderStoich(f.Writer, recipe.DisplayName(), res)
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ancpsim/internal/formula"
)

// FormulaOutput is one parsed formula.
type FormulaOutput struct {
	Formula  string         `json:"formula"`
	Elements formula.Counts `json:"elements"`
}

// NewFormulaCommand creates the formula command.
func NewFormulaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "formula <formula>...",
		Short: "Count the atoms in chemical formulas",
		Long: `Parse chemical formulas into element counts. Parenthesized groups with
multipliers are expanded, e.g. Ca(OH)2 gives Ca 1, H 2, O 2.

Examples:
  ancp formula NH4NO3
  ancp formula "C57H104O9" "(NH4)2SO4" --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormula(rootOpts, args, cmd)
		},
	}
}

func runFormula(opts *RootOptions, formulas []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	out := make([]FormulaOutput, 0, len(formulas))
	for _, s := range formulas {
		counts, err := formula.Parse(s)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeMalformedFormula, "invalid formula", err, nil)
		}
		out = append(out, FormulaOutput{Formula: s, Elements: counts})
	}

	if f.JSON() {
		return f.Success(out)
	}
	for _, o := range out {
		parts := make([]string, 0, len(o.Elements))
		for _, el := range o.Elements.Elements() {
			parts = append(parts, fmt.Sprintf("%s %d", el, o.Elements[el]))
		}
		fmt.Fprintf(f.Writer, "%s: %s\n", o.Formula, strings.Join(parts, ", "))
	}
	return nil
}

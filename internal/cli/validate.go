package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ancpsim/internal/propellant"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kind string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	File   string             `json:"file"`
	Kind   string             `json:"kind"`
	Valid  bool               `json:"valid"`
	Issues []propellant.Issue `json:"issues,omitempty"`
}

var validateKinds = map[string]string{
	"recipe":      propellant.KindRecipe,
	"ingredients": propellant.KindDatabase,
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a recipe or ingredient database file",
		Long: `Check a JSON or YAML file against the recipe or ingredient database
schema without evaluating it. Every violation is reported with its
position in the file.

Exit codes:
  0 - File is valid
  1 - File content violates the schema
  2 - Command error (unreadable file, unknown kind)

Examples:
  ancp validate recipe.json
  ancp validate ingredients.yaml --kind ingredients --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "recipe", "document kind (recipe|ingredients)")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	def, ok := validateKinds[opts.Kind]
	if !ok {
		return f.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("invalid kind %q: must be recipe or ingredients", opts.Kind), nil, nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return f.Fail(ExitCommandError, classify(err), "failed to read file", err, nil)
	}
	f.VerboseLog("Validating %s as %s (%d bytes)", path, opts.Kind, len(data))

	_, err = propellant.Validate(path, data, def)
	var verr *propellant.ValidationError
	switch {
	case errors.As(err, &verr):
		return outputValidationIssues(f, path, opts.Kind, verr)
	case err != nil:
		return f.Fail(ExitCommandError, ErrCodeGeneric, "validation failed", err, nil)
	}

	if f.JSON() {
		return f.Success(ValidationResult{File: path, Kind: opts.Kind, Valid: true})
	}
	fmt.Fprintf(f.Writer, "✓ %s is a valid %s file\n", path, opts.Kind)
	return nil
}

func outputValidationIssues(f *OutputFormatter, path, kind string, verr *propellant.ValidationError) error {
	msg := fmt.Sprintf("%s is not a valid %s file: %d issue(s)", path, kind, len(verr.Issues))
	if f.JSON() {
		if err := f.Error(ErrCodeInvalidFile, msg, verr.Issues); err != nil {
			return err
		}
		return reported(ExitFailure, msg)
	}

	fmt.Fprintf(f.Writer, "✗ %s\n", msg)
	for _, issue := range verr.Issues {
		loc := path
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", path, issue.Line, issue.Column)
		}
		if issue.Path != "" {
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n", loc, issue.Path, issue.Message)
			continue
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n", loc, issue.Message)
	}
	return reported(ExitFailure, msg)
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ancpsim/internal/equilibrium/cantera"
)

// Version is the build version, set with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// VersionInfo is the JSON payload of the version command.
type VersionInfo struct {
	Version string `json:"version"`
	Cantera string `json:"cantera"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	var python string

	cmd := &cobra.Command{
		Use:           "version",
		Short:         "Print version information",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			logger := newLogger(rootOpts, cmd.ErrOrStderr())

			ctx, cancel := context.WithTimeout(commandContext(cmd), 30*time.Second)
			defer cancel()

			info := VersionInfo{Version: Version, Cantera: "unavailable"}
			if v, err := cantera.New(python, logger).Version(ctx); err == nil {
				info.Cantera = v
			} else {
				logger.Debug("cantera version lookup failed", "error", err)
			}

			if f.JSON() {
				return f.Success(info)
			}
			fmt.Fprintf(f.Writer, "ancp %s (cantera %s)\n", info.Version, info.Cantera)
			return nil
		},
	}

	cmd.Flags().StringVar(&python, "python", cantera.DefaultPython, "python interpreter with cantera installed")

	return cmd
}

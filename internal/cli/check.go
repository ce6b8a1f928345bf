package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Config string
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a config file",
		Long: `Validate a config file against the schema and print the effective
configuration, defaults filled in.

Example:
  kith check --config kith.yaml
  kith check --config kith.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to config file (empty prints the stock config)")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "config invalid", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(cfg)
	}

	fmt.Fprintln(formatter.Writer, "✓ Config valid")
	fmt.Fprintln(formatter.Writer)
	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render config", err)
	}
	_, _ = formatter.Writer.Write(encoded)
	return nil
}

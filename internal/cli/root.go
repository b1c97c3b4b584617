// Package cli implements the qa command line: `qa check` runs the
// invariant catalog, `qa fuzz` runs randomized staking contracts.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gztensor/qa-automation/internal/config"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// Logger builds the process logger honoring the verbosity flag.
func (o *RootOptions) Logger() *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// LoadConfig loads the configuration named by the global flag.
func (o *RootOptions) LoadConfig() (*config.Config, error) {
	return config.Load(o.ConfigPath)
}

// NewRootCommand creates the root command for the qa CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "qa",
		Short:        "Property-based verification harness for a delegated-stake ledger",
		Long:         "qa verifies ledger storage invariants and fuzzes staking operations\nthrough contract pipelines with randomized parameters.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "qa.yaml", "configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewFuzzCommand(opts))

	return cmd
}

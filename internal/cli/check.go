package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gztensor/qa-automation/internal/chain"
	"github.com/gztensor/qa-automation/internal/invariant"
	"github.com/gztensor/qa-automation/internal/scanner"
	"github.com/gztensor/qa-automation/internal/subtensor"
)

// NewCheckCommand creates the `qa check` command: run the full invariant
// catalog against the configured chain and render the report. Exits
// non-zero when any rule found violations or failed.
func NewCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the invariant catalog against the configured chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.LocalChain == "" {
				return fmt.Errorf("no chain configured: set local_chain in %s", opts.ConfigPath)
			}

			lc, err := chain.OpenLocal(cfg.LocalChain)
			if err != nil {
				return err
			}
			defer lc.Close()

			log := opts.Logger()
			src := invariant.NewSource(lc,
				scanner.WithPageSize(cfg.PageSize),
				scanner.WithLogger(log),
			)
			engine := invariant.NewEngine(src, log)
			if err := subtensor.RegisterRules(engine, subtensor.RuleConfig{
				ConservationDivisor: cfg.Tolerances.ConservationDivisor,
				LiquidityTolerance:  cfg.Tolerances.LiquidityRel,
			}); err != nil {
				return err
			}

			report, err := engine.RunAll(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), invariant.RenderReport(report))
			if !report.Passed() {
				return fmt.Errorf("invariant check failed: %d violations", report.TotalViolations())
			}
			return nil
		},
	}
}

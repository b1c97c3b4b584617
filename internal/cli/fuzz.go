package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gztensor/qa-automation/internal/chain"
	"github.com/gztensor/qa-automation/internal/config"
	"github.com/gztensor/qa-automation/internal/contract"
	"github.com/gztensor/qa-automation/internal/journal"
	"github.com/gztensor/qa-automation/internal/sampler"
	"github.com/gztensor/qa-automation/internal/scanner"
	"github.com/gztensor/qa-automation/internal/subtensor"
)

// bootstrap genesis used when fuzzing starts on an empty local chain.
var bootstrapNetuids = []string{"1", "2"}

const bootstrapBalance = 1_000_000_000

// NewFuzzCommand creates the `qa fuzz` command: randomized contract runs
// against a local chain, journaled one line per run.
func NewFuzzCommand(opts *RootOptions) *cobra.Command {
	var (
		runs  int
		seed  uint64
		local bool
	)

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run randomized staking contracts against a local chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if !local {
				return fmt.Errorf("remote transport is not configured; run with --local")
			}
			if cfg.LocalChain == "" {
				return fmt.Errorf("no chain configured: set local_chain in %s", opts.ConfigPath)
			}
			if cmd.Flags().Changed("runs") {
				cfg.Runs = runs
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			return fuzz(cmd, opts, cfg)
		},
	}

	cmd.Flags().IntVar(&runs, "runs", config.DefaultRuns, "number of contract runs")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (reproducible runs)")
	cmd.Flags().BoolVar(&local, "local", false, "fuzz against the configured local chain")
	return cmd
}

func fuzz(cmd *cobra.Command, opts *RootOptions, cfg *config.Config) error {
	ctx := cmd.Context()
	log := opts.Logger()

	lc, err := chain.OpenLocal(cfg.LocalChain)
	if err != nil {
		return err
	}
	defer lc.Close()
	if err := subtensor.RegisterStakeOps(lc); err != nil {
		return err
	}

	actors, err := buildActors(cfg)
	if err != nil {
		return err
	}
	if err := bootstrapIfEmpty(ctx, lc, actors, log); err != nil {
		return err
	}

	jnl, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}
	defer jnl.Close()

	smp := sampler.New(cfg.Seed)
	runner := contract.NewRunner(smp,
		contract.WithLogger(log),
		contract.WithJournal(jnl),
	)

	selectors, err := buildSelectors(cfg, lc, actors, log)
	if err != nil {
		return err
	}

	log.Info("fuzz start", "runs", cfg.Runs, "seed", cfg.Seed, "actors", len(actors))

	var passed, failed, skipped int
	for i := 0; i < cfg.Runs; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		sel := selectors[smp.IntN(len(selectors))]
		c, err := sel.Pick(smp)
		if err != nil {
			return err
		}

		run, err := runner.Run(ctx, c)
		if err != nil {
			return err
		}
		switch {
		case run.Skipped:
			skipped++
		case run.Passed():
			passed++
		default:
			failed++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "fuzz done: %d passed, %d failed, %d skipped (seed %d)\n",
		passed, failed, skipped, cfg.Seed)
	if failed > 0 {
		return fmt.Errorf("%d contract runs failed; see %s", failed, cfg.Journal)
	}
	return nil
}

func buildActors(cfg *config.Config) ([]subtensor.Actor, error) {
	specs := make([]subtensor.ActorSpec, len(cfg.Actors))
	for i, a := range cfg.Actors {
		specs[i] = subtensor.ActorSpec{
			Name:        a.Name,
			ColdkeySeed: a.ColdkeySeed,
			HotkeySeed:  a.HotkeySeed,
		}
	}
	if len(specs) == 0 {
		specs = []subtensor.ActorSpec{
			{Name: "alice", ColdkeySeed: "//alice-cold", HotkeySeed: "//alice-hot"},
			{Name: "bob", ColdkeySeed: "//bob-cold", HotkeySeed: "//bob-hot"},
		}
	}
	return subtensor.BuildActors(specs)
}

// bootstrapIfEmpty seeds genesis state when the chain has no subnets, so
// a first fuzz run does not skip every contract.
func bootstrapIfEmpty(ctx context.Context, lc *chain.LocalChain, actors []subtensor.Actor, log *slog.Logger) error {
	_, _, done, err := lc.ScanPage(ctx, subtensor.MapNetworksAdded, nil, chain.Start, 1)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	log.Info("empty chain, seeding genesis",
		"netuids", bootstrapNetuids, "balance", bootstrapBalance)
	g := subtensor.Genesis{
		Netuids: bootstrapNetuids,
		Actors:  actors,
		Balance: bootstrapBalance,
	}
	return g.Seed(ctx, lc)
}

// buildSelectors creates one weighted contract selector per actor, with
// weights from config (both contracts at weight 1 when unconfigured).
func buildSelectors(cfg *config.Config, lc *chain.LocalChain, actors []subtensor.Actor, log *slog.Logger) ([]*contract.Selector, error) {
	weights := map[string]float64{
		subtensor.OpAddStake:    1,
		subtensor.OpRemoveStake: 1,
	}
	if len(cfg.Contracts) > 0 {
		weights = map[string]float64{}
		for _, cw := range cfg.Contracts {
			weights[cw.Name] = cw.Weight
		}
	}

	selectors := make([]*contract.Selector, 0, len(actors))
	for _, a := range actors {
		deps := subtensor.StakeDeps{
			Querier:   lc,
			Submitter: lc,
			Scan:      scanner.New(lc, scanner.WithPageSize(cfg.PageSize), scanner.WithLogger(log)),
			Actor:     a,
		}
		sel := contract.NewSelector()
		if w, ok := weights[subtensor.OpAddStake]; ok {
			if err := sel.Add(w, &subtensor.AddStake{Deps: deps}); err != nil {
				return nil, err
			}
		}
		if w, ok := weights[subtensor.OpRemoveStake]; ok {
			if err := sel.Add(w, &subtensor.RemoveStake{Deps: deps}); err != nil {
				return nil, err
			}
		}
		if len(sel.Names()) == 0 {
			return nil, fmt.Errorf("no contracts enabled in config")
		}
		selectors = append(selectors, sel)
	}
	return selectors, nil
}

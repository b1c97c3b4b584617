package subtensor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gztensor/qa-automation/internal/chain"
	"github.com/gztensor/qa-automation/internal/contract"
	"github.com/gztensor/qa-automation/internal/sampler"
	"github.com/gztensor/qa-automation/internal/scanner"
)

func testChain(t *testing.T, netuids ...string) (*chain.LocalChain, []Actor) {
	t.Helper()

	lc, err := chain.OpenLocal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { lc.Close() })
	require.NoError(t, RegisterStakeOps(lc))

	actors, err := BuildActors([]ActorSpec{
		{Name: "alice", ColdkeySeed: "//alice-cold", HotkeySeed: "//alice-hot"},
		{Name: "bob", ColdkeySeed: "//bob-cold", HotkeySeed: "//bob-hot"},
	})
	require.NoError(t, err)

	g := Genesis{Netuids: netuids, Actors: actors, Balance: 1_000_000}
	require.NoError(t, g.Seed(context.Background(), lc))
	return lc, actors
}

func stakeDeps(lc *chain.LocalChain, actor Actor) StakeDeps {
	return StakeDeps{
		Querier:   lc,
		Submitter: lc,
		Scan:      scanner.New(lc, scanner.WithLogger(discardLogger())),
		Actor:     actor,
	}
}

func TestAddStake_Submit(t *testing.T) {
	ctx := context.Background()
	lc, actors := testChain(t, "1")
	alice := actors[0]

	receipt, err := lc.Submit(ctx, OpAddStake, map[string]string{
		"netuid": "1",
		"hotkey": string(alice.Hotkey),
		"amount": "250000",
	}, alice.Coldkey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Block)

	balance, err := lc.ReadField(ctx, MapAccount, chain.Key{string(alice.Coldkey)})
	require.NoError(t, err)
	assert.Equal(t, "750000", balance)

	share, err := lc.ReadField(ctx, MapAlpha, chain.Key{string(alice.Hotkey), string(alice.Coldkey), "1"})
	require.NoError(t, err)
	assert.Equal(t, "250000", share)

	total, err := lc.ReadField(ctx, MapTotalHotkeyShares, chain.Key{string(alice.Hotkey), "1"})
	require.NoError(t, err)
	assert.Equal(t, "250000", total)
}

func TestAddStake_Faults(t *testing.T) {
	ctx := context.Background()
	lc, actors := testChain(t, "1")
	alice := actors[0]

	cases := []struct {
		name string
		args map[string]string
		code string
	}{
		{
			"insufficient balance",
			map[string]string{"netuid": "1", "hotkey": string(alice.Hotkey), "amount": "2000000"},
			FaultNotEnoughBalance,
		},
		{
			"unknown subnet",
			map[string]string{"netuid": "9", "hotkey": string(alice.Hotkey), "amount": "10"},
			FaultSubnetNotExists,
		},
		{
			"unregistered hotkey",
			map[string]string{"netuid": "1", "hotkey": "nobody", "amount": "10"},
			FaultHotkeyNotRegistered,
		},
		{
			"zero amount",
			map[string]string{"netuid": "1", "hotkey": string(alice.Hotkey), "amount": "0"},
			FaultInvalidAmount,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lc.Submit(ctx, OpAddStake, tc.args, alice.Coldkey)
			require.Error(t, err)
			fault, ok := chain.AsFault(err)
			require.True(t, ok)
			assert.Equal(t, ModuleName, fault.Module)
			assert.Equal(t, tc.code, fault.Code)
		})
	}

	// Rejections roll back: balance untouched.
	balance, err := lc.ReadField(ctx, MapAccount, chain.Key{string(alice.Coldkey)})
	require.NoError(t, err)
	assert.Equal(t, "1000000", balance)
}

func TestRemoveStake_FaultWithoutStake(t *testing.T) {
	ctx := context.Background()
	lc, actors := testChain(t, "1")
	alice := actors[0]

	_, err := lc.Submit(ctx, OpRemoveStake, map[string]string{
		"netuid": "1",
		"hotkey": string(alice.Hotkey),
		"amount": "10",
	}, alice.Coldkey)
	require.Error(t, err)
	fault, ok := chain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, FaultNotEnoughStake, fault.Code)
}

func TestStakeContracts_EndToEnd(t *testing.T) {
	ctx := context.Background()
	lc, actors := testChain(t, "1")
	alice := actors[0]
	deps := stakeDeps(lc, alice)

	runner := contract.NewRunner(sampler.New(99), contract.WithLogger(discardLogger()))

	add := &AddStake{Deps: deps}
	run, err := runner.Run(ctx, add)
	require.NoError(t, err)
	require.True(t, run.Passed(), "run err: %v", run.Err)
	assert.Equal(t, "1", run.Params.Get("netuid"))

	remove := &RemoveStake{Deps: deps}
	run, err = runner.Run(ctx, remove)
	require.NoError(t, err)
	require.True(t, run.Passed(), "run err: %v", run.Err)

	// The whole invariant catalog holds after the contract runs.
	report, err := newEngine(t, lc).RunAll(ctx)
	require.NoError(t, err)
	assert.True(t, report.Passed())
}

func TestRemoveStake_SkipsWithoutStake(t *testing.T) {
	ctx := context.Background()
	lc, actors := testChain(t, "1")
	bob := actors[1]

	runner := contract.NewRunner(sampler.New(5), contract.WithLogger(discardLogger()))
	run, err := runner.Run(ctx, &RemoveStake{Deps: stakeDeps(lc, bob)})
	require.NoError(t, err)
	assert.True(t, run.Skipped)
}

func TestStakeContracts_ManyRunsConserve(t *testing.T) {
	ctx := context.Background()
	lc, actors := testChain(t, "1", "2")
	runner := contract.NewRunner(sampler.New(2024), contract.WithLogger(discardLogger()))

	for i := 0; i < 20; i++ {
		for _, a := range actors {
			deps := stakeDeps(lc, a)
			for _, c := range []contract.Contract{&AddStake{Deps: deps}, &RemoveStake{Deps: deps}} {
				run, err := runner.Run(ctx, c)
				require.NoError(t, err)
				if !run.Skipped {
					require.True(t, run.Passed(), "contract %s run err: %v", run.Contract, run.Err)
				}
			}
		}
	}

	report, err := newEngine(t, lc).RunAll(ctx)
	require.NoError(t, err)
	assert.True(t, report.Passed())
}

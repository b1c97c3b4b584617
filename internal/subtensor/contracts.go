package subtensor

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gztensor/qa-automation/internal/chain"
	"github.com/gztensor/qa-automation/internal/contract"
	"github.com/gztensor/qa-automation/internal/scanner"
)

// StakeDeps is the ledger access a staking contract needs: point reads,
// paged scans over the same querier, mutation submission, and the signing
// actor.
type StakeDeps struct {
	Querier   chain.Querier
	Submitter chain.Submitter
	Scan      *scanner.Scanner
	Actor     Actor
}

// stakeSnapshot is the precondition capture for both staking contracts:
// the signer's free balance and the share entries the action mutates.
type stakeSnapshot struct {
	Balance *big.Int
	Share   *big.Int
	Total   *big.Int
}

func (d StakeDeps) snapshot(ctx context.Context, netuid, hotkey string) (*stakeSnapshot, error) {
	balance, err := readAmount(ctx, d.Querier, MapAccount, chain.Key{string(d.Actor.Coldkey)})
	if err != nil {
		return nil, err
	}
	share, err := readAmount(ctx, d.Querier, MapAlpha, chain.Key{hotkey, string(d.Actor.Coldkey), netuid})
	if err != nil {
		return nil, err
	}
	total, err := readAmount(ctx, d.Querier, MapTotalHotkeyShares, chain.Key{hotkey, netuid})
	if err != nil {
		return nil, err
	}
	return &stakeSnapshot{Balance: balance, Share: share, Total: total}, nil
}

// listNetuids enumerates the registered subnets.
func (d StakeDeps) listNetuids(ctx context.Context) ([]string, error) {
	entries, err := d.Scan.Collect(ctx, MapNetworksAdded, nil)
	if err != nil {
		return nil, err
	}
	netuids := make([]string, 0, len(entries))
	for _, e := range entries {
		if len(e.Key) > 0 {
			netuids = append(netuids, e.Key[0])
		}
	}
	return netuids, nil
}

// listHotkeys enumerates the hotkeys registered on one subnet.
func (d StakeDeps) listHotkeys(ctx context.Context, netuid string) ([]string, error) {
	entries, err := d.Scan.Collect(ctx, MapUids, chain.Key{netuid})
	if err != nil {
		return nil, err
	}
	hotkeys := make([]string, 0, len(entries))
	for _, e := range entries {
		if len(e.Key) >= 2 {
			hotkeys = append(hotkeys, e.Key[1])
		}
	}
	return hotkeys, nil
}

func readAmount(ctx context.Context, q chain.Querier, mapID string, key chain.Key) (*big.Int, error) {
	raw, err := q.ReadField(ctx, mapID, key)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("read %s[%s]: %w", mapID, key, err)
	}
	return ParseAmount(raw)
}

// AddStake is the staking contract: pick a subnet, a registered hotkey,
// and an amount within the signer's balance; submit the stake; verify
// balance and share deltas exactly.
type AddStake struct {
	Deps StakeDeps
}

// Name implements contract.Contract.
func (c *AddStake) Name() string { return OpAddStake }

// Scope implements contract.Contract.
func (c *AddStake) Scope() string { return "staking" }

// ParamCount implements contract.Contract.
func (c *AddStake) ParamCount() int { return 3 }

// NextParam implements contract.Contract. The hotkey descriptor depends
// on the chosen netuid; the amount range depends on the current balance.
func (c *AddStake) NextParam(ctx context.Context, idx int, chosen contract.Params) (contract.Descriptor, error) {
	switch idx {
	case 0:
		netuids, err := c.Deps.listNetuids(ctx)
		if err != nil {
			return contract.Descriptor{}, err
		}
		return contract.Descriptor{Name: "netuid", Kind: contract.KindList, Values: netuids}, nil

	case 1:
		hotkeys, err := c.Deps.listHotkeys(ctx, chosen.Get("netuid"))
		if err != nil {
			return contract.Descriptor{}, err
		}
		return contract.Descriptor{Name: "hotkey", Kind: contract.KindList, Values: hotkeys}, nil

	case 2:
		balance, err := readAmount(ctx, c.Deps.Querier, MapAccount, chain.Key{string(c.Deps.Actor.Coldkey)})
		if err != nil {
			return contract.Descriptor{}, err
		}
		// A zero balance inverts the range, which skips the run.
		return contract.Descriptor{
			Name: "amount",
			Kind: contract.KindRange,
			Min:  big.NewInt(1),
			Max:  balance,
		}, nil
	}
	return contract.Descriptor{}, fmt.Errorf("no parameter at index %d", idx)
}

// Precondition implements contract.Contract.
func (c *AddStake) Precondition(ctx context.Context, params contract.Params) (any, error) {
	return c.Deps.snapshot(ctx, params.Get("netuid"), params.Get("hotkey"))
}

// Action implements contract.Contract.
func (c *AddStake) Action(ctx context.Context, params contract.Params) (any, error) {
	return c.Deps.Submitter.Submit(ctx, OpAddStake, params.Map(), c.Deps.Actor.Coldkey)
}

// Postcondition implements contract.Contract. The staked amount must
// move exactly: balance down, share and total up.
func (c *AddStake) Postcondition(ctx context.Context, params contract.Params, pre, result any) (bool, error) {
	before, ok := pre.(*stakeSnapshot)
	if !ok {
		return false, fmt.Errorf("unexpected precondition type %T", pre)
	}
	amount, err := ParseAmount(params.Get("amount"))
	if err != nil {
		return false, err
	}
	after, err := c.Deps.snapshot(ctx, params.Get("netuid"), params.Get("hotkey"))
	if err != nil {
		return false, err
	}

	wantBalance := new(big.Int).Sub(before.Balance, amount)
	wantShare := new(big.Int).Add(before.Share, amount)
	wantTotal := new(big.Int).Add(before.Total, amount)
	return after.Balance.Cmp(wantBalance) == 0 &&
		after.Share.Cmp(wantShare) == 0 &&
		after.Total.Cmp(wantTotal) == 0, nil
}

// RemoveStake is the unstaking contract: pick a subnet and a hotkey the
// signer holds shares on, withdraw an amount within the held share, and
// verify the reverse deltas.
type RemoveStake struct {
	Deps StakeDeps
}

// Name implements contract.Contract.
func (c *RemoveStake) Name() string { return OpRemoveStake }

// Scope implements contract.Contract.
func (c *RemoveStake) Scope() string { return "staking" }

// ParamCount implements contract.Contract.
func (c *RemoveStake) ParamCount() int { return 3 }

// NextParam implements contract.Contract. The hotkey list is restricted
// to hotkeys the signer actually holds shares on for the chosen netuid,
// so an account with no stake anywhere skips rather than fails.
func (c *RemoveStake) NextParam(ctx context.Context, idx int, chosen contract.Params) (contract.Descriptor, error) {
	switch idx {
	case 0:
		netuids, err := c.Deps.listNetuids(ctx)
		if err != nil {
			return contract.Descriptor{}, err
		}
		return contract.Descriptor{Name: "netuid", Kind: contract.KindList, Values: netuids}, nil

	case 1:
		hotkeys, err := c.stakedHotkeys(ctx, chosen.Get("netuid"))
		if err != nil {
			return contract.Descriptor{}, err
		}
		return contract.Descriptor{Name: "hotkey", Kind: contract.KindList, Values: hotkeys}, nil

	case 2:
		share, err := readAmount(ctx, c.Deps.Querier, MapAlpha,
			chain.Key{chosen.Get("hotkey"), string(c.Deps.Actor.Coldkey), chosen.Get("netuid")})
		if err != nil {
			return contract.Descriptor{}, err
		}
		return contract.Descriptor{
			Name: "amount",
			Kind: contract.KindRange,
			Min:  big.NewInt(1),
			Max:  share,
		}, nil
	}
	return contract.Descriptor{}, fmt.Errorf("no parameter at index %d", idx)
}

// stakedHotkeys lists hotkeys with a positive share held by the signer
// on netuid.
func (c *RemoveStake) stakedHotkeys(ctx context.Context, netuid string) ([]string, error) {
	coldkey := string(c.Deps.Actor.Coldkey)
	var hotkeys []string
	var parseErr error
	err := c.Deps.Scan.Each(ctx, MapAlpha, nil, func(e chain.Entry) bool {
		if len(e.Key) < 3 || e.Key[1] != coldkey || e.Key[2] != netuid {
			return true
		}
		share, err := ParseAmount(e.Value)
		if err != nil {
			parseErr = fmt.Errorf("%s[%s]: %w", MapAlpha, e.Key, err)
			return false
		}
		if share.Sign() > 0 {
			hotkeys = append(hotkeys, e.Key[0])
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return hotkeys, nil
}

// Precondition implements contract.Contract.
func (c *RemoveStake) Precondition(ctx context.Context, params contract.Params) (any, error) {
	return c.Deps.snapshot(ctx, params.Get("netuid"), params.Get("hotkey"))
}

// Action implements contract.Contract.
func (c *RemoveStake) Action(ctx context.Context, params contract.Params) (any, error) {
	return c.Deps.Submitter.Submit(ctx, OpRemoveStake, params.Map(), c.Deps.Actor.Coldkey)
}

// Postcondition implements contract.Contract.
func (c *RemoveStake) Postcondition(ctx context.Context, params contract.Params, pre, result any) (bool, error) {
	before, ok := pre.(*stakeSnapshot)
	if !ok {
		return false, fmt.Errorf("unexpected precondition type %T", pre)
	}
	amount, err := ParseAmount(params.Get("amount"))
	if err != nil {
		return false, err
	}
	after, err := c.Deps.snapshot(ctx, params.Get("netuid"), params.Get("hotkey"))
	if err != nil {
		return false, err
	}

	wantBalance := new(big.Int).Add(before.Balance, amount)
	wantShare := new(big.Int).Sub(before.Share, amount)
	wantTotal := new(big.Int).Sub(before.Total, amount)
	return after.Balance.Cmp(wantBalance) == 0 &&
		after.Share.Cmp(wantShare) == 0 &&
		after.Total.Cmp(wantTotal) == 0, nil
}

package subtensor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gztensor/qa-automation/internal/chain"
)

// RegisterStakeOps installs the staking operation handlers on a local
// chain. Handlers run inside the submission transaction; a returned
// Fault rolls the whole mutation back.
func RegisterStakeOps(lc *chain.LocalChain) error {
	if err := lc.RegisterOp(OpAddStake, handleAddStake); err != nil {
		return err
	}
	return lc.RegisterOp(OpRemoveStake, handleRemoveStake)
}

func handleAddStake(ctx context.Context, tx *chain.Tx, args map[string]string, signer chain.AccountID) error {
	netuid, hotkey := args["netuid"], args["hotkey"]
	amount, err := parseStakeAmount(args["amount"])
	if err != nil {
		return err
	}
	if err := checkRegistered(ctx, tx, netuid, hotkey); err != nil {
		return err
	}

	balance, err := readTxAmount(ctx, tx, MapAccount, chain.Key{string(signer)})
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return &chain.Fault{
			Module:  ModuleName,
			Code:    FaultNotEnoughBalance,
			Message: fmt.Sprintf("balance %s < stake %s", balance, amount),
		}
	}

	shareKey := chain.Key{hotkey, string(signer), netuid}
	share, err := readTxAmount(ctx, tx, MapAlpha, shareKey)
	if err != nil {
		return err
	}
	totalKey := chain.Key{hotkey, netuid}
	total, err := readTxAmount(ctx, tx, MapTotalHotkeyShares, totalKey)
	if err != nil {
		return err
	}

	if err := tx.Put(ctx, MapAccount, chain.Key{string(signer)}, balance.Sub(balance, amount).String()); err != nil {
		return err
	}
	if err := tx.Put(ctx, MapAlpha, shareKey, share.Add(share, amount).String()); err != nil {
		return err
	}
	return tx.Put(ctx, MapTotalHotkeyShares, totalKey, total.Add(total, amount).String())
}

func handleRemoveStake(ctx context.Context, tx *chain.Tx, args map[string]string, signer chain.AccountID) error {
	netuid, hotkey := args["netuid"], args["hotkey"]
	amount, err := parseStakeAmount(args["amount"])
	if err != nil {
		return err
	}
	if err := checkRegistered(ctx, tx, netuid, hotkey); err != nil {
		return err
	}

	shareKey := chain.Key{hotkey, string(signer), netuid}
	share, err := readTxAmount(ctx, tx, MapAlpha, shareKey)
	if err != nil {
		return err
	}
	if share.Cmp(amount) < 0 {
		return &chain.Fault{
			Module:  ModuleName,
			Code:    FaultNotEnoughStake,
			Message: fmt.Sprintf("share %s < withdrawal %s", share, amount),
		}
	}

	balance, err := readTxAmount(ctx, tx, MapAccount, chain.Key{string(signer)})
	if err != nil {
		return err
	}
	totalKey := chain.Key{hotkey, netuid}
	total, err := readTxAmount(ctx, tx, MapTotalHotkeyShares, totalKey)
	if err != nil {
		return err
	}

	if err := tx.Put(ctx, MapAlpha, shareKey, share.Sub(share, amount).String()); err != nil {
		return err
	}
	if err := tx.Put(ctx, MapTotalHotkeyShares, totalKey, total.Sub(total, amount).String()); err != nil {
		return err
	}
	return tx.Put(ctx, MapAccount, chain.Key{string(signer)}, balance.Add(balance, amount).String())
}

func parseStakeAmount(raw string) (*big.Int, error) {
	amount, err := ParseAmount(raw)
	if err != nil || amount.Sign() == 0 {
		return nil, &chain.Fault{
			Module:  ModuleName,
			Code:    FaultInvalidAmount,
			Message: fmt.Sprintf("amount %q", raw),
		}
	}
	return amount, nil
}

func checkRegistered(ctx context.Context, tx *chain.Tx, netuid, hotkey string) error {
	if _, err := tx.Read(ctx, MapNetworksAdded, chain.Key{netuid}); err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return &chain.Fault{Module: ModuleName, Code: FaultSubnetNotExists, Message: "netuid " + netuid}
		}
		return err
	}
	if _, err := tx.Read(ctx, MapUids, chain.Key{netuid, hotkey}); err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return &chain.Fault{Module: ModuleName, Code: FaultHotkeyNotRegistered, Message: "hotkey " + hotkey}
		}
		return err
	}
	return nil
}

func readTxAmount(ctx context.Context, tx *chain.Tx, mapID string, key chain.Key) (*big.Int, error) {
	raw, err := tx.Read(ctx, mapID, key)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return ParseAmount(raw)
}

// Genesis seeds a local chain with the minimal state the staking
// contracts need: the subnets, each actor's hotkey registered on every
// subnet, and funded coldkey balances.
type Genesis struct {
	Netuids        []string
	Actors         []Actor
	Balance        uint64 // initial free balance per coldkey
	MaxAllowedUids uint64
}

// Seed writes the genesis state.
func (g Genesis) Seed(ctx context.Context, lc *chain.LocalChain) error {
	maxUids := g.MaxAllowedUids
	if maxUids == 0 {
		maxUids = 64
	}

	for _, netuid := range g.Netuids {
		if err := lc.Seed(ctx, MapNetworksAdded, chain.Key{netuid}, "1"); err != nil {
			return err
		}
		if err := lc.Seed(ctx, MapMaxAllowedUids, chain.Key{netuid}, strconv.FormatUint(maxUids, 10)); err != nil {
			return err
		}
		for uid, a := range g.Actors {
			uidStr := strconv.Itoa(uid)
			if err := lc.Seed(ctx, MapKeys, chain.Key{netuid, uidStr}, string(a.Hotkey)); err != nil {
				return err
			}
			if err := lc.Seed(ctx, MapUids, chain.Key{netuid, string(a.Hotkey)}, uidStr); err != nil {
				return err
			}
		}
		if err := lc.Seed(ctx, MapSubnetworkN, chain.Key{netuid}, strconv.Itoa(len(g.Actors))); err != nil {
			return err
		}
	}

	balance := strconv.FormatUint(g.Balance, 10)
	for _, a := range g.Actors {
		if err := lc.Seed(ctx, MapAccount, chain.Key{string(a.Coldkey)}, balance); err != nil {
			return err
		}
	}
	return nil
}

// Package subtensor binds the generic verification machinery to the
// delegated-stake ledger's storage layout: the map catalog, per-field
// codecs, the concrete invariant rule set, and the staking contracts.
package subtensor

import "math/big"

// Storage map identifiers, named pallet.item. Key tuples are noted per
// map; all values are raw wire text (decimal or hex integers, or the
// composite encodings in fields.go).
const (
	MapNetworksAdded  = "SubtensorModule.NetworksAdded"  // (netuid) -> "1"
	MapKeys           = "SubtensorModule.Keys"           // (netuid, uid) -> hotkey
	MapUids           = "SubtensorModule.Uids"           // (netuid, hotkey) -> uid
	MapSubnetworkN    = "SubtensorModule.SubnetworkN"    // (netuid) -> registered uid count
	MapMaxAllowedUids = "SubtensorModule.MaxAllowedUids" // (netuid) -> configured maximum

	MapAlpha             = "SubtensorModule.Alpha"             // (hotkey, coldkey, netuid) -> share
	MapTotalHotkeyShares = "SubtensorModule.TotalHotkeyShares" // (hotkey, netuid) -> share total
	MapPendingShares     = "SubtensorModule.PendingShares"     // (hotkey, netuid) -> unattributed share

	MapChildKeys        = "SubtensorModule.ChildKeys"        // (parent, netuid) -> edge list
	MapPendingChildKeys = "SubtensorModule.PendingChildKeys" // (parent, netuid) -> edge list
	MapParentKeys       = "SubtensorModule.ParentKeys"       // (child, netuid) -> edge list

	MapPositions    = "Swap.Positions"    // (netuid, positionID) -> position
	MapCurrentPrice = "Swap.CurrentPrice" // (netuid) -> price, fixed-point
	MapTaoReserve   = "Swap.TaoReserve"   // (netuid) -> reserve
	MapAlphaReserve = "Swap.AlphaReserve" // (netuid) -> reserve

	MapAccount = "System.Account" // (account) -> free balance
)

// Operation identifiers accepted by the mutation interface.
const (
	OpAddStake    = "add_stake"
	OpRemoveStake = "remove_stake"
)

// ModuleName is the fault module for ledger-side rejections.
const ModuleName = "SubtensorModule"

// Fault codes surfaced verbatim in contract failure messages.
const (
	FaultSubnetNotExists     = "SubNetworkDoesNotExist"
	FaultHotkeyNotRegistered = "HotKeyNotRegisteredInSubNet"
	FaultNotEnoughBalance    = "NotEnoughBalance"
	FaultNotEnoughStake      = "NotEnoughStakeToWithdraw"
	FaultInvalidAmount       = "InvalidStakeAmount"
)

// ProportionScale is the full-range fixed-point unit for delegation
// proportions: a parent's outgoing proportions must sum within
// (0, ProportionScale].
func ProportionScale() *big.Int {
	return new(big.Int).SetUint64(^uint64(0))
}

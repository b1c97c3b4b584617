package subtensor

import (
	"fmt"

	"github.com/gztensor/qa-automation/internal/fixed"
	"github.com/gztensor/qa-automation/internal/invariant"
)

// RuleConfig carries the tolerance knobs. Tolerances are configuration,
// not constants; zero values fall back to the package defaults.
type RuleConfig struct {
	ConservationDivisor int64   // absolute epsilon = expected / divisor
	LiquidityTolerance  float64 // relative tolerance for reserve comparison
}

// RegisterRules binds the full invariant catalog to the ledger's storage
// maps and registers it on the engine. Registration order is run order.
func RegisterRules(e *invariant.Engine, cfg RuleConfig) error {
	parts := invariant.PartitionsFromMap(MapNetworksAdded)

	rules := []invariant.Rule{
		&invariant.BijectionRule{
			RuleID:     "uids-bijection",
			Partition:  parts,
			ForwardMap: MapKeys,
			ReverseMap: MapUids,
			CountMap:   MapSubnetworkN,
		},
		&invariant.ConservationRule{
			RuleID:         "shares-conservation",
			SharesMap:      MapAlpha,
			TotalMap:       MapTotalHotkeyShares,
			PendingMap:     MapPendingShares,
			Format:         fixed.U64F64,
			EpsilonDivisor: cfg.ConservationDivisor,
		},
		&invariant.ChildkeyRule{
			RuleID:     "childkeys",
			Partition:  parts,
			ForwardMap: MapChildKeys,
			PendingMap: MapPendingChildKeys,
			ReverseMap: MapParentKeys,
			Scale:      ProportionScale(),
			ParseEdges: ParseChildEdges,
		},
		&invariant.BoundRule{
			RuleID:    "uid-bound",
			Partition: parts,
			ValueMap:  MapSubnetworkN,
			MaxMap:    MapMaxAllowedUids,
		},
		&invariant.LiquidityRule{
			RuleID:          "swap-reserves",
			Partition:       parts,
			PositionsMap:    MapPositions,
			PriceMap:        MapCurrentPrice,
			TaoReserveMap:   MapTaoReserve,
			AlphaReserveMap: MapAlphaReserve,
			PriceFormat:     fixed.U64F64,
			ParsePosition:   ParsePosition,
			RelTolerance:    cfg.LiquidityTolerance,
		},
	}

	for _, r := range rules {
		if err := e.Register(r); err != nil {
			return fmt.Errorf("register rules: %w", err)
		}
	}
	return nil
}

package invariant

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/gztensor/qa-automation/internal/chain"
	"github.com/gztensor/qa-automation/internal/fixed"
)

// tickBase is the price ratio between adjacent ticks.
const tickBase = 1.0001

// Position is one range-bound liquidity position: active only while the
// pool price sits between its tick bounds.
type Position struct {
	Liquidity float64
	TickLow   int64
	TickHigh  int64
}

// PositionParser decodes the raw storage value of a position entry.
type PositionParser func(raw string) (Position, error)

// DefaultLiquidityTolerance is the relative tolerance for comparing
// implied against stored reserves. Tolerance is configuration: override
// via LiquidityRule.RelTolerance.
const DefaultLiquidityTolerance = 1e-6

// LiquidityRule verifies reserve conservation for the per-subnet swap
// pools: summing every position's implied reserve contribution — computed
// from the closed-form range-liquidity formulas — must reproduce the
// independently stored reserve totals.
//
// The current sqrt price is clamped into [sqrt(low), sqrt(high)] before
// the formulas apply; using the raw price would miscount positions whose
// range the price has left entirely.
type LiquidityRule struct {
	RuleID          string
	Partition       Partitions
	PositionsMap    string // (partition, positionID) -> position
	PriceMap        string // (partition) -> current price, fixed-point
	TaoReserveMap   string // (partition) -> stored tao reserve
	AlphaReserveMap string // (partition) -> stored alpha reserve
	PriceFormat     fixed.Format
	ParsePosition   PositionParser

	// RelTolerance overrides DefaultLiquidityTolerance when > 0.
	RelTolerance float64
}

// ID implements Rule.
func (r *LiquidityRule) ID() string {
	return r.RuleID
}

// Check implements Rule.
func (r *LiquidityRule) Check(ctx context.Context, src Source) ([]Violation, error) {
	parts, err := r.Partition(ctx, src)
	if err != nil {
		return nil, err
	}

	tol := r.RelTolerance
	if tol <= 0 {
		tol = DefaultLiquidityTolerance
	}

	var violations []Violation
	for _, part := range parts {
		vs, err := r.checkPartition(ctx, src, part, tol)
		if err != nil {
			return nil, err
		}
		violations = append(violations, vs...)
	}
	return violations, nil
}

func (r *LiquidityRule) checkPartition(ctx context.Context, src Source, part string, tol float64) ([]Violation, error) {
	rawPrice, err := src.Querier.ReadField(ctx, r.PriceMap, chain.Key{part})
	if err != nil {
		if chainNotFound(err) {
			// No pool on this subnet.
			return nil, nil
		}
		return nil, fmt.Errorf("read %s[%s]: %w", r.PriceMap, part, err)
	}
	price, err := r.PriceFormat.DecodeApproxRaw(rawPrice)
	if err != nil {
		return nil, fmt.Errorf("%s[%s]: %w", r.PriceMap, part, err)
	}
	sqrtPrice := math.Sqrt(price)

	var impliedAlpha, impliedTao float64
	var parseErr error
	err = src.Scanner.Each(ctx, r.PositionsMap, chain.Key{part}, func(e chain.Entry) bool {
		pos, err := r.ParsePosition(e.Value)
		if err != nil {
			parseErr = fmt.Errorf("%s[%s]: %w", r.PositionsMap, e.Key, err)
			return false
		}

		sqrtLow := tickToSqrtPrice(pos.TickLow)
		sqrtHigh := tickToSqrtPrice(pos.TickHigh)

		// Clamp: out-of-range positions contribute only one asset.
		sqrtClamped := min(max(sqrtPrice, sqrtLow), sqrtHigh)

		impliedAlpha += pos.Liquidity * (1/sqrtClamped - 1/sqrtHigh)
		impliedTao += pos.Liquidity * (sqrtClamped - sqrtLow)
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}

	actualAlpha, err := r.readReserve(ctx, src, r.AlphaReserveMap, part)
	if err != nil {
		return nil, err
	}
	actualTao, err := r.readReserve(ctx, src, r.TaoReserveMap, part)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	if !fixed.ApproxEqualRel(impliedAlpha, actualAlpha, tol) {
		violations = append(violations, Violation{
			Rule: r.RuleID,
			Message: fmt.Sprintf("subnet %s: implied alpha reserve %.4f != stored %.4f",
				part, impliedAlpha, actualAlpha),
			Keys: []string{part},
		})
	}
	if !fixed.ApproxEqualRel(impliedTao, actualTao, tol) {
		violations = append(violations, Violation{
			Rule: r.RuleID,
			Message: fmt.Sprintf("subnet %s: implied tao reserve %.4f != stored %.4f",
				part, impliedTao, actualTao),
			Keys: []string{part},
		})
	}
	return violations, nil
}

func (r *LiquidityRule) readReserve(ctx context.Context, src Source, mapID, part string) (float64, error) {
	raw, err := src.Querier.ReadField(ctx, mapID, chain.Key{part})
	if err != nil {
		return 0, fmt.Errorf("read %s[%s]: %w", mapID, part, err)
	}
	bits, err := fixed.ParseBits(raw)
	if err != nil {
		return 0, fmt.Errorf("%s[%s]: %w", mapID, part, err)
	}
	v, _ := new(big.Float).SetInt(bits).Float64()
	return v, nil
}

// tickToSqrtPrice converts an integer tick index to the square root of
// its price: sqrt(1.0001^tick) = 1.0001^(tick/2).
func tickToSqrtPrice(tick int64) float64 {
	return math.Pow(tickBase, float64(tick)/2)
}

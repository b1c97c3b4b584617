package invariant

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gztensor/qa-automation/internal/fixed"
	"github.com/gztensor/qa-automation/internal/testutil"
)

const (
	mapPositions = "Swap.Positions"
	mapPrice     = "Swap.CurrentPrice"
	mapTaoRes    = "Swap.TaoReserve"
	mapAlphaRes  = "Swap.AlphaReserve"
)

// testParsePosition decodes "liquidity/tickLow/tickHigh" values.
func testParsePosition(raw string) (Position, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return Position{}, fmt.Errorf("malformed position %q", raw)
	}
	liq, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Position{}, fmt.Errorf("malformed liquidity %q: %w", parts[0], err)
	}
	low, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("malformed tick %q: %w", parts[1], err)
	}
	high, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("malformed tick %q: %w", parts[2], err)
	}
	return Position{Liquidity: liq, TickLow: low, TickHigh: high}, nil
}

func liquidityRule() *LiquidityRule {
	return &LiquidityRule{
		RuleID:          "swap-reserves",
		Partition:       PartitionsFromMap(mapNetworks),
		PositionsMap:    mapPositions,
		PriceMap:        mapPrice,
		TaoReserveMap:   mapTaoRes,
		AlphaReserveMap: mapAlphaRes,
		PriceFormat:     fixed.U128F0,
		ParsePosition:   testParsePosition,
	}
}

// seedPool computes the implied reserves for one position the same way
// the rule does and stores the rounded values as the pool's reserves.
// With liquidity around 1e12 the rounding error is far below the
// relative tolerance, so the rule must report the pool as conserved.
func seedPool(q *testutil.FakeQuerier, netuid string, price float64, liq float64, tickLow, tickHigh int64) {
	sqrtPrice := math.Sqrt(price)
	sqrtLow := math.Pow(1.0001, float64(tickLow)/2)
	sqrtHigh := math.Pow(1.0001, float64(tickHigh)/2)
	sqrtClamped := math.Min(math.Max(sqrtPrice, sqrtLow), sqrtHigh)

	alpha := liq * (1/sqrtClamped - 1/sqrtHigh)
	tao := liq * (sqrtClamped - sqrtLow)

	q.Put(mapNetworks, []string{netuid}, "1")
	q.Put(mapPrice, []string{netuid}, strconv.FormatFloat(price, 'f', 0, 64))
	q.Put(mapPositions, []string{netuid, "pos1"},
		fmt.Sprintf("%s/%d/%d", strconv.FormatFloat(liq, 'f', 0, 64), tickLow, tickHigh))
	q.Put(mapAlphaRes, []string{netuid}, strconv.FormatFloat(math.Round(alpha), 'f', 0, 64))
	q.Put(mapTaoRes, []string{netuid}, strconv.FormatFloat(math.Round(tao), 'f', 0, 64))
}

func TestLiquidity_InRangePosition(t *testing.T) {
	// Price 4 sits inside [tick 0, tick 27726] (prices 1 to ~16), so the
	// position contributes to both reserves.
	q := testutil.NewFakeQuerier()
	seedPool(q, "1", 4, 1e12, 0, 27726)

	vs, err := liquidityRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestLiquidity_PriceAboveRange(t *testing.T) {
	// Price 100 is above the whole range: sqrt price clamps to the upper
	// bound, the position is all tao and contributes zero alpha.
	q := testutil.NewFakeQuerier()
	seedPool(q, "1", 100, 1e12, 0, 13863) // prices 1 to ~4

	vs, err := liquidityRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)

	raw, err := q.ReadField(context.Background(), mapAlphaRes, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, "0", raw, "clamped position must imply zero alpha")
}

func TestLiquidity_PriceBelowRange(t *testing.T) {
	// Price 1 is below [tick 13863, tick 27726]: all alpha, zero tao.
	q := testutil.NewFakeQuerier()
	seedPool(q, "1", 1, 1e12, 13863, 27726)

	vs, err := liquidityRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)

	raw, err := q.ReadField(context.Background(), mapTaoRes, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, "0", raw, "clamped position must imply zero tao")
}

func TestLiquidity_ReserveDrift(t *testing.T) {
	q := testutil.NewFakeQuerier()
	seedPool(q, "1", 4, 1e12, 0, 27726)
	// Knock the stored tao reserve off by 1%.
	raw, err := q.ReadField(context.Background(), mapTaoRes, []string{"1"})
	require.NoError(t, err)
	tao, err := strconv.ParseFloat(raw, 64)
	require.NoError(t, err)
	q.Put(mapTaoRes, []string{"1"}, strconv.FormatFloat(math.Round(tao*1.01), 'f', 0, 64))

	vs, err := liquidityRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "implied tao reserve")
	assert.Equal(t, []string{"1"}, vs[0].Keys)
}

func TestLiquidity_NoPoolSkipsPartition(t *testing.T) {
	// Subnet exists but has no swap pool: no price entry, no violation.
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapPositions, []string{"1", "pos1"}, "1000/0/100")

	vs, err := liquidityRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestLiquidity_MultiplePositionsSum(t *testing.T) {
	// Two positions on one pool: reserves are stored as the sum of both
	// contributions.
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapPrice, []string{"1"}, "4")

	sqrtPrice := math.Sqrt(4.0)
	var alpha, tao float64
	ticks := [][2]int64{{0, 27726}, {6931, 20000}}
	for i, tk := range ticks {
		sqrtLow := math.Pow(1.0001, float64(tk[0])/2)
		sqrtHigh := math.Pow(1.0001, float64(tk[1])/2)
		sqrtClamped := math.Min(math.Max(sqrtPrice, sqrtLow), sqrtHigh)
		alpha += 1e12 * (1/sqrtClamped - 1/sqrtHigh)
		tao += 1e12 * (sqrtClamped - sqrtLow)
		q.Put(mapPositions, []string{"1", fmt.Sprintf("pos%d", i)},
			fmt.Sprintf("1000000000000/%d/%d", tk[0], tk[1]))
	}
	q.Put(mapAlphaRes, []string{"1"}, strconv.FormatFloat(math.Round(alpha), 'f', 0, 64))
	q.Put(mapTaoRes, []string{"1"}, strconv.FormatFloat(math.Round(tao), 'f', 0, 64))

	vs, err := liquidityRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestLiquidity_MalformedPosition(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapPrice, []string{"1"}, "4")
	q.Put(mapPositions, []string{"1", "pos1"}, "garbage")

	_, err := liquidityRule().Check(context.Background(), testSource(q))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed position")
}

func TestTickToSqrtPrice(t *testing.T) {
	assert.Equal(t, 1.0, tickToSqrtPrice(0))
	// Tick 2 is one full basis point of price: sqrt is 1.0001^1.
	assert.InDelta(t, 1.0001, tickToSqrtPrice(2), 1e-12)
	assert.InDelta(t, 1/1.0001, tickToSqrtPrice(-2), 1e-12)
}

package invariant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gztensor/qa-automation/internal/fixed"
	"github.com/gztensor/qa-automation/internal/testutil"
)

const (
	mapAlpha  = "SubtensorModule.Alpha"
	mapTotals = "SubtensorModule.TotalHotkeyShares"
	mapPend   = "SubtensorModule.PendingHotkeyShares"
)

func conservationRule(pending bool) *ConservationRule {
	r := &ConservationRule{
		RuleID:    "shares-conservation",
		SharesMap: mapAlpha,
		TotalMap:  mapTotals,
		Format:    fixed.U128F0,
	}
	if pending {
		r.PendingMap = mapPend
	}
	return r
}

func TestConservation_SumMatchesTotal(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapAlpha, []string{"hot1", "coldA", "1"}, "10")
	q.Put(mapAlpha, []string{"hot1", "coldB", "1"}, "20")
	q.Put(mapAlpha, []string{"hot1", "coldC", "1"}, "30")
	q.Put(mapTotals, []string{"hot1", "1"}, "60")

	vs, err := conservationRule(false).Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestConservation_DriftBeyondEpsilon(t *testing.T) {
	// Sum is 60, stored total 61. Epsilon is 61/1000, far under the unit
	// of drift, so exactly one violation results.
	q := testutil.NewFakeQuerier()
	q.Put(mapAlpha, []string{"hot1", "coldA", "1"}, "10")
	q.Put(mapAlpha, []string{"hot1", "coldB", "1"}, "20")
	q.Put(mapAlpha, []string{"hot1", "coldC", "1"}, "30")
	q.Put(mapTotals, []string{"hot1", "1"}, "61")

	vs, err := conservationRule(false).Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, []string{"hot1", "1"}, vs[0].Keys)
	assert.Contains(t, vs[0].Message, "shares sum 60 != stored total 61")
}

func TestConservation_DriftWithinEpsilon(t *testing.T) {
	// Total 100000, sum short by 50: epsilon is 100, so this passes.
	q := testutil.NewFakeQuerier()
	q.Put(mapAlpha, []string{"hot1", "coldA", "1"}, "99950")
	q.Put(mapTotals, []string{"hot1", "1"}, "100000")

	vs, err := conservationRule(false).Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestConservation_PendingClosesGap(t *testing.T) {
	// Sum 40 plus pending 20 covers the stored total of 60.
	q := testutil.NewFakeQuerier()
	q.Put(mapAlpha, []string{"hot1", "coldA", "1"}, "40")
	q.Put(mapTotals, []string{"hot1", "1"}, "60")
	q.Put(mapPend, []string{"hot1", "1"}, "20")

	vs, err := conservationRule(true).Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestConservation_MissingPendingTreatedAsZero(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapAlpha, []string{"hot1", "coldA", "1"}, "60")
	q.Put(mapTotals, []string{"hot1", "1"}, "60")

	vs, err := conservationRule(true).Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestConservation_SharesWithoutTotal(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapAlpha, []string{"hot1", "coldA", "1"}, "10")
	// No totals entry for hot1.

	vs, err := conservationRule(false).Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "no total in")
}

func TestConservation_FixedPointShares(t *testing.T) {
	// U64.F64 raw values: 0.25 + 0.25 + 0.5 = 1.0.
	rule := &ConservationRule{
		RuleID:    "shares-conservation",
		SharesMap: mapAlpha,
		TotalMap:  mapTotals,
		Format:    fixed.U64F64,
	}
	quarter := "0x4000000000000000"
	half := "0x8000000000000000"
	one := "0x10000000000000000"

	q := testutil.NewFakeQuerier()
	q.Put(mapAlpha, []string{"hot1", "coldA", "1"}, quarter)
	q.Put(mapAlpha, []string{"hot1", "coldB", "1"}, quarter)
	q.Put(mapAlpha, []string{"hot1", "coldC", "1"}, half)
	q.Put(mapTotals, []string{"hot1", "1"}, one)

	vs, err := rule.Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestConservation_MalformedShareValue(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapAlpha, []string{"hot1", "coldA", "1"}, "not-a-number")

	_, err := conservationRule(false).Check(context.Background(), testSource(q))
	require.Error(t, err)
	assert.True(t, fixed.IsDecodeError(err))
}

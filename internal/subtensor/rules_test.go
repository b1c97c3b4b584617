package subtensor

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gztensor/qa-automation/internal/chain"
	"github.com/gztensor/qa-automation/internal/invariant"
	"github.com/gztensor/qa-automation/internal/scanner"
	"github.com/gztensor/qa-automation/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, q chain.Querier) *invariant.Engine {
	t.Helper()
	log := discardLogger()
	e := invariant.NewEngine(invariant.NewSource(q, scanner.WithLogger(log)), log)
	require.NoError(t, RegisterRules(e, RuleConfig{}))
	return e
}

func TestRegisterRules_Catalog(t *testing.T) {
	e := newEngine(t, testutil.NewFakeQuerier())
	assert.Equal(t, []string{
		"uids-bijection",
		"shares-conservation",
		"childkeys",
		"uid-bound",
		"swap-reserves",
	}, e.Rules())
}

func TestRunAll_ConsistentState(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(MapNetworksAdded, chain.Key{"1"}, "1")
	q.Put(MapSubnetworkN, chain.Key{"1"}, "2")
	q.Put(MapMaxAllowedUids, chain.Key{"1"}, "64")
	q.Put(MapKeys, chain.Key{"1", "0"}, "hotA")
	q.Put(MapKeys, chain.Key{"1", "1"}, "hotB")
	q.Put(MapUids, chain.Key{"1", "hotA"}, "0")
	q.Put(MapUids, chain.Key{"1", "hotB"}, "1")

	q.Put(MapAlpha, chain.Key{"hotA", "coldA", "1"}, "100")
	q.Put(MapAlpha, chain.Key{"hotA", "coldB", "1"}, "50")
	q.Put(MapTotalHotkeyShares, chain.Key{"hotA", "1"}, "150")

	q.Put(MapChildKeys, chain.Key{"hotA", "1"}, "1000/hotB")
	q.Put(MapParentKeys, chain.Key{"hotB", "1"}, "1000/hotA")

	report, err := newEngine(t, q).RunAll(context.Background())
	require.NoError(t, err)
	for _, res := range report.Results {
		assert.NoError(t, res.Err, "rule %s", res.RuleID)
		assert.Empty(t, res.Violations, "rule %s", res.RuleID)
	}
	assert.True(t, report.Passed())
}

func TestRunAll_SurfacesDrift(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(MapNetworksAdded, chain.Key{"1"}, "1")
	q.Put(MapSubnetworkN, chain.Key{"1"}, "1")
	q.Put(MapMaxAllowedUids, chain.Key{"1"}, "64")
	q.Put(MapKeys, chain.Key{"1", "0"}, "hotA")
	q.Put(MapUids, chain.Key{"1", "hotA"}, "0")

	// Shares sum to 100 but the stored total says 200.
	q.Put(MapAlpha, chain.Key{"hotA", "coldA", "1"}, "100")
	q.Put(MapTotalHotkeyShares, chain.Key{"hotA", "1"}, "200")

	report, err := newEngine(t, q).RunAll(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed())
	assert.Equal(t, 1, report.TotalViolations())

	for _, res := range report.Results {
		if res.RuleID == "shares-conservation" {
			require.Len(t, res.Violations, 1)
			assert.Equal(t, []string{"hotA", "1"}, res.Violations[0].Keys)
		}
	}
}

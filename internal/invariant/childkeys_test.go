package invariant

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gztensor/qa-automation/internal/testutil"
)

const (
	mapChildren = "SubtensorModule.ChildKeys"
	mapPendingC = "SubtensorModule.PendingChildKeys"
	mapParents  = "SubtensorModule.ParentKeys"
)

// testParseEdges decodes "prop/acct|prop/acct" edge lists, matching the
// composite encoding used by the storage layer.
func testParseEdges(raw string) ([]Edge, error) {
	if raw == "" {
		return nil, nil
	}
	var edges []Edge
	for _, item := range strings.Split(raw, "|") {
		prop, acct, ok := strings.Cut(item, "/")
		if !ok {
			return nil, fmt.Errorf("malformed edge %q", item)
		}
		p, err := strconv.ParseUint(prop, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed proportion %q: %w", prop, err)
		}
		edges = append(edges, Edge{Proportion: p, Account: acct})
	}
	return edges, nil
}

func childkeyRule() *ChildkeyRule {
	return &ChildkeyRule{
		RuleID:     "childkeys",
		Partition:  PartitionsFromMap(mapNetworks),
		ForwardMap: mapChildren,
		PendingMap: mapPendingC,
		ReverseMap: mapParents,
		Scale:      new(big.Int).SetUint64(1 << 16),
		ParseEdges: testParseEdges,
	}
}

func TestChildkeys_AcyclicChain(t *testing.T) {
	// A delegates to B, B delegates to C. No cycle.
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "1"}, "65536/B")
	q.Put(mapChildren, []string{"B", "1"}, "65536/C")
	q.Put(mapParents, []string{"B", "1"}, "65536/A")
	q.Put(mapParents, []string{"C", "1"}, "65536/B")

	vs, err := childkeyRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestChildkeys_TwoNodeCycle(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "1"}, "65536/B")
	q.Put(mapChildren, []string{"B", "1"}, "65536/A")
	q.Put(mapParents, []string{"A", "1"}, "65536/B")
	q.Put(mapParents, []string{"B", "1"}, "65536/A")

	vs, err := childkeyRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)

	var cycles []Violation
	for _, v := range vs {
		if strings.Contains(v.Message, "delegation cycle") {
			cycles = append(cycles, v)
		}
	}
	require.Len(t, cycles, 1)
	assert.Contains(t, cycles[0].Message, "A -> B -> A")
}

func TestChildkeys_SelfLoop(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "1"}, "65536/A")
	q.Put(mapParents, []string{"A", "1"}, "65536/A")

	vs, err := childkeyRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)

	var cycles []Violation
	for _, v := range vs {
		if strings.Contains(v.Message, "delegation cycle") {
			cycles = append(cycles, v)
		}
	}
	require.Len(t, cycles, 1)
	assert.Contains(t, cycles[0].Message, "A -> A")
}

func TestChildkeys_PendingEdgeCompletesCycle(t *testing.T) {
	// A -> B is finalized; B -> A is only pending. The pending edge would
	// close the loop on activation, so it still counts as a cycle, but it
	// must not trigger a reverse-consistency violation.
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "1"}, "65536/B")
	q.Put(mapParents, []string{"B", "1"}, "65536/A")
	q.Put(mapPendingC, []string{"B", "1"}, "65536/A")

	vs, err := childkeyRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "delegation cycle")
}

func TestChildkeys_ProportionOverScale(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "1"}, "40000/B|40000/C")
	q.Put(mapParents, []string{"B", "1"}, "40000/A")
	q.Put(mapParents, []string{"C", "1"}, "40000/A")

	vs, err := childkeyRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "exceeding scale")
	assert.Equal(t, []string{"1", "A"}, vs[0].Keys)
}

func TestChildkeys_ZeroProportionSum(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "1"}, "0/B")
	q.Put(mapParents, []string{"B", "1"}, "0/A")

	vs, err := childkeyRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "zero total proportion")
}

func TestChildkeys_ReverseConsistency(t *testing.T) {
	// A -> B has no parent entry; C's parent entry names D which lists no
	// children. Both one-way implications fire.
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "1"}, "65536/B")
	q.Put(mapParents, []string{"C", "1"}, "65536/D")

	vs, err := childkeyRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 2)

	var fwdMissing, revMissing bool
	for _, v := range vs {
		if strings.Contains(v.Message, "missing from "+mapParents) {
			fwdMissing = true
		}
		if strings.Contains(v.Message, "missing from "+mapChildren) {
			revMissing = true
		}
	}
	assert.True(t, fwdMissing)
	assert.True(t, revMissing)
}

func TestChildkeys_OtherPartitionIgnored(t *testing.T) {
	// The broken edges live on subnet 2, which has no NetworksAdded entry.
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "2"}, "65536/A")

	vs, err := childkeyRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestChildkeys_MalformedEdgeList(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapChildren, []string{"A", "1"}, "garbage")

	_, err := childkeyRule().Check(context.Background(), testSource(q))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed edge")
}

func TestFindCycles_ReportsEachOnce(t *testing.T) {
	adjacency := map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"},
		"X": {"X"},
	}
	cycles := findCycles(adjacency)
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"A", "B", "C", "A"}, cycles[0])
	assert.Equal(t, []string{"X", "X"}, cycles[1])
}

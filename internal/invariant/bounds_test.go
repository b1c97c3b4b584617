package invariant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gztensor/qa-automation/internal/testutil"
)

const mapMaxUids = "SubtensorModule.MaxAllowedUids"

func boundRule() *BoundRule {
	return &BoundRule{
		RuleID:    "uid-bound",
		Partition: PartitionsFromMap(mapNetworks),
		ValueMap:  mapN,
		MaxMap:    mapMaxUids,
	}
}

func TestBound_WithinLimit(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapN, []string{"1"}, "64")
	q.Put(mapMaxUids, []string{"1"}, "64")

	vs, err := boundRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestBound_Exceeded(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapN, []string{"1"}, "65")
	q.Put(mapMaxUids, []string{"1"}, "64")

	vs, err := boundRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, []string{"1"}, vs[0].Keys)
	assert.Contains(t, vs[0].Message, "exceeds")
}

func TestBound_ChecksEveryPartition(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	q.Put(mapNetworks, []string{"2"}, "1")
	q.Put(mapNetworks, []string{"3"}, "1")
	q.Put(mapN, []string{"1"}, "100")
	q.Put(mapMaxUids, []string{"1"}, "64")
	q.Put(mapN, []string{"2"}, "10")
	q.Put(mapMaxUids, []string{"2"}, "64")
	q.Put(mapN, []string{"3"}, "70")
	q.Put(mapMaxUids, []string{"3"}, "64")

	vs, err := boundRule().Check(context.Background(), testSource(q))
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, []string{"1"}, vs[0].Keys)
	assert.Equal(t, []string{"3"}, vs[1].Keys)
}

func TestBound_MissingCounterIsInfraError(t *testing.T) {
	q := testutil.NewFakeQuerier()
	q.Put(mapNetworks, []string{"1"}, "1")
	// neither value nor max present

	_, err := boundRule().Check(context.Background(), testSource(q))
	require.Error(t, err)
}

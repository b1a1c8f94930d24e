package shard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/sourcecoord/types"
)

// pagedLister serves fixed pages and can fail on a given page.
type pagedLister struct {
	pages  [][]types.UnitDescriptor
	failAt int
	calls  int
	starts []string
}

func (l *pagedLister) ListShards(_ context.Context, _, exclusiveStartShardID string) ([]types.UnitDescriptor, string, error) {
	idx := l.calls
	l.calls++
	l.starts = append(l.starts, exclusiveStartShardID)

	if l.failAt > 0 && l.calls == l.failAt {
		return nil, "", errors.New("throttled")
	}

	page := l.pages[idx]
	next := ""
	if idx < len(l.pages)-1 {
		next = page[len(page)-1].ID
	}

	return page, next, nil
}

func TestManager_RunDiscoveryPages(t *testing.T) {
	lister := &pagedLister{pages: [][]types.UnitDescriptor{
		{{ID: "s0"}, {ID: "s1"}},
		{{ID: "s2", ParentID: "s0"}, {ID: "s3", ParentID: "s1"}},
		{{ID: "s4", ParentID: "s1"}},
	}}
	m := NewManager(lister)

	units, err := m.RunDiscovery(context.Background(), "stream-1")
	require.NoError(t, err)
	require.Len(t, units, 5)
	require.Equal(t, []string{"", "s1", "s3"}, lister.starts)

	require.Equal(t, []string{"s2"}, m.FindChildShardIDs("stream-1", "s0"))
	require.Equal(t, []string{"s3", "s4"}, m.FindChildShardIDs("stream-1", "s1"))
	require.Empty(t, m.FindChildShardIDs("stream-1", "s4"))
	require.Empty(t, m.FindChildShardIDs("unknown", "s0"))
}

func TestManager_FailedDiscoveryKeepsPreviousTopology(t *testing.T) {
	lister := &pagedLister{pages: [][]types.UnitDescriptor{
		{{ID: "s0"}, {ID: "s1", ParentID: "s0"}},
	}}
	m := NewManager(lister)

	_, err := m.RunDiscovery(context.Background(), "stream-1")
	require.NoError(t, err)

	lister.calls = 0
	lister.failAt = 1
	_, err = m.RunDiscovery(context.Background(), "stream-1")
	require.ErrorContains(t, err, "throttled")

	require.Equal(t, []string{"s1"}, m.FindChildShardIDs("stream-1", "s0"))
}

func TestManager_RunDiscoveryCancelled(t *testing.T) {
	lister := &pagedLister{pages: [][]types.UnitDescriptor{{{ID: "s0"}}}}
	m := NewManager(lister)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.RunDiscovery(ctx, "stream-1")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, lister.calls)
}

func TestManager_RediscoveryReplacesTopology(t *testing.T) {
	lister := &pagedLister{pages: [][]types.UnitDescriptor{
		{{ID: "s0"}, {ID: "s1", ParentID: "s0"}},
	}}
	m := NewManager(lister)

	_, err := m.RunDiscovery(context.Background(), "stream-1")
	require.NoError(t, err)

	lister.calls = 0
	lister.pages = [][]types.UnitDescriptor{
		{{ID: "s1"}, {ID: "s2", ParentID: "s1"}},
	}
	_, err = m.RunDiscovery(context.Background(), "stream-1")
	require.NoError(t, err)

	require.Empty(t, m.FindChildShardIDs("stream-1", "s0"))
	require.Equal(t, []string{"s2"}, m.FindChildShardIDs("stream-1", "s1"))
}

func TestRootShardIDs(t *testing.T) {
	units := []types.UnitDescriptor{
		{ID: "s0"},
		{ID: "s1", ParentID: "s0"},
		{ID: "s2", ParentID: "expired"},
		{ID: "s3"},
	}

	require.Equal(t, []string{"s0", "s2", "s3"}, RootShardIDs(units))
	require.Empty(t, RootShardIDs(nil))
}

func TestPartitionKey(t *testing.T) {
	key := PartitionKey("arn:aws:dynamodb:us-east-1:1:table/orders/stream/2024", "shardId-1")

	streamID, shardID, ok := SplitPartitionKey(key)
	require.True(t, ok)
	require.Equal(t, "arn:aws:dynamodb:us-east-1:1:table/orders/stream/2024", streamID)
	require.Equal(t, "shardId-1", shardID)

	for _, bad := range []string{"", "no-delimiter", "|shard", "stream|"} {
		_, _, ok := SplitPartitionKey(bad)
		require.False(t, ok, bad)
	}
}

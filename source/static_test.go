package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/sourcecoord/shard"
	"github.com/arloliu/sourcecoord/types"
)

func newTopology(pageSize int) *Static {
	src := NewStatic(pageSize)
	src.AddSource(shard.SourceDescription{
		SourceID:                   "orders",
		StreamEnabled:              true,
		StreamID:                   "orders-stream",
		PointInTimeRecoveryEnabled: true,
	})
	src.AddShards("orders-stream",
		types.UnitDescriptor{ID: "s0"},
		types.UnitDescriptor{ID: "s1"},
		types.UnitDescriptor{ID: "s2", ParentID: "s0"},
		types.UnitDescriptor{ID: "s3", ParentID: "s0"},
		types.UnitDescriptor{ID: "s4", ParentID: "s1"},
	)

	return src
}

func TestStatic_DescribeSource(t *testing.T) {
	src := newTopology(0)

	t.Run("returns registered description", func(t *testing.T) {
		desc, err := src.DescribeSource(context.Background(), "orders")
		require.NoError(t, err)
		require.Equal(t, "orders-stream", desc.StreamID)
		require.True(t, desc.PointInTimeRecoveryEnabled)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := src.DescribeSource(context.Background(), "missing")
		require.ErrorIs(t, err, types.ErrSourceNotFound)
	})

	require.Equal(t, int64(2), src.DescribeCalls())
}

func TestStatic_ListShards(t *testing.T) {
	t.Run("single page", func(t *testing.T) {
		src := newTopology(0)

		units, next, err := src.ListShards(context.Background(), "orders-stream", "")
		require.NoError(t, err)
		require.Len(t, units, 5)
		require.Empty(t, next)
	})

	t.Run("paginates", func(t *testing.T) {
		src := newTopology(2)

		var (
			ids   []string
			start string
		)
		for {
			units, next, err := src.ListShards(context.Background(), "orders-stream", start)
			require.NoError(t, err)
			for _, u := range units {
				ids = append(ids, u.ID)
			}
			if next == "" {
				break
			}
			start = next
		}

		require.Equal(t, []string{"s0", "s1", "s2", "s3", "s4"}, ids)
		require.Equal(t, int64(3), src.ListCalls())
	})

	t.Run("exact page boundary", func(t *testing.T) {
		src := NewStatic(2)
		src.AddShards("stream", types.UnitDescriptor{ID: "a"}, types.UnitDescriptor{ID: "b"})

		units, next, err := src.ListShards(context.Background(), "stream", "")
		require.NoError(t, err)
		require.Len(t, units, 2)
		require.Empty(t, next)
	})

	t.Run("unknown stream", func(t *testing.T) {
		src := newTopology(0)
		_, _, err := src.ListShards(context.Background(), "missing", "")
		require.ErrorIs(t, err, types.ErrSourceNotFound)
	})

	t.Run("unknown start shard", func(t *testing.T) {
		src := newTopology(0)
		_, _, err := src.ListShards(context.Background(), "orders-stream", "nope")
		require.Error(t, err)
	})

	t.Run("does not expose internal slice", func(t *testing.T) {
		src := newTopology(0)
		units, _, err := src.ListShards(context.Background(), "orders-stream", "")
		require.NoError(t, err)
		units[0].ID = "mutated"

		again, _, err := src.ListShards(context.Background(), "orders-stream", "")
		require.NoError(t, err)
		require.Equal(t, "s0", again[0].ID)
	})

	t.Run("cancelled context", func(t *testing.T) {
		src := newTopology(0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := src.ListShards(ctx, "orders-stream", "")
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestStatic_AddShardsAfterDiscovery(t *testing.T) {
	src := newTopology(0)
	src.AddShards("orders-stream", types.UnitDescriptor{ID: "s5", ParentID: "s4"})

	units, _, err := src.ListShards(context.Background(), "orders-stream", "")
	require.NoError(t, err)
	require.Len(t, units, 6)
	require.Equal(t, "s4", units[5].ParentID)
}

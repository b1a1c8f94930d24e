package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coordtest "github.com/arloliu/sourcecoord/testing"
	"github.com/arloliu/sourcecoord/types"
)

const (
	streamID = "orders|STREAM"
	globalID = "orders|GLOBAL_STATE"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestPostgresStore runs every case against one container; each case uses
// its own table.
func TestPostgresStore(t *testing.T) {
	pool := coordtest.StartPostgres(t)

	var tableSeq int
	newStore := func(t *testing.T, opts ...Option) (*Store, *fakeClock) {
		t.Helper()

		tableSeq++
		table := fmt.Sprintf("items_%d", tableSeq)
		require.NoError(t, Migrate(t.Context(), pool, table))
		// Migrations are idempotent.
		require.NoError(t, Migrate(t.Context(), pool, table))

		clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
		opts = append([]Option{WithTable(table), WithClock(clock.Now), WithLogger(coordtest.NewTestLogger(t))}, opts...)

		return NewStore(pool, opts...), clock
	}

	t.Run("create is idempotent", func(t *testing.T) {
		ctx := context.Background()
		store, _ := newStore(t)

		created, err := store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, []byte("p1"), false)
		require.NoError(t, err)
		require.True(t, created)

		created, err = store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 4, []byte("p2"), false)
		require.NoError(t, err)
		require.False(t, created)

		item, ok, err := store.GetSourcePartitionItem(ctx, streamID, "shard-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("p1"), item.ProgressState)
		require.Zero(t, item.ClosedCount)
		require.Empty(t, item.Owner)
		require.True(t, item.OwnershipTimeout.IsZero())

		_, ok, err = store.GetSourcePartitionItem(ctx, streamID, "missing")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("global state is never acquired", func(t *testing.T) {
		ctx := context.Background()
		store, _ := newStore(t)

		created, err := store.TryCreatePartitionItem(ctx, globalID, "stream-1", types.StatusUnassigned, 0, nil, true)
		require.NoError(t, err)
		require.True(t, created)

		_, ok, err := store.TryAcquireAvailablePartition(ctx, globalID, "worker-1", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("acquire update and stale version", func(t *testing.T) {
		ctx := context.Background()
		store, clock := newStore(t)

		_, err := store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, nil, false)
		require.NoError(t, err)

		item, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, types.StatusAssigned, item.Status)
		require.Equal(t, "worker-1", item.Owner)
		require.True(t, clock.Now().Add(time.Minute).Equal(item.OwnershipTimeout))

		_, ok, err = store.TryAcquireAvailablePartition(ctx, streamID, "worker-2", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)

		prev := item.Version
		item.ProgressState = []byte("checkpoint")
		ok, err = store.TryUpdateSourcePartitionItem(ctx, &item)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, prev+1, item.Version)

		stale := item
		stale.Version = prev
		ok, err = store.TryUpdateSourcePartitionItem(ctx, &stale)
		require.NoError(t, err)
		require.False(t, ok)

		ghost := types.PartitionItem{SourceIdentifier: streamID, PartitionKey: "ghost", Version: 1}
		ok, err = store.TryUpdateSourcePartitionItem(ctx, &ghost)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("reopen ordering", func(t *testing.T) {
		ctx := context.Background()
		store, clock := newStore(t)
		now := clock.Now()

		for _, key := range []string{"late", "early", "fresh"} {
			_, err := store.TryCreatePartitionItem(ctx, streamID, key, types.StatusUnassigned, 0, nil, false)
			require.NoError(t, err)
		}
		for key, reopen := range map[string]time.Time{
			"late":  now.Add(-60 * time.Second),
			"early": now.Add(-120 * time.Second),
		} {
			item, _, err := store.GetSourcePartitionItem(ctx, streamID, key)
			require.NoError(t, err)
			item.Status = types.StatusClosed
			item.ReopenAt = reopen
			ok, err := store.TryUpdateSourcePartitionItem(ctx, &item)
			require.NoError(t, err)
			require.True(t, ok)
		}

		var order []string
		for range 3 {
			item, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
			order = append(order, item.PartitionKey)
		}
		require.Equal(t, []string{"fresh", "early", "late"}, order)
	})

	t.Run("expired lease reclaim", func(t *testing.T) {
		ctx := context.Background()
		store, clock := newStore(t)

		_, err := store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, nil, false)
		require.NoError(t, err)
		first, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(2 * time.Minute)
		second, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-2", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "worker-2", second.Owner)

		ok, err = store.TryUpdateSourcePartitionItem(ctx, &first)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("expired lease kept when reclaim disabled", func(t *testing.T) {
		ctx := context.Background()
		store, clock := newStore(t, WithLeaseReclaim(false))

		_, err := store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, nil, false)
		require.NoError(t, err)
		_, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(time.Hour)
		_, ok, err = store.TryAcquireAvailablePartition(ctx, streamID, "worker-2", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("query completed since", func(t *testing.T) {
		ctx := context.Background()
		store, clock := newStore(t)
		start := clock.Now()

		for i := range 3 {
			_, err := store.TryCreatePartitionItem(ctx, streamID, fmt.Sprintf("shard-%d", i), types.StatusUnassigned, 0, nil, false)
			require.NoError(t, err)
		}
		for range 2 {
			clock.Advance(time.Second)
			item, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
			item.Status = types.StatusCompleted
			item.PriorityTimestamp = clock.Now()
			ok, err = store.TryUpdateSourcePartitionItem(ctx, &item)
			require.NoError(t, err)
			require.True(t, ok)
		}

		completed, err := store.QuerySourcePartitionItemsByStatus(ctx, streamID, types.StatusCompleted, start)
		require.NoError(t, err)
		require.Len(t, completed, 2)

		recent, err := store.QuerySourcePartitionItemsByStatus(ctx, streamID, types.StatusCompleted, clock.Now())
		require.NoError(t, err)
		require.Len(t, recent, 1)

		pending, err := store.QuerySourcePartitionItemsByStatus(ctx, streamID, types.StatusUnassigned, time.Time{})
		require.NoError(t, err)
		require.Len(t, pending, 1)
	})

	t.Run("concurrent acquire at most one owner", func(t *testing.T) {
		ctx := context.Background()
		store, _ := newStore(t)

		const items = 50
		for i := range items {
			_, err := store.TryCreatePartitionItem(ctx, streamID, fmt.Sprintf("shard-%02d", i), types.StatusUnassigned, 0, nil, false)
			require.NoError(t, err)
		}

		var (
			mu     sync.Mutex
			owners = make(map[string]string)
			dupes  []string
			wg     sync.WaitGroup
		)
		for w := range 8 {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for {
					item, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, id, time.Hour)
					if err != nil || !ok {
						return
					}
					mu.Lock()
					if prev, exists := owners[item.PartitionKey]; exists {
						dupes = append(dupes, item.PartitionKey+" "+prev+" "+id)
					}
					owners[item.PartitionKey] = id
					mu.Unlock()
				}
			}(fmt.Sprintf("worker-%d", w))
		}
		wg.Wait()

		require.Empty(t, dupes)
		require.Len(t, owners, items)
	})
}

func TestRenderMigration(t *testing.T) {
	sql := renderMigration("my_items")

	require.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "my_items"`)
	require.Contains(t, sql, `"my_items_status_idx"`)
	require.NotContains(t, sql, "__TABLE__")
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Table = "custom_items"
	cfg.ReclaimExpiredLeases = false

	store := NewStore(nil, cfg.Options()...)
	require.Equal(t, "custom_items", store.table)
	require.False(t, store.reclaim)
	require.Contains(t, store.qAcquire, `"custom_items"`)
}

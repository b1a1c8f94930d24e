package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/sourcecoord/types"
	"github.com/stretchr/testify/require"
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

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: testNow}

	return NewStore(WithClock(clock.Now)), clock
}

func TestStore_IdempotentCreate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	created, err := store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, []byte("p1"), false)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 1, store.Accessor(streamID).QueueLen())

	created, err = store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 5, []byte("p2"), false)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 1, store.Accessor(streamID).QueueLen())

	item, ok, err := store.GetSourcePartitionItem(ctx, streamID, "shard-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("p1"), item.ProgressState)
	require.Zero(t, item.ClosedCount)
}

func TestStore_CreateGlobalState(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	created, err := store.TryCreatePartitionItem(ctx, globalID, "stream-1", types.StatusUnassigned, 0, nil, true)
	require.NoError(t, err)
	require.True(t, created)

	_, ok, err := store.TryAcquireAvailablePartition(ctx, globalID, "worker-1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.TryCreatePartitionItem(ctx, streamID, "x", types.StatusUnassigned, 0, nil, true)
	require.ErrorIs(t, err, types.ErrInvalidPartitionType)
}

func TestStore_AcquireSetsLease(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	_, err := store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, nil, false)
	require.NoError(t, err)

	item, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.StatusAssigned, item.Status)
	require.Equal(t, "worker-1", item.Owner)
	require.Equal(t, testNow.Add(5*time.Minute), item.OwnershipTimeout)

	stored, _, _ := store.GetSourcePartitionItem(ctx, streamID, "shard-1")
	require.Equal(t, item, stored)

	_, ok, err = store.TryAcquireAvailablePartition(ctx, streamID, "worker-2", 5*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_NoLeaseAutoExpiry(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore()

	_, err := store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, nil, false)
	require.NoError(t, err)
	_, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(time.Hour)

	_, ok, err = store.TryAcquireAvailablePartition(ctx, streamID, "worker-2", time.Second)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_UpdateVanishedOrStale(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	ghost := unassigned("ghost")
	ok, err := store.TryUpdateSourcePartitionItem(ctx, &ghost)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, nil, false)
	require.NoError(t, err)
	item, _, _ := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Minute)

	item.ProgressState = []byte("checkpoint")
	ok, err = store.TryUpdateSourcePartitionItem(ctx, &item)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, uint64(2), item.Version)

	stale := item
	stale.Version = 1
	ok, err = store.TryUpdateSourcePartitionItem(ctx, &stale)
	require.NoError(t, err)
	require.False(t, ok)

	// the refreshed version keeps working
	ok, err = store.TryUpdateSourcePartitionItem(ctx, &item)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_ClosedReopenAndComplete(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore()

	_, err := store.TryCreatePartitionItem(ctx, streamID, "shard-1", types.StatusUnassigned, 0, nil, false)
	require.NoError(t, err)
	item, _, _ := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Minute)

	item.Status = types.StatusClosed
	item.Owner = ""
	item.ClosedCount++
	item.ReopenAt = testNow.Add(time.Minute)
	ok, err := store.TryUpdateSourcePartitionItem(ctx, &item)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = store.TryAcquireAvailablePartition(ctx, streamID, "worker-2", time.Minute)
	require.False(t, ok)

	clock.Advance(time.Minute)
	item, ok, _ = store.TryAcquireAvailablePartition(ctx, streamID, "worker-2", time.Minute)
	require.True(t, ok)
	require.Equal(t, "worker-2", item.Owner)
	require.Equal(t, int64(1), item.ClosedCount)

	item.Status = types.StatusCompleted
	item.PriorityTimestamp = clock.Now()
	ok, err = store.TryUpdateSourcePartitionItem(ctx, &item)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(time.Hour)
	_, ok, _ = store.TryAcquireAvailablePartition(ctx, streamID, "worker-3", time.Minute)
	require.False(t, ok)

	completed, err := store.QuerySourcePartitionItemsByStatus(ctx, streamID, types.StatusCompleted, testNow)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, "shard-1", completed[0].PartitionKey)

	completed, err = store.QuerySourcePartitionItemsByStatus(ctx, streamID, types.StatusCompleted, clock.Now())
	require.NoError(t, err)
	require.Empty(t, completed)
}

func TestStore_SourcesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	_, err := store.TryCreatePartitionItem(ctx, "orders|EXPORT", "file-1", types.StatusUnassigned, 0, nil, false)
	require.NoError(t, err)

	_, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, "worker-1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	item, ok, err := store.TryAcquireAvailablePartition(ctx, "orders|EXPORT", "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "file-1", item.PartitionKey)
}

func TestStore_ConcurrentAcquireAtMostOneOwner(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	const items = 200
	for i := range items {
		_, err := store.TryCreatePartitionItem(ctx, streamID, fmt.Sprintf("shard-%03d", i), types.StatusUnassigned, 0, nil, false)
		require.NoError(t, err)
	}

	const workers = 16
	var (
		mu     sync.Mutex
		owners = make(map[string]string)
		dupes  []string
		wg     sync.WaitGroup
	)
	for w := range workers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for {
				item, ok, err := store.TryAcquireAvailablePartition(ctx, streamID, id, time.Minute)
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
}

func TestStore_CancelledContext(t *testing.T) {
	store, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.TryAcquireAvailablePartition(ctx, streamID, "w", time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

package memory

import (
	"sync"
	"time"

	"github.com/arloliu/sourcecoord/types"
	"github.com/google/btree"
)

// queueEntry is one element of the ready queue. seq keeps equal priorities
// distinct in the tree and dequeues them in insertion order.
type queueEntry struct {
	priority time.Time
	seq      uint64
	key      types.ItemKey
}

func lessEntry(a, b queueEntry) bool {
	if c := types.CompareReadiness(a.priority, b.priority); c != 0 {
		return c < 0
	}

	return a.seq < b.seq
}

type record struct {
	item   types.PartitionItem
	queued bool
	entry  queueEntry
}

// Accessor keeps partition items in a direct-access map plus a ready queue of
// non-global items, both guarded by one mutex.
//
// Queueing rules:
//   - Global-state items live in the map only
//   - UNASSIGNED items are queued as ready now
//   - CLOSED items are queued at their ReopenAt
//   - ASSIGNED and COMPLETED items are never queued
//
// Accessor is safe for concurrent use.
type Accessor struct {
	mu      sync.Mutex
	items   map[types.ItemKey]*record
	queue   *btree.BTreeG[queueEntry]
	nextSeq uint64
}

// NewAccessor creates an empty accessor.
func NewAccessor() *Accessor {
	return &Accessor{
		items: make(map[types.ItemKey]*record),
		queue: btree.NewG[queueEntry](8, lessEntry),
	}
}

// QueuePartition inserts item into the map, replacing any previous value, and
// queues it according to its status.
func (a *Accessor) QueuePartition(item types.PartitionItem) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := item.Key()
	rec, ok := a.items[key]
	if !ok {
		rec = &record{}
		a.items[key] = rec
	}
	rec.item = item.Clone()
	a.requeueLocked(rec)
}

// GetItem returns the item stored under (sourceIdentifier, partitionKey).
func (a *Accessor) GetItem(sourceIdentifier, partitionKey string) (types.PartitionItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.items[types.ItemKey{SourceIdentifier: sourceIdentifier, PartitionKey: partitionKey}]
	if !ok {
		return types.PartitionItem{}, false
	}

	return rec.item.Clone(), true
}

// GetNextItem dequeues the highest-priority entry if it is eligible at now.
//
// The head is eligible when it is ready now or its priority is not after now.
// The dequeue is destructive: the item stays in the map but is no longer
// queued until the caller requeues or updates it.
func (a *Accessor) GetNextItem(now time.Time) (types.PartitionItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	head, ok := a.queue.Min()
	if !ok {
		return types.PartitionItem{}, false
	}
	if !head.priority.IsZero() && head.priority.After(now) {
		return types.PartitionItem{}, false
	}

	a.queue.Delete(head)
	rec := a.items[head.key]
	rec.queued = false

	return rec.item.Clone(), true
}

// UpdateItem overwrites a stored item and requeues it per its new status.
//
// Returns false, doing nothing, when the key is absent.
func (a *Accessor) UpdateItem(item types.PartitionItem) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.items[item.Key()]
	if !ok {
		return false
	}
	rec.item = item.Clone()
	a.requeueLocked(rec)

	return true
}

// CompareAndUpdate overwrites a stored item only when its Version equals
// item.Version. The stored copy gets Version+1.
//
// Returns the stored item and true on success; false when the key is absent
// or the version does not match.
func (a *Accessor) CompareAndUpdate(item types.PartitionItem) (types.PartitionItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.items[item.Key()]
	if !ok || rec.item.Version != item.Version {
		return types.PartitionItem{}, false
	}
	rec.item = item.Clone()
	rec.item.Version = item.Version + 1
	a.requeueLocked(rec)

	return rec.item.Clone(), true
}

// InsertIfAbsent stores item unless its key exists.
//
// Returns false without mutating anything when the key exists.
func (a *Accessor) InsertIfAbsent(item types.PartitionItem) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := item.Key()
	if _, ok := a.items[key]; ok {
		return false
	}
	rec := &record{item: item.Clone()}
	a.items[key] = rec
	a.requeueLocked(rec)

	return true
}

// Items returns a snapshot of every item of sourceIdentifier.
func (a *Accessor) Items(sourceIdentifier string) []types.PartitionItem {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]types.PartitionItem, 0, len(a.items))
	for key, rec := range a.items {
		if key.SourceIdentifier == sourceIdentifier {
			out = append(out, rec.item.Clone())
		}
	}

	return out
}

// QueueLen returns the number of queued entries.
func (a *Accessor) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.queue.Len()
}

// requeueLocked drops any queued entry of rec and queues it again if its
// status calls for it. Callers hold a.mu.
func (a *Accessor) requeueLocked(rec *record) {
	if rec.queued {
		a.queue.Delete(rec.entry)
		rec.queued = false
	}
	if rec.item.IsGlobalState() {
		return
	}

	var priority time.Time
	switch rec.item.Status {
	case types.StatusUnassigned:
	case types.StatusClosed:
		priority = rec.item.ReopenAt
	default:
		return
	}

	a.nextSeq++
	rec.entry = queueEntry{priority: priority, seq: a.nextSeq, key: rec.item.Key()}
	rec.queued = true
	a.queue.ReplaceOrInsert(rec.entry)
}

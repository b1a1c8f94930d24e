package types

import (
	"context"
	"sort"
	"time"
)

// CoordinationStore is the backend contract used by the coordination core.
//
// Implementations must provide:
//   - Atomic point lookup
//   - Atomic acquire-or-empty: an available item is handed to at most one caller
//   - Update-or-noop: updates of vanished (or concurrently modified) items report false
//
// Available backends:
//   - store/memory: in-process reference backend
//   - store/natskv: NATS JetStream KV with revision-conditional writes
//   - store/postgres: PostgreSQL with version-conditional writes
//
// None of the methods block waiting for work; callers own their poll cadence.
type CoordinationStore interface {
	// GetSourcePartitionItem returns the item stored under (sourceIdentifier, partitionKey).
	//
	// Returns:
	//   - PartitionItem: The stored item (zero value if absent)
	//   - bool: true if the item exists
	//   - error: Backend error
	GetSourcePartitionItem(ctx context.Context, sourceIdentifier, partitionKey string) (PartitionItem, bool, error)

	// TryAcquireAvailablePartition leases the next available item of sourceIdentifier.
	//
	// On success the returned item is ASSIGNED to ownerID with
	// OwnershipTimeout = now + ownershipTimeout.
	//
	// Returns:
	//   - PartitionItem: The acquired item
	//   - bool: false when nothing is available (never blocks)
	//   - error: Backend error
	TryAcquireAvailablePartition(ctx context.Context, sourceIdentifier, ownerID string, ownershipTimeout time.Duration) (PartitionItem, bool, error)

	// TryUpdateSourcePartitionItem persists item, conditional on item.Version
	// matching the stored version. On success item.Version is set to the new
	// stored version so the caller can keep updating.
	//
	// Returns:
	//   - bool: false when the item no longer exists or was modified by someone else
	//     (lease lost). Callers must stop assuming ownership.
	//   - error: Backend error
	TryUpdateSourcePartitionItem(ctx context.Context, item *PartitionItem) (bool, error)

	// TryCreatePartitionItem creates a new item unless the key already exists.
	//
	// Returns:
	//   - bool: true if created, false if the key existed (nothing is mutated)
	//   - error: Backend error
	TryCreatePartitionItem(
		ctx context.Context,
		sourceIdentifier, partitionKey string,
		status Status,
		closedCount int64,
		progressState []byte,
		isGlobalState bool,
	) (bool, error)

	// QuerySourcePartitionItemsByStatus returns items of sourceIdentifier in status
	// whose PriorityTimestamp is at or after since, ordered by PriorityTimestamp.
	QuerySourcePartitionItemsByStatus(ctx context.Context, sourceIdentifier string, status Status, since time.Time) ([]PartitionItem, error)
}

// CompareReadiness orders two ready-queue priorities.
//
// A zero time means "ready now". Ready-now priorities are equal to each other
// and sort before any timestamp-gated priority; gated priorities sort by time.
//
// Returns a negative number when a sorts first, zero when equal, positive otherwise.
func CompareReadiness(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return -1
	case b.IsZero():
		return 1
	default:
		return a.Compare(b)
	}
}

// ReadyAt returns the queue priority of item and whether it can be handed out
// by an acquire at all.
//
// UNASSIGNED items are ready now, CLOSED items at ReopenAt. When
// reclaimExpired is set, ASSIGNED items become available at their
// OwnershipTimeout. Global-state and COMPLETED items are never available.
func ReadyAt(item PartitionItem, reclaimExpired bool) (time.Time, bool) {
	if item.IsGlobalState() {
		return time.Time{}, false
	}

	switch item.Status {
	case StatusUnassigned:
		return time.Time{}, true
	case StatusClosed:
		return item.ReopenAt, true
	case StatusAssigned:
		if reclaimExpired && !item.OwnershipTimeout.IsZero() {
			return item.OwnershipTimeout, true
		}
	}

	return time.Time{}, false
}

// IsEligible reports whether a queue priority has come due at now.
func IsEligible(priority, now time.Time) bool {
	return priority.IsZero() || !priority.After(now)
}

// NewPartitionItem builds the initial record written by TryCreatePartitionItem.
func NewPartitionItem(sourceIdentifier, partitionKey string, status Status, closedCount int64, progressState []byte) PartitionItem {
	item := PartitionItem{
		SourceIdentifier: sourceIdentifier,
		PartitionKey:     partitionKey,
		Status:           status,
		ClosedCount:      closedCount,
		ProgressState:    progressState,
	}

	return item.Clone()
}

// FilterByStatus keeps items in status with PriorityTimestamp at or after
// since and sorts them by PriorityTimestamp, then key.
func FilterByStatus(items []PartitionItem, status Status, since time.Time) []PartitionItem {
	out := make([]PartitionItem, 0, len(items))
	for _, item := range items {
		if item.Status != status {
			continue
		}
		if !since.IsZero() && item.PriorityTimestamp.Before(since) {
			continue
		}
		out = append(out, item)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].PriorityTimestamp.Compare(out[j].PriorityTimestamp); c != 0 {
			return c < 0
		}

		return out[i].PartitionKey < out[j].PartitionKey
	})

	return out
}

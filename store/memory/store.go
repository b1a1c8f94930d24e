// Package memory provides the in-process reference CoordinationStore.
//
// Items live in one Accessor per source identifier. Acquisition dequeues the
// ready queue under the accessor lock, so an item is handed to at most one
// caller. Leases are not reclaimed automatically: an ASSIGNED item becomes
// available again only through an explicit update by its owner.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/sourcecoord/types"
	"github.com/puzpuzpuz/xsync/v4"
)

// Store implements types.CoordinationStore in memory.
type Store struct {
	accessors *xsync.Map[string, *Accessor]
	now       func() time.Time
}

// Compile-time assertion that Store implements CoordinationStore.
var _ types.CoordinationStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for lease deadlines and reopen checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty in-memory store.
//
// Example:
//
//	store := memory.NewStore()
//	coord, err := sourcecoord.NewCoordinator(&cfg, store)
func NewStore(opts ...Option) *Store {
	s := &Store{
		accessors: xsync.NewMap[string, *Accessor](),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Accessor returns the accessor holding sourceIdentifier's items, creating it on first use.
func (s *Store) Accessor(sourceIdentifier string) *Accessor {
	acc, _ := s.accessors.LoadOrStore(sourceIdentifier, NewAccessor())

	return acc
}

// GetSourcePartitionItem returns the item stored under (sourceIdentifier, partitionKey).
func (s *Store) GetSourcePartitionItem(ctx context.Context, sourceIdentifier, partitionKey string) (types.PartitionItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.PartitionItem{}, false, err
	}
	item, ok := s.Accessor(sourceIdentifier).GetItem(sourceIdentifier, partitionKey)

	return item, ok, nil
}

// TryAcquireAvailablePartition leases the next eligible queued item of sourceIdentifier.
func (s *Store) TryAcquireAvailablePartition(
	ctx context.Context,
	sourceIdentifier, ownerID string,
	ownershipTimeout time.Duration,
) (types.PartitionItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.PartitionItem{}, false, err
	}

	acc := s.Accessor(sourceIdentifier)
	for {
		now := s.now()
		item, ok := acc.GetNextItem(now)
		if !ok {
			return types.PartitionItem{}, false, nil
		}

		item.Status = types.StatusAssigned
		item.Owner = ownerID
		item.OwnershipTimeout = now.Add(ownershipTimeout)

		stored, ok := acc.CompareAndUpdate(item)
		if ok {
			return stored, true, nil
		}
		// Modified between dequeue and write; the writer requeued it if needed.
	}
}

// TryUpdateSourcePartitionItem persists item if it still exists with the same version.
func (s *Store) TryUpdateSourcePartitionItem(ctx context.Context, item *types.PartitionItem) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	stored, ok := s.Accessor(item.SourceIdentifier).CompareAndUpdate(*item)
	if ok {
		item.Version = stored.Version
	}

	return ok, nil
}

// TryCreatePartitionItem creates a new item unless the key already exists.
func (s *Store) TryCreatePartitionItem(
	ctx context.Context,
	sourceIdentifier, partitionKey string,
	status types.Status,
	closedCount int64,
	progressState []byte,
	isGlobalState bool,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if isGlobalState != types.IsGlobalStateIdentifier(sourceIdentifier) {
		return false, fmt.Errorf("%w: global-state flag does not match identifier %q",
			types.ErrInvalidPartitionType, sourceIdentifier)
	}

	item := types.NewPartitionItem(sourceIdentifier, partitionKey, status, closedCount, progressState)

	return s.Accessor(sourceIdentifier).InsertIfAbsent(item), nil
}

// QuerySourcePartitionItemsByStatus returns items of sourceIdentifier in status
// whose PriorityTimestamp is at or after since, ordered by PriorityTimestamp.
func (s *Store) QuerySourcePartitionItemsByStatus(
	ctx context.Context,
	sourceIdentifier string,
	status types.Status,
	since time.Time,
) ([]types.PartitionItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return types.FilterByStatus(s.Accessor(sourceIdentifier).Items(sourceIdentifier), status, since), nil
}

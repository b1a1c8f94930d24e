// Package natskv implements types.CoordinationStore on a NATS JetStream
// KeyValue bucket.
//
// Every partition item is one JSON value. Writes are conditional on the
// entry revision, which gives the at-most-one-owner guarantee across
// processes: two workers racing for the same item both attempt an Update
// against the revision they read and only one succeeds.
//
// Keys are "<xxh3(sourceIdentifier)>.<xxh3(partitionKey)>" in hex, so
// arbitrary identifiers map onto valid NATS subjects and all items of one
// source share a subject prefix that a watcher can filter on.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/arloliu/sourcecoord/internal/kvutil"
	"github.com/arloliu/sourcecoord/internal/logging"
	"github.com/arloliu/sourcecoord/internal/natsutil"
	"github.com/arloliu/sourcecoord/types"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/zeebo/xxh3"
)

// Store implements types.CoordinationStore on a JetStream KV bucket.
type Store struct {
	kv      jetstream.KeyValue
	reclaim bool
	now     func() time.Time
	logger  types.Logger
}

// Compile-time assertion that Store implements CoordinationStore.
var _ types.CoordinationStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for lease deadlines and eligibility.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLeaseReclaim enables or disables reclaiming expired ASSIGNED items.
func WithLeaseReclaim(enabled bool) Option {
	return func(s *Store) {
		s.reclaim = enabled
	}
}

// NewStore creates or opens the configured bucket and returns a store on it.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - cfg: Store configuration
//   - opts: Optional settings
//
// Returns:
//   - *Store: Store backed by the bucket
//   - error: Invalid configuration or bucket creation failure
//
// Example:
//
//	js, _ := jetstream.New(nc)
//	store, err := natskv.NewStore(ctx, js, natskv.DefaultConfig())
func NewStore(ctx context.Context, js jetstream.JetStream, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, cfg.bucketConfig(), cfg.CreateRetries)
	if err != nil {
		return nil, natsutil.WrapStoreError("ensure bucket", err)
	}

	opts = append([]Option{WithLeaseReclaim(cfg.ReclaimExpiredLeases)}, opts...)

	return New(kv, opts...), nil
}

// New returns a store on an existing bucket. Expired leases are reclaimed
// unless disabled with WithLeaseReclaim(false).
func New(kv jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		reclaim: true,
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func sourcePrefix(sourceIdentifier string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(sourceIdentifier))
}

func itemKey(sourceIdentifier, partitionKey string) string {
	return fmt.Sprintf("%s.%016x", sourcePrefix(sourceIdentifier), xxh3.HashString(partitionKey))
}

// isConflict reports whether err is a failed revision check.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) || errors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}

	var apiErr *jetstream.APIError

	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

func decode(entry jetstream.KeyValueEntry) (types.PartitionItem, error) {
	var item types.PartitionItem
	if err := json.Unmarshal(entry.Value(), &item); err != nil {
		return types.PartitionItem{}, fmt.Errorf("%w: key %s: %w", types.ErrCorruptItem, entry.Key(), err)
	}
	item.Version = entry.Revision()

	return item, nil
}

// GetSourcePartitionItem returns the item stored under (sourceIdentifier, partitionKey).
func (s *Store) GetSourcePartitionItem(ctx context.Context, sourceIdentifier, partitionKey string) (types.PartitionItem, bool, error) {
	entry, err := s.kv.Get(ctx, itemKey(sourceIdentifier, partitionKey))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return types.PartitionItem{}, false, nil
		}

		return types.PartitionItem{}, false, natsutil.WrapStoreError("get", err)
	}

	item, err := decode(entry)
	if err != nil {
		return types.PartitionItem{}, false, err
	}
	if item.SourceIdentifier != sourceIdentifier || item.PartitionKey != partitionKey {
		return types.PartitionItem{}, false, fmt.Errorf("%w: key %s holds %s/%s",
			types.ErrCorruptItem, entry.Key(), item.SourceIdentifier, item.PartitionKey)
	}

	return item, true, nil
}

// scan returns every decodable item of sourceIdentifier. Undecodable
// entries are logged and skipped so one bad record cannot stall the source.
func (s *Store) scan(ctx context.Context, sourceIdentifier string) ([]types.PartitionItem, error) {
	entries, err := kvutil.ScanPrefix(ctx, s.kv, sourcePrefix(sourceIdentifier)+".>")
	if err != nil {
		return nil, natsutil.WrapStoreError("scan", err)
	}

	items := make([]types.PartitionItem, 0, len(entries))
	for _, entry := range entries {
		item, err := decode(entry)
		if err != nil {
			s.logger.Warn("skipping corrupt partition item", "key", entry.Key(), "error", err)
			continue
		}
		if item.SourceIdentifier != sourceIdentifier {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

type candidate struct {
	item    types.PartitionItem
	readyAt time.Time
}

// TryAcquireAvailablePartition leases the next eligible item of sourceIdentifier.
//
// Candidates are ordered ready-now first, then by readiness time. Each is
// claimed with a revision-conditional update; losing a race moves on to the
// next candidate.
func (s *Store) TryAcquireAvailablePartition(
	ctx context.Context,
	sourceIdentifier, ownerID string,
	ownershipTimeout time.Duration,
) (types.PartitionItem, bool, error) {
	items, err := s.scan(ctx, sourceIdentifier)
	if err != nil {
		return types.PartitionItem{}, false, err
	}

	now := s.now()
	candidates := make([]candidate, 0, len(items))
	for _, item := range items {
		at, ok := types.ReadyAt(item, s.reclaim)
		if !ok || !types.IsEligible(at, now) {
			continue
		}
		candidates = append(candidates, candidate{item: item, readyAt: at})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if c := types.CompareReadiness(candidates[i].readyAt, candidates[j].readyAt); c != 0 {
			return c < 0
		}

		return candidates[i].item.Version < candidates[j].item.Version
	})

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return types.PartitionItem{}, false, err
		}

		item := c.item
		if item.Status == types.StatusAssigned {
			s.logger.Info("reclaiming expired lease",
				"source_identifier", sourceIdentifier,
				"partition_key", item.PartitionKey,
				"previous_owner", item.Owner,
			)
		}
		item.Status = types.StatusAssigned
		item.Owner = ownerID
		item.OwnershipTimeout = now.Add(ownershipTimeout)

		rev, ok, err := s.update(ctx, item)
		if err != nil {
			return types.PartitionItem{}, false, err
		}
		if !ok {
			s.logger.Debug("lost acquire race", "partition_key", item.PartitionKey)
			continue
		}
		item.Version = rev

		return item, true, nil
	}

	return types.PartitionItem{}, false, nil
}

// update writes item conditional on item.Version and returns the new revision.
func (s *Store) update(ctx context.Context, item types.PartitionItem) (uint64, bool, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return 0, false, fmt.Errorf("failed to encode partition item: %w", err)
	}

	rev, err := s.kv.Update(ctx, itemKey(item.SourceIdentifier, item.PartitionKey), data, item.Version)
	if err != nil {
		if isConflict(err) {
			return 0, false, nil
		}

		return 0, false, natsutil.WrapStoreError("update", err)
	}

	return rev, true, nil
}

// TryUpdateSourcePartitionItem persists item if its entry still has revision item.Version.
func (s *Store) TryUpdateSourcePartitionItem(ctx context.Context, item *types.PartitionItem) (bool, error) {
	if item.Version == 0 {
		// Revision 0 would turn the conditional update into a create.
		return false, nil
	}
	rev, ok, err := s.update(ctx, *item)
	if ok {
		item.Version = rev
	}

	return ok, err
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
	if isGlobalState != types.IsGlobalStateIdentifier(sourceIdentifier) {
		return false, fmt.Errorf("%w: global-state flag does not match identifier %q",
			types.ErrInvalidPartitionType, sourceIdentifier)
	}

	item := types.NewPartitionItem(sourceIdentifier, partitionKey, status, closedCount, progressState)
	data, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("failed to encode partition item: %w", err)
	}

	if _, err := s.kv.Create(ctx, itemKey(sourceIdentifier, partitionKey), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}

		return false, natsutil.WrapStoreError("create", err)
	}

	return true, nil
}

// QuerySourcePartitionItemsByStatus returns items of sourceIdentifier in status
// whose PriorityTimestamp is at or after since, ordered by PriorityTimestamp.
func (s *Store) QuerySourcePartitionItemsByStatus(
	ctx context.Context,
	sourceIdentifier string,
	status types.Status,
	since time.Time,
) ([]types.PartitionItem, error) {
	items, err := s.scan(ctx, sourceIdentifier)
	if err != nil {
		return nil, err
	}

	return types.FilterByStatus(items, status, since), nil
}

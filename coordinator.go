package sourcecoord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/sourcecoord/internal/backoff"
	"github.com/arloliu/sourcecoord/internal/logging"
	"github.com/arloliu/sourcecoord/internal/metrics"
	"github.com/arloliu/sourcecoord/types"
)

// initialLeaderProgress is the progress blob of a freshly created leader partition.
var initialLeaderProgress = []byte(`{"initialized":false}`)

// Coordinator is the API source plugins use to share partitions across workers.
//
// Every worker of a source builds one Coordinator on the same store. Workers
// acquire partitions, save progress while they work, and finally close
// (retry later), complete, or give up each partition. One worker at a time
// additionally holds the leader partition and creates new partitions as the
// source topology changes (see the leader package).
//
// Coordinator is safe for concurrent use; it holds no mutable state besides
// the store.
type Coordinator struct {
	cfg     Config
	store   types.CoordinationStore
	logger  Logger
	metrics MetricsCollector
	now     func() time.Time
	idle    *backoff.Policy
}

// NewCoordinator creates a coordinator for cfg.SourceIdentifier on store.
//
// Missing configuration values are filled with defaults before validation.
//
// Parameters:
//   - cfg: Configuration (defaults are applied in place)
//   - store: Coordination store backend
//   - opts: Optional logger, metrics and clock
//
// Returns:
//   - *Coordinator: Ready-to-use coordinator
//   - error: ErrInvalidConfig or ErrStoreRequired
//
// Example:
//
//	cfg := sourcecoord.DefaultConfig()
//	cfg.SourceIdentifier = "orders"
//	coord, err := sourcecoord.NewCoordinator(&cfg, memory.NewStore())
//	if err != nil {
//	    return err
//	}
//	if err := coord.Initialize(ctx); err != nil {
//	    return err
//	}
func NewCoordinator(cfg *Config, store CoordinationStore, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &coordinatorOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	cfg.ValidateWithWarnings(loggerInstance)

	now := options.now
	if now == nil {
		now = time.Now
	}

	return &Coordinator{
		cfg:     *cfg,
		store:   store,
		logger:  loggerInstance,
		metrics: metricsCollector,
		now:     now,
		idle:    backoff.NewPolicy(cfg.IdlePollInterval, 2, cfg.MaxIdlePollInterval, 0),
	}, nil
}

// OwnerID returns the lease owner ID of this worker.
func (c *Coordinator) OwnerID() string {
	return c.cfg.OwnerID
}

// SourceIdentifier returns the source prefix all partition types live under.
func (c *Coordinator) SourceIdentifier() string {
	return c.cfg.SourceIdentifier
}

// Config returns a copy of the effective configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Logger returns the coordinator logger so collaborators can share it.
func (c *Coordinator) Logger() Logger {
	return c.logger
}

// Metrics returns the coordinator metrics collector.
func (c *Coordinator) Metrics() MetricsCollector {
	return c.metrics
}

// Now returns the coordinator's current time.
func (c *Coordinator) Now() time.Time {
	return c.now()
}

func (c *Coordinator) sourceIdentifier(partitionType string) string {
	return types.SourceIdentifierFor(c.cfg.SourceIdentifier, partitionType)
}

func validatePartitionType(partitionType string) error {
	if partitionType == "" {
		return fmt.Errorf("%w: empty partition type", ErrInvalidPartitionType)
	}
	if strings.Contains(partitionType, types.IdentifierDelimiter) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidPartitionType, partitionType, types.IdentifierDelimiter)
	}

	return nil
}

// withTimeout runs fn under OperationTimeout and records its latency.
func (c *Coordinator) withTimeout(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	start := time.Now()
	err := fn(opCtx)
	c.metrics.RecordStoreOperationDuration(op, time.Since(start).Seconds())

	return err
}

// Initialize creates the leader partition of this source.
//
// Safe to call from every worker on every start: creation is idempotent.
func (c *Coordinator) Initialize(ctx context.Context) error {
	var created bool
	err := c.withTimeout(ctx, "create", func(ctx context.Context) error {
		var err error
		created, err = c.store.TryCreatePartitionItem(ctx,
			c.sourceIdentifier(types.LeaderPartitionType), types.LeaderPartitionKey,
			types.StatusUnassigned, 0, initialLeaderProgress, false)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create leader partition: %w", err)
	}

	c.metrics.RecordPartitionCreated(types.LeaderPartitionType, created)
	c.logger.Info("coordinator initialized",
		"source_identifier", c.cfg.SourceIdentifier,
		"owner", c.cfg.OwnerID,
		"leader_created", created,
	)

	return nil
}

// CreatePartition creates a partition unless one with the same type and key exists.
//
// Partitions of type GlobalStateType become global-state entries: they are
// addressed directly with GetGlobalState and never handed out by
// AcquireAvailablePartition.
//
// Returns:
//   - bool: true if created, false if it already existed (not an error)
//   - error: Invalid type or store failure
func (c *Coordinator) CreatePartition(ctx context.Context, p Partition) (bool, error) {
	if err := validatePartitionType(p.Type); err != nil {
		return false, err
	}

	isGlobal := p.Type == types.GlobalStateType
	var created bool
	err := c.withTimeout(ctx, "create", func(ctx context.Context) error {
		var err error
		created, err = c.store.TryCreatePartitionItem(ctx,
			c.sourceIdentifier(p.Type), p.Key, types.StatusUnassigned, 0, p.ProgressState, isGlobal)

		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to create partition %s/%s: %w", p.Type, p.Key, err)
	}

	c.metrics.RecordPartitionCreated(p.Type, created)
	if created {
		c.logger.Debug("partition created", "type", p.Type, "key", p.Key)
	}

	return created, nil
}

// AcquireAvailablePartition leases the next available partition of partitionType.
//
// Never blocks waiting for work: when nothing is available it returns false
// and the caller decides when to poll again.
//
// Returns:
//   - Partition: The acquired partition, owned by this worker for OwnershipTimeout
//   - bool: false when nothing is available
//   - error: Invalid type or store failure
func (c *Coordinator) AcquireAvailablePartition(ctx context.Context, partitionType string) (Partition, bool, error) {
	if err := validatePartitionType(partitionType); err != nil {
		return Partition{}, false, err
	}
	if partitionType == types.GlobalStateType {
		return Partition{}, false, fmt.Errorf("%w: global-state entries cannot be acquired", ErrInvalidPartitionType)
	}

	var (
		item types.PartitionItem
		ok   bool
	)
	err := c.withTimeout(ctx, "acquire", func(ctx context.Context) error {
		var err error
		item, ok, err = c.store.TryAcquireAvailablePartition(ctx,
			c.sourceIdentifier(partitionType), c.cfg.OwnerID, c.cfg.OwnershipTimeout)

		return err
	})
	if err != nil {
		return Partition{}, false, fmt.Errorf("failed to acquire %s partition: %w", partitionType, err)
	}

	c.metrics.RecordAcquireAttempt(partitionType, ok)
	if !ok {
		return Partition{}, false, nil
	}

	c.metrics.RecordPartitionTransition(partitionType, types.StatusAssigned)
	c.logger.Debug("partition acquired",
		"type", partitionType,
		"key", item.PartitionKey,
		"ownership_timeout", item.OwnershipTimeout,
	)

	return partitionFromItem(item), true, nil
}

// WaitForPartition blocks until a partition of partitionType is acquired.
//
// Empty acquires and store errors are retried after a jittered delay that
// grows from Config.IdlePollInterval to Config.MaxIdlePollInterval, so idle
// workers do not poll the store in step.
//
// Returns:
//   - Partition: Acquired partition, owned by this worker
//   - error: ctx.Err() on cancellation, ErrInvalidPartitionType for bad types
//
// Example:
//
//	for {
//	    p, err := coord.WaitForPartition(ctx, "STREAM")
//	    if err != nil {
//	        return err
//	    }
//	    process(ctx, coord, &p)
//	}
func (c *Coordinator) WaitForPartition(ctx context.Context, partitionType string) (Partition, error) {
	var delay time.Duration
	for {
		p, ok, err := c.AcquireAvailablePartition(ctx, partitionType)
		switch {
		case errors.Is(err, ErrInvalidPartitionType):
			return Partition{}, err
		case err != nil:
			if ctx.Err() != nil {
				return Partition{}, ctx.Err()
			}
			c.logger.Warn("acquire failed, backing off", "type", partitionType, "error", err)
		case ok:
			return p, nil
		}

		delay = c.idle.Next(delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Partition{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// requireOwned checks that p is a non-global partition currently leased to this worker.
func (c *Coordinator) requireOwned(p *Partition) error {
	if p == nil || !p.persisted {
		return ErrPartitionNotPersisted
	}
	if p.item.IsGlobalState() {
		return fmt.Errorf("%w: use UpdateGlobalState for global-state entries", ErrInvalidPartitionType)
	}
	if p.item.Status != types.StatusAssigned || p.item.Owner != c.cfg.OwnerID {
		return fmt.Errorf("%w: %s/%s is %s owned by %q", ErrNotOwner, p.Type, p.Key, p.item.Status, p.item.Owner)
	}

	return nil
}

// write persists item for p. A refused write drops ownership locally and returns ErrLeaseLost.
func (c *Coordinator) write(ctx context.Context, p *Partition, item types.PartitionItem) error {
	var ok bool
	err := c.withTimeout(ctx, "update", func(ctx context.Context) error {
		var err error
		ok, err = c.store.TryUpdateSourcePartitionItem(ctx, &item)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update partition %s/%s: %w", p.Type, p.Key, err)
	}
	if !ok {
		c.metrics.RecordLeaseLost(p.Type)
		c.logger.Warn("partition lease lost", "type", p.Type, "key", p.Key, "owner", c.cfg.OwnerID)
		p.item.Owner = ""
		p.item.Status = types.StatusUnassigned

		return fmt.Errorf("%w: %s/%s", ErrLeaseLost, p.Type, p.Key)
	}

	p.item = item
	p.ProgressState = item.ProgressState

	return nil
}

// SaveProgressStateForPartition persists p.ProgressState and renews the lease.
//
// Parameters:
//   - ctx: Context for the store call
//   - p: Partition owned by this worker (updated in place on success)
//   - leaseExtension: New lease measured from now; 0 keeps the current deadline
//
// Returns:
//   - error: ErrLeaseLost if another worker took the partition over,
//     ErrNotOwner if this worker does not hold it
func (c *Coordinator) SaveProgressStateForPartition(ctx context.Context, p *Partition, leaseExtension time.Duration) error {
	if err := c.requireOwned(p); err != nil {
		return err
	}

	item := p.item.Clone()
	item.ProgressState = p.ProgressState
	if leaseExtension > 0 {
		item.OwnershipTimeout = c.now().Add(leaseExtension)
	}

	return c.write(ctx, p, item)
}

// ClosePartition releases p until reopenAfter has elapsed.
//
// The closed count is incremented. When maxClosedCount > 0 and the new count
// reaches it, the partition is completed instead. A maxClosedCount of 0 falls
// back to Config.MaxClosedCount.
func (c *Coordinator) ClosePartition(ctx context.Context, p *Partition, reopenAfter time.Duration, maxClosedCount int64) error {
	if err := c.requireOwned(p); err != nil {
		return err
	}
	if maxClosedCount == 0 {
		maxClosedCount = c.cfg.MaxClosedCount
	}

	now := c.now()
	item := p.item.Clone()
	item.ProgressState = p.ProgressState
	item.ClosedCount++
	item.Owner = ""
	item.OwnershipTimeout = time.Time{}

	if maxClosedCount > 0 && item.ClosedCount >= maxClosedCount {
		c.logger.Info("partition reached close limit, completing",
			"type", p.Type, "key", p.Key, "closed_count", item.ClosedCount)
		item.Status = types.StatusCompleted
		item.ReopenAt = time.Time{}
		item.PriorityTimestamp = now
	} else {
		item.Status = types.StatusClosed
		item.ReopenAt = now.Add(reopenAfter)
		item.PriorityTimestamp = item.ReopenAt
	}

	if err := c.write(ctx, p, item); err != nil {
		return err
	}
	c.metrics.RecordPartitionTransition(p.Type, item.Status)

	return nil
}

// CompletePartition marks p COMPLETED. Completed partitions are never handed
// out again and become visible to QueryCompletedPartitions.
func (c *Coordinator) CompletePartition(ctx context.Context, p *Partition) error {
	if err := c.requireOwned(p); err != nil {
		return err
	}

	item := p.item.Clone()
	item.ProgressState = p.ProgressState
	item.Status = types.StatusCompleted
	item.Owner = ""
	item.OwnershipTimeout = time.Time{}
	item.ReopenAt = time.Time{}
	item.PriorityTimestamp = c.now()

	if err := c.write(ctx, p, item); err != nil {
		return err
	}
	c.metrics.RecordPartitionTransition(p.Type, types.StatusCompleted)
	c.logger.Debug("partition completed", "type", p.Type, "key", p.Key)

	return nil
}

// GiveUpPartition returns p to the pool immediately, keeping its progress state.
func (c *Coordinator) GiveUpPartition(ctx context.Context, p *Partition) error {
	if err := c.requireOwned(p); err != nil {
		return err
	}

	item := p.item.Clone()
	item.ProgressState = p.ProgressState
	item.Status = types.StatusUnassigned
	item.Owner = ""
	item.OwnershipTimeout = time.Time{}
	item.PriorityTimestamp = time.Time{}

	if err := c.write(ctx, p, item); err != nil {
		return err
	}
	c.metrics.RecordPartitionTransition(p.Type, types.StatusUnassigned)

	return nil
}

// QueryCompletedPartitions returns partitions of partitionType completed at or after since.
//
// The returned handles are read-only snapshots; they are not owned.
func (c *Coordinator) QueryCompletedPartitions(ctx context.Context, partitionType string, since time.Time) ([]Partition, error) {
	if err := validatePartitionType(partitionType); err != nil {
		return nil, err
	}

	var items []types.PartitionItem
	err := c.withTimeout(ctx, "query", func(ctx context.Context) error {
		var err error
		items, err = c.store.QuerySourcePartitionItemsByStatus(ctx,
			c.sourceIdentifier(partitionType), types.StatusCompleted, since)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query completed %s partitions: %w", partitionType, err)
	}

	partitions := make([]Partition, 0, len(items))
	for _, item := range items {
		partitions = append(partitions, partitionFromItem(item))
	}

	return partitions, nil
}

// GetPartition reads the current state of any partition without acquiring it.
func (c *Coordinator) GetPartition(ctx context.Context, partitionType, key string) (Partition, bool, error) {
	if err := validatePartitionType(partitionType); err != nil {
		return Partition{}, false, err
	}

	var (
		item types.PartitionItem
		ok   bool
	)
	err := c.withTimeout(ctx, "get", func(ctx context.Context) error {
		var err error
		item, ok, err = c.store.GetSourcePartitionItem(ctx, c.sourceIdentifier(partitionType), key)

		return err
	})
	if err != nil {
		return Partition{}, false, fmt.Errorf("failed to get partition %s/%s: %w", partitionType, key, err)
	}
	if !ok {
		return Partition{}, false, nil
	}

	return partitionFromItem(item), true, nil
}

// GetGlobalState reads the global-state entry stored under key.
func (c *Coordinator) GetGlobalState(ctx context.Context, key string) (Partition, bool, error) {
	return c.GetPartition(ctx, types.GlobalStateType, key)
}

// UpdateGlobalState writes p.ProgressState to a global-state entry.
//
// Global-state entries have no owner; the write is conditional on the version
// read by GetGlobalState. ErrLeaseLost means another worker wrote the entry
// first: read it again and retry.
func (c *Coordinator) UpdateGlobalState(ctx context.Context, p *Partition) error {
	if p == nil || !p.persisted {
		return ErrPartitionNotPersisted
	}
	if !p.item.IsGlobalState() {
		return fmt.Errorf("%w: %s is not a global-state entry", ErrInvalidPartitionType, p.Type)
	}

	item := p.item.Clone()
	item.ProgressState = p.ProgressState

	return c.write(ctx, p, item)
}

package leader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/sourcecoord"
	"github.com/arloliu/sourcecoord/internal/hooks"
	"github.com/arloliu/sourcecoord/internal/logging"
	"github.com/arloliu/sourcecoord/internal/metrics"
	"github.com/arloliu/sourcecoord/types"
)

// Tick results reported to LeaderMetrics.RecordLeaderTick.
const (
	TickFollower    = "follower"
	TickInitialized = "initialized"
	TickRefreshed   = "refreshed"
	TickFailed      = "failed"
)

// Tasks is the source-specific work performed by the leader.
type Tasks interface {
	// Initialize validates source prerequisites and creates the initial partitions.
	// It runs until it succeeds once; partition creation must be idempotent.
	Initialize(ctx context.Context) error

	// Refresh discovers work that appeared since the last persisted tick,
	// moved back by the completion lookback. Work seen twice must be tolerated.
	Refresh(ctx context.Context, since time.Time) error
}

// TaskFuncs adapts plain functions to Tasks. A nil function is a no-op.
type TaskFuncs struct {
	InitializeFunc func(ctx context.Context) error
	RefreshFunc    func(ctx context.Context, since time.Time) error
}

// Initialize calls InitializeFunc.
func (f TaskFuncs) Initialize(ctx context.Context) error {
	if f.InitializeFunc == nil {
		return nil
	}

	return f.InitializeFunc(ctx)
}

// Refresh calls RefreshFunc.
func (f TaskFuncs) Refresh(ctx context.Context, since time.Time) error {
	if f.RefreshFunc == nil {
		return nil
	}

	return f.RefreshFunc(ctx, since)
}

// Coordinator is the part of sourcecoord.Coordinator the scheduler needs.
type Coordinator interface {
	OwnerID() string
	AcquireAvailablePartition(ctx context.Context, partitionType string) (sourcecoord.Partition, bool, error)
	SaveProgressStateForPartition(ctx context.Context, p *sourcecoord.Partition, leaseExtension time.Duration) error
	GetPartition(ctx context.Context, partitionType, key string) (sourcecoord.Partition, bool, error)
}

var _ Coordinator = (*sourcecoord.Coordinator)(nil)

// Scheduler contends for the leader partition and runs Tasks while holding it.
//
// Tick is serialized; State may be called from any goroutine.
type Scheduler struct {
	coord          Coordinator
	tasks          Tasks
	interval       time.Duration
	leaseExtension time.Duration
	lookback       time.Duration
	logger         types.Logger
	metrics        types.MetricsCollector
	hooks          types.Hooks
	now            func() time.Time

	state   atomic.Int32
	running atomic.Bool

	mu       sync.Mutex
	held     *sourcecoord.Partition
	progress Progress
}

// NewScheduler creates a leader scheduler.
//
// Parameters:
//   - coord: Coordinator of the source
//   - tasks: Leader work
//   - interval: Tick period
//   - opts: Optional logger, metrics, hooks, lease extension, completion lookback and clock
//
// Returns:
//   - *Scheduler: Scheduler in StateFollower
//   - error: ErrInvalidConfig for nil dependencies or invalid durations
func NewScheduler(coord Coordinator, tasks Tasks, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if coord == nil || tasks == nil {
		return nil, fmt.Errorf("%w: leader scheduler needs a coordinator and tasks", types.ErrInvalidConfig)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: leader tick interval must be > 0, got %v", types.ErrInvalidConfig, interval)
	}

	options := &schedulerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	s := &Scheduler{
		coord:          coord,
		tasks:          tasks,
		interval:       interval,
		leaseExtension: options.leaseExtension,
		logger:         options.logger,
		metrics:        options.metrics,
		now:            options.now,
	}

	if s.leaseExtension == 0 {
		s.leaseExtension = 3 * interval
	}
	if s.leaseExtension <= interval {
		return nil, fmt.Errorf("%w: lease extension (%v) must be > tick interval (%v)",
			types.ErrInvalidConfig, s.leaseExtension, interval)
	}
	s.lookback = s.leaseExtension
	if options.lookback != nil {
		s.lookback = *options.lookback
	}
	if s.lookback < 0 {
		return nil, fmt.Errorf("%w: completion lookback must be >= 0, got %v", types.ErrInvalidConfig, s.lookback)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}
	if options.hooks != nil {
		s.hooks = hooks.Fill(*options.hooks)
	} else {
		s.hooks = hooks.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.state.Store(int32(types.StateFollower))

	return s, nil
}

// ForCoordinator creates a scheduler with the timing, logger, metrics and
// clock of coord. Options given here override them.
func ForCoordinator(coord *sourcecoord.Coordinator, tasks Tasks, opts ...Option) (*Scheduler, error) {
	if coord == nil {
		return nil, fmt.Errorf("%w: leader scheduler needs a coordinator", types.ErrInvalidConfig)
	}

	cfg := coord.Config()
	base := []Option{
		WithLeaseExtension(cfg.LeaderLeaseExtension),
		WithCompletionLookback(cfg.CompletionLookback),
		WithLogger(coord.Logger()),
		WithMetrics(coord.Metrics()),
		WithClock(coord.Now),
	}

	return NewScheduler(coord, tasks, cfg.LeaderTickInterval, append(base, opts...)...)
}

// State returns the current scheduler state.
func (s *Scheduler) State() types.SchedulerState {
	return types.SchedulerState(s.state.Load())
}

// IsLeader reports whether this worker currently holds the leader partition.
func (s *Scheduler) IsLeader() bool {
	state := s.State()
	return state == types.StateInitializing || state == types.StateLeading
}

// Progress returns the last persisted leader progress held by this worker.
func (s *Scheduler) Progress() (Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progress, s.held != nil
}

// Run ticks immediately and then every interval until ctx is cancelled.
//
// Tick failures are logged and retried on the next tick. The leader lease is
// not released on return; it lapses after its ownership timeout.
//
// Returns:
//   - error: ErrSchedulerAlreadyRunning, or nil after ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return types.ErrSchedulerAlreadyRunning
	}
	defer s.running.Store(false)
	defer s.transitionState(types.StateStopped)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("leader scheduler stopped", "owner", s.coord.OwnerID())
			return nil
		case <-timer.C:
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("leader tick failed", "owner", s.coord.OwnerID(), "error", err)
			}
			timer.Reset(s.interval)
		}
	}
}

// Tick runs one scheduling iteration.
//
// Without leadership it returns after a single acquire attempt. With
// leadership it runs Initialize or Refresh and persists the new progress,
// renewing the lease. A failed task leaves the persisted progress untouched.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickStart := s.now()

	if s.held != nil {
		if err := s.checkExpiredLease(ctx, tickStart); err != nil {
			return s.fail(ctx, err)
		}
	}

	if s.held == nil {
		acquired, err := s.acquire(ctx)
		if err != nil {
			return s.fail(ctx, err)
		}
		if !acquired {
			s.metrics.RecordLeaderTick(TickFollower)
			return nil
		}
	}

	next := s.progress
	result := TickRefreshed
	if !next.Initialized {
		if err := s.tasks.Initialize(ctx); err != nil {
			return s.fail(ctx, fmt.Errorf("leader initialization failed: %w", err))
		}
		next.Initialized = true
		result = TickInitialized
	} else {
		if err := s.tasks.Refresh(ctx, next.LastCheckedAt.Add(-s.lookback)); err != nil {
			return s.fail(ctx, fmt.Errorf("leader refresh failed: %w", err))
		}
	}
	next.LastCheckedAt = tickStart

	s.held.ProgressState = next.Encode()
	if err := s.coord.SaveProgressStateForPartition(ctx, s.held, s.leaseExtension); err != nil {
		if errors.Is(err, types.ErrLeaseLost) || errors.Is(err, types.ErrNotOwner) {
			s.dropLeadership(ctx)
		}

		return s.fail(ctx, fmt.Errorf("failed to save leader progress: %w", err))
	}

	s.progress = next
	s.transitionState(types.StateLeading)
	s.metrics.RecordLeaderTick(result)
	s.logger.Debug("leader tick completed", "result", result, "last_checked_at", next.LastCheckedAt)

	return nil
}

// acquire tries to take the leader partition. Must be called with mu held.
func (s *Scheduler) acquire(ctx context.Context) (bool, error) {
	p, ok, err := s.coord.AcquireAvailablePartition(ctx, types.LeaderPartitionType)
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader partition: %w", err)
	}
	if !ok {
		s.transitionState(types.StateFollower)
		return false, nil
	}

	progress, valid := DecodeProgress(p.ProgressState)
	if !valid {
		s.logger.Warn("malformed leader progress, treating leader as uninitialized",
			"owner", s.coord.OwnerID())
	}

	s.held = &p
	s.progress = progress

	s.logger.Info("leadership acquired",
		"owner", s.coord.OwnerID(),
		"initialized", progress.Initialized,
		"last_checked_at", progress.LastCheckedAt,
	)
	s.fireHook(ctx, "OnLeadershipAcquired", func(ctx context.Context) error {
		return s.hooks.OnLeadershipAcquired(ctx, s.coord.OwnerID())
	})

	if progress.Initialized {
		s.transitionState(types.StateLeading)
	} else {
		s.transitionState(types.StateInitializing)
	}

	return true, nil
}

// checkExpiredLease re-reads the leader item once the held lease has passed
// locally. Leadership is dropped only if another worker took the item over;
// an untouched item is kept and renewed by the next conditional save.
// Must be called with mu held.
func (s *Scheduler) checkExpiredLease(ctx context.Context, now time.Time) error {
	held := s.held.Item()
	if held.OwnershipTimeout.IsZero() || now.Before(held.OwnershipTimeout) {
		return nil
	}

	current, ok, err := s.coord.GetPartition(ctx, types.LeaderPartitionType, types.LeaderPartitionKey)
	if err != nil {
		return fmt.Errorf("failed to read leader partition: %w", err)
	}
	if ok {
		item := current.Item()
		if item.Status == types.StatusAssigned && item.Owner == s.coord.OwnerID() && item.Version == held.Version {
			s.logger.Debug("leader lease passed locally but is still held, renewing",
				"owner", s.coord.OwnerID(), "deadline", held.OwnershipTimeout)

			return nil
		}
	}

	s.logger.Warn("leader lease expired and was taken over",
		"owner", s.coord.OwnerID(), "deadline", held.OwnershipTimeout)
	s.dropLeadership(ctx)

	return nil
}

// dropLeadership forgets the held partition. Must be called with mu held.
func (s *Scheduler) dropLeadership(ctx context.Context) {
	s.held = nil
	s.progress = Progress{}

	s.logger.Info("leadership lost", "owner", s.coord.OwnerID())
	s.fireHook(ctx, "OnLeadershipLost", func(ctx context.Context) error {
		return s.hooks.OnLeadershipLost(ctx, s.coord.OwnerID())
	})
	s.transitionState(types.StateFollower)
}

func (s *Scheduler) fail(ctx context.Context, err error) error {
	s.metrics.RecordLeaderTick(TickFailed)
	s.fireHook(ctx, "OnError", func(ctx context.Context) error {
		return s.hooks.OnError(ctx, err)
	})

	return err
}

// fireHook runs a hook in the background so a slow hook never delays a tick.
func (s *Scheduler) fireHook(ctx context.Context, name string, fn func(ctx context.Context) error) {
	go func() {
		if err := fn(ctx); err != nil {
			s.logger.Error("hook error", "hook", name, "error", err)
		}
	}()
}

func (s *Scheduler) transitionState(to types.SchedulerState) {
	from := types.SchedulerState(s.state.Swap(int32(to))) //nolint:gosec // SchedulerState values are a controlled enum
	if from == to {
		return
	}

	s.logger.Info("leader state transition",
		"from", from.String(),
		"to", to.String(),
		"owner", s.coord.OwnerID(),
	)
	s.metrics.RecordStateTransition(from, to)
}

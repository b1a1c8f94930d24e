package leader

import (
	"time"

	"github.com/arloliu/sourcecoord/types"
)

// Option configures a Scheduler.
type Option func(*schedulerOptions)

type schedulerOptions struct {
	logger         types.Logger
	metrics        types.MetricsCollector
	hooks          *types.Hooks
	leaseExtension time.Duration
	lookback       *time.Duration
	now            func() time.Time
}

// WithLogger sets the scheduler logger.
func WithLogger(logger types.Logger) Option {
	return func(o *schedulerOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the scheduler metrics collector.
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *schedulerOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets leadership callbacks. Nil callbacks are ignored.
//
// Example:
//
//	sched, err := leader.NewScheduler(coord, tasks, time.Minute,
//	    leader.WithHooks(&types.Hooks{
//	        OnLeadershipAcquired: func(ctx context.Context, ownerID string) error {
//	            log.Printf("%s leads discovery", ownerID)
//	            return nil
//	        },
//	    }),
//	)
func WithHooks(hooks *types.Hooks) Option {
	return func(o *schedulerOptions) {
		o.hooks = hooks
	}
}

// WithLeaseExtension sets the lease written after each successful tick.
//
// Default: three tick intervals.
func WithLeaseExtension(d time.Duration) Option {
	return func(o *schedulerOptions) {
		o.leaseExtension = d
	}
}

// WithCompletionLookback widens the since time passed to Tasks.Refresh by d,
// so completions stamped by workers whose clocks run behind the leader's are
// still returned.
//
// Default: the lease extension.
func WithCompletionLookback(d time.Duration) Option {
	return func(o *schedulerOptions) {
		o.lookback = &d
	}
}

// WithClock overrides the time source used for tick timestamps and local lease checks.
func WithClock(now func() time.Time) Option {
	return func(o *schedulerOptions) {
		o.now = now
	}
}

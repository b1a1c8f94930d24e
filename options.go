package sourcecoord

import "time"

// Option configures a Coordinator with optional dependencies.
type Option func(*coordinatorOptions)

// coordinatorOptions holds optional Coordinator configuration.
type coordinatorOptions struct {
	metrics MetricsCollector
	logger  Logger
	now     func() time.Time
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewCoordinator
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "")
//	coord, err := sourcecoord.NewCoordinator(&cfg, store, sourcecoord.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *coordinatorOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewCoordinator
//
// Example:
//
//	coord, err := sourcecoord.NewCoordinator(&cfg, store, sourcecoord.WithLogger(logging.NewSlogDefault()))
func WithLogger(logger Logger) Option {
	return func(o *coordinatorOptions) {
		o.logger = logger
	}
}

// WithClock overrides the time source used for completion stamps and reopen times.
//
// Stores keep their own clock; tests usually inject the same function into both.
func WithClock(now func() time.Time) Option {
	return func(o *coordinatorOptions) {
		o.now = now
	}
}

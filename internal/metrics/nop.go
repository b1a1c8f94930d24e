package metrics

import "github.com/arloliu/sourcecoord/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	coord, err := sourcecoord.NewCoordinator(&cfg, store, sourcecoord.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// CoordinatorMetrics implementation

// RecordAcquireAttempt discards the acquisition metric.
func (n *NopMetrics) RecordAcquireAttempt(_ /* partitionType */ string, _ /* acquired */ bool) {
	// No-op
}

// RecordPartitionCreated discards the create metric.
func (n *NopMetrics) RecordPartitionCreated(_ /* partitionType */ string, _ /* created */ bool) {
	// No-op
}

// RecordPartitionTransition discards the transition metric.
func (n *NopMetrics) RecordPartitionTransition(_ /* partitionType */ string, _ /* to */ types.Status) {
	// No-op
}

// RecordLeaseLost discards the lease-lost metric.
func (n *NopMetrics) RecordLeaseLost(_ /* partitionType */ string) {
	// No-op
}

// RecordStoreOperationDuration discards the store latency metric.
func (n *NopMetrics) RecordStoreOperationDuration(_ /* operation */ string, _ /* duration */ float64) {
	// No-op
}

// LeaderMetrics implementation

// RecordStateTransition discards the scheduler state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* from */, _ /* to */ types.SchedulerState) {
	// No-op
}

// RecordLeaderTick discards the tick outcome metric.
func (n *NopMetrics) RecordLeaderTick(_ /* result */ string) {
	// No-op
}

// RecordDiscoveredUnits discards the discovery gauge.
func (n *NopMetrics) RecordDiscoveredUnits(_ /* streamID */ string, _ /* count */ int) {
	// No-op
}

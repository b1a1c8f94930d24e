package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from worker and scheduler goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	CoordinatorMetrics
	LeaderMetrics
}

// CoordinatorMetrics defines metrics for partition coordination operations.
type CoordinatorMetrics interface {
	// RecordAcquireAttempt records an acquisition attempt.
	//
	// Parameters:
	//   - partitionType: Partition type requested
	//   - acquired: true if a partition was handed out
	RecordAcquireAttempt(partitionType string, acquired bool)

	// RecordPartitionCreated records a create call.
	//
	// Parameters:
	//   - partitionType: Partition type created
	//   - created: false when the key already existed
	RecordPartitionCreated(partitionType string, created bool)

	// RecordPartitionTransition records a status change made through the coordinator.
	//
	// Parameters:
	//   - partitionType: Partition type
	//   - to: New status
	RecordPartitionTransition(partitionType string, to Status)

	// RecordLeaseLost records a refused update.
	RecordLeaseLost(partitionType string)

	// RecordStoreOperationDuration records backend latency.
	//
	// Parameters:
	//   - operation: Operation name ("get", "acquire", "update", "create", "query")
	//   - duration: Time taken in seconds
	RecordStoreOperationDuration(operation string, duration float64)
}

// LeaderMetrics defines metrics for the leader scheduler.
type LeaderMetrics interface {
	// RecordStateTransition records a scheduler state transition.
	RecordStateTransition(from, to SchedulerState)

	// RecordLeaderTick records the outcome of one scheduling tick.
	//
	// Parameters:
	//   - result: "follower", "initialized", "refreshed", "failed"
	RecordLeaderTick(result string)

	// RecordDiscoveredUnits sets the unit count of the last discovery (gauge metric).
	RecordDiscoveredUnits(streamID string, count int)
}

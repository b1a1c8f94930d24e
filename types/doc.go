// Package types provides core type definitions and interfaces for the sourcecoord library.
//
// This package contains shared types that are used across multiple packages in the
// library. By keeping these types in a separate package, we avoid import cycles
// between the root sourcecoord package, the store backends and the leader/shard
// packages.
//
// Key types:
//   - PartitionItem: Persisted record for one unit of source work or one global-state entry
//   - Status: Partition lifecycle status
//   - CoordinationStore: Backend contract (acquire, update, create, query)
//   - UnitDescriptor: Discovery result element (shard id plus optional parent)
//   - SchedulerState: Leader scheduler lifecycle state
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types

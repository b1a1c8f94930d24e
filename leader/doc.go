// Package leader runs the leader scheduler of a coordinated source.
//
// Every worker runs one Scheduler. On each tick the scheduler contends for the
// singleton LEADER partition; the worker holding it runs one-time
// initialization and then incremental discovery through its Tasks, persisting
// its bookkeeping in the leader partition's progress state.
//
// Leadership is a lease on a shared item, not a quorum decision. A leader that
// stops renewing loses the partition once its ownership timeout passes and the
// next worker to acquire it resumes from the last persisted progress. Under
// enough clock skew two workers may briefly both run discovery; partition
// creation is idempotent so the overlap only costs duplicate calls.
package leader

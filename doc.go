// Package sourcecoord coordinates the work of a data source across a fleet of
// workers through a shared coordination store.
//
// A source (a change stream, a table export, a set of files) is split into
// partitions. Every partition is a persisted item that at most one worker
// leases at a time. Workers acquire partitions, save opaque progress while they
// work, and finally close, complete or give up each partition. One worker at a
// time also holds the leader partition and creates new partitions as the
// source topology changes.
//
// # Quick Start
//
//	cfg := sourcecoord.DefaultConfig()
//	cfg.SourceIdentifier = "orders-stream"
//
//	store, err := natskv.NewStore(ctx, js, cfg.KVBucket)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	coord, err := sourcecoord.NewCoordinator(&cfg, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := coord.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    p, ok, err := coord.AcquireAvailablePartition(ctx, "STREAM")
//	    if err != nil || !ok {
//	        time.Sleep(time.Second)
//	        continue
//	    }
//	    // process p, then:
//	    p.ProgressState = checkpoint
//	    if err := coord.SaveProgressStateForPartition(ctx, &p, time.Minute); errors.Is(err, sourcecoord.ErrLeaseLost) {
//	        continue // another worker owns it now
//	    }
//	    _ = coord.CompletePartition(ctx, &p)
//	}
//
// # Partition Lifecycle
//
//	UNASSIGNED → ASSIGNED → COMPLETED
//	                 │  ↑
//	                 ↓  │ (reopenAt reached)
//	               CLOSED
//
// Ownership is a lease. A worker that stops saving progress before its
// ownership timeout may lose the partition to another worker; the next save
// then fails with ErrLeaseLost and the worker must stop.
//
// # Stores
//
//   - store/memory: in-process reference backend
//   - store/natskv: NATS JetStream KV
//   - store/postgres: PostgreSQL
//
// # Leadership and Discovery
//
// The leader package runs the periodic leader scheduler; the shard package
// provides shard topology discovery and the leader tasks for change-stream
// sources. See examples/basic for a complete program.
package sourcecoord

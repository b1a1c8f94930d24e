package types

import "context"

// Hooks defines callbacks for leader scheduler events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking the scheduling loop. Hooks receive the scheduler's run
// context which is cancelled during shutdown.
//
// Hook errors are logged but never change scheduler behavior. Hooks should
// complete quickly and respect context cancellation.
//
// Example:
//
//	hooks := &sourcecoord.Hooks{
//	    OnLeadershipAcquired: func(ctx context.Context, ownerID string) error {
//	        log.Printf("%s is now leader", ownerID)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnLeadershipAcquired is called when this worker acquires the leader partition.
	OnLeadershipAcquired func(ctx context.Context, ownerID string) error

	// OnLeadershipLost is called when the leader lease is lost or expires locally.
	OnLeadershipLost func(ctx context.Context, ownerID string) error

	// OnError is called when a tick fails with a recoverable error.
	OnError func(ctx context.Context, err error) error
}

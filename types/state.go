package types

// SchedulerState represents the leader scheduler lifecycle state.
//
// Normal progression:
//
//	StateFollower → StateInitializing → StateLeading
//
// A leader that loses its lease falls back to StateFollower. StateStopped is terminal.
type SchedulerState int

const (
	// StateFollower indicates the scheduler does not hold the leader partition.
	StateFollower SchedulerState = iota

	// StateInitializing indicates the leader partition is held but one-time setup
	// has not completed yet.
	StateInitializing

	// StateLeading indicates an initialized leader performing incremental discovery.
	StateLeading

	// StateStopped indicates the scheduler loop has exited.
	StateStopped
)

// String returns the string representation of the state.
func (s SchedulerState) String() string {
	switch s {
	case StateFollower:
		return "Follower"
	case StateInitializing:
		return "Initializing"
	case StateLeading:
		return "Leading"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

package sourcecoord

import "github.com/arloliu/sourcecoord/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package, which
// avoids import cycles while still giving users sourcecoord.PartitionItem,
// sourcecoord.Logger, etc.
type (
	PartitionItem  = types.PartitionItem
	ItemKey        = types.ItemKey
	Status         = types.Status
	UnitDescriptor = types.UnitDescriptor
	SchedulerState = types.SchedulerState
)

// Re-export interfaces from the types package for convenience.
type (
	CoordinationStore = types.CoordinationStore
	MetricsCollector  = types.MetricsCollector
	Logger            = types.Logger
	Hooks             = types.Hooks
)

// Re-export Status constants from the types package.
const (
	StatusUnassigned = types.StatusUnassigned
	StatusAssigned   = types.StatusAssigned
	StatusClosed     = types.StatusClosed
	StatusCompleted  = types.StatusCompleted
)

// Reserved partition types.
const (
	GlobalStateType     = types.GlobalStateType
	LeaderPartitionType = types.LeaderPartitionType
	LeaderPartitionKey  = types.LeaderPartitionKey
)

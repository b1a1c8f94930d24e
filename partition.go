package sourcecoord

import (
	"github.com/arloliu/sourcecoord/types"
)

// Partition is the source plugin's handle on one partition item.
//
// Type and Key identify the item; ProgressState is the source-defined blob the
// plugin reads after acquiring and sets before saving. The backing item is
// tracked internally so that saves are conditional on the version that was read.
type Partition struct {
	// Type is the partition type (e.g., "STREAM", "EXPORT" or GlobalStateType).
	Type string

	// Key is unique within Type.
	Key string

	// ProgressState is opaque to the coordinator.
	ProgressState []byte

	item      types.PartitionItem
	persisted bool
}

// NewPartition returns a partition handle to pass to CreatePartition.
func NewPartition(partitionType, key string, progressState []byte) Partition {
	return Partition{Type: partitionType, Key: key, ProgressState: progressState}
}

func partitionFromItem(item types.PartitionItem) Partition {
	item = item.Clone()

	return Partition{
		Type:          types.PartitionTypeOf(item.SourceIdentifier),
		Key:           item.PartitionKey,
		ProgressState: item.ProgressState,
		item:          item,
		persisted:     true,
	}
}

// Item returns a copy of the backing item as last read or written.
func (p *Partition) Item() types.PartitionItem {
	return p.item.Clone()
}

// Status returns the status of the backing item.
func (p *Partition) Status() types.Status {
	return p.item.Status
}

// ClosedCount returns how many times the partition has been closed.
func (p *Partition) ClosedCount() int64 {
	return p.item.ClosedCount
}

// IsGlobalState reports whether the partition is a global-state entry.
func (p *Partition) IsGlobalState() bool {
	return p.Type == types.GlobalStateType
}

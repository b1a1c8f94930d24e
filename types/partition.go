package types

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a partition item.
type Status string

const (
	// StatusUnassigned marks an item that is ready to be acquired.
	StatusUnassigned Status = "UNASSIGNED"

	// StatusAssigned marks an item currently leased by an owner.
	StatusAssigned Status = "ASSIGNED"

	// StatusClosed marks an item that should be retried after its ReopenAt time.
	StatusClosed Status = "CLOSED"

	// StatusCompleted is terminal. A completed item is never queued again.
	StatusCompleted Status = "COMPLETED"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusUnassigned, StatusAssigned, StatusClosed, StatusCompleted:
		return true
	default:
		return false
	}
}

const (
	// IdentifierDelimiter separates the source prefix from the partition type.
	IdentifierDelimiter = "|"

	// GlobalStateType is the reserved partition type for global-state entries.
	GlobalStateType = "GLOBAL_STATE"

	// LeaderPartitionType is the reserved partition type of the leader token.
	LeaderPartitionType = "LEADER"

	// LeaderPartitionKey is the singleton key of the leader token.
	LeaderPartitionKey = "GLOBAL"
)

// SourceIdentifierFor composes the source identifier of a partition type.
//
// Parameters:
//   - sourcePrefix: Identifier of the source (e.g., "dynamodb-pipeline")
//   - partitionType: Partition type (e.g., "STREAM")
//
// Returns:
//   - string: "<sourcePrefix>|<partitionType>"
func SourceIdentifierFor(sourcePrefix, partitionType string) string {
	return sourcePrefix + IdentifierDelimiter + partitionType
}

// GlobalStateIdentifier returns the source identifier used for global-state entries.
func GlobalStateIdentifier(sourcePrefix string) string {
	return SourceIdentifierFor(sourcePrefix, GlobalStateType)
}

// IsGlobalStateIdentifier reports whether sourceIdentifier carries the reserved
// global-state suffix. Global-state items are addressed directly and never queued.
func IsGlobalStateIdentifier(sourceIdentifier string) bool {
	return strings.HasSuffix(sourceIdentifier, IdentifierDelimiter+GlobalStateType)
}

// PartitionTypeOf extracts the partition type from a composed source identifier.
//
// Returns an empty string when the identifier has no delimiter.
func PartitionTypeOf(sourceIdentifier string) string {
	idx := strings.LastIndex(sourceIdentifier, IdentifierDelimiter)
	if idx < 0 {
		return ""
	}

	return sourceIdentifier[idx+len(IdentifierDelimiter):]
}

// ItemKey uniquely identifies a partition item.
type ItemKey struct {
	SourceIdentifier string
	PartitionKey     string
}

// PartitionItem is the persisted record for one unit of work or one global-state entry.
//
// Zero timestamps mean "not set". ProgressState is opaque to the coordination layer:
// it is stored and returned verbatim and never decoded.
type PartitionItem struct {
	// SourceIdentifier identifies the source and partition type ("<prefix>|<type>").
	SourceIdentifier string `json:"sourceIdentifier"`

	// PartitionKey is unique within SourceIdentifier.
	PartitionKey string `json:"partitionKey"`

	// Status is the lifecycle status.
	Status Status `json:"status"`

	// Owner is the ID of the worker holding the lease (empty when unowned).
	Owner string `json:"owner,omitempty"`

	// OwnershipTimeout is the lease deadline.
	OwnershipTimeout time.Time `json:"ownershipTimeout"`

	// ProgressState is the source-defined progress blob.
	ProgressState []byte `json:"progressState,omitempty"`

	// ClosedCount counts how many times the partition was closed. Never decreases.
	ClosedCount int64 `json:"closedCount"`

	// ReopenAt is meaningful only for CLOSED items.
	ReopenAt time.Time `json:"reopenAt"`

	// PriorityTimestamp orders the ready queue; completed items carry their completion time.
	PriorityTimestamp time.Time `json:"priorityTimestamp"`

	// Version is managed by the backend and used for conditional writes.
	Version uint64 `json:"-"`
}

// Key returns the unique key of the item.
func (p PartitionItem) Key() ItemKey {
	return ItemKey{SourceIdentifier: p.SourceIdentifier, PartitionKey: p.PartitionKey}
}

// IsGlobalState reports whether the item is a global-state entry.
func (p PartitionItem) IsGlobalState() bool {
	return IsGlobalStateIdentifier(p.SourceIdentifier)
}

// Clone returns a deep copy of the item.
func (p PartitionItem) Clone() PartitionItem {
	c := p
	if p.ProgressState != nil {
		c.ProgressState = make([]byte, len(p.ProgressState))
		copy(c.ProgressState, p.ProgressState)
	}

	return c
}

// UnitDescriptor describes one discovered unit of source work, e.g. a stream shard.
type UnitDescriptor struct {
	// ID is the unit identifier (e.g., shard ID).
	ID string `json:"id"`

	// ParentID is the parent unit identifier, empty for root units.
	ParentID string `json:"parentId,omitempty"`
}

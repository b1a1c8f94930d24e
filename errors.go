package sourcecoord

import "github.com/arloliu/sourcecoord/types"

// Sentinel errors returned by the Coordinator and its collaborators.
//
// They are re-exported from the types package so callers can match them with
// errors.Is without importing types.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrStoreRequired is returned when the coordination store is nil.
	ErrStoreRequired = types.ErrStoreRequired

	// ErrLeaseLost is returned when the store refuses an update because the item
	// vanished or another worker took it over. Stop working on the partition.
	ErrLeaseLost = types.ErrLeaseLost

	// ErrNotOwner is returned when mutating a partition this worker does not own.
	ErrNotOwner = types.ErrNotOwner

	// ErrPartitionNotPersisted is returned when a mutation targets a partition that
	// was not obtained from the store.
	ErrPartitionNotPersisted = types.ErrPartitionNotPersisted

	// ErrInvalidPartitionType is returned for empty or reserved partition types.
	ErrInvalidPartitionType = types.ErrInvalidPartitionType

	// ErrConnectivity indicates a backend connectivity issue.
	ErrConnectivity = types.ErrConnectivity

	// ErrCorruptItem is returned when a stored record cannot be decoded.
	ErrCorruptItem = types.ErrCorruptItem
)

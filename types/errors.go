package types

import "errors"

// Sentinel errors for the sourcecoord library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Coordinator errors - Public API errors returned by the Coordinator.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreRequired is returned when the coordination store is nil.
	ErrStoreRequired = errors.New("coordination store is required")

	// ErrLeaseLost is returned when an update is refused because the item vanished
	// or was acquired by another owner.
	ErrLeaseLost = errors.New("partition lease lost")

	// ErrNotOwner is returned when a worker mutates a partition it does not own.
	ErrNotOwner = errors.New("partition not owned by this worker")

	// ErrPartitionNotPersisted is returned when a mutation targets a partition that
	// was never read from the store.
	ErrPartitionNotPersisted = errors.New("partition has no backing item")

	// ErrInvalidPartitionType is returned for empty or reserved partition types.
	ErrInvalidPartitionType = errors.New("invalid partition type")
)

// Store errors - Backend errors shared by store implementations.
var (
	// ErrConnectivity indicates a backend connectivity issue.
	ErrConnectivity = errors.New("connectivity issue")

	// ErrCorruptItem is returned when a stored record cannot be decoded.
	ErrCorruptItem = errors.New("corrupt partition item")
)

// Scheduler errors - Leader scheduler errors.
var (
	// ErrSchedulerAlreadyRunning is returned when Run is called twice.
	ErrSchedulerAlreadyRunning = errors.New("leader scheduler already running")
)

// Discovery errors - Errors returned by leader tasks and discovery adapters.
var (
	// ErrStreamNotEnabled is returned when the source has no change stream enabled.
	ErrStreamNotEnabled = errors.New("change stream is not enabled")

	// ErrPITRNotEnabled is returned when point-in-time recovery is disabled.
	ErrPITRNotEnabled = errors.New("point-in-time recovery is not enabled")

	// ErrSourceNotFound is returned when the source (e.g. table) does not exist.
	ErrSourceNotFound = errors.New("source not found")
)

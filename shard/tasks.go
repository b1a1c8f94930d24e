package shard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/sourcecoord"
	"github.com/arloliu/sourcecoord/internal/logging"
	"github.com/arloliu/sourcecoord/types"
)

// StreamPartitionType is the partition type of stream shard partitions.
const StreamPartitionType = "STREAM"

// keyDelimiter separates the stream ID from the shard ID in partition keys.
const keyDelimiter = "|"

// SourceDescription is what a Validator reports about one source.
type SourceDescription struct {
	// SourceID is the described source (e.g., a table name).
	SourceID string

	// StreamEnabled reports whether the source publishes a change stream.
	StreamEnabled bool

	// StreamID identifies the change stream (e.g., a stream ARN).
	StreamID string

	// PointInTimeRecoveryEnabled reports whether point-in-time recovery is on.
	PointInTimeRecoveryEnabled bool
}

// Validator describes sources so the leader can check their prerequisites.
type Validator interface {
	DescribeSource(ctx context.Context, sourceID string) (SourceDescription, error)
}

// Coordinator is the part of sourcecoord.Coordinator used by StreamTasks.
type Coordinator interface {
	CreatePartition(ctx context.Context, p sourcecoord.Partition) (bool, error)
	QueryCompletedPartitions(ctx context.Context, partitionType string, since time.Time) ([]sourcecoord.Partition, error)
}

var _ Coordinator = (*sourcecoord.Coordinator)(nil)

// StreamState is the global-state entry created for every stream.
type StreamState struct {
	SourceID     string    `json:"sourceId"`
	StreamID     string    `json:"streamId"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// ShardProgress is the initial progress state of a shard partition.
//
// Workers own the partition once acquired and may replace the blob entirely.
type ShardProgress struct {
	StreamID      string `json:"streamId"`
	ShardID       string `json:"shardId"`
	ParentShardID string `json:"parentShardId,omitempty"`
	Checkpoint    string `json:"checkpoint,omitempty"`
}

// PartitionKey returns the shard partition key "<streamID>|<shardID>".
func PartitionKey(streamID, shardID string) string {
	return streamID + keyDelimiter + shardID
}

// SplitPartitionKey splits a shard partition key into stream and shard IDs.
func SplitPartitionKey(key string) (streamID, shardID string, ok bool) {
	idx := strings.LastIndex(key, keyDelimiter)
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}

	return key[:idx], key[idx+1:], true
}

// StreamTasks implements the leader tasks of change-stream sources.
type StreamTasks struct {
	coord     Coordinator
	validator Validator
	manager   *Manager
	sources   []string
	logger    types.Logger
	now       func() time.Time
}

// TasksOption configures StreamTasks.
type TasksOption func(*StreamTasks)

// WithTasksLogger sets the logger.
func WithTasksLogger(logger types.Logger) TasksOption {
	return func(t *StreamTasks) {
		t.logger = logger
	}
}

// WithTasksClock overrides the time stamped into stream global state.
func WithTasksClock(now func() time.Time) TasksOption {
	return func(t *StreamTasks) {
		t.now = now
	}
}

// NewStreamTasks creates leader tasks for the change streams of sources.
//
// Parameters:
//   - coord: Coordinator used to create and query partitions
//   - validator: Describes each source during initialization
//   - manager: Shard discovery for the source's streams
//   - sources: Source IDs (e.g., table names), at least one
//   - opts: Optional logger and clock
//
// Returns:
//   - *StreamTasks: Tasks for leader.NewScheduler
//   - error: ErrInvalidConfig on missing dependencies
//
// Example:
//
//	manager := shard.NewManager(lister)
//	tasks, err := shard.NewStreamTasks(coord, validator, manager, []string{"orders"})
//	if err != nil {
//	    return err
//	}
//	sched, err := leader.ForCoordinator(coord, tasks)
func NewStreamTasks(coord Coordinator, validator Validator, manager *Manager, sources []string, opts ...TasksOption) (*StreamTasks, error) {
	if coord == nil || validator == nil || manager == nil {
		return nil, fmt.Errorf("%w: stream tasks need a coordinator, a validator and a shard manager", types.ErrInvalidConfig)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: stream tasks need at least one source", types.ErrInvalidConfig)
	}

	t := &StreamTasks{
		coord:     coord,
		validator: validator,
		manager:   manager,
		sources:   append([]string(nil), sources...),
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Initialize validates every source and creates the initial partitions.
//
// Each source is described exactly once. All sources are validated before
// any partition is created, so a failing source creates nothing.
func (t *StreamTasks) Initialize(ctx context.Context) error {
	descriptions := make([]SourceDescription, 0, len(t.sources))
	for _, sourceID := range t.sources {
		desc, err := t.validator.DescribeSource(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("failed to describe source %s: %w", sourceID, err)
		}
		if !desc.StreamEnabled || desc.StreamID == "" {
			return fmt.Errorf("%w: %s", types.ErrStreamNotEnabled, sourceID)
		}
		if !desc.PointInTimeRecoveryEnabled {
			return fmt.Errorf("%w: %s", types.ErrPITRNotEnabled, sourceID)
		}
		descriptions = append(descriptions, desc)
	}

	created := 0
	for _, desc := range descriptions {
		units, err := t.manager.RunDiscovery(ctx, desc.StreamID)
		if err != nil {
			return err
		}

		state, err := json.Marshal(StreamState{
			SourceID:     desc.SourceID,
			StreamID:     desc.StreamID,
			DiscoveredAt: t.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to encode stream state: %w", err)
		}
		ok, err := t.coord.CreatePartition(ctx, sourcecoord.NewPartition(types.GlobalStateType, desc.StreamID, state))
		if err != nil {
			return err
		}
		if ok {
			created++
		}

		for _, shardID := range RootShardIDs(units) {
			ok, err := t.createShard(ctx, desc.StreamID, shardID, "")
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
	}

	t.logger.Info("stream sources initialized", "sources", len(t.sources), "partitions_created", created)

	return nil
}

// Refresh creates partitions for the children of shards completed since since.
//
// Streams without newly completed shards are not discovered.
func (t *StreamTasks) Refresh(ctx context.Context, since time.Time) error {
	completed, err := t.coord.QueryCompletedPartitions(ctx, StreamPartitionType, since)
	if err != nil {
		return err
	}
	if len(completed) == 0 {
		return nil
	}

	// Group by stream, keeping first-seen order.
	var streams []string
	byStream := make(map[string][]string)
	for _, p := range completed {
		streamID, shardID, ok := SplitPartitionKey(p.Key)
		if !ok {
			t.logger.Warn("skipping completed partition with unexpected key", "partition_key", p.Key)
			continue
		}
		if _, seen := byStream[streamID]; !seen {
			streams = append(streams, streamID)
		}
		byStream[streamID] = append(byStream[streamID], shardID)
	}

	created := 0
	for _, streamID := range streams {
		if _, err := t.manager.RunDiscovery(ctx, streamID); err != nil {
			return err
		}

		for _, parentID := range byStream[streamID] {
			for _, childID := range t.manager.FindChildShardIDs(streamID, parentID) {
				ok, err := t.createShard(ctx, streamID, childID, parentID)
				if err != nil {
					return err
				}
				if ok {
					created++
				}
			}
		}
	}

	t.logger.Info("child shards discovered",
		"completed_shards", len(completed),
		"streams", len(streams),
		"partitions_created", created,
	)

	return nil
}

func (t *StreamTasks) createShard(ctx context.Context, streamID, shardID, parentID string) (bool, error) {
	progress, err := json.Marshal(ShardProgress{StreamID: streamID, ShardID: shardID, ParentShardID: parentID})
	if err != nil {
		return false, fmt.Errorf("failed to encode shard progress: %w", err)
	}

	return t.coord.CreatePartition(ctx, sourcecoord.NewPartition(StreamPartitionType, PartitionKey(streamID, shardID), progress))
}

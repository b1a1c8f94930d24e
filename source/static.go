package source

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/arloliu/sourcecoord/shard"
	"github.com/arloliu/sourcecoord/types"
)

// Static is an in-memory source topology with a fixed set of sources and shards.
//
// It pages shard listings like a real stream API and counts calls, which makes
// it the discovery backend of tests and examples.
type Static struct {
	mu       sync.RWMutex
	sources  map[string]shard.SourceDescription
	shards   map[string][]types.UnitDescriptor
	pageSize int

	describeCalls atomic.Int64
	listCalls     atomic.Int64
}

var (
	_ shard.Lister    = (*Static)(nil)
	_ shard.Validator = (*Static)(nil)
)

// NewStatic creates an empty static topology.
//
// Parameters:
//   - pageSize: Shards returned per ListShards call, 0 or less for a single page
//
// Returns:
//   - *Static: Topology without sources
//
// Example:
//
//	src := source.NewStatic(100)
//	src.AddSource(shard.SourceDescription{
//	    SourceID:                   "orders",
//	    StreamEnabled:              true,
//	    StreamID:                   "orders-stream",
//	    PointInTimeRecoveryEnabled: true,
//	})
//	src.AddShards("orders-stream",
//	    types.UnitDescriptor{ID: "shard-0"},
//	    types.UnitDescriptor{ID: "shard-1"},
//	)
func NewStatic(pageSize int) *Static {
	return &Static{
		sources:  make(map[string]shard.SourceDescription),
		shards:   make(map[string][]types.UnitDescriptor),
		pageSize: pageSize,
	}
}

// AddSource registers or replaces a source description. A stream-enabled
// source gets an empty shard list for its stream.
func (s *Static) AddSource(desc shard.SourceDescription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sources[desc.SourceID] = desc
	if desc.StreamID != "" {
		if _, ok := s.shards[desc.StreamID]; !ok {
			s.shards[desc.StreamID] = nil
		}
	}
}

// AddShards appends shards to a stream, registering the stream if needed.
//
// This simulates resharding: children added later show up in the next discovery.
func (s *Static) AddShards(streamID string, units ...types.UnitDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shards[streamID] = append(s.shards[streamID], units...)
}

// DescribeSource returns the registered description of sourceID.
func (s *Static) DescribeSource(ctx context.Context, sourceID string) (shard.SourceDescription, error) {
	s.describeCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return shard.SourceDescription{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	desc, ok := s.sources[sourceID]
	if !ok {
		return shard.SourceDescription{}, fmt.Errorf("%w: %s", types.ErrSourceNotFound, sourceID)
	}

	return desc, nil
}

// ListShards returns the page of streamID's shards following exclusiveStartShardID.
func (s *Static) ListShards(ctx context.Context, streamID, exclusiveStartShardID string) ([]types.UnitDescriptor, string, error) {
	s.listCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	units, ok := s.shards[streamID]
	if !ok {
		return nil, "", fmt.Errorf("%w: stream %s", types.ErrSourceNotFound, streamID)
	}

	start := 0
	if exclusiveStartShardID != "" {
		idx := slices.IndexFunc(units, func(u types.UnitDescriptor) bool { return u.ID == exclusiveStartShardID })
		if idx < 0 {
			return nil, "", fmt.Errorf("unknown start shard %s in stream %s", exclusiveStartShardID, streamID)
		}
		start = idx + 1
	}

	end := len(units)
	if s.pageSize > 0 && start+s.pageSize < end {
		end = start + s.pageSize
	}

	page := slices.Clone(units[start:end])
	next := ""
	if end < len(units) {
		next = units[end-1].ID
	}

	return page, next, nil
}

// DescribeCalls returns how many times DescribeSource was called.
func (s *Static) DescribeCalls() int64 {
	return s.describeCalls.Load()
}

// ListCalls returns how many times ListShards was called.
func (s *Static) ListCalls() int64 {
	return s.listCalls.Load()
}

package shard

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/sourcecoord/internal/logging"
	"github.com/arloliu/sourcecoord/internal/metrics"
	"github.com/arloliu/sourcecoord/types"
)

// Lister pages through the shards of a stream.
type Lister interface {
	// ListShards returns one page of shards starting after exclusiveStartShardID
	// (empty for the first page).
	//
	// Returns:
	//   - []types.UnitDescriptor: Shards of this page
	//   - string: Shard ID to start the next page after, empty when exhausted
	//   - error: Discovery error
	ListShards(ctx context.Context, streamID, exclusiveStartShardID string) ([]types.UnitDescriptor, string, error)
}

// Manager discovers shard topology and caches it per stream.
//
// Each source owns its Manager; nothing is shared between sources.
type Manager struct {
	lister  Lister
	caches  *xsync.Map[string, *Cache]
	logger  types.Logger
	metrics types.MetricsCollector
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger types.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the collector receiving discovered unit counts.
func WithManagerMetrics(metrics types.MetricsCollector) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a shard manager backed by lister.
func NewManager(lister Lister, opts ...ManagerOption) *Manager {
	m := &Manager{
		lister:  lister,
		caches:  xsync.NewMap[string, *Cache](),
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RunDiscovery lists every shard of streamID and replaces its cached topology.
//
// The cache is swapped only after all pages were read, so a failed discovery
// leaves the previous topology in place.
//
// Parameters:
//   - ctx: Checked before each page
//   - streamID: Stream to discover
//
// Returns:
//   - []types.UnitDescriptor: Every shard in discovery order
//   - error: Lister error or context cancellation
func (m *Manager) RunDiscovery(ctx context.Context, streamID string) ([]types.UnitDescriptor, error) {
	var (
		units     []types.UnitDescriptor
		lastShard string
		pages     int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, next, err := m.lister.ListShards(ctx, streamID, lastShard)
		if err != nil {
			return nil, fmt.Errorf("failed to list shards of %s (page %d): %w", streamID, pages+1, err)
		}
		pages++
		units = append(units, page...)

		if next == "" {
			break
		}
		lastShard = next
	}

	cache := NewCache()
	for _, unit := range units {
		if unit.ParentID != "" {
			cache.Put(unit.ID, unit.ParentID)
		}
	}
	m.caches.Store(streamID, cache)

	m.metrics.RecordDiscoveredUnits(streamID, len(units))
	m.logger.Debug("shard discovery completed",
		"stream_id", streamID,
		"shards", len(units),
		"pages", pages,
		"parents", cache.Size(),
	)

	return units, nil
}

// FindChildShardIDs returns the known children of parentID in streamID.
//
// Returns nil when the stream was never discovered or the parent has no children.
func (m *Manager) FindChildShardIDs(streamID, parentID string) []string {
	cache, ok := m.caches.Load(streamID)
	if !ok {
		return nil
	}
	children, _ := cache.Get(parentID)

	return children
}

// RootShardIDs returns the shards whose parent is unset or absent from units.
//
// A parent can be absent because it aged out of the stream's retention.
func RootShardIDs(units []types.UnitDescriptor) []string {
	known := make(map[string]struct{}, len(units))
	for _, unit := range units {
		known[unit.ID] = struct{}{}
	}

	var roots []string
	for _, unit := range units {
		if unit.ParentID == "" {
			roots = append(roots, unit.ID)
			continue
		}
		if _, ok := known[unit.ParentID]; !ok {
			roots = append(roots, unit.ID)
		}
	}

	return roots
}

package shard

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v4"
)

// Cache maps parent shard IDs to the IDs of their children.
//
// Safe for concurrent use. Children are kept in insertion order without duplicates.
type Cache struct {
	children *xsync.Map[string, []string]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{children: xsync.NewMap[string, []string]()}
}

// Put records childID as a child of parentID.
func (c *Cache) Put(childID, parentID string) {
	c.children.Compute(parentID, func(old []string, _ bool) ([]string, xsync.ComputeOp) {
		if slices.Contains(old, childID) {
			return old, xsync.CancelOp
		}
		// Readers may still hold old; never append in place.
		next := make([]string, len(old), len(old)+1)
		copy(next, old)

		return append(next, childID), xsync.UpdateOp
	})
}

// Get returns the children of parentID.
//
// Returns:
//   - []string: Child IDs (a copy)
//   - bool: false when parentID has no known children
func (c *Cache) Get(parentID string) ([]string, bool) {
	children, ok := c.children.Load(parentID)
	if !ok {
		return nil, false
	}

	return slices.Clone(children), true
}

// Size returns the number of parents with at least one known child.
func (c *Cache) Size() int {
	return c.children.Size()
}

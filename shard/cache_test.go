package shard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache()

	_, ok := c.Get("parent")
	require.False(t, ok)

	c.Put("child-1", "parent")
	c.Put("child-2", "parent")
	c.Put("child-1", "parent")
	c.Put("other-child", "other")

	children, ok := c.Get("parent")
	require.True(t, ok)
	require.Equal(t, []string{"child-1", "child-2"}, children)
	require.Equal(t, 2, c.Size())

	children[0] = "mutated"
	again, _ := c.Get("parent")
	require.Equal(t, "child-1", again[0])
}

func TestCache_ConcurrentPut(t *testing.T) {
	c := NewCache()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Put(fmt.Sprintf("child-%d", i), fmt.Sprintf("parent-%d", i%10))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, c.Size())
	for p := 0; p < 10; p++ {
		children, ok := c.Get(fmt.Sprintf("parent-%d", p))
		require.True(t, ok)
		require.Len(t, children, 10)
	}
}

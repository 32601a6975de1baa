// ABOUTME: Tests for the bounded LRU page cache
// ABOUTME: Covers eviction order and MRU promotion on hit

package pagecache

import (
	"testing"

	"github.com/neisanworks/neisandb/pkg/pagetree"
)

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := New(2)
	c.Put(0, pagetree.New())
	c.Put(1, pagetree.New())
	c.Put(2, pagetree.New())

	if _, ok := c.Get(0); ok {
		t.Error("expected position 0 to be evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("expected position 1 to survive")
	}
	if _, ok := c.Get(2); !ok {
		t.Error("expected position 2 to survive")
	}
}

func TestCacheHitPromotesToMRU(t *testing.T) {
	c := New(2)
	c.Put(0, pagetree.New())
	c.Put(1, pagetree.New())

	// Touch 0, making 1 the least recently used.
	c.Get(0)
	c.Put(2, pagetree.New())

	if _, ok := c.Get(1); ok {
		t.Error("expected position 1 (now LRU) to be evicted")
	}
	if _, ok := c.Get(0); !ok {
		t.Error("expected position 0 (recently touched) to survive")
	}
}

func TestCacheEachMRUFirstOrder(t *testing.T) {
	c := New(3)
	c.Put(0, pagetree.New())
	c.Put(1, pagetree.New())
	c.Put(2, pagetree.New())

	var seen []int64
	c.EachMRUFirst(func(position int64, _ *pagetree.PageTree) bool {
		seen = append(seen, position)
		return true
	})

	want := []int64{2, 1, 0}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], seen[i])
		}
	}
}

func TestCacheEachMRUFirstEarlyStop(t *testing.T) {
	c := New(3)
	c.Put(0, pagetree.New())
	c.Put(1, pagetree.New())

	count := 0
	c.EachMRUFirst(func(int64, *pagetree.PageTree) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("expected early stop after 1 entry, got %d", count)
	}
}

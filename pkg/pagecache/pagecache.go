// Package pagecache implements the bounded LRU of recently-evicted or
// read-back page trees (spec §4.3): on insert when full, evict the
// oldest; on hit, promote to the most-recent slot.
package pagecache

import (
	"container/list"

	"github.com/neisanworks/neisandb/pkg/pagetree"
)

// DefaultCapacity is the default number of page trees the cache holds
// (spec §3's `cache` field: "LRU of up to 5 evicted PageTrees").
const DefaultCapacity = 5

type entry struct {
	position int64
	tree     *pagetree.PageTree
}

// Cache is a fixed-capacity, position-keyed LRU of page trees.
type Cache struct {
	capacity int
	order    *list.List // front = most recently used
	index    map[int64]*list.Element
}

// New constructs a cache with the given capacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[int64]*list.Element),
	}
}

// Put inserts a decoded page tree at its file position, evicting the
// least recently used entry if the cache is already full.
func (c *Cache) Put(position int64, tree *pagetree.PageTree) {
	if el, ok := c.index[position]; ok {
		el.Value.(*entry).tree = tree
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(*entry).position)
		}
	}

	el := c.order.PushFront(&entry{position: position, tree: tree})
	c.index[position] = el
}

// Get returns the page tree stored at position, promoting it to most
// recently used on a hit.
func (c *Cache) Get(position int64) (*pagetree.PageTree, bool) {
	el, ok := c.index[position]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).tree, true
}

// Len reports the number of cached page trees.
func (c *Cache) Len() int { return c.order.Len() }

// EachMRUFirst calls visit for every cached page tree from most to
// least recently used, stopping early if visit returns false. This is
// the traversal read paths use to probe the cache after current_page
// and before the file (spec §4.6).
func (c *Cache) EachMRUFirst(visit func(position int64, tree *pagetree.PageTree) bool) {
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !visit(e.position, e.tree) {
			return
		}
	}
}

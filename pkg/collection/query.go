package collection

import (
	"context"

	"github.com/neisanworks/neisandb/pkg/model"
	"github.com/neisanworks/neisandb/pkg/pagetree"
)

// Search selects either a single record by id, or the first record
// matching a predicate, mirroring spec §4.6's "search (either an id or a
// predicate)".
type Search struct {
	ID        *uint32
	Predicate func(model.Instance) bool
}

// ByID builds a Search that resolves to the record with the given id.
func ByID(id uint32) Search {
	return Search{ID: &id}
}

// ByPredicate builds a Search that resolves to the first record
// matching predicate in newest-to-oldest order.
func ByPredicate(predicate func(model.Instance) bool) Search {
	return Search{Predicate: predicate}
}

// FindOptions bounds a Find call (spec §4.6.2).
type FindOptions struct {
	Offset int
	Limit  int // 0 means unbounded
}

// FindOne resolves search to an instance (spec §4.6.1), admitted
// through the bounded reader semaphore.
func (c *Collection) FindOne(ctx context.Context, search Search) (model.Instance, bool, error) {
	if err := c.coord.AcquireReader(ctx); err != nil {
		return model.Instance{}, false, err
	}
	defer c.coord.ReleaseReader()
	return c.findOneLocked(search)
}

// findOneLocked runs FindOne's resolution without acquiring the reader
// semaphore; used by FindOne after admission and by the writer-held
// mutation paths, which exclude concurrent writers (not readers) via
// the writer lock.
func (c *Collection) findOneLocked(search Search) (model.Instance, bool, error) {
	snapshotLSN := c.maxLSN.Load()
	if search.ID != nil {
		return c.findOneByID(*search.ID, snapshotLSN)
	}
	return c.findOneByPredicate(search.Predicate, snapshotLSN)
}

func (c *Collection) findOneByID(id uint32, snapshotLSN int64) (model.Instance, bool, error) {
	if int64(id) > c.maxID.Load() {
		return model.Instance{}, false, nil
	}
	key := pagetree.Key{ID: id, LSN: uint64(snapshotLSN)}

	if e, ok := c.currentPage.Load().Floor(key); ok {
		if e.Value.Tombstone {
			return model.Instance{}, false, nil
		}
		return c.modelCtor(e.Value.Payload, id), true, nil
	}

	type cached struct {
		pos  int64
		tree *pagetree.PageTree
	}
	var candidates []cached
	c.cacheMu.Lock()
	c.cache.EachMRUFirst(func(pos int64, tree *pagetree.PageTree) bool {
		candidates = append(candidates, cached{pos, tree})
		return true
	})
	c.cacheMu.Unlock()

	for _, ce := range candidates {
		if e, ok := ce.tree.Floor(key); ok {
			c.cacheMu.Lock()
			c.cache.Get(ce.pos)
			c.cacheMu.Unlock()
			if e.Value.Tombstone {
				return model.Instance{}, false, nil
			}
			return c.modelCtor(e.Value.Payload, id), true, nil
		}
	}

	c.coord.AwaitFlusherUnlocked()
	start := c.fileSize.Load() - int64(c.pageSize)
	for pos := start; pos >= 0; pos -= int64(c.pageSize) {
		tree, ok, err := c.pageFile.ReadPage(pos)
		if err != nil {
			return model.Instance{}, false, err
		}
		if !ok {
			continue
		}
		c.cacheMu.Lock()
		c.cache.Put(pos, tree)
		c.cacheMu.Unlock()

		if e, ok := tree.Floor(key); ok {
			if e.Value.Tombstone {
				return model.Instance{}, false, nil
			}
			return c.modelCtor(e.Value.Payload, id), true, nil
		}
	}
	return model.Instance{}, false, nil
}

func (c *Collection) findOneByPredicate(predicate func(model.Instance) bool, snapshotLSN int64) (model.Instance, bool, error) {
	visited := make(map[uint32]bool)
	var result model.Instance
	found := false

	err := c.walk(snapshotLSN, func(id uint32, tombstone bool, payload map[string]any) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		if tombstone {
			return false
		}
		inst := c.modelCtor(payload, id)
		if predicate == nil || predicate(inst) {
			result = inst
			found = true
			return true
		}
		return false
	})
	return result, found, err
}

// walk traverses current_page, then the cache (MRU first), then file
// pages newest-to-oldest, invoking onEntry for every (lsn <=
// snapshotLSN) entry until it returns true (stop). It does not dedupe
// by id itself — callers carry their own visited set across the whole
// traversal, per spec §4.6's shared-visited-set rule.
func (c *Collection) walk(snapshotLSN int64, onEntry func(id uint32, tombstone bool, payload map[string]any) bool) error {
	stopped := false
	c.currentPage.Load().DescendEntries(func(e pagetree.Entry) bool {
		if int64(e.Key.LSN) > snapshotLSN {
			return true
		}
		if onEntry(e.Key.ID, e.Value.Tombstone, e.Value.Payload) {
			stopped = true
			return false
		}
		return true
	})
	if stopped {
		return nil
	}

	type cached struct {
		pos  int64
		tree *pagetree.PageTree
	}
	var candidates []cached
	c.cacheMu.Lock()
	c.cache.EachMRUFirst(func(pos int64, tree *pagetree.PageTree) bool {
		candidates = append(candidates, cached{pos, tree})
		return true
	})
	c.cacheMu.Unlock()

	for _, ce := range candidates {
		ce.tree.DescendEntries(func(e pagetree.Entry) bool {
			if int64(e.Key.LSN) > snapshotLSN {
				return true
			}
			if onEntry(e.Key.ID, e.Value.Tombstone, e.Value.Payload) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return nil
		}
	}

	c.coord.AwaitFlusherUnlocked()
	start := c.fileSize.Load() - int64(c.pageSize)
	for pos := start; pos >= 0; pos -= int64(c.pageSize) {
		tree, ok, err := c.pageFile.ReadPage(pos)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		c.cacheMu.Lock()
		c.cache.Put(pos, tree)
		c.cacheMu.Unlock()

		tree.DescendEntries(func(e pagetree.Entry) bool {
			if int64(e.Key.LSN) > snapshotLSN {
				return true
			}
			if onEntry(e.Key.ID, e.Value.Tombstone, e.Value.Payload) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return nil
		}
	}
	return nil
}

// Find gathers every unvisited live record matching predicate (or all
// records if predicate is nil), newest-to-oldest, then applies
// offset/limit (spec §4.6.2). It returns (nil, nil) when no record
// matches, mirroring the spec's `None` result.
func (c *Collection) Find(ctx context.Context, predicate func(model.Instance) bool, opts FindOptions) ([]model.Instance, error) {
	if err := c.coord.AcquireReader(ctx); err != nil {
		return nil, err
	}
	defer c.coord.ReleaseReader()
	return c.findLocked(predicate, opts)
}

func (c *Collection) findLocked(predicate func(model.Instance) bool, opts FindOptions) ([]model.Instance, error) {
	snapshotLSN := c.maxLSN.Load()
	visited := make(map[uint32]bool)
	var results []model.Instance

	err := c.walk(snapshotLSN, func(id uint32, tombstone bool, payload map[string]any) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		if tombstone {
			return false
		}
		inst := c.modelCtor(payload, id)
		if predicate == nil || predicate(inst) {
			results = append(results, inst)
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	lo := opts.Offset
	if lo < 0 {
		lo = 0
	}
	if lo > len(results) {
		lo = len(results)
	}
	hi := len(results)
	if opts.Limit > 0 && lo+opts.Limit < hi {
		hi = lo + opts.Limit
	}

	sliced := results[lo:hi]
	if len(sliced) == 0 {
		return nil, nil
	}
	return sliced, nil
}

// Count tallies matches without instantiating the caller's model
// constructor (spec §4.6.3).
func (c *Collection) Count(ctx context.Context, predicate func(map[string]any) bool) (int, error) {
	if err := c.coord.AcquireReader(ctx); err != nil {
		return 0, err
	}
	defer c.coord.ReleaseReader()

	snapshotLSN := c.maxLSN.Load()
	visited := make(map[uint32]bool)
	count := 0

	err := c.walk(snapshotLSN, func(id uint32, tombstone bool, payload map[string]any) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		if tombstone {
			return false
		}
		if predicate == nil || predicate(payload) {
			count++
		}
		return false
	})
	return count, err
}

// Exists delegates to FindOne and reports whether a match was found
// (spec §4.6.4).
func (c *Collection) Exists(ctx context.Context, search Search) (bool, error) {
	_, found, err := c.FindOne(ctx, search)
	return found, err
}

// FindAndMap fetches matches with Find, then maps them concurrently
// through mapper, bounded by the database-wide concurrency limiter;
// mapper errors are discarded silently per element (spec §4.6.5).
func (c *Collection) FindAndMap(ctx context.Context, predicate func(model.Instance) bool, mapper func(model.Instance) (any, error), opts FindOptions) ([]any, error) {
	matches, err := c.Find(ctx, predicate, opts)
	if err != nil {
		return nil, err
	}

	return mapConcurrently(ctx, c.dbLimiter, matches, mapper), nil
}

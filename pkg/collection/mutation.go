package collection

import (
	"context"
	"reflect"
	"time"

	"github.com/neisanworks/neisandb/pkg/engineerr"
	"github.com/neisanworks/neisandb/pkg/model"
	"github.com/neisanworks/neisandb/pkg/pagetree"
)

// Insert validates record, enforces uniqueness, allocates a fresh id
// and lsn, and writes it into the current page (spec §4.5.1).
func (c *Collection) Insert(ctx context.Context, record map[string]any) (model.Instance, error) {
	start := time.Now()
	c.coord.LockWriter()
	defer c.coord.UnlockWriter()

	inst, err := c.insertLocked(record)
	c.recordOperation("insert", start, err)
	if err != nil {
		return model.Instance{}, err
	}
	c.log.LogOperation("insert", time.Since(start), 1, nil)
	return inst, nil
}

func (c *Collection) insertLocked(record map[string]any) (model.Instance, error) {
	if c.schema != nil {
		parsed, errs := c.schema.Validate(record)
		if len(errs) > 0 {
			return model.Instance{}, engineerr.NewValidation(errs)
		}
		record = parsed
	}

	if err := c.uniquenessScan(record, nil); err != nil {
		return model.Instance{}, err
	}

	id := uint32(c.maxID.Add(1))
	lsn := c.maxLSN.Add(1)

	page := c.currentPage.Load()
	page.Set(pagetree.Key{ID: id, LSN: uint64(lsn)}, pagetree.Value{Payload: record})

	if err := c.applyRotation(); err != nil {
		return model.Instance{}, err
	}
	return c.modelCtor(record, id), nil
}

// FindOneAndUpdate locates one record by search, applies updater to its
// payload, validates and uniqueness-checks the result, and appends a
// new version at a fresh lsn under the same id (spec §4.5.2).
func (c *Collection) FindOneAndUpdate(ctx context.Context, search Search, updater func(map[string]any) (map[string]any, error)) (model.Instance, error) {
	start := time.Now()
	c.coord.LockWriter()
	defer c.coord.UnlockWriter()

	inst, err := c.findOneAndUpdateLocked(search, updater)
	c.recordOperation("find_one_and_update", start, err)
	if err != nil {
		return model.Instance{}, err
	}
	c.log.LogOperation("find_one_and_update", time.Since(start), 1, nil)
	return inst, nil
}

func (c *Collection) findOneAndUpdateLocked(search Search, updater func(map[string]any) (map[string]any, error)) (model.Instance, error) {
	existing, found, err := c.findOneLocked(search)
	if err != nil {
		return model.Instance{}, err
	}
	if !found {
		return model.Instance{}, engineerr.ErrNoMatch
	}

	updated, err := updater(existing.Payload)
	if err != nil {
		return model.Instance{}, engineerr.NewUpdaterError(err)
	}

	if c.schema != nil {
		parsed, errs := c.schema.Validate(updated)
		if len(errs) > 0 {
			return model.Instance{}, engineerr.NewValidation(errs)
		}
		updated = parsed
	}

	excludeID := existing.ID
	if err := c.uniquenessScan(updated, &excludeID); err != nil {
		return model.Instance{}, err
	}

	lsn := c.maxLSN.Add(1)
	page := c.currentPage.Load()
	page.Set(pagetree.Key{ID: existing.ID, LSN: uint64(lsn)}, pagetree.Value{Payload: updated})

	if err := c.applyRotation(); err != nil {
		return model.Instance{}, err
	}
	return c.modelCtor(updated, existing.ID), nil
}

// FindOneAndDelete locates one record by search and appends a tombstone
// version at a fresh lsn under the same id (spec §4.5.3).
func (c *Collection) FindOneAndDelete(ctx context.Context, search Search) (model.Instance, error) {
	start := time.Now()
	c.coord.LockWriter()
	defer c.coord.UnlockWriter()

	inst, err := c.findOneAndDeleteLocked(search)
	c.recordOperation("find_one_and_delete", start, err)
	if err != nil {
		return model.Instance{}, err
	}
	c.log.LogOperation("find_one_and_delete", time.Since(start), 1, nil)
	return inst, nil
}

func (c *Collection) findOneAndDeleteLocked(search Search) (model.Instance, error) {
	existing, found, err := c.findOneLocked(search)
	if err != nil {
		return model.Instance{}, err
	}
	if !found {
		return model.Instance{}, engineerr.ErrNoMatch
	}

	lsn := c.maxLSN.Add(1)
	page := c.currentPage.Load()
	page.Set(pagetree.Key{ID: existing.ID, LSN: uint64(lsn)}, pagetree.Value{Tombstone: true})

	if err := c.applyRotation(); err != nil {
		return model.Instance{}, err
	}
	return existing, nil
}

// FindAndUpdate applies updater to every record matching predicate,
// aborting on the first failure (the Open Question in the distilled
// spec's §4.5.5 is resolved this way: the batch stops at the failure,
// updates already applied to earlier matches stay in place, and only
// the error is returned, rather than collecting per-record errors and
// continuing).
func (c *Collection) FindAndUpdate(ctx context.Context, predicate func(model.Instance) bool, updater func(map[string]any) (map[string]any, error)) ([]model.Instance, error) {
	start := time.Now()
	c.coord.LockWriter()
	defer c.coord.UnlockWriter()

	results, err := c.findAndUpdateLocked(predicate, updater)
	c.recordOperation("find_and_update", start, err)
	if err != nil {
		return nil, err
	}
	c.log.LogOperation("find_and_update", time.Since(start), len(results), nil)
	return results, nil
}

func (c *Collection) findAndUpdateLocked(predicate func(model.Instance) bool, updater func(map[string]any) (map[string]any, error)) ([]model.Instance, error) {
	matches, err := c.findLocked(predicate, FindOptions{})
	if err != nil {
		return nil, err
	}

	results := make([]model.Instance, 0, len(matches))
	for _, existing := range matches {
		updated, err := updater(existing.Payload)
		if err != nil {
			return nil, engineerr.NewUpdaterError(err)
		}
		if c.schema != nil {
			parsed, errs := c.schema.Validate(updated)
			if len(errs) > 0 {
				return nil, engineerr.NewValidation(errs)
			}
			updated = parsed
		}
		excludeID := existing.ID
		if err := c.uniquenessScan(updated, &excludeID); err != nil {
			return nil, err
		}

		lsn := c.maxLSN.Add(1)
		page := c.currentPage.Load()
		page.Set(pagetree.Key{ID: existing.ID, LSN: uint64(lsn)}, pagetree.Value{Payload: updated})
		if err := c.applyRotation(); err != nil {
			return nil, err
		}
		results = append(results, c.modelCtor(updated, existing.ID))
	}
	return results, nil
}

// FindAndDelete tombstones every record matching predicate. predicate
// is mandatory (spec §4.5.6's guard against an unbounded delete-all).
func (c *Collection) FindAndDelete(ctx context.Context, predicate func(model.Instance) bool) ([]model.Instance, error) {
	if predicate == nil {
		return nil, engineerr.NewValidation(map[string]string{"predicate": "predicate is required for find_and_delete"})
	}

	start := time.Now()
	c.coord.LockWriter()
	defer c.coord.UnlockWriter()

	results, err := c.findAndDeleteLocked(predicate)
	c.recordOperation("find_and_delete", start, err)
	if err != nil {
		return nil, err
	}
	c.log.LogOperation("find_and_delete", time.Since(start), len(results), nil)
	return results, nil
}

func (c *Collection) findAndDeleteLocked(predicate func(model.Instance) bool) ([]model.Instance, error) {
	matches, err := c.findLocked(predicate, FindOptions{})
	if err != nil {
		return nil, err
	}

	results := make([]model.Instance, 0, len(matches))
	for _, existing := range matches {
		lsn := c.maxLSN.Add(1)
		page := c.currentPage.Load()
		page.Set(pagetree.Key{ID: existing.ID, LSN: uint64(lsn)}, pagetree.Value{Tombstone: true})
		if err := c.applyRotation(); err != nil {
			return nil, err
		}
		results = append(results, existing)
	}
	return results, nil
}

// uniquenessScan enforces every configured unique field (spec §4.5.4):
// a full scan, memory phase then disk phase, sharing one visited set,
// newest-to-oldest, stopping at the first live conflicting record.
// excludeID is nil for inserts and points at the record's own id for
// updates, so a record doesn't conflict with its own prior version.
func (c *Collection) uniquenessScan(record map[string]any, excludeID *uint32) error {
	if len(c.uniques) == 0 {
		return nil
	}

	snapshotLSN := c.maxLSN.Load()
	visited := make(map[uint32]bool)
	violations := map[string]string{}

	err := c.walk(snapshotLSN, func(id uint32, tombstone bool, payload map[string]any) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		if tombstone {
			return false
		}
		if excludeID != nil && id == *excludeID {
			return false
		}
		for _, field := range c.uniques {
			if valuesEqual(payload[field], record[field]) {
				violations[field] = "value already exists"
			}
		}
		return len(violations) > 0
	})
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return engineerr.NewUniqueness(violations)
	}
	return nil
}

// valuesEqual compares two unique-field values. Spec §4.5.4's payloads
// may hold any JSON-like value, including slices and maps, which are
// not comparable with ==; reflect.DeepEqual handles those without
// panicking.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// mapConcurrently applies mapper to each instance, bounded by limiter,
// discarding mapper errors per element (spec §4.6.5's FindAndMap).
func mapConcurrently(ctx context.Context, limiter interface {
	Acquire(context.Context, int64) error
	Release(int64)
}, instances []model.Instance, mapper func(model.Instance) (any, error)) []any {
	type slot struct {
		ok  bool
		val any
	}
	slots := make([]slot, len(instances))
	done := make(chan struct{}, len(instances))

	for i, inst := range instances {
		i, inst := i, inst
		go func() {
			defer func() { done <- struct{}{} }()
			if err := limiter.Acquire(ctx, 1); err != nil {
				return
			}
			defer limiter.Release(1)
			val, err := mapper(inst)
			if err != nil {
				return
			}
			slots[i] = slot{ok: true, val: val}
		}()
	}
	for range instances {
		<-done
	}

	results := make([]any, 0, len(instances))
	for _, s := range slots {
		if s.ok {
			results = append(results, s.val)
		}
	}
	return results
}

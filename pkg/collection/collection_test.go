// ABOUTME: Integration tests for the collection storage engine
// ABOUTME: Covers round trip, newest-wins, uniqueness, pagination, persistence, and rotation

package collection

import (
	"context"
	"testing"

	"github.com/neisanworks/neisandb/pkg/schema"
)

func open(t *testing.T, opts Options) *Collection {
	t.Helper()
	if opts.Directory == "" {
		opts.Directory = t.TempDir()
	}
	if opts.Name == "" {
		opts.Name = "widgets"
	}
	c, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return c
}

func TestInsertThenFindOneByID(t *testing.T) {
	c := open(t, Options{})
	ctx := context.Background()

	inst, err := c.Insert(ctx, map[string]any{"name": "bolt"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, found, err := c.FindOne(ctx, ByID(inst.ID))
	if err != nil {
		t.Fatalf("find_one: %v", err)
	}
	if !found {
		t.Fatal("expected record to be found")
	}
	if got.Payload["name"] != "bolt" {
		t.Errorf("expected name bolt, got %v", got.Payload["name"])
	}
}

func TestUpdateIsNewestWins(t *testing.T) {
	c := open(t, Options{})
	ctx := context.Background()

	inst, err := c.Insert(ctx, map[string]any{"name": "bolt", "qty": 1})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = c.FindOneAndUpdate(ctx, ByID(inst.ID), func(payload map[string]any) (map[string]any, error) {
		payload["qty"] = 2
		return payload, nil
	})
	if err != nil {
		t.Fatalf("find_one_and_update: %v", err)
	}

	got, found, err := c.FindOne(ctx, ByID(inst.ID))
	if err != nil {
		t.Fatalf("find_one: %v", err)
	}
	if !found {
		t.Fatal("expected updated record to be found")
	}
	if got.Payload["qty"] != 2 {
		t.Errorf("expected newest qty 2, got %v", got.Payload["qty"])
	}
}

func TestDeleteTombstonesRecord(t *testing.T) {
	c := open(t, Options{})
	ctx := context.Background()

	inst, err := c.Insert(ctx, map[string]any{"name": "bolt"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := c.FindOneAndDelete(ctx, ByID(inst.ID)); err != nil {
		t.Fatalf("find_one_and_delete: %v", err)
	}

	_, found, err := c.FindOne(ctx, ByID(inst.ID))
	if err != nil {
		t.Fatalf("find_one: %v", err)
	}
	if found {
		t.Fatal("expected deleted record to no longer be found")
	}
}

func TestUniquenessRejectsDuplicateInsert(t *testing.T) {
	c := open(t, Options{Uniques: []string{"email"}})
	ctx := context.Background()

	if _, err := c.Insert(ctx, map[string]any{"email": "a@x.com"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err := c.Insert(ctx, map[string]any{"email": "a@x.com"})
	if err == nil {
		t.Fatal("expected uniqueness conflict on duplicate email")
	}
}

func TestUniquenessAllowsUpdatingSameRecord(t *testing.T) {
	c := open(t, Options{Uniques: []string{"email"}})
	ctx := context.Background()

	inst, err := c.Insert(ctx, map[string]any{"email": "a@x.com"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = c.FindOneAndUpdate(ctx, ByID(inst.ID), func(payload map[string]any) (map[string]any, error) {
		payload["email"] = "a@x.com"
		return payload, nil
	})
	if err != nil {
		t.Fatalf("expected update against its own prior version to not conflict: %v", err)
	}
}

func TestUniquenessComparesUncomparableValuesWithoutPanic(t *testing.T) {
	c := open(t, Options{Uniques: []string{"tags"}})
	ctx := context.Background()

	if _, err := c.Insert(ctx, map[string]any{"tags": []any{"a", "b"}}); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err := c.Insert(ctx, map[string]any{"tags": []any{"a", "b"}})
	if err == nil {
		t.Fatal("expected uniqueness conflict on duplicate slice-valued field")
	}

	if _, err := c.Insert(ctx, map[string]any{"tags": []any{"c"}}); err != nil {
		t.Fatalf("expected a distinct slice value to not conflict: %v", err)
	}
}

func TestSchemaValidationRejectsMissingRequiredField(t *testing.T) {
	s := schema.New(map[string]schema.Rule{
		"email": {Required: true},
	})
	c := open(t, Options{Schema: s})
	ctx := context.Background()

	_, err := c.Insert(ctx, map[string]any{"name": "bolt"})
	if err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestFindWithOffsetAndLimit(t *testing.T) {
	c := open(t, Options{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := c.Insert(ctx, map[string]any{"n": i}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	page, err := c.Find(ctx, nil, FindOptions{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page))
	}
}

func TestCountMatchesPredicate(t *testing.T) {
	c := open(t, Options{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := c.Insert(ctx, map[string]any{"even": i%2 == 0}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	n, err := c.Count(ctx, func(payload map[string]any) bool {
		return payload["even"] == true
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 even records, got %d", n)
	}
}

func TestFlushThenReopenRecoversState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c := open(t, Options{Directory: dir})
	inst, err := c.Insert(ctx, map[string]any{"name": "bolt"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if c.MaxLSN() != c.LastFlushedLSN() {
		t.Fatalf("expected max_lsn == last_flushed_lsn after flush, got %d != %d", c.MaxLSN(), c.LastFlushedLSN())
	}

	reopened := open(t, Options{Directory: dir})
	got, found, err := reopened.FindOne(ctx, ByID(inst.ID))
	if err != nil {
		t.Fatalf("find_one after reopen: %v", err)
	}
	if !found {
		t.Fatal("expected record to survive reopen")
	}
	if got.Payload["name"] != "bolt" {
		t.Errorf("expected name bolt after reopen, got %v", got.Payload["name"])
	}
}

func TestFlushThenReopenRecoversNestedDocument(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c := open(t, Options{Directory: dir})
	inst, err := c.Insert(ctx, map[string]any{
		"name":    "bolt",
		"address": map[string]any{"city": "NYC"},
		"tags":    []any{"a", "b"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reopened := open(t, Options{Directory: dir})
	got, found, err := reopened.FindOne(ctx, ByID(inst.ID))
	if err != nil {
		t.Fatalf("find_one after reopen: %v", err)
	}
	if !found {
		t.Fatal("expected record with a nested document to survive reopen")
	}
	address, ok := got.Payload["address"].(map[string]any)
	if !ok || address["city"] != "NYC" {
		t.Errorf("expected nested address object to survive flush/reopen, got %v", got.Payload["address"])
	}
	tags, ok := got.Payload["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Errorf("expected tags array to survive flush/reopen, got %v", got.Payload["tags"])
	}
}

func TestPageRotationOnTreeSizeOverflow(t *testing.T) {
	c := open(t, Options{TreeSize: 4})
	ctx := context.Background()

	var lastID uint32
	for i := 0; i < 6; i++ {
		inst, err := c.Insert(ctx, map[string]any{"n": i})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		lastID = inst.ID
	}

	got, found, err := c.FindOne(ctx, ByID(lastID))
	if err != nil {
		t.Fatalf("find_one: %v", err)
	}
	if !found {
		t.Fatal("expected record in rotated page to still be found")
	}
	if got.Payload["n"] != 5 {
		t.Errorf("expected n=5, got %v", got.Payload["n"])
	}
}

func TestConcurrentInsertsAllocateDistinctIDs(t *testing.T) {
	c := open(t, Options{})
	ctx := context.Background()

	const n = 100
	ids := make(chan uint32, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			inst, err := c.Insert(ctx, map[string]any{"n": i})
			if err != nil {
				errs <- err
				return
			}
			ids <- inst.ID
		}()
	}

	seen := make(map[uint32]bool)
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent insert failed: %v", err)
		case id := <-ids:
			if seen[id] {
				t.Fatalf("duplicate id %d allocated under concurrent insert", id)
			}
			seen[id] = true
		}
	}

	count, err := c.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != n {
		t.Errorf("expected %d live records, got %d", n, count)
	}
}

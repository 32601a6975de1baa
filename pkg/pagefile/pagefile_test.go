// ABOUTME: Tests for fixed-size page I/O
// ABOUTME: Covers round trip, missing page, and overflow detection

package pagefile

import (
	"path/filepath"
	"testing"

	"github.com/neisanworks/neisandb/pkg/codec"
	"github.com/neisanworks/neisandb/pkg/pagetree"
)

func newTestFile(t *testing.T) *PageFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "col.nsdb")
	return New(path, 4096, codec.NewGobCodec())
}

func TestPageFileRoundTrip(t *testing.T) {
	pf := newTestFile(t)

	tree := pagetree.New()
	tree.Set(pagetree.Key{ID: 1, LSN: 1}, pagetree.Live(map[string]any{"email": "a@x.com"}))

	if err := pf.WritePage(0, tree); err != nil {
		t.Fatalf("write page: %v", err)
	}

	got, ok, err := pf.ReadPage(0)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if !ok {
		t.Fatal("expected a page to be present")
	}
	entry, found := got.Floor(pagetree.Key{ID: 1, LSN: 1})
	if !found || entry.Value.Payload["email"] != "a@x.com" {
		t.Errorf("round trip mismatch: %+v", entry)
	}
}

func TestPageFileReadMissingPage(t *testing.T) {
	pf := newTestFile(t)

	_, ok, err := pf.ReadPage(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no page for a file that does not exist")
	}
}

func TestPageFileReadPastEnd(t *testing.T) {
	pf := newTestFile(t)
	tree := pagetree.New()
	if err := pf.WritePage(0, tree); err != nil {
		t.Fatalf("write page: %v", err)
	}

	_, ok, err := pf.ReadPage(int64(pf.PageSize() * 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no page past end of file")
	}
}

func TestPageFileOverflowFails(t *testing.T) {
	pf := New(filepath.Join(t.TempDir(), "data", "col.nsdb"), 64, codec.NewGobCodec())

	tree := pagetree.New()
	for i := uint32(0); i < 50; i++ {
		tree.Set(pagetree.Key{ID: i, LSN: 1}, pagetree.Live(map[string]any{"field": "some longer value to force overflow"}))
	}

	if err := pf.WritePage(0, tree); err == nil {
		t.Fatal("expected page overflow error")
	}
}

func TestPageFileEnsureExistsCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "col.nsdb")
	pf := New(path, 4096, codec.NewGobCodec())

	if err := pf.EnsureExists(); err != nil {
		t.Fatalf("ensure exists: %v", err)
	}
	size, err := pf.Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 0 {
		t.Errorf("expected empty file, got size %d", size)
	}
}

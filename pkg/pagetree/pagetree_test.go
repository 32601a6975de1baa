// ABOUTME: Tests for the bounded (id, lsn) ordered map
// ABOUTME: Covers insert/floor/descend and the newest-wins ordering

package pagetree

import "testing"

func TestPageTreeBasicSetFloor(t *testing.T) {
	pt := New()

	pt.Set(Key{ID: 1, LSN: 10}, Live(map[string]any{"v": "a"}))
	pt.Set(Key{ID: 1, LSN: 20}, Live(map[string]any{"v": "b"}))
	pt.Set(Key{ID: 2, LSN: 15}, Live(map[string]any{"v": "c"}))

	entry, ok := pt.Floor(Key{ID: 1, LSN: 25})
	if !ok {
		t.Fatal("expected a floor hit for id 1")
	}
	if entry.Key.LSN != 20 {
		t.Errorf("expected newest version (lsn 20), got lsn %d", entry.Key.LSN)
	}
	if entry.Value.Payload["v"] != "b" {
		t.Errorf("expected payload b, got %v", entry.Value.Payload["v"])
	}
}

func TestPageTreeFloorBeforeAnyVersion(t *testing.T) {
	pt := New()
	pt.Set(Key{ID: 1, LSN: 10}, Live(nil))

	_, ok := pt.Floor(Key{ID: 1, LSN: 5})
	if ok {
		t.Fatal("expected no floor hit when probe lsn precedes all versions")
	}
}

func TestPageTreeFloorWrongID(t *testing.T) {
	pt := New()
	pt.Set(Key{ID: 1, LSN: 10}, Live(nil))

	_, ok := pt.Floor(Key{ID: 2, LSN: 100})
	if ok {
		t.Fatal("floor must not cross ids")
	}
}

func TestPageTreeDeletedTombstone(t *testing.T) {
	pt := New()
	pt.Set(Key{ID: 1, LSN: 10}, Live(map[string]any{"v": "a"}))
	pt.Set(Key{ID: 1, LSN: 20}, Deleted())

	entry, ok := pt.Floor(Key{ID: 1, LSN: 30})
	if !ok || !entry.Value.Tombstone {
		t.Fatal("expected the tombstone to shadow the live version")
	}
}

func TestPageTreeDescendOrder(t *testing.T) {
	pt := New()
	pt.Set(Key{ID: 1, LSN: 1}, Live(nil))
	pt.Set(Key{ID: 2, LSN: 1}, Live(nil))
	pt.Set(Key{ID: 2, LSN: 2}, Live(nil))

	var seen []Key
	pt.DescendEntries(func(e Entry) bool {
		seen = append(seen, e.Key)
		return true
	})

	want := []Key{{ID: 2, LSN: 2}, {ID: 2, LSN: 1}, {ID: 1, LSN: 1}}
	if len(seen) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("position %d: expected %+v, got %+v", i, want[i], seen[i])
		}
	}
}

func TestPageTreeDescendEarlyStop(t *testing.T) {
	pt := New()
	for i := uint32(0); i < 5; i++ {
		pt.Set(Key{ID: i, LSN: 1}, Live(nil))
	}

	count := 0
	pt.DescendEntries(func(e Entry) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Errorf("expected early stop after 2 entries, got %d", count)
	}
}

func TestPageTreeSizeBound(t *testing.T) {
	pt := New()
	for i := uint32(0); i < uint32(DefaultTreeSize); i++ {
		pt.Set(Key{ID: i, LSN: 1}, Live(nil))
	}
	if pt.Size() != DefaultTreeSize {
		t.Errorf("expected size %d, got %d", DefaultTreeSize, pt.Size())
	}
}

func TestPageTreeCodecRoundTrip(t *testing.T) {
	pt := New()
	pt.Set(Key{ID: 1, LSN: 1}, Live(map[string]any{"email": "a@x.com"}))
	pt.Set(Key{ID: 2, LSN: 2}, Deleted())

	wire, err := pt.ToCodecTree()
	if err != nil {
		t.Fatalf("to codec tree: %v", err)
	}
	rebuilt, err := FromCodecTree(wire)
	if err != nil {
		t.Fatalf("from codec tree: %v", err)
	}

	if rebuilt.Size() != pt.Size() {
		t.Fatalf("expected %d entries after round trip, got %d", pt.Size(), rebuilt.Size())
	}

	entry, ok := rebuilt.Floor(Key{ID: 1, LSN: 1})
	if !ok || entry.Value.Payload["email"] != "a@x.com" {
		t.Error("expected live payload to survive round trip")
	}

	tombstone, ok := rebuilt.Floor(Key{ID: 2, LSN: 2})
	if !ok || !tombstone.Value.Tombstone {
		t.Error("expected tombstone to survive round trip distinctly from a payload")
	}
}

func TestPageTreeCodecRoundTripNestedDocument(t *testing.T) {
	pt := New()
	pt.Set(Key{ID: 1, LSN: 1}, Live(map[string]any{
		"name":    "bolt",
		"address": map[string]any{"city": "NYC"},
		"tags":    []any{"a", "b"},
	}))

	wire, err := pt.ToCodecTree()
	if err != nil {
		t.Fatalf("to codec tree: %v", err)
	}
	rebuilt, err := FromCodecTree(wire)
	if err != nil {
		t.Fatalf("from codec tree: %v", err)
	}

	entry, ok := rebuilt.Floor(Key{ID: 1, LSN: 1})
	if !ok {
		t.Fatal("expected entry to survive round trip")
	}
	address, ok := entry.Value.Payload["address"].(map[string]any)
	if !ok || address["city"] != "NYC" {
		t.Errorf("expected nested address object to survive round trip, got %v", entry.Value.Payload["address"])
	}
	tags, ok := entry.Value.Payload["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("expected tags array to survive round trip, got %v", entry.Value.Payload["tags"])
	}
}

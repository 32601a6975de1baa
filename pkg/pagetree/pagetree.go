// Package pagetree implements the in-memory, bounded, ordered map keyed
// by (id, lsn) that backs a single collection page (spec §3, §4.1).
//
// Ordering is primary by id ascending, secondary by lsn ascending: for a
// given id all versions group together, and within a group the newest
// version sorts last. That makes "largest key <= probe" (a floor lookup)
// the operation that finds the most recent version of an id at or
// before a snapshot LSN.
package pagetree

import (
	"encoding/json"
	"fmt"

	"github.com/google/btree"

	"github.com/neisanworks/neisandb/pkg/codec"
)

// DefaultTreeSize is TREE_SIZE from spec §3: the default bound on the
// number of entries a single page tree may hold before rotation.
const DefaultTreeSize = 1500

// btreeDegree controls the branching factor of the underlying
// google/btree.BTreeG. Spec §4.1 suggests "a B-tree with fan-out ~10"
// for a structure this small; degree 8 yields nodes with up to 15
// items and 16 children, close enough for a map bounded at a few thousand entries.
const btreeDegree = 8

// Key identifies a record version: id ascending, then lsn ascending.
type Key struct {
	ID  uint32
	LSN uint64
}

// Less implements the ordering spec §3 calls load-bearing.
func (k Key) Less(other Key) bool {
	if k.ID != other.ID {
		return k.ID < other.ID
	}
	return k.LSN < other.LSN
}

// Value is either a live payload or a tombstone, spec §3's
// `V = Live(payload) | Deleted`.
type Value struct {
	Tombstone bool
	Payload   map[string]any
}

// Live constructs a live Value.
func Live(payload map[string]any) Value {
	return Value{Payload: payload}
}

// Deleted is the tombstone Value.
func Deleted() Value {
	return Value{Tombstone: true}
}

// Entry pairs a Key with its Value, the unit DescendEntries/AllEntries
// iterate over.
type Entry struct {
	Key   Key
	Value Value
}

func (e Entry) less(other Entry) bool { return e.Key.Less(other.Key) }

// PageTree is the bounded ordered map of spec §4.1.
type PageTree struct {
	tree *btree.BTreeG[Entry]
}

// New creates an empty page tree.
func New() *PageTree {
	return &PageTree{
		tree: btree.NewG(btreeDegree, Entry.less),
	}
}

// Set inserts or overwrites the entry at key. PageTree is append-only
// within a page by construction of the callers (mutation engine never
// reuses a (id, lsn) pair), but Set itself is a plain upsert.
func (t *PageTree) Set(key Key, value Value) {
	t.tree.ReplaceOrInsert(Entry{Key: key, Value: value})
}

// Size reports the number of entries currently held.
func (t *PageTree) Size() int {
	return t.tree.Len()
}

// Floor returns the entry with the largest key <= probe, scoped to
// entries with key.ID == probe.ID (the "floor lookup" of spec §4.1,
// used to find the newest version of a specific id at or before a
// snapshot LSN).
func (t *PageTree) Floor(probe Key) (Entry, bool) {
	var found Entry
	ok := false
	t.tree.DescendLessOrEqual(Entry{Key: probe}, func(item Entry) bool {
		if item.Key.ID != probe.ID {
			return false
		}
		found = item
		ok = true
		return false
	})
	return found, ok
}

// DescendEntries walks entries in descending key order (id descending,
// then lsn descending within an id), invoking yield for each; it stops
// early if yield returns false. This is the traversal order every read
// path in spec §4.6 relies on to honor newest-wins.
func (t *PageTree) DescendEntries(yield func(Entry) bool) {
	t.tree.Descend(func(item Entry) bool {
		return yield(item)
	})
}

// AllEntries returns every entry in ascending sorted order; used by the
// codec conversion when flushing a page to disk (spec §4.1) and by
// collection recovery to scan a page read back on open.
func (t *PageTree) AllEntries() []Entry {
	out := make([]Entry, 0, t.tree.Len())
	t.tree.Ascend(func(item Entry) bool {
		out = append(out, item)
		return true
	})
	return out
}

// ToCodecTree converts to the codec's wire representation, JSON-encoding
// each live payload so the codec never needs to know a document's
// concrete shape.
func (t *PageTree) ToCodecTree() (codec.Tree, error) {
	entries := t.AllEntries()
	out := codec.Tree{Entries: make([]codec.Entry, len(entries))}
	for i, e := range entries {
		var payload []byte
		if !e.Value.Tombstone {
			var err error
			payload, err = json.Marshal(e.Value.Payload)
			if err != nil {
				return codec.Tree{}, fmt.Errorf("pagetree: encode payload for id %d: %w", e.Key.ID, err)
			}
		}
		out.Entries[i] = codec.Entry{
			ID:        e.Key.ID,
			LSN:       e.Key.LSN,
			Tombstone: e.Value.Tombstone,
			Payload:   payload,
		}
	}
	return out, nil
}

// FromCodecTree rebuilds a PageTree from the codec's wire representation,
// JSON-decoding each live entry's payload.
func FromCodecTree(wire codec.Tree) (*PageTree, error) {
	t := New()
	for _, e := range wire.Entries {
		var payload map[string]any
		if !e.Tombstone && len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &payload); err != nil {
				return nil, fmt.Errorf("pagetree: decode payload for id %d: %w", e.ID, err)
			}
		}
		t.Set(Key{ID: e.ID, LSN: e.LSN}, Value{Tombstone: e.Tombstone, Payload: payload})
	}
	return t, nil
}

// Package codec defines the opaque binary serialization contract the
// storage engine depends on: encode(tree) -> bytes, decode(bytes) ->
// tree. The engine treats the codec as an external collaborator (spec
// §6); this package also ships the one concrete implementation the
// rest of the module wires in by default.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Entry is the wire representation of a single page-tree record. It is
// the only concrete type a Codec needs to round-trip; Tombstone is kept
// distinct from an empty Payload so deletions are never mistaken for a
// zero-value live record. Payload is pre-serialized (JSON) by the
// caller rather than a bare map[string]any: gob only auto-registers
// concrete scalar and slice-of-scalar types, not arbitrary nested
// map[string]any/[]any document shapes, so handing gob a document tree
// directly would require registering every concrete type a caller's
// document might ever nest. A []byte field sidesteps that entirely.
type Entry struct {
	ID        uint32
	LSN       uint64
	Tombstone bool
	Payload   []byte
}

// Tree is the on-the-wire shape of a decoded page: its entries in
// ascending (ID, LSN) order. Encoders/decoders operate on this rather
// than on pkg/pagetree directly, keeping the codec decoupled from the
// in-memory tree implementation per spec §6.
type Tree struct {
	Entries []Entry
}

// Codec is the opaque serialization contract. Implementations must
// round-trip a Tree exactly, including the Tombstone flag.
type Codec interface {
	Encode(tree Tree) ([]byte, error)
	Decode(data []byte) (Tree, error)
}

// GobCodec implements Codec on top of encoding/gob. No example in the
// retrieved pack ships a general-purpose structured binary codec
// library fit for an evolving record shape with a tombstone marker;
// every storage engine in the pack hand-rolls its own page layout
// instead of importing one. gob is the standard library's answer to
// exactly this "serialize my own struct, self-describing, no schema
// file" case, so it is used here rather than inventing a bespoke format.
type GobCodec struct{}

// NewGobCodec constructs the default codec.
func NewGobCodec() *GobCodec { return &GobCodec{} }

func (GobCodec) Encode(tree Tree) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tree); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte) (Tree, error) {
	var tree Tree
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&tree); err != nil {
		return Tree{}, fmt.Errorf("codec: decode: %w", err)
	}
	return tree, nil
}

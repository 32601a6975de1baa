// Package pagefile implements fixed-size page I/O over a single file
// (spec §4.2): read a page at a byte position, overwrite a page at a
// byte position, always in whole PAGE_SIZE units. No file descriptor is
// retained between calls — each operation opens and closes the file, so
// that suspension (awaiting locks) never entangles descriptor lifetime
// (spec §5's "shared resources" note).
package pagefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/neisanworks/neisandb/pkg/codec"
	"github.com/neisanworks/neisandb/pkg/engineerr"
	"github.com/neisanworks/neisandb/pkg/pagetree"
)

// Default page sizes from spec §3: 256 KiB for data collections, 128
// KiB for offset indexes.
const (
	DefaultDataPageSize  = 256 * 1024
	DefaultIndexPageSize = 128 * 1024

	// headerSize is the 4-byte length prefix plus 4 bytes of reserved
	// padding before the encoded body begins (spec §3).
	headerSize = 8
)

// PageFile wraps a single on-disk file in fixed PAGE_SIZE units.
type PageFile struct {
	path     string
	pageSize int
	codec    codec.Codec
}

// New constructs a PageFile for the given path, page size, and codec.
func New(path string, pageSize int, c codec.Codec) *PageFile {
	return &PageFile{path: path, pageSize: pageSize, codec: c}
}

// PageSize reports the configured fixed page size.
func (pf *PageFile) PageSize() int { return pf.pageSize }

// EnsureExists creates the file and any missing parent directories.
func (pf *PageFile) EnsureExists() error {
	if err := os.MkdirAll(filepath.Dir(pf.path), 0o755); err != nil {
		return fmt.Errorf("pagefile: create directory: %w", err)
	}
	f, err := os.OpenFile(pf.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("pagefile: ensure exists: %w", err)
	}
	return f.Close()
}

// ReadPage reads PAGE_SIZE bytes at the given byte position and decodes
// the page tree stored there. It returns (nil, false, nil) when the
// file is shorter than position+1 byte (no page there yet).
func (pf *PageFile) ReadPage(position int64) (*pagetree.PageTree, bool, error) {
	f, err := os.Open(pf.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("pagefile: open for read: %w", err)
	}
	defer f.Close()

	buf := make([]byte, pf.pageSize)
	n, err := f.ReadAt(buf, position)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("pagefile: read page at %d: %w", position, err)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("pagefile: read page at %d: %w", position, err)
	}

	length := binary.LittleEndian.Uint32(buf[0:4])
	if int(length) > pf.pageSize-headerSize {
		return nil, false, fmt.Errorf("pagefile: page at %d: %w", position, engineerr.ErrCorruptPage)
	}

	body := buf[headerSize : headerSize+int(length)]
	wire, err := pf.codec.Decode(body)
	if err != nil {
		return nil, false, fmt.Errorf("pagefile: decode page at %d: %w: %v", position, engineerr.ErrCorruptPage, err)
	}

	tree, err := pagetree.FromCodecTree(wire)
	if err != nil {
		return nil, false, fmt.Errorf("pagefile: decode page at %d: %w: %v", position, engineerr.ErrCorruptPage, err)
	}
	return tree, true, nil
}

// WritePage encodes tree and writes it as a full PAGE_SIZE buffer at a
// page-aligned position (spec invariant 5: writes are never partial).
func (pf *PageFile) WritePage(position int64, tree *pagetree.PageTree) error {
	wireTree, err := tree.ToCodecTree()
	if err != nil {
		return fmt.Errorf("pagefile: encode page: %w", err)
	}
	encoded, err := pf.codec.Encode(wireTree)
	if err != nil {
		return fmt.Errorf("pagefile: encode page: %w", err)
	}
	if len(encoded) > pf.pageSize-headerSize {
		return fmt.Errorf("pagefile: encoded length %d exceeds capacity %d: %w",
			len(encoded), pf.pageSize-headerSize, engineerr.ErrPageOverflow)
	}

	buf := make([]byte, pf.pageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(encoded)))
	copy(buf[headerSize:], encoded)

	if err := pf.EnsureExists(); err != nil {
		return err
	}

	f, err := os.OpenFile(pf.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("pagefile: open for write: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(buf, position); err != nil {
		return fmt.Errorf("pagefile: write page at %d: %w", position, err)
	}
	return nil
}

// Size returns the current on-disk file size, or 0 if it does not exist.
func (pf *PageFile) Size() (int64, error) {
	info, err := os.Stat(pf.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("pagefile: stat: %w", err)
	}
	return info.Size(), nil
}

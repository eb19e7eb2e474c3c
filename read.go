package hpi

import (
	"fmt"

	"github.com/hpikit/hpi/internal/format"
	"github.com/hpikit/hpi/internal/sqsh"
)

// ReadAll assembles and returns the complete content of a file entry.
//
// The entry must belong to this archive and must not be a directory; both
// failures leave the archive usable. Chunk errors abort the whole read and
// return ErrCorruptChunk with no partial content.
func (a *Archive) ReadAll(e Entry) ([]byte, error) {
	if e.a != a {
		return nil, ErrEntryMismatch
	}
	n := &a.nodes[e.id]
	if n.dir {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, e.Path())
	}
	if a.maxFileSize > 0 && uint64(n.size) > a.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrSizeOverflow, e.Path(), n.size, a.maxFileSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	count := format.ChunkCount(n.size)
	if count == 0 {
		return []byte{}, nil
	}

	a.stream.Seek(int64(n.offset))
	sizes := make([]uint32, count)
	for i := range sizes {
		var err error
		if sizes[i], err = a.stream.ReadUint32(); err != nil {
			return nil, fmt.Errorf("%w: chunk table of %s: %v", ErrTruncated, e.Path(), err)
		}
	}

	out := make([]byte, n.size)
	written := 0
	cur := int64(n.offset) + 4*int64(count)
	for i, csize := range sizes {
		raw, err := a.stream.Section(cur, int(csize))
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d of %s: %v", ErrCorruptChunk, i, e.Path(), err)
		}
		c, err := sqsh.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d of %s: %v", ErrCorruptChunk, i, e.Path(), err)
		}
		m, err := c.Decompress(out[written:])
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d of %s: %v", ErrCorruptChunk, i, e.Path(), err)
		}
		written += m
		cur += int64(csize)
	}
	if written != len(out) {
		return nil, fmt.Errorf("%w: %s decoded %d bytes, want %d", ErrCorruptChunk, e.Path(), written, len(out))
	}
	a.log().Debug("file assembled", "path", e.Path(), "size", written, "chunks", count)
	return out, nil
}

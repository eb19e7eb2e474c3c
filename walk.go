package hpi

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"github.com/hpikit/hpi/internal/format"
)

// maxDepth bounds directory nesting. Offsets in a damaged archive can form
// cycles, which would otherwise recurse forever.
const maxDepth = 128

// node is the arena representation of one entry. Entry handles index into
// the arena instead of holding pointers, so the whole tree is released
// with the archive.
type node struct {
	name       string // decoded leaf name, "" for the root
	parentPath string // "" for the root and its direct children
	offset     uint32 // files: chunk table; directories: directory block
	size       uint32 // uncompressed length, 0 for directories
	dir        bool
	children   []int32 // arena ids in on-disk order, nil for files
}

// appendNode adds n to the arena. Every entry in a well-formed archive owns
// its own 9-byte directory record, which caps how many entries the file can
// physically describe; records that alias a shared block hit this cap
// instead of multiplying the walk.
func (a *Archive) appendNode(n node) (int32, error) {
	if limit := a.stream.Size() / format.DirRecordSize; int64(len(a.nodes)) > limit {
		return 0, fmt.Errorf("%w: entries exceed the archive's %d-record capacity", ErrMalformed, limit)
	}
	id := int32(len(a.nodes))
	a.nodes = append(a.nodes, n)
	return id, nil
}

// buildDir parses the directory block at off into the arena and returns the
// directory's id. Any error aborts the whole walk; no partially built tree
// is ever exposed.
func (a *Archive) buildDir(name, parentPath string, off uint32, depth int) (int32, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: nesting exceeds %d at 0x%x", ErrMalformed, maxDepth, off)
	}

	a.stream.Seek(int64(off))
	count, err := a.stream.ReadUint32()
	if err != nil {
		return 0, fmt.Errorf("%w: directory at 0x%x: %v", ErrTruncated, off, err)
	}
	// Second header field holds the record table offset; the records start
	// right after it, so it carries no extra information.
	if _, err := a.stream.ReadUint32(); err != nil {
		return 0, fmt.Errorf("%w: directory at 0x%x: %v", ErrTruncated, off, err)
	}
	if !format.InBounds(a.stream.Size(), off, format.DirHeaderSize+int64(count)*format.DirRecordSize) {
		return 0, fmt.Errorf("%w: directory at 0x%x claims %d records", ErrTruncated, off, count)
	}

	id, err := a.appendNode(node{
		name:       name,
		parentPath: parentPath,
		offset:     off,
		dir:        true,
	})
	if err != nil {
		return 0, err
	}

	// The root has no name; its children inherit its empty parent path.
	childParent := name
	if parentPath != "" {
		childParent = parentPath + "/" + name
	}

	for range count {
		nameOff, err := a.stream.ReadUint32()
		if err != nil {
			return 0, fmt.Errorf("%w: record in 0x%x: %v", ErrTruncated, off, err)
		}
		infoOff, err := a.stream.ReadUint32()
		if err != nil {
			return 0, fmt.Errorf("%w: record in 0x%x: %v", ErrTruncated, off, err)
		}
		kind, err := a.stream.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: record in 0x%x: %v", ErrTruncated, off, err)
		}

		// Dereferencing the name and info offsets moves the shared cursor
		// away from the record table; put it back on every path, error ones
		// included, before the next record.
		next := a.stream.Pos()
		child, err := a.buildChild(childParent, nameOff, infoOff, kind, depth)
		a.stream.Seek(next)
		if err != nil {
			return 0, err
		}
		a.nodes[id].children = append(a.nodes[id].children, child)
	}
	return id, nil
}

// buildChild materializes one directory record: a file info pair, or a
// nested directory walked recursively.
func (a *Archive) buildChild(parentPath string, nameOff, infoOff uint32, kind byte, depth int) (int32, error) {
	name, err := a.readName(nameOff)
	if err != nil {
		return 0, err
	}

	switch kind {
	case format.KindFile:
		dataOff, dataSize, err := a.readFileInfo(name, infoOff)
		if err != nil {
			return 0, err
		}
		return a.appendNode(node{
			name:       name,
			parentPath: parentPath,
			offset:     dataOff,
			size:       dataSize,
		})
	case format.KindDirectory:
		return a.buildDir(name, parentPath, infoOff, depth+1)
	default:
		return 0, fmt.Errorf("%w: kind 0x%02x for %q", ErrUnknownEntryType, kind, name)
	}
}

// readName reads the NUL-terminated entry name at off.
func (a *Archive) readName(off uint32) (string, error) {
	a.stream.Seek(int64(off))
	raw, err := a.stream.ReadCString()
	if err != nil {
		return "", fmt.Errorf("%w: name at 0x%x: %v", ErrTruncated, off, err)
	}
	return decodeName(raw), nil
}

// readFileInfo reads a file entry's data offset and uncompressed size and
// checks the offset against the archive bounds.
func (a *Archive) readFileInfo(name string, off uint32) (dataOff, dataSize uint32, err error) {
	a.stream.Seek(int64(off))
	if dataOff, err = a.stream.ReadUint32(); err != nil {
		return 0, 0, fmt.Errorf("%w: info for %q at 0x%x: %v", ErrTruncated, name, off, err)
	}
	if dataSize, err = a.stream.ReadUint32(); err != nil {
		return 0, 0, fmt.Errorf("%w: info for %q at 0x%x: %v", ErrTruncated, name, off, err)
	}
	if !format.InBounds(a.stream.Size(), dataOff, 0) {
		return 0, 0, fmt.Errorf("%w: data for %q at 0x%x", ErrTruncated, name, dataOff)
	}
	return dataOff, dataSize, nil
}

// appendSubtree adds a directory's descendants to the flat list: files in
// on-disk order, each subdirectory after its own contents.
func (a *Archive) appendSubtree(id int32) {
	for _, c := range a.nodes[id].children {
		if a.nodes[c].dir {
			a.appendSubtree(c)
		}
		a.flat = append(a.flat, c)
	}
}

// decodeName converts a raw on-disk name to UTF-8. Names use the
// Windows-1252 code page of the original tooling; ASCII passes through.
func decodeName(raw []byte) string {
	ascii := true
	for _, b := range raw {
		if b >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(raw)
	}
	s, err := charmap.Windows1252.NewDecoder().String(string(raw))
	if err != nil {
		return string(raw)
	}
	return s
}

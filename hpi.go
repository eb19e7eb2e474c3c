package hpi

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/hpikit/hpi/internal/format"
	"github.com/hpikit/hpi/internal/scramble"
)

// DefaultMaxFileSize is the default per-file assembly limit (256MB).
const DefaultMaxFileSize = 256 << 20

// Archive provides read access to the entries of a HAPI container.
//
// An Archive is safe for concurrent use: entry reads share one stream
// cursor and are serialized internally.
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS
// for compatibility with the standard library.
type Archive struct {
	stream *scramble.Reader
	closer io.Closer // owned file handle when opened by path

	nodes  []node
	flat   []int32          // root first, then post-order
	byPath map[string]int32 // case-folded slash paths

	key         uint32 // transform key as stored in the header
	maxFileSize uint64
	logger      *slog.Logger

	mu     sync.Mutex // serializes the shared stream cursor
	closed bool
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open opens and parses the archive at path.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := OpenReaderAt(f, info.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// OpenReaderAt parses an archive from the first size bytes of src.
//
// The caller keeps ownership of src; Close does not release it. src must
// stay usable for the lifetime of the Archive.
func OpenReaderAt(src io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	a := &Archive{
		stream:      scramble.New(src, size),
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	rootOff, err := a.validate()
	if err != nil {
		return nil, err
	}
	if err := a.build(rootOff); err != nil {
		return nil, err
	}

	a.log().Debug("archive opened", "entries", a.Len(), "scrambled", a.key != 0)
	return a, nil
}

// validate checks the clear header, arms the stream transform, and returns
// the root directory offset. The header itself is never transformed; the
// key applies to everything after it.
func (a *Archive) validate() (uint32, error) {
	magic, err := a.stream.ReadUint32()
	if err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	if magic != format.MagicHAPI {
		return 0, fmt.Errorf("%w: 0x%08x", ErrBadSignature, magic)
	}

	subtype, err := a.stream.ReadUint32()
	if err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	switch subtype {
	case format.SubtypeDirectory:
	case format.SubtypeSaveGame:
		return 0, fmt.Errorf("%w: saved-game bank", ErrUnsupportedSubtype)
	case format.SubtypeVersion2:
		return 0, fmt.Errorf("%w: major version 2", ErrUnsupportedSubtype)
	default:
		return 0, fmt.Errorf("%w: 0x%08x", ErrUnsupportedSubtype, subtype)
	}

	// Data offset field, present in the header but not needed to walk.
	if _, err := a.stream.ReadUint32(); err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	key, err := a.stream.ReadUint32()
	if err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	rootOff, err := a.stream.ReadUint32()
	if err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}

	a.key = key
	a.stream.SetKey(key)
	return rootOff, nil
}

// build walks the directory graph rooted at rootOff, then derives the flat
// entry list and the path index from the finished tree.
func (a *Archive) build(rootOff uint32) error {
	rootID, err := a.buildDir("", "", rootOff, 0)
	if err != nil {
		return err
	}

	a.flat = make([]int32, 0, len(a.nodes))
	a.flat = append(a.flat, rootID)
	a.appendSubtree(rootID)

	a.byPath = make(map[string]int32, len(a.nodes))
	for i := range a.nodes {
		a.byPath[foldPath(a.path(int32(i)))] = int32(i)
	}
	return nil
}

// path returns the slash-joined path of an entry, "" for the root.
func (a *Archive) path(id int32) string {
	n := &a.nodes[id]
	if n.parentPath == "" {
		return n.name
	}
	return n.parentPath + "/" + n.name
}

// foldPath normalizes a path for lookup. Archive paths are compared
// case-insensitively, like the tooling the format comes from.
func foldPath(path string) string {
	return strings.ToLower(path)
}

// Root returns the archive's root directory entry.
func (a *Archive) Root() Entry {
	return Entry{a: a, id: a.flat[0]}
}

// Len returns the number of entries, the root included.
func (a *Archive) Len() int {
	return len(a.flat)
}

// Entries iterates over all entries: the root first, then every file and
// directory in traversal order, each directory after its contents.
func (a *Archive) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, id := range a.flat {
			if !yield(Entry{a: a, id: id}) {
				return
			}
		}
	}
}

// Lookup finds an entry by its slash-joined path, ignoring case.
// The root is addressed as "" or ".".
func (a *Archive) Lookup(path string) (Entry, bool) {
	if path == "." {
		path = ""
	}
	id, ok := a.byPath[foldPath(path)]
	if !ok {
		return Entry{}, false
	}
	return Entry{a: a, id: id}, true
}

// Size returns the archive size in bytes.
func (a *Archive) Size() int64 {
	return a.stream.Size()
}

// Scrambled reports whether the archive carries a non-zero transform key.
func (a *Archive) Scrambled() bool {
	return a.key != 0
}

// Close releases the archive. Data reads fail afterwards with ErrClosed;
// entry metadata stays readable. Closing an archive opened with
// OpenReaderAt leaves src untouched.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

package hpi

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// lookupFS resolves an fs-style name to an entry, mapping failures to
// fs.PathError as the fs interfaces require.
func (a *Archive) lookupFS(op, name string) (Entry, error) {
	if !fs.ValidPath(name) {
		return Entry{}, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	e, ok := a.Lookup(name)
	if !ok {
		return Entry{}, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return e, nil
}

// Open implements fs.FS.
//
// For file entries the content is assembled in full up front; the returned
// fs.File reads from memory and also supports io.ReaderAt and io.Seeker.
// Names are matched case-insensitively.
func (a *Archive) Open(name string) (fs.File, error) {
	e, err := a.lookupFS("open", name)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return &openDir{e: e, name: name, entries: dirEntries(e)}, nil
	}
	content, err := a.ReadAll(e)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &openFile{e: e, r: bytes.NewReader(content)}, nil
}

// Stat implements fs.StatFS.
//
// The returned info carries the entry's stored name, which may differ from
// name in case.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	e, err := a.lookupFS("stat", name)
	if err != nil {
		return nil, err
	}
	return fileInfo{e: e, name: infoName(e, name)}, nil
}

// ReadFile implements fs.ReadFileFS.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	e, err := a.lookupFS("readfile", name)
	if err != nil {
		return nil, err
	}
	content, err := a.ReadAll(e)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return content, nil
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns the named directory's entries sorted by name. The archive
// stores them in on-disk order; Entry.Children preserves that order.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	e, err := a.lookupFS("readdir", name)
	if err != nil {
		return nil, err
	}
	if !e.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errors.New("not a directory")}
	}
	return dirEntries(e), nil
}

// infoName picks the fs.FileInfo name for an entry opened as name.
func infoName(e Entry, name string) string {
	if name == "." {
		return "."
	}
	return e.Name()
}

// dirEntries lists a directory's children sorted by name.
func dirEntries(e Entry) []fs.DirEntry {
	children := e.Children()
	out := make([]fs.DirEntry, len(children))
	for i, c := range children {
		out[i] = dirEntry{info: fileInfo{e: c, name: c.Name()}}
	}
	slices.SortFunc(out, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return out
}

// fileInfo implements fs.FileInfo for archive entries. The format stores no
// modes or times; files report 0o444 and directories fs.ModeDir | 0o555.
type fileInfo struct {
	e    Entry
	name string
}

func (fi fileInfo) Name() string { return fi.name }
func (fi fileInfo) Size() int64  { return int64(fi.e.Size()) }
func (fi fileInfo) Mode() fs.FileMode {
	if fi.e.IsDir() {
		return fs.ModeDir | 0o555
	}
	return 0o444
}
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return fi.e.IsDir() }

// Sys returns the underlying Entry.
func (fi fileInfo) Sys() any { return fi.e }

// dirEntry implements fs.DirEntry by wrapping a fileInfo.
type dirEntry struct {
	info fileInfo
}

func (de dirEntry) Name() string               { return de.info.Name() }
func (de dirEntry) IsDir() bool                { return de.info.IsDir() }
func (de dirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de dirEntry) Info() (fs.FileInfo, error) { return de.info, nil }

// openFile serves assembled file content.
type openFile struct {
	e Entry
	r *bytes.Reader
}

var (
	_ fs.File     = (*openFile)(nil)
	_ io.ReaderAt = (*openFile)(nil)
	_ io.Seeker   = (*openFile)(nil)
)

func (f *openFile) closedErr(op string) error {
	return &fs.PathError{Op: op, Path: f.e.Path(), Err: fs.ErrClosed}
}

func (f *openFile) Read(p []byte) (int, error) {
	if f.r == nil {
		return 0, f.closedErr("read")
	}
	return f.r.Read(p)
}

func (f *openFile) ReadAt(p []byte, off int64) (int, error) {
	if f.r == nil {
		return 0, f.closedErr("read")
	}
	return f.r.ReadAt(p, off)
}

func (f *openFile) Seek(offset int64, whence int) (int64, error) {
	if f.r == nil {
		return 0, f.closedErr("seek")
	}
	return f.r.Seek(offset, whence)
}

func (f *openFile) Stat() (fs.FileInfo, error) {
	return fileInfo{e: f.e, name: f.e.Name()}, nil
}

func (f *openFile) Close() error {
	f.r = nil
	return nil
}

// openDir lists a directory entry, paging through the name-sorted listing.
type openDir struct {
	e       Entry
	name    string
	entries []fs.DirEntry
	pos     int
}

var _ fs.ReadDirFile = (*openDir)(nil)

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return fileInfo{e: d.e, name: infoName(d.e, d.name)}, nil
}

func (d *openDir) Close() error {
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if n <= 0 {
		rest := d.entries[d.pos:]
		d.pos = len(d.entries)
		return rest, nil
	}
	if d.pos >= len(d.entries) {
		return nil, io.EOF
	}
	end := min(d.pos+n, len(d.entries))
	out := d.entries[d.pos:end]
	d.pos = end
	return out, nil
}

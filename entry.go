package hpi

// Entry identifies one file or directory in an open archive.
//
// Entries are lightweight handles into the archive's entry table: they are
// cheap to copy, and their metadata stays readable even after the owning
// archive is closed. Reading file contents needs the archive open. The
// zero Entry is not valid.
type Entry struct {
	a  *Archive
	id int32
}

func (e Entry) node() *node {
	return &e.a.nodes[e.id]
}

// Name returns the leaf name of the entry, "" for the root.
func (e Entry) Name() string {
	return e.node().name
}

// ParentPath returns the slash-joined names of the entry's ancestors. It is
// "" for both the root and the root's direct children.
func (e Entry) ParentPath() string {
	return e.node().parentPath
}

// Path returns the entry's full slash-joined path, "" for the root.
func (e Entry) Path() string {
	return e.a.path(e.id)
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.node().dir
}

// Size returns the uncompressed byte length of a file entry, 0 for
// directories.
func (e Entry) Size() uint32 {
	return e.node().size
}

// Offset returns the byte position of the entry's on-disk data: the chunk
// size table for files, the directory block for directories.
func (e Entry) Offset() uint32 {
	return e.node().offset
}

// Children returns the entry's immediate children in on-disk order. Files
// have none.
func (e Entry) Children() []Entry {
	n := e.node()
	if len(n.children) == 0 {
		return nil
	}
	out := make([]Entry, len(n.children))
	for i, id := range n.children {
		out[i] = Entry{a: e.a, id: id}
	}
	return out
}

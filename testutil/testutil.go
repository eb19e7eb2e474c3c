// Package testutil builds HAPI archive images in memory for tests.
//
// Build lays out a complete archive (header, directory graph, names, file
// info records, and compression chunks), then applies the stream transform
// when a key is given. The returned bytes are what a real archive file
// would contain.
package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/charmap"

	"github.com/hpikit/hpi/internal/format"
	"github.com/hpikit/hpi/internal/sqsh"
)

// FileSpec describes one entry in a built archive image.
//
// Intermediate directories are created implicitly; set Dir for an
// explicitly empty directory. Children keep the order in which their paths
// first appear.
type FileSpec struct {
	Path      string // slash-joined, case preserved
	Data      []byte // file content, ignored when Dir is set
	Dir       bool   // make an empty directory instead of a file
	Method    byte   // sqsh compression method, default stored
	Obfuscate bool   // obfuscate chunk payloads

	BreakChecksum bool // corrupt the first chunk's checksum
	InvalidKind   bool // write an unrecognized directory record kind
}

// Build assembles an archive image containing the given entries. A nonzero
// key scrambles everything after the 20-byte header, exactly as the reader
// expects to find it.
func Build(tb testing.TB, key uint32, files ...FileSpec) []byte {
	tb.Helper()

	root := &specNode{dir: true, index: map[string]*specNode{}}
	for i := range files {
		insert(tb, root, &files[i])
	}

	b := &builder{tb: tb}
	b.alloc(format.HeaderSize)
	rootOff := b.writeDir(root)

	b.putU32(0, format.MagicHAPI)
	b.putU32(4, format.SubtypeDirectory)
	b.putU32(8, uint32(len(b.buf)))
	b.putU32(12, key)
	b.putU32(16, rootOff)

	if key != 0 {
		scramble(b.buf[format.HeaderSize:], format.HeaderSize, key)
	}
	return b.buf
}

// WriteFile writes an image to a temp file and returns its path.
func WriteFile(tb testing.TB, image []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "test.hpi")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		tb.Fatalf("write image: %v", err)
	}
	return path
}

// specNode is one directory or file in the tree being laid out.
type specNode struct {
	name     string
	dir      bool
	spec     *FileSpec
	children []*specNode
	index    map[string]*specNode
}

func insert(tb testing.TB, root *specNode, spec *FileSpec) {
	tb.Helper()

	parts := strings.Split(spec.Path, "/")
	cur := root
	for i, part := range parts {
		last := i == len(parts)-1
		child, ok := cur.index[part]
		if !ok {
			child = &specNode{name: part, dir: !last || spec.Dir, index: map[string]*specNode{}}
			if last {
				child.spec = spec
			}
			cur.children = append(cur.children, child)
			cur.index[part] = child
		} else if last {
			tb.Fatalf("duplicate path %q", spec.Path)
		} else if !child.dir {
			tb.Fatalf("path %q crosses file %q", spec.Path, part)
		}
		cur = child
	}
}

// builder grows a byte image with absolute-offset patching.
type builder struct {
	tb  testing.TB
	buf []byte
}

func (b *builder) alloc(n int) int {
	off := len(b.buf)
	b.buf = append(b.buf, make([]byte, n)...)
	return off
}

func (b *builder) append(p []byte) int {
	off := len(b.buf)
	b.buf = append(b.buf, p...)
	return off
}

func (b *builder) putU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.buf[off:], v)
}

// writeDir lays out a directory block and, recursively, everything it
// references. Returns the block's offset.
func (b *builder) writeDir(d *specNode) uint32 {
	block := b.alloc(format.DirHeaderSize + format.DirRecordSize*len(d.children))
	b.putU32(block, uint32(len(d.children)))
	// Real archives store the record table offset in the second field.
	b.putU32(block+4, uint32(block)+format.DirHeaderSize)

	for i, child := range d.children {
		rec := block + format.DirHeaderSize + format.DirRecordSize*i

		nameOff := b.append(append(b.encodeName(child.name), 0))
		b.putU32(rec, uint32(nameOff))

		var infoOff int
		kind := byte(format.KindFile)
		if child.dir {
			infoOff = int(b.writeDir(child))
			kind = format.KindDirectory
		} else {
			dataOff := b.writeFileData(child.spec)
			infoOff = b.alloc(format.FileInfoSize)
			b.putU32(infoOff, dataOff)
			b.putU32(infoOff+4, uint32(len(child.spec.Data)))
		}
		b.putU32(rec+4, uint32(infoOff))
		if child.spec != nil && child.spec.InvalidKind {
			kind = 0xEE
		}
		b.buf[rec+8] = kind
	}
	return uint32(block)
}

// writeFileData lays out a file's chunk size table and chunks and returns
// the table's offset. Empty files get no chunk data at all.
func (b *builder) writeFileData(spec *FileSpec) uint32 {
	if len(spec.Data) == 0 {
		return uint32(len(b.buf))
	}

	var pieces [][]byte
	for rest := spec.Data; len(rest) > 0; {
		n := min(len(rest), format.ChunkUnit)
		pieces = append(pieces, rest[:n])
		rest = rest[n:]
	}

	table := b.alloc(4 * len(pieces))
	for i, piece := range pieces {
		chunk := b.buildChunk(spec, piece, i == 0 && spec.BreakChecksum)
		b.putU32(table+4*i, uint32(len(chunk)))
		b.append(chunk)
	}
	return uint32(table)
}

// buildChunk compresses one piece into an on-disk chunk.
func (b *builder) buildChunk(spec *FileSpec, plain []byte, breakSum bool) []byte {
	var payload []byte
	switch spec.Method {
	case sqsh.MethodStored:
		payload = plain
	case sqsh.MethodLZ77:
		payload = lz77Literals(plain)
	case sqsh.MethodZlib:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(plain); err != nil {
			b.tb.Fatalf("zlib compress: %v", err)
		}
		if err := zw.Close(); err != nil {
			b.tb.Fatalf("zlib close: %v", err)
		}
		payload = buf.Bytes()
	default:
		b.tb.Fatalf("unknown method %d", spec.Method)
	}

	if spec.Obfuscate {
		obf := make([]byte, len(payload))
		for i, p := range payload {
			obf[i] = (p ^ byte(i)) + byte(i)
		}
		payload = obf
	}

	var sum uint32
	for _, p := range payload {
		sum += uint32(p)
	}
	if breakSum {
		sum++
	}

	chunk := make([]byte, sqsh.HeaderSize, sqsh.HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(chunk[0:4], sqsh.Magic)
	chunk[4] = 2
	chunk[5] = spec.Method
	if spec.Obfuscate {
		chunk[6] = 1
	}
	binary.LittleEndian.PutUint32(chunk[7:11], uint32(len(payload)))
	binary.LittleEndian.PutUint32(chunk[11:15], uint32(len(plain)))
	binary.LittleEndian.PutUint32(chunk[15:19], sum)
	return append(chunk, payload...)
}

// lz77Literals encodes plain as an all-literal LZ77 stream with the end
// marker. Decoders accept it like any other stream; it just never saves
// space.
func lz77Literals(plain []byte) []byte {
	var out []byte
	for len(plain) >= 8 {
		out = append(out, 0)
		out = append(out, plain[:8]...)
		plain = plain[8:]
	}
	out = append(out, byte(1)<<len(plain))
	out = append(out, plain...)
	out = append(out, 0, 0)
	return out
}

// encodeName converts a UTF-8 name to its Windows-1252 on-disk bytes.
func (b *builder) encodeName(name string) []byte {
	ascii := true
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(name)
	}
	enc, err := charmap.Windows1252.NewEncoder().Bytes([]byte(name))
	if err != nil {
		b.tb.Fatalf("encode name %q: %v", name, err)
	}
	return enc
}

// scramble applies the forward transform to p, whose first byte sits at
// absolute position base in the file.
func scramble(p []byte, base int, key uint32) {
	dk := ^((key << 2) | (key >> 6))
	for i := range p {
		mask := byte(uint32(base+i) ^ dk)
		p[i] = ^(mask ^ p[i])
	}
}

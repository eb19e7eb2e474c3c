// Package scramble reads the keyed byte transform applied to HAPI archive
// containers.
//
// The 20-byte header carries a key k; the working key is derived as
// ^((k << 2) | (k >> 6)) on uint32, with k == 0 leaving the stream
// untransformed. A byte c stored at absolute position p is recovered as
//
//	plain = byte(uint32(p) ^ key) ^ ^c
//
// The reader keeps a single cursor over the underlying source. Every read
// and seek mutates it, so a Reader must not be used concurrently.
package scramble

import (
	"fmt"
	"io"
)

// Reader decodes transformed bytes from a random-access source.
type Reader struct {
	src  io.ReaderAt
	size int64
	pos  int64
	key  uint32 // derived working key; 0 means no transform
}

// New returns a Reader over the first size bytes of src with the transform
// disabled. The cursor starts at position 0.
func New(src io.ReaderAt, size int64) *Reader {
	return &Reader{src: src, size: size}
}

// SetKey derives the working key from the header key k. Passing 0 disables
// the transform.
func (r *Reader) SetKey(k uint32) {
	if k == 0 {
		r.key = 0
		return
	}
	r.key = ^((k << 2) | (k >> 6))
}

// Size returns the total size of the underlying source in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Pos returns the current cursor position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Seek moves the cursor to the absolute position off. Bounds are checked on
// the next read, not here.
func (r *Reader) Seek(off int64) {
	r.pos = off
}

// ReadFull reads len(p) decoded bytes at the cursor and advances it.
// Reading at or past the end returns io.EOF; a partial read returns
// io.ErrUnexpectedEOF.
func (r *Reader) ReadFull(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if r.pos < 0 || r.pos >= r.size {
		return io.EOF
	}
	if int64(len(p)) > r.size-r.pos {
		return io.ErrUnexpectedEOF
	}
	n, err := r.src.ReadAt(p, r.pos)
	if n < len(p) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	r.decode(p, r.pos)
	r.pos += int64(n)
	return nil
}

// ReadByte reads one decoded byte at the cursor.
func (r *Reader) ReadByte() (byte, error) {
	var b [1]byte
	if err := r.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 reads a little-endian u32 at the cursor.
func (r *Reader) ReadUint32() (uint32, error) {
	var b [4]byte
	if err := r.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadCString reads decoded bytes up to, but not including, the next NUL
// terminator and leaves the cursor just past it. The raw bytes are returned
// undecoded; callers pick the text encoding.
func (r *Reader) ReadCString() ([]byte, error) {
	var out []byte
	var buf [64]byte
	for {
		n := int64(len(buf))
		if rem := r.size - r.pos; rem < n {
			n = rem
		}
		if n <= 0 {
			if r.pos >= r.size && out == nil {
				return nil, io.EOF
			}
			// Source ended before a terminator was found.
			return nil, io.ErrUnexpectedEOF
		}
		chunk := buf[:n]
		if err := r.ReadFull(chunk); err != nil {
			return nil, err
		}
		for i, c := range chunk {
			if c == 0 {
				out = append(out, chunk[:i]...)
				r.pos -= int64(len(chunk) - i - 1)
				return out, nil
			}
		}
		out = append(out, chunk...)
	}
}

// Section reads exactly n decoded bytes starting at off and returns them as
// a fresh buffer. It moves the shared cursor to off+n, like the seek-and-read
// it performs.
func (r *Reader) Section(off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > r.size || int64(n) > r.size-off {
		return nil, fmt.Errorf("section [%d,+%d) outside source of %d bytes: %w", off, n, r.size, io.ErrUnexpectedEOF)
	}
	r.Seek(off)
	buf := make([]byte, n)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// decode reverses the transform for bytes that were stored starting at
// absolute position off.
func (r *Reader) decode(p []byte, off int64) {
	if r.key == 0 {
		return
	}
	for i := range p {
		p[i] = byte(uint32(off+int64(i))^r.key) ^ ^p[i]
	}
}

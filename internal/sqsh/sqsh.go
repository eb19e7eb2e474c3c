// Package sqsh decodes SQSH compression chunks, the unit HAPI archives use
// to store file content.
//
// A chunk is a 19-byte header followed by the compressed payload:
//
//	magic          u32  0x48535153 ("SQSH")
//	version        u8
//	method         u8   0 stored, 1 LZ77, 2 zlib
//	obfuscated     u8   0 or 1
//	compressedSize u32  payload bytes on disk
//	originalSize   u32  payload bytes after decompression
//	checksum       u32  byte sum of the payload as stored
//
// The checksum covers the payload exactly as it appears on disk, before any
// deobfuscation. An obfuscated payload recovers byte i as (b - i) ^ i.
package sqsh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

const (
	// Magic identifies a chunk header ("SQSH" little-endian).
	Magic = 0x48535153

	// HeaderSize is the fixed chunk header length in bytes.
	HeaderSize = 19
)

// Compression methods carried in the chunk header.
const (
	MethodStored = 0
	MethodLZ77   = 1
	MethodZlib   = 2
)

// Chunk is a parsed chunk whose payload has passed the checksum but has not
// been decompressed yet.
type Chunk struct {
	Version      byte
	Method       byte
	Obfuscated   bool
	OriginalSize uint32

	payload []byte // as stored, still obfuscated if flagged
}

// Parse validates the chunk header and checksum in b and returns the chunk.
// b must start at the chunk header; trailing bytes past the payload are
// ignored.
func Parse(b []byte) (*Chunk, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("header truncated: %d bytes", len(b))
	}
	if magic := binary.LittleEndian.Uint32(b[0:4]); magic != Magic {
		return nil, fmt.Errorf("bad magic 0x%08x", magic)
	}
	c := &Chunk{
		Version:      b[4],
		Method:       b[5],
		Obfuscated:   b[6] != 0,
		OriginalSize: binary.LittleEndian.Uint32(b[11:15]),
	}
	if c.Method > MethodZlib {
		return nil, fmt.Errorf("unknown compression method %d", c.Method)
	}
	compressedSize := binary.LittleEndian.Uint32(b[7:11])
	if uint64(HeaderSize)+uint64(compressedSize) > uint64(len(b)) {
		return nil, fmt.Errorf("payload truncated: %d bytes, have %d", compressedSize, len(b)-HeaderSize)
	}
	c.payload = b[HeaderSize : HeaderSize+int(compressedSize)]

	var sum uint32
	for _, p := range c.payload {
		sum += uint32(p)
	}
	if want := binary.LittleEndian.Uint32(b[15:19]); sum != want {
		return nil, fmt.Errorf("checksum mismatch: 0x%08x, want 0x%08x", sum, want)
	}
	return c, nil
}

// Decompress writes the chunk's original bytes into dst and returns the
// count written, which always equals OriginalSize on success. dst must hold
// at least OriginalSize bytes.
func (c *Chunk) Decompress(dst []byte) (int, error) {
	if uint64(len(dst)) < uint64(c.OriginalSize) {
		return 0, fmt.Errorf("destination %d bytes, need %d", len(dst), c.OriginalSize)
	}
	dst = dst[:c.OriginalSize]

	payload := c.payload
	if c.Obfuscated {
		payload = make([]byte, len(c.payload))
		for i, p := range c.payload {
			payload[i] = (p - byte(i)) ^ byte(i)
		}
	}

	switch c.Method {
	case MethodStored:
		if len(payload) != len(dst) {
			return 0, fmt.Errorf("stored payload %d bytes, want %d", len(payload), len(dst))
		}
		return copy(dst, payload), nil
	case MethodLZ77:
		return lz77Decode(payload, dst)
	case MethodZlib:
		return inflate(payload, dst)
	default:
		return 0, fmt.Errorf("unknown compression method %d", c.Method)
	}
}

// zlibPool reuses inflate state across chunks. Readers put back here are
// reset before the next use.
var zlibPool sync.Pool

// inflate decompresses a zlib payload into dst, requiring the stream to
// produce exactly len(dst) bytes and no more.
func inflate(payload, dst []byte) (int, error) {
	src := bytes.NewReader(payload)

	var zr io.ReadCloser
	if v := zlibPool.Get(); v != nil {
		zr = v.(io.ReadCloser)
		if err := zr.(zlib.Resetter).Reset(src, nil); err != nil {
			return 0, fmt.Errorf("zlib: %v", err)
		}
	} else {
		var err error
		if zr, err = zlib.NewReader(src); err != nil {
			return 0, fmt.Errorf("zlib: %v", err)
		}
	}
	defer zlibPool.Put(zr)

	n, err := io.ReadFull(zr, dst)
	if err != nil {
		return n, fmt.Errorf("zlib: short stream (%d of %d bytes): %v", n, len(dst), err)
	}
	var extra [1]byte
	m, err := zr.Read(extra[:])
	if m > 0 {
		return n, fmt.Errorf("zlib: stream longer than declared %d bytes", len(dst))
	}
	// The trailer and its checksum are verified on this final read, so a
	// failure here is corruption in its own right, not extra data.
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("zlib: %v", err)
	}
	return n, nil
}

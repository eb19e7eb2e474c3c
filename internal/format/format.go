// Package format defines the on-disk layout of HAPI archive containers.
//
// All multi-byte fields are little-endian. The 20-byte header is stored in
// the clear; everything after it is subject to the byte transform configured
// by the header's key field (see the scramble package).
package format

// Header field values. The container signature is the four bytes "HAPI";
// the subtype field selects between directory archives, saved-game banks
// ("BANK") and the unsupported version-2 layout.
const (
	MagicHAPI        uint32 = 0x49504148
	SubtypeDirectory uint32 = 0x00010000
	SubtypeSaveGame  uint32 = 0x4B4E4142
	SubtypeVersion2  uint32 = 0x00020000
)

// Structure sizes in bytes.
const (
	// HeaderSize covers the five u32 header fields: signature, subtype,
	// data offset, transform key, root directory offset.
	HeaderSize = 20

	// DirHeaderSize covers a directory block's entry count and the
	// reserved word that follows it.
	DirHeaderSize = 8

	// DirRecordSize is one directory record: name offset (u32), info
	// offset (u32) and the entry kind byte. Records are unpadded.
	DirRecordSize = 9

	// FileInfoSize covers a file's data offset and stored size.
	FileInfoSize = 8
)

// Directory record kinds.
const (
	KindFile      = 0
	KindDirectory = 1
)

// ChunkUnit is the granularity at which file payloads are chunked: each
// compressed chunk decodes to at most this many bytes.
const ChunkUnit = 1 << 16

// ChunkCount returns the number of compressed chunks holding size bytes of
// original content. A zero-size file has no chunks and no chunk-size table.
func ChunkCount(size uint32) uint32 {
	n := size >> 16
	if size&(ChunkUnit-1) != 0 {
		n++
	}
	return n
}

// InBounds reports whether the half-open range [off, off+n) lies within a
// source of total bytes. n must be non-negative.
func InBounds(total int64, off uint32, n int64) bool {
	if n < 0 || int64(off) > total {
		return false
	}
	return n <= total-int64(off)
}

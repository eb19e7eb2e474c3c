// Package hpi reads HAPI archive containers, the "HPI" format used by
// Total Annihilation and carried forward by the Spring engine for unit
// and map packs.
//
// An archive is a 20-byte clear header followed by key-transformed data:
// a directory graph addressed by absolute byte offsets, and per-file
// content stored as SQSH compression chunks (stored, LZ77, or zlib).
// Open validates the header, walks the whole graph once, and exposes the
// result as immutable entries; file content is assembled on demand.
//
// The package implements fs.FS and related interfaces for stdlib
// compatibility.
package hpi

package hpi

import "errors"

// Sentinel errors for archive operations.
var (
	// ErrBadSignature is returned when the file does not start with the
	// HAPI magic.
	ErrBadSignature = errors.New("hpi: bad signature")

	// ErrUnsupportedSubtype is returned for recognized but unreadable
	// containers, such as saved-game banks and major version 2 archives.
	ErrUnsupportedSubtype = errors.New("hpi: unsupported subtype")

	// ErrUnknownEntryType is returned when a directory record carries an
	// entry kind that is neither file nor directory. The whole open fails.
	ErrUnknownEntryType = errors.New("hpi: unknown entry type")

	// ErrEntryMismatch is returned when an entry is used with an archive
	// it does not belong to.
	ErrEntryMismatch = errors.New("hpi: entry belongs to a different archive")

	// ErrNotAFile is returned when file content is requested for a
	// directory entry.
	ErrNotAFile = errors.New("hpi: not a file")

	// ErrCorruptChunk is returned when a compression chunk fails to parse
	// or decode. No partial content is returned.
	ErrCorruptChunk = errors.New("hpi: corrupt chunk")

	// ErrTruncated is returned when an offset or read lands outside the
	// archive bounds.
	ErrTruncated = errors.New("hpi: truncated archive")

	// ErrMalformed is returned when the directory graph is structurally
	// invalid, such as nesting deep enough to indicate an offset cycle.
	ErrMalformed = errors.New("hpi: malformed directory tree")

	// ErrSizeOverflow is returned when an entry exceeds the configured
	// size limit.
	ErrSizeOverflow = errors.New("hpi: size overflow")

	// ErrClosed is returned when reading from a closed archive.
	ErrClosed = errors.New("hpi: archive closed")
)

package scramble

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encode applies the inverse transform so tests can build stored images from
// plain bytes. base is the absolute position of plain[0].
func encode(key uint32, base int64, plain []byte) []byte {
	dk := ^((key << 2) | (key >> 6))
	out := make([]byte, len(plain))
	for i, p := range plain {
		mask := byte(uint32(base+int64(i)) ^ dk)
		out[i] = ^(mask ^ p)
	}
	return out
}

func newReader(b []byte) *Reader {
	return New(bytes.NewReader(b), int64(len(b)))
}

func TestReaderPassthrough(t *testing.T) {
	t.Parallel()

	src := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	r := newReader(src)

	got := make([]byte, 4)
	require.NoError(t, r.ReadFull(got))
	assert.Equal(t, src, got)
	assert.Equal(t, int64(4), r.Pos())
}

func TestReaderKeyedRoundTrip(t *testing.T) {
	t.Parallel()

	plain := []byte("CORETAK.GAF contents, long enough to cross a few mask bytes")
	const key = 0x7D

	r := newReader(encode(key, 0, plain))
	r.SetKey(key)

	got := make([]byte, len(plain))
	require.NoError(t, r.ReadFull(got))
	assert.Equal(t, plain, got)
}

func TestReaderKeyedAtOffset(t *testing.T) {
	t.Parallel()

	// The mask depends on absolute position, so the same bytes stored at a
	// different offset must decode through a different mask.
	plain := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	const key, base = 0xA5, 1000

	img := make([]byte, base+len(plain))
	copy(img[base:], encode(key, base, plain))

	r := newReader(img)
	r.SetKey(key)
	r.Seek(base)

	got := make([]byte, len(plain))
	require.NoError(t, r.ReadFull(got))
	assert.Equal(t, plain, got)
	assert.Equal(t, int64(base+len(plain)), r.Pos())
}

func TestReaderSetKeyZeroDisables(t *testing.T) {
	t.Parallel()

	src := []byte{0x11, 0x22, 0x33}
	r := newReader(src)
	r.SetKey(0)

	got := make([]byte, 3)
	require.NoError(t, r.ReadFull(got))
	assert.Equal(t, src, got)
}

func TestReaderReadUint32(t *testing.T) {
	t.Parallel()

	r := newReader([]byte{0x48, 0x41, 0x50, 0x49, 0xFF})
	v, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x49504148), v)
	assert.Equal(t, int64(4), r.Pos())
}

func TestReaderReadCString(t *testing.T) {
	t.Parallel()

	t.Run("stops at terminator", func(t *testing.T) {
		t.Parallel()

		r := newReader([]byte("units\x00rest"))
		s, err := r.ReadCString()
		require.NoError(t, err)
		assert.Equal(t, []byte("units"), s)
		assert.Equal(t, int64(6), r.Pos(), "cursor should sit just past the terminator")
	})

	t.Run("empty string", func(t *testing.T) {
		t.Parallel()

		r := newReader([]byte{0, 'x'})
		s, err := r.ReadCString()
		require.NoError(t, err)
		assert.Empty(t, s)
		assert.Equal(t, int64(1), r.Pos())
	})

	t.Run("spans scan chunks", func(t *testing.T) {
		t.Parallel()

		long := bytes.Repeat([]byte{'a'}, 150)
		img := append(append([]byte{}, long...), 0)
		r := newReader(img)
		s, err := r.ReadCString()
		require.NoError(t, err)
		assert.Equal(t, long, s)
		assert.Equal(t, int64(len(img)), r.Pos())
	})

	t.Run("keyed", func(t *testing.T) {
		t.Parallel()

		const key = 0x31
		r := newReader(encode(key, 0, []byte("armada\x00")))
		r.SetKey(key)
		s, err := r.ReadCString()
		require.NoError(t, err)
		assert.Equal(t, []byte("armada"), s)
	})

	t.Run("unterminated", func(t *testing.T) {
		t.Parallel()

		r := newReader([]byte("no terminator"))
		_, err := r.ReadCString()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("at end", func(t *testing.T) {
		t.Parallel()

		r := newReader([]byte{'x'})
		r.Seek(1)
		_, err := r.ReadCString()
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestReaderSection(t *testing.T) {
	t.Parallel()

	r := newReader([]byte{0, 1, 2, 3, 4, 5, 6, 7})

	got, err := r.Section(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, got)
	assert.Equal(t, int64(5), r.Pos(), "section moves the shared cursor")

	_, err = r.Section(6, 3)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = r.Section(-1, 1)
	assert.Error(t, err)
}

func TestReaderShortReads(t *testing.T) {
	t.Parallel()

	r := newReader([]byte{1, 2})

	buf := make([]byte, 3)
	assert.ErrorIs(t, r.ReadFull(buf), io.ErrUnexpectedEOF)

	r.Seek(2)
	_, err := r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	r.Seek(5)
	_, err = r.ReadUint32()
	assert.ErrorIs(t, err, io.EOF)
}

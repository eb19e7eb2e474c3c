package sqsh

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkImage assembles an on-disk chunk from already-compressed payload
// bytes, applying obfuscation and computing the checksum over the stored
// form.
func chunkImage(method byte, obfuscate bool, payload []byte, originalSize uint32) []byte {
	stored := payload
	if obfuscate {
		stored = make([]byte, len(payload))
		for i, p := range payload {
			stored[i] = (p ^ byte(i)) + byte(i)
		}
	}
	var sum uint32
	for _, b := range stored {
		sum += uint32(b)
	}

	img := make([]byte, HeaderSize+len(stored))
	binary.LittleEndian.PutUint32(img[0:4], Magic)
	img[4] = 2 // version, as written by the original tooling
	img[5] = method
	if obfuscate {
		img[6] = 1
	}
	binary.LittleEndian.PutUint32(img[7:11], uint32(len(stored)))
	binary.LittleEndian.PutUint32(img[11:15], originalSize)
	binary.LittleEndian.PutUint32(img[15:19], sum)
	copy(img[HeaderSize:], stored)
	return img
}

// lz77Literals encodes plain as an all-literal LZ77 stream terminated by the
// end marker.
func lz77Literals(plain []byte) []byte {
	var out []byte
	for len(plain) >= 8 {
		out = append(out, 0)
		out = append(out, plain[:8]...)
		plain = plain[8:]
	}
	// Final tag: remaining literals, then the end-of-stream pair.
	out = append(out, byte(1)<<len(plain))
	out = append(out, plain...)
	out = append(out, 0, 0)
	return out
}

func zlibCompress(t *testing.T, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func decompressImage(t *testing.T, img []byte, originalSize uint32) ([]byte, error) {
	t.Helper()
	c, err := Parse(img)
	require.NoError(t, err)
	dst := make([]byte, originalSize)
	n, err := c.Decompress(dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(MethodStored, false, []byte("payload"), 7)
		c, err := Parse(img)
		require.NoError(t, err)
		assert.Equal(t, byte(MethodStored), c.Method)
		assert.False(t, c.Obfuscated)
		assert.Equal(t, uint32(7), c.OriginalSize)
	})

	t.Run("trailing bytes ignored", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(MethodStored, false, []byte("ab"), 2)
		img = append(img, 0xAA, 0xBB)
		_, err := Parse(img)
		assert.NoError(t, err)
	})

	t.Run("truncated header", func(t *testing.T) {
		t.Parallel()

		_, err := Parse(make([]byte, HeaderSize-1))
		assert.ErrorContains(t, err, "header truncated")
	})

	t.Run("bad magic", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(MethodStored, false, []byte("ab"), 2)
		img[0] = 'X'
		_, err := Parse(img)
		assert.ErrorContains(t, err, "bad magic")
	})

	t.Run("unknown method", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(3, false, []byte("ab"), 2)
		_, err := Parse(img)
		assert.ErrorContains(t, err, "unknown compression method 3")
	})

	t.Run("truncated payload", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(MethodStored, false, []byte("abcdef"), 6)
		_, err := Parse(img[:len(img)-2])
		assert.ErrorContains(t, err, "payload truncated")
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(MethodStored, false, []byte("abcdef"), 6)
		img[len(img)-1] ^= 0xFF
		_, err := Parse(img)
		assert.ErrorContains(t, err, "checksum mismatch")
	})
}

func TestDecompressStored(t *testing.T) {
	t.Parallel()

	plain := []byte("raw bytes, no compression")

	t.Run("plain", func(t *testing.T) {
		t.Parallel()

		got, err := decompressImage(t, chunkImage(MethodStored, false, plain, uint32(len(plain))), uint32(len(plain)))
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("obfuscated", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(MethodStored, true, plain, uint32(len(plain)))
		assert.NotEqual(t, plain, img[HeaderSize:], "stored payload should differ from plain")
		got, err := decompressImage(t, img, uint32(len(plain)))
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("size mismatch", func(t *testing.T) {
		t.Parallel()

		_, err := decompressImage(t, chunkImage(MethodStored, false, plain, uint32(len(plain)+1)), uint32(len(plain)+1))
		assert.ErrorContains(t, err, "stored payload")
	})
}

func TestDecompressLZ77(t *testing.T) {
	t.Parallel()

	t.Run("literals", func(t *testing.T) {
		t.Parallel()

		plain := []byte("the quick brown fox jumps over the lazy dog")
		img := chunkImage(MethodLZ77, false, lz77Literals(plain), uint32(len(plain)))
		got, err := decompressImage(t, img, uint32(len(plain)))
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("window copy", func(t *testing.T) {
		t.Parallel()

		// Three literals, then a copy of window positions 1..3, then end.
		stream := []byte{0x18, 'a', 'b', 'c', 0x11, 0x00, 0x00, 0x00}
		img := chunkImage(MethodLZ77, false, stream, 6)
		got, err := decompressImage(t, img, 6)
		require.NoError(t, err)
		assert.Equal(t, []byte("abcabc"), got)
	})

	t.Run("overlapping copy", func(t *testing.T) {
		t.Parallel()

		// One literal, then a five-byte copy that overlaps the write
		// pointer, consuming bytes the copy itself just produced.
		stream := []byte{0x06, 'x', 0x13, 0x00, 0x00, 0x00}
		img := chunkImage(MethodLZ77, false, stream, 6)
		got, err := decompressImage(t, img, 6)
		require.NoError(t, err)
		assert.Equal(t, []byte("xxxxxx"), got)
	})

	t.Run("obfuscated", func(t *testing.T) {
		t.Parallel()

		plain := bytes.Repeat([]byte("spring"), 10)
		img := chunkImage(MethodLZ77, true, lz77Literals(plain), uint32(len(plain)))
		got, err := decompressImage(t, img, uint32(len(plain)))
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("early end marker", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(MethodLZ77, false, lz77Literals([]byte("abc")), 5)
		_, err := decompressImage(t, img, 5)
		assert.ErrorContains(t, err, "stream ended")
	})

	t.Run("input exhausted", func(t *testing.T) {
		t.Parallel()

		// Literal tag but no literal bytes and no end marker.
		img := chunkImage(MethodLZ77, false, []byte{0x00}, 4)
		_, err := decompressImage(t, img, 4)
		assert.ErrorContains(t, err, "input exhausted")
	})

	t.Run("output overflow", func(t *testing.T) {
		t.Parallel()

		img := chunkImage(MethodLZ77, false, lz77Literals([]byte("abcdef")), 3)
		_, err := decompressImage(t, img, 3)
		assert.ErrorContains(t, err, "output exceeds")
	})
}

func TestDecompressZlib(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		plain := bytes.Repeat([]byte("armored fish factory "), 200)
		img := chunkImage(MethodZlib, false, zlibCompress(t, plain), uint32(len(plain)))
		got, err := decompressImage(t, img, uint32(len(plain)))
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("obfuscated", func(t *testing.T) {
		t.Parallel()

		plain := []byte("obfuscated zlib payload")
		img := chunkImage(MethodZlib, true, zlibCompress(t, plain), uint32(len(plain)))
		got, err := decompressImage(t, img, uint32(len(plain)))
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("corrupt stream", func(t *testing.T) {
		t.Parallel()

		comp := zlibCompress(t, []byte("some compressed data here"))
		comp[0] ^= 0xFF // break the zlib header
		img := chunkImage(MethodZlib, false, comp, 25)
		_, err := decompressImage(t, img, 25)
		assert.ErrorContains(t, err, "zlib")
	})

	t.Run("stream longer than declared", func(t *testing.T) {
		t.Parallel()

		plain := []byte("0123456789")
		img := chunkImage(MethodZlib, false, zlibCompress(t, plain), 5)
		_, err := decompressImage(t, img, 5)
		assert.ErrorContains(t, err, "longer than declared")
	})

	t.Run("corrupt trailer", func(t *testing.T) {
		t.Parallel()

		// Flip a byte of the adler32 trailer: the stream inflates to the
		// declared length and only the final checksum is wrong.
		plain := []byte("inflates cleanly, fails verification")
		comp := zlibCompress(t, plain)
		comp[len(comp)-1] ^= 0xFF
		img := chunkImage(MethodZlib, false, comp, uint32(len(plain)))
		_, err := decompressImage(t, img, uint32(len(plain)))
		assert.ErrorContains(t, err, "invalid checksum")
		assert.NotContains(t, err.Error(), "longer than declared")
	})

	t.Run("pool reuse", func(t *testing.T) {
		t.Parallel()

		plain := []byte("reused decoder state")
		img := chunkImage(MethodZlib, false, zlibCompress(t, plain), uint32(len(plain)))
		for range 3 {
			got, err := decompressImage(t, img, uint32(len(plain)))
			require.NoError(t, err)
			require.Equal(t, plain, got)
		}
	})
}

func TestDecompressShortDst(t *testing.T) {
	t.Parallel()

	c, err := Parse(chunkImage(MethodStored, false, []byte("abcd"), 4))
	require.NoError(t, err)
	_, err = c.Decompress(make([]byte, 2))
	assert.ErrorContains(t, err, "destination")
}

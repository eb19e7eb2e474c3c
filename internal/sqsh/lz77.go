package sqsh

import "fmt"

// windowSize is the LZ77 ring window length. Copy positions in the stream
// address this window directly, so position 0 is reserved for the
// end-of-stream marker and the write pointer starts at 1.
const windowSize = 4096

// lz77Decode decompresses the LZ77 variant used by method 1 chunks into dst.
//
// The stream is a sequence of tag bytes, each governing the next eight
// items LSB first: a 0 bit is a literal byte, a 1 bit is a little-endian
// u16 whose high 12 bits are an absolute window position (0 ends the
// stream) and whose low 4 bits are the copy length minus 2. Literals and
// copied bytes both advance the window write pointer.
func lz77Decode(src, dst []byte) (int, error) {
	var window [windowSize]byte
	wpos := 1
	in, out := 0, 0

	for {
		if in >= len(src) {
			return out, fmt.Errorf("lz77: input exhausted at %d of %d output bytes", out, len(dst))
		}
		tag := src[in]
		in++

		for bit := 0; bit < 8; bit++ {
			if tag&1 == 0 {
				if in >= len(src) {
					return out, fmt.Errorf("lz77: input exhausted at %d of %d output bytes", out, len(dst))
				}
				if out >= len(dst) {
					return out, fmt.Errorf("lz77: output exceeds declared %d bytes", len(dst))
				}
				b := src[in]
				in++
				dst[out] = b
				out++
				window[wpos] = b
				wpos = (wpos + 1) & (windowSize - 1)
			} else {
				if in+2 > len(src) {
					return out, fmt.Errorf("lz77: input exhausted at %d of %d output bytes", out, len(dst))
				}
				v := uint16(src[in]) | uint16(src[in+1])<<8
				in += 2
				pos := int(v >> 4)
				if pos == 0 {
					if out != len(dst) {
						return out, fmt.Errorf("lz77: stream ended at %d of %d bytes", out, len(dst))
					}
					return out, nil
				}
				count := int(v&0xF) + 2
				for range count {
					if out >= len(dst) {
						return out, fmt.Errorf("lz77: output exceeds declared %d bytes", len(dst))
					}
					b := window[pos]
					dst[out] = b
					out++
					window[wpos] = b
					pos = (pos + 1) & (windowSize - 1)
					wpos = (wpos + 1) & (windowSize - 1)
				}
			}
			tag >>= 1
		}
	}
}

package vba

import (
	"errors"
	"fmt"
)

// Errors returned by DecompressContainer.
var (
	ErrBadSignature = errors.New("vba: missing compressed-container signature")
	ErrTruncated    = errors.New("vba: truncated compressed chunk")
)

const containerSignature = 0x01

// DecompressContainer expands an MS-OVBA CompressedContainer into the
// original stream bytes. The container is a signature byte followed by a
// sequence of chunks; each chunk holds either 4096 raw bytes or a run of
// token sequences (a flag byte and up to eight tokens, literal bytes or
// 16-bit copy tokens whose offset/length split depends on how far into the
// chunk the decompressor is).
func DecompressContainer(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != containerSignature {
		return nil, ErrBadSignature
	}

	var out []byte
	pos := 1
	for pos < len(data) {
		if pos+2 > len(data) {
			return nil, ErrTruncated
		}
		header := uint16(data[pos]) | uint16(data[pos+1])<<8
		pos += 2

		size := int(header&0x0FFF) + 3 // total chunk bytes including header
		compressed := header&0x8000 != 0
		end := pos + size - 2
		if end > len(data) {
			// Tolerate a short final chunk; real-world module streams are
			// frequently padded or clipped.
			end = len(data)
		}

		if !compressed {
			out = append(out, data[pos:end]...)
			pos = end
			continue
		}

		chunkStart := len(out)
		for pos < end {
			flags := data[pos]
			pos++
			for bit := 0; bit < 8 && pos < end; bit++ {
				if flags&(1<<bit) == 0 {
					out = append(out, data[pos])
					pos++
					continue
				}
				if pos+2 > end {
					return nil, ErrTruncated
				}
				token := uint16(data[pos]) | uint16(data[pos+1])<<8
				pos += 2

				offset, length := copyToken(token, len(out)-chunkStart)
				src := len(out) - offset
				if src < chunkStart {
					return nil, fmt.Errorf("vba: copy token reaches before chunk start (offset %d)", offset)
				}
				// Byte-by-byte: the source range may overlap the bytes being
				// produced (run-length style copies).
				for i := 0; i < length; i++ {
					out = append(out, out[src+i])
				}
			}
		}
	}
	return out, nil
}

// copyToken splits a 16-bit copy token into (offset, length). The number of
// bits used for the offset grows with the current position inside the chunk.
func copyToken(token uint16, difference int) (offset, length int) {
	bits := 4
	for (1 << bits) < difference {
		bits++
	}
	lengthMask := uint16(0xFFFF) >> bits
	offset = int(token>>(16-bits)) + 1
	length = int(token&lengthMask) + 3
	return offset, length
}

package compress

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const (
	tagLiteralRun byte = 0x00
	tagMatch      byte = 0x01
	tagRLE        byte = 0x02

	windowSize  = 32 * 1024
	minMatchLen = 3
	maxMatchLen = 258
	minRLERun   = 4
	maxRLERun   = 255
)

// encodeLZ77RLE is the hybrid encoder from spec §4.8: an RLE fast path
// for runs of >=4 repeated bytes, falling back to LZ77 back-references
// (distance:u16, length:u8) for everything else, with unmatched bytes
// batched into literal-run tokens. chainLen bounds how many candidate
// positions the match search tries per 3-byte prefix; higher
// compression levels pass a longer chain, trading speed for ratio.
func encodeLZ77RLE(src []byte, chainLen int) []byte {
	out := make([]byte, 0, len(src))
	chains := make(map[uint32][]int)

	var literalStart int
	flushLiterals := func(end int) {
		if end <= literalStart {
			return
		}
		out = append(out, tagLiteralRun)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(end-literalStart))
		out = append(out, lenBuf[:]...)
		out = append(out, src[literalStart:end]...)
	}

	pos := 0
	for pos < len(src) {
		if runLen := rleRunAt(src, pos); runLen >= minRLERun {
			flushLiterals(pos)
			emitted := runLen
			if emitted > maxRLERun {
				emitted = maxRLERun
			}
			out = append(out, tagRLE, src[pos], byte(emitted))
			pos += emitted
			literalStart = pos
			continue
		}

		if pos+minMatchLen <= len(src) {
			if distance, length := findMatch(src, pos, chains, chainLen); length >= minMatchLen {
				flushLiterals(pos)
				var distBuf [2]byte
				binary.LittleEndian.PutUint16(distBuf[:], uint16(distance))
				out = append(out, tagMatch, distBuf[0], distBuf[1], byte(length-minMatchLen))
				indexPositions(src, chains, pos, length)
				pos += length
				literalStart = pos
				continue
			}
		}

		if pos+3 <= len(src) {
			indexPositions(src, chains, pos, 1)
		}
		pos++
	}
	flushLiterals(pos)
	return out
}

// rleRunAt reports how many times src[pos] repeats starting at pos.
func rleRunAt(src []byte, pos int) int {
	if pos >= len(src) {
		return 0
	}
	b := src[pos]
	n := 1
	for pos+n < len(src) && src[pos+n] == b && n < maxRLERun {
		n++
	}
	return n
}

func hash3(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func indexPositions(src []byte, chains map[uint32][]int, start, count int) {
	for i := start; i < start+count && i+3 <= len(src); i++ {
		h := hash3(src[i:])
		chains[h] = append(chains[h], i)
	}
}

// findMatch searches the sliding window for the longest prior match of
// src[pos:], trying at most chainLen candidate positions.
func findMatch(src []byte, pos int, chains map[uint32][]int, chainLen int) (distance, length int) {
	if pos+minMatchLen > len(src) {
		return 0, 0
	}
	h := hash3(src[pos:])
	candidates := chains[h]
	windowStart := pos - windowSize
	tried := 0
	bestLen := 0
	bestDist := 0

	for i := len(candidates) - 1; i >= 0 && tried < chainLen; i-- {
		cand := candidates[i]
		if cand < windowStart {
			break
		}
		tried++
		l := matchLength(src, cand, pos)
		if l > bestLen {
			bestLen = l
			bestDist = pos - cand
			if bestLen >= maxMatchLen {
				break
			}
		}
	}
	if bestLen < minMatchLen {
		return 0, 0
	}
	return bestDist, bestLen
}

func matchLength(src []byte, a, b int) int {
	max := maxMatchLen
	if len(src)-b < max {
		max = len(src) - b
	}
	n := 0
	for n < max && src[a+n] == src[b+n] {
		n++
	}
	return n
}

// decodeLZ77RLE reverses encodeLZ77RLE, reconstructing exactly
// originalLen bytes.
func decodeLZ77RLE(payload []byte, originalLen uint64) ([]byte, error) {
	out := make([]byte, 0, originalLen)
	i := 0
	for uint64(len(out)) < originalLen {
		if i >= len(payload) {
			return nil, errors.Wrap(ErrInvalidOffset, "payload exhausted before original_len reached")
		}
		tag := payload[i]
		i++
		switch tag {
		case tagLiteralRun:
			if i+4 > len(payload) {
				return nil, errors.Wrap(ErrInvalidOffset, "truncated literal run header")
			}
			n := int(binary.LittleEndian.Uint32(payload[i : i+4]))
			i += 4
			if i+n > len(payload) {
				return nil, errors.Wrap(ErrInvalidOffset, "truncated literal run body")
			}
			out = append(out, payload[i:i+n]...)
			i += n
		case tagMatch:
			if i+3 > len(payload) {
				return nil, errors.Wrap(ErrInvalidOffset, "truncated match token")
			}
			distance := int(binary.LittleEndian.Uint16(payload[i : i+2]))
			length := int(payload[i+2]) + minMatchLen
			i += 3
			if distance <= 0 || distance > len(out) {
				return nil, ErrInvalidOffset
			}
			start := len(out) - distance
			for n := 0; n < length; n++ {
				out = append(out, out[start+n])
			}
		case tagRLE:
			if i+2 > len(payload) {
				return nil, errors.Wrap(ErrInvalidOffset, "truncated RLE token")
			}
			b := payload[i]
			count := int(payload[i+1])
			i += 2
			for n := 0; n < count; n++ {
				out = append(out, b)
			}
		default:
			return nil, errors.Wrap(ErrInvalidOffset, "unknown token tag")
		}
	}
	return out, nil
}

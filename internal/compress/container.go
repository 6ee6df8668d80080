// Package compress implements C8: a deterministic, self-contained
// compression container combining LZ77 and an RLE fast path, used for
// rotated log files (spec.md §4.8).
package compress

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cockroachdb/errors"
)

// magic identifies a riverlog compressed container.
var magic = [4]byte{'R', 'L', 'Z', '1'}

const containerVersion = 1

// Algorithm identifies the payload codec. Deflate (the hybrid LZ77+RLE
// scheme) is the only compressing option; None stores literals as-is
// but still wraps with the header and CRC32 (spec §4.8).
type Algorithm uint8

const (
	AlgorithmDeflate Algorithm = iota
	AlgorithmNone
)

// Level controls match-search effort (spec §4.8).
type Level uint8

const (
	LevelNone    Level = 0
	LevelFast    Level = 1
	LevelDefault Level = 6
	LevelBest    Level = 9
)

var (
	ErrInvalidMagic     = errors.New("compress: invalid magic")
	ErrChecksumMismatch = errors.New("compress: checksum mismatch")
	ErrInvalidOffset    = errors.New("compress: invalid back-reference offset")
)

const headerSize = 4 + 1 + 1 + 1 + 8 // magic + version + algorithm + flags + original_len

// Encode compresses src into a self-describing container. level is
// ignored when algorithm is AlgorithmNone.
func Encode(src []byte, level Level) []byte {
	var payload []byte
	algorithm := AlgorithmDeflate
	if level == LevelNone {
		algorithm = AlgorithmNone
		payload = encodeStored(src)
	} else {
		payload = encodeLZ77RLE(src, chainLengthForLevel(level))
	}

	out := make([]byte, 0, headerSize+len(payload)+4)
	out = append(out, magic[:]...)
	out = append(out, containerVersion, byte(algorithm), 0)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(src)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)

	sum := crc32.ChecksumIEEE(src)
	var sumBuf [4]byte
	binary.LittleEndian.PutUint32(sumBuf[:], sum)
	out = append(out, sumBuf[:]...)
	return out
}

// Decode validates and reverses Encode, returning the original bytes.
func Decode(data []byte) ([]byte, error) {
	if len(data) < headerSize+4 {
		return nil, errors.Wrap(ErrInvalidMagic, "container too short")
	}
	if string(data[:4]) != string(magic[:]) {
		return nil, ErrInvalidMagic
	}
	version := data[4]
	algorithm := Algorithm(data[5])
	_ = version
	originalLen := binary.LittleEndian.Uint64(data[8:16])

	payload := data[16 : len(data)-4]
	wantSum := binary.LittleEndian.Uint32(data[len(data)-4:])

	var out []byte
	var err error
	switch algorithm {
	case AlgorithmNone:
		out, err = decodeStored(payload, originalLen)
	default:
		out, err = decodeLZ77RLE(payload, originalLen)
	}
	if err != nil {
		return nil, err
	}

	if crc32.ChecksumIEEE(out) != wantSum {
		return nil, ErrChecksumMismatch
	}
	return out, nil
}

func chainLengthForLevel(level Level) int {
	switch {
	case level <= LevelFast:
		return 16
	case level >= LevelBest:
		return 256
	default:
		return 64
	}
}

func encodeStored(src []byte) []byte {
	// One literal-run token covering the whole input: tag byte 0x00
	// (literal run) followed by a 4-byte length and the raw bytes.
	out := make([]byte, 0, len(src)+5)
	out = append(out, tagLiteralRun)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(src)))
	out = append(out, lenBuf[:]...)
	out = append(out, src...)
	return out
}

func decodeStored(payload []byte, originalLen uint64) ([]byte, error) {
	if len(payload) < 5 || payload[0] != tagLiteralRun {
		return nil, errors.Wrap(ErrInvalidOffset, "malformed stored payload")
	}
	n := binary.LittleEndian.Uint32(payload[1:5])
	if uint64(n) != originalLen || len(payload) < 5+int(n) {
		return nil, errors.Wrap(ErrInvalidOffset, "stored length mismatch")
	}
	out := make([]byte, n)
	copy(out, payload[5:5+n])
	return out, nil
}

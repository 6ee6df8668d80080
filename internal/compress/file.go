package compress

import (
	"bufio"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// Stats are the compressor's atomic observability counters (spec §4.8).
type Stats struct {
	FilesCompressed       atomic.Int64
	BytesBefore           atomic.Int64
	BytesAfter            atomic.Int64
	TotalCompressionTimeNS atomic.Int64
	Errors                atomic.Int64
}

// CompressionRatio returns bytes_after / bytes_before, 0 if nothing has
// been compressed yet.
func (s *Stats) CompressionRatio() float64 {
	before := s.BytesBefore.Load()
	if before == 0 {
		return 0
	}
	return float64(s.BytesAfter.Load()) / float64(before)
}

// SpaceSavings returns 1 - CompressionRatio().
func (s *Stats) SpaceSavings() float64 {
	return 1 - s.CompressionRatio()
}

// FileConfig configures CompressFile (spec §4.8 "file operations").
type FileConfig struct {
	Level       Level
	BufferSize  int
	KeepOriginal bool

	OnStart    func(path string)
	OnComplete func(path, outputPath string)
	OnError    func(path string, err error)
}

// Compressor streams files through Encode/Decode and tracks Stats.
type Compressor struct {
	stats Stats
}

// NewCompressor builds a Compressor.
func NewCompressor() *Compressor { return &Compressor{} }

// Stats exposes the compressor's atomic counters.
func (c *Compressor) Stats() *Stats { return &c.stats }

// CompressFile reads inputPath in BufferSize chunks, compresses it, and
// writes the container to outputPath (defaulting to inputPath+".rlz"
// when empty), optionally deleting the original on success (spec §4.8).
func (c *Compressor) CompressFile(inputPath, outputPath string, cfg FileConfig) (string, error) {
	if outputPath == "" {
		outputPath = inputPath + ".rlz"
	}
	if cfg.OnStart != nil {
		cfg.OnStart(inputPath)
	}

	start := time.Now()
	data, err := readAllBuffered(inputPath, cfg.BufferSize)
	if err != nil {
		c.stats.Errors.Add(1)
		if cfg.OnError != nil {
			cfg.OnError(inputPath, err)
		}
		return "", errors.Wrap(err, "compress: read input")
	}

	container := Encode(data, cfg.Level)

	if err := os.WriteFile(outputPath, container, 0o644); err != nil {
		c.stats.Errors.Add(1)
		if cfg.OnError != nil {
			cfg.OnError(inputPath, err)
		}
		return "", errors.Wrap(err, "compress: write output")
	}

	c.stats.FilesCompressed.Add(1)
	c.stats.BytesBefore.Add(int64(len(data)))
	c.stats.BytesAfter.Add(int64(len(container)))
	c.stats.TotalCompressionTimeNS.Add(time.Since(start).Nanoseconds())

	if !cfg.KeepOriginal {
		os.Remove(inputPath)
	}
	if cfg.OnComplete != nil {
		cfg.OnComplete(inputPath, outputPath)
	}
	return outputPath, nil
}

// DecompressFile reverses CompressFile.
func (c *Compressor) DecompressFile(inputPath, outputPath string) (string, error) {
	container, err := os.ReadFile(inputPath)
	if err != nil {
		return "", errors.Wrap(err, "compress: read container")
	}
	data, err := Decode(container)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return "", errors.Wrap(err, "compress: write decompressed output")
	}
	return outputPath, nil
}

func readAllBuffered(path string, bufferSize int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	r := bufio.NewReaderSize(f, bufferSize)
	return io.ReadAll(r)
}

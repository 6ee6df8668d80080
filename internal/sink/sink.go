// Package sink implements C6: the output-destination abstraction that
// owns a writer, a Formatter, optional per-sink filtering, and (for
// file sinks) the rotation/retention state machine from C7.
package sink

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"riverlog/internal/compress"
	"riverlog/internal/format"
	"riverlog/internal/gate"
	"riverlog/internal/metrics"
	"riverlog/internal/recordmodel"
)

// Kind identifies what a Sink writes to.
type Kind int

const (
	KindConsole Kind = iota
	KindFile
	KindNetwork
	KindCustomWriter
)

// Config is the runtime configuration for one Sink (spec §3 SinkConfig,
// §4.6).
type Config struct {
	Name string
	Kind Kind

	// KindConsole
	Stderr bool // false -> stdout

	// KindFile
	Path          string
	OverwriteMode bool
	CreateDirs    bool
	Rotation      *RotationConfig

	// Compression, if set and Rotation is also set, compresses each
	// rotated file (spec §4.7 step 5, C8) by populating
	// Rotation.CompressRotated with a compress.Compressor call.
	Compression *CompressionConfig

	// KindNetwork: host:port dialed with NetworkProto ("tcp" or "udp").
	NetworkProto string
	NetworkAddr  string

	// KindCustomWriter
	Writer io.Writer

	MinLevel recordmodel.Level
	Filter   *gate.Filter

	Format Format

	OnError func(error)
}

// Format controls how records are rendered; it is format.Context itself.
// JSON array wrapping has no flag: Write applies it to every JSON file sink.
type Format = format.Context

// CompressionConfig configures the C8 compressor wired onto a rotating
// file sink's RotationConfig.CompressRotated hook.
type CompressionConfig struct {
	Level        compress.Level
	KeepOriginal bool
	OnStart      func(path string)
	OnComplete   func(path, outputPath string)
	OnError      func(path string, err error)
}

// Sink is the runtime companion to a Config (spec §3 "Sink instance").
type Sink struct {
	cfg       Config
	formatter *format.Formatter
	writer    io.WriteCloser
	rotation  *Rotation

	mu       sync.Mutex
	disabled atomic.Bool

	jsonOpened atomic.Bool
	jsonFirst  atomic.Bool // true until the first record has been written

	counters *metrics.SinkCounters
}

// New constructs a Sink from cfg. counters may be nil.
func New(cfg Config, counters *metrics.SinkCounters) (*Sink, error) {
	s := &Sink{cfg: cfg, counters: counters}
	s.formatter = format.New(cfg.Format)
	s.jsonFirst.Store(true)

	w, rot, err := openWriter(cfg)
	if err != nil {
		return nil, err
	}
	s.writer = w
	s.rotation = rot
	return s, nil
}

func openWriter(cfg Config) (io.WriteCloser, *Rotation, error) {
	switch cfg.Kind {
	case KindConsole:
		if cfg.Stderr {
			return nopCloser{os.Stderr}, nil, nil
		}
		return nopCloser{os.Stdout}, nil, nil
	case KindCustomWriter:
		if wc, ok := cfg.Writer.(io.WriteCloser); ok {
			return wc, nil, nil
		}
		return nopCloser{cfg.Writer}, nil, nil
	case KindFile:
		wireCompression(cfg)
		rot, err := newRotation(cfg)
		if err != nil {
			return nil, nil, err
		}
		return rot, rot, nil
	case KindNetwork:
		conn, err := dialNetwork(cfg.NetworkProto, cfg.NetworkAddr)
		if err != nil {
			return nil, nil, err
		}
		return conn, nil, nil
	default:
		return nil, nil, ErrOpenSink
	}
}

// wireCompression populates cfg.Rotation.CompressRotated from
// cfg.Compression, if both are configured, so rollover() (spec §4.7
// step 5) hands each rotated path to a compress.Compressor instead of
// leaving C8 unreachable from the public sink API.
func wireCompression(cfg Config) {
	if cfg.Rotation == nil || cfg.Compression == nil {
		return
	}
	compCfg := *cfg.Compression
	compressor := compress.NewCompressor()
	cfg.Rotation.CompressRotated = func(path string) error {
		fileCfg := compress.FileConfig{
			Level:        compCfg.Level,
			KeepOriginal: compCfg.KeepOriginal,
			OnStart:      compCfg.OnStart,
			OnComplete:   compCfg.OnComplete,
			OnError:      compCfg.OnError,
		}
		_, err := compressor.CompressFile(path, "", fileCfg)
		return err
	}
}

type nopCloser struct{ w io.Writer }

func (n nopCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopCloser) Close() error                { return nil }

// Write formats rec and delivers it to the underlying writer (spec
// §4.6). Per-sink level window and filter run first; a deny is not an
// error, it's a silent no-op (the gate stage already accounted for it
// upstream in the pipeline; the sink-level check exists because
// multiple sinks may share one logger with different windows).
func (s *Sink) Write(rec recordmodel.Record) error {
	if s.disabled.Load() {
		if s.counters != nil {
			s.counters.Dropped.Add(1)
		}
		return nil
	}
	if rec.Level.Less(s.cfg.MinLevel) {
		return nil
	}
	if s.cfg.Filter != nil && !s.cfg.Filter.Allow(rec) {
		return nil
	}

	out, err := s.formatter.Format(rec)
	if err != nil {
		s.reportError(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Format.JSON && s.cfg.Kind == KindFile {
		out = s.wrapJSONFileRecord(out)
	}

	n, werr := s.writer.Write(out)
	if werr != nil {
		s.reportError(werr)
		s.disabled.Store(true)
		if s.counters != nil {
			s.counters.Errors.Add(1)
		}
		return werr
	}
	if s.counters != nil {
		s.counters.Written.Add(1)
		s.counters.Bytes.Add(int64(n))
	}
	return nil
}

// wrapJSONFileRecord adds the lazy "[" on the first record and a
// leading ",\n" on every subsequent one, per spec §4.6/§6: the closing
// "]" is added by Close.
func (s *Sink) wrapJSONFileRecord(out []byte) []byte {
	trimmed := trimTrailingNewline(out)
	if s.jsonFirst.CompareAndSwap(true, false) {
		glued := make([]byte, 0, len(trimmed)+1)
		glued = append(glued, '[')
		glued = append(glued, trimmed...)
		return glued
	}
	glued := make([]byte, 0, len(trimmed)+2)
	glued = append(glued, ',', '\n')
	glued = append(glued, trimmed...)
	return glued
}

func trimTrailingNewline(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}

func (s *Sink) reportError(err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

// Flush forces any buffered bytes out.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	if f, ok := s.writer.(*os.File); ok {
		return f.Sync()
	}
	return nil
}

// Close flushes and releases resources; for JSON file sinks it writes
// the closing "]". Close does not apply retention to rotating file
// sinks; retention runs only at each rotation.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Format.JSON && s.cfg.Kind == KindFile && !s.jsonFirst.Load() {
		s.writer.Write([]byte("]"))
	} else if s.cfg.Format.JSON && s.cfg.Kind == KindFile && s.jsonFirst.Load() {
		// No record was ever written: still produce a well-formed
		// empty array rather than an empty file.
		s.writer.Write([]byte("[]"))
	}
	return s.writer.Close()
}

// Disabled reports whether the sink has transitioned to the disabled
// state after an unrecoverable writer failure (spec §4.6).
func (s *Sink) Disabled() bool { return s.disabled.Load() }

// HasRotation reports whether this sink is a file sink with C7 rotation
// configured, the precondition for ForceRotate and for the Scheduler's
// (C10) per-sink TaskRotation housekeeping task.
func (s *Sink) HasRotation() bool { return s.rotation != nil }

// ForceRotate requests an out-of-band rotation, used by the Logger's
// optional Scheduler-driven housekeeping task (spec §4.10 TaskRotation).
// A no-op on sinks without rotation configured.
func (s *Sink) ForceRotate() error {
	if s.rotation == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation.ForceRotate()
}

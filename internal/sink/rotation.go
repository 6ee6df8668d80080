package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// NamingStrategy selects how a rotated file is named (spec §4.7, §6).
type NamingStrategy int

const (
	NamingTimestamp NamingStrategy = iota
	NamingDate
	NamingISODatetime
	NamingIndex
	NamingCustom
)

// RotationConfig configures C7 for one file sink.
type RotationConfig struct {
	Interval time.Duration // 0 disables time-based rotation
	SizeLimit int64        // 0 disables size-based rotation

	Naming         NamingStrategy
	CustomTemplate string // used when Naming == NamingCustom

	ArchiveDir string

	RetentionMaxFiles int           // 0 disables count-based retention
	RetentionMaxAge   time.Duration // 0 disables age-based retention

	// CompressRotated, if set, is handed the rotated path synchronously
	// (or the caller may submit it to a thread pool itself) when
	// on_rotation compression is configured (spec §4.7 step 5, C8).
	CompressRotated func(path string) error

	OnRotateStart    func()
	OnRotateComplete func(rotatedPath string)
	OnRotateError    func(error)
	OnArchived       func(path string)
	OnCleanup        func(deleted int)
}

// RotationStats are the atomic counters from spec §4.7.
type RotationStats struct {
	TotalRotations     atomic.Int64
	FilesArchived      atomic.Int64
	FilesDeleted       atomic.Int64
	LastRotationTimeNS atomic.Int64
	RotationErrors     atomic.Int64
	CompressionErrors  atomic.Int64
	CleanupErrors      atomic.Int64
}

// Rotation is the OPEN/ROTATING/ROLLOVER_OK state machine wrapping one
// file sink's current file handle (spec §4.7).
type Rotation struct {
	cfg  RotationConfig
	path string

	mu          sync.Mutex
	current     *os.File
	currentSize int64
	openedAtNS  int64
	nextIndex   int

	Stats RotationStats
}

func newRotation(cfg Config) (*Rotation, error) {
	if cfg.Path == "" {
		return nil, errors.Wrap(ErrOpenSink, "file sink requires a path")
	}
	if cfg.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, errors.Wrap(ErrOpenSink, err.Error())
		}
	}
	r := &Rotation{path: cfg.Path}
	if cfg.Rotation != nil {
		r.cfg = *cfg.Rotation
	}

	flags := os.O_CREATE | os.O_WRONLY
	if cfg.OverwriteMode {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(cfg.Path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrap(ErrOpenSink, err.Error())
	}
	r.current = f
	r.openedAtNS = time.Now().UnixNano()
	if fi, err := f.Stat(); err == nil {
		r.currentSize = fi.Size()
	}
	return r, nil
}

// Write implements io.Writer, rotating first if should_rotate() fires
// (spec §4.7). Rotation happens under the sink's write lock, which the
// caller (Sink.Write) already holds.
func (r *Rotation) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shouldRotate(len(p)) {
		if err := r.rollover(); err != nil {
			r.Stats.RotationErrors.Add(1)
			if r.cfg.OnRotateError != nil {
				r.cfg.OnRotateError(err)
			}
			// Fall through: still attempt the write against whatever
			// file handle remains open, per the teacher's "report but
			// keep running" error policy.
		}
	}

	n, err := r.current.Write(p)
	r.currentSize += int64(n)
	return n, err
}

// shouldRotate implements spec §4.7's should_rotate(): time elapsed,
// size exceeded, or (not modeled here — callers force it externally via
// ForceRotate) a forced rotation. Both firing simultaneously is still
// one rotation event because rollover() is one atomic state transition.
func (r *Rotation) shouldRotate(incomingLen int) bool {
	if r.cfg.Interval > 0 && time.Now().UnixNano()-r.openedAtNS >= r.cfg.Interval.Nanoseconds() {
		return true
	}
	if r.cfg.SizeLimit > 0 && r.currentSize+int64(incomingLen) > r.cfg.SizeLimit {
		return true
	}
	return false
}

// ForceRotate requests an out-of-band rotation (e.g. from the
// scheduler's housekeeping task, C10).
func (r *Rotation) ForceRotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rollover()
}

// rollover executes the OPEN -> ROTATING -> ROLLOVER_OK -> OPEN steps
// from spec §4.7. Caller must hold r.mu.
func (r *Rotation) rollover() error {
	if r.cfg.OnRotateStart != nil {
		r.cfg.OnRotateStart()
	}

	// Step 1: flush outstanding bytes.
	if err := r.current.Sync(); err != nil {
		return errors.Wrap(ErrRotateSink, err.Error())
	}

	// Step 2: compute rotated path.
	rotatedPath := r.computeRotatedPath()

	// Step 3: close current; move to rotated path; archive if configured.
	if err := r.current.Close(); err != nil {
		return errors.Wrap(ErrRotateSink, err.Error())
	}
	if err := os.Rename(r.path, rotatedPath); err != nil {
		return errors.Wrap(ErrRotateSink, err.Error())
	}
	if r.cfg.ArchiveDir != "" {
		archived := filepath.Join(r.cfg.ArchiveDir, filepath.Base(rotatedPath))
		if err := os.MkdirAll(r.cfg.ArchiveDir, 0o755); err == nil {
			if err := os.Rename(rotatedPath, archived); err == nil {
				rotatedPath = archived
				r.Stats.FilesArchived.Add(1)
				if r.cfg.OnArchived != nil {
					r.cfg.OnArchived(rotatedPath)
				}
			}
		}
	}

	// Step 4: open new current file for append.
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(ErrRotateSink, err.Error())
	}
	r.current = f

	// Step 5: hand off to compression, if configured.
	if r.cfg.CompressRotated != nil {
		if err := r.cfg.CompressRotated(rotatedPath); err != nil {
			r.Stats.CompressionErrors.Add(1)
		}
	}

	// Step 6: apply retention.
	r.applyRetention()

	// Step 7: reset counters.
	r.currentSize = 0
	r.openedAtNS = time.Now().UnixNano()

	r.Stats.TotalRotations.Add(1)
	r.Stats.LastRotationTimeNS.Store(time.Now().UnixNano())
	if r.cfg.OnRotateComplete != nil {
		r.cfg.OnRotateComplete(rotatedPath)
	}
	return nil
}

func (r *Rotation) computeRotatedPath() string {
	ext := filepath.Ext(r.path)
	base := strings.TrimSuffix(r.path, ext)
	now := time.Now()

	switch r.cfg.Naming {
	case NamingTimestamp:
		return r.nextFreeTimestamp(base, ext, now.Unix())
	case NamingDate:
		return fmt.Sprintf("%s.%s%s", base, now.Format("2006-01-02"), ext)
	case NamingISODatetime:
		return fmt.Sprintf("%s.%s%s", base, now.Format("2006-01-02T15-04-05"), ext)
	case NamingIndex:
		idx := r.nextFreeIndex(base, ext)
		return fmt.Sprintf("%s.%d%s", base, idx, ext)
	case NamingCustom:
		return r.resolveCustomTemplate(base, ext, now)
	default:
		return fmt.Sprintf("%s.%d%s", base, now.Unix(), ext)
	}
}

// nextFreeTimestamp mirrors nextFreeIndex's probing for the Timestamp
// naming strategy: the bare "{base}.{unix}{ext}" path is used only when
// free, otherwise a counter suffix disambiguates a same-second rotation
// burst per spec §9 ("...{timestamp}.{n}" for n>0), the same failure
// mode NamingIndex already avoids.
func (r *Rotation) nextFreeTimestamp(base, ext string, unixTS int64) string {
	candidate := fmt.Sprintf("%s.%d%s", base, unixTS, ext)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	for n := 1; ; n++ {
		candidate = fmt.Sprintf("%s.%d.%d%s", base, unixTS, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func (r *Rotation) nextFreeIndex(base, ext string) int {
	for {
		r.nextIndex++
		candidate := fmt.Sprintf("%s.%d%s", base, r.nextIndex, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return r.nextIndex
		}
	}
}

func (r *Rotation) resolveCustomTemplate(base, ext string, now time.Time) string {
	tokens := map[string]string{
		"{base}":      filepath.Base(base),
		"{ext}":       strings.TrimPrefix(ext, "."),
		"{date}":      now.Format("2006-01-02"),
		"{time}":      now.Format("15-04-05"),
		"{timestamp}": strconv.FormatInt(now.Unix(), 10),
		"{iso}":       now.Format("2006-01-02T15-04-05"),
	}
	out := r.cfg.CustomTemplate
	for tok, val := range tokens {
		out = strings.ReplaceAll(out, tok, val)
	}
	return filepath.Join(filepath.Dir(base), out)
}

// applyRetention enumerates files matching the sink's base pattern,
// deleting entries beyond RetentionMaxFiles or older than
// RetentionMaxAge (spec §4.7 step 6). Deletion is best-effort.
func (r *Rotation) applyRetention() {
	if r.cfg.RetentionMaxFiles <= 0 && r.cfg.RetentionMaxAge <= 0 {
		return
	}
	ext := filepath.Ext(r.path)
	base := strings.TrimSuffix(filepath.Base(r.path), ext)
	dir := filepath.Dir(r.path)
	if r.cfg.ArchiveDir != "" {
		dir = r.cfg.ArchiveDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		r.Stats.CleanupErrors.Add(1)
		return
	}
	type candidate struct {
		path    string
		modTime time.Time
	}
	var matches []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), base) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		matches = append(matches, candidate{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].modTime.After(matches[j].modTime) })

	now := time.Now()
	deleted := 0
	for i, m := range matches {
		shouldDelete := false
		if r.cfg.RetentionMaxFiles > 0 && i >= r.cfg.RetentionMaxFiles {
			shouldDelete = true
		}
		if r.cfg.RetentionMaxAge > 0 && now.Sub(m.modTime) > r.cfg.RetentionMaxAge {
			shouldDelete = true
		}
		if !shouldDelete {
			continue
		}
		if err := os.Remove(m.path); err != nil {
			r.Stats.CleanupErrors.Add(1)
			continue
		}
		deleted++
		r.Stats.FilesDeleted.Add(1)
	}
	if r.cfg.OnCleanup != nil {
		r.cfg.OnCleanup(deleted)
	}
}

// Flush syncs the current file handle to stable storage.
func (r *Rotation) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	return r.current.Sync()
}

// Close flushes and releases the current file handle.
func (r *Rotation) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	return r.current.Close()
}

package riverlog

import "github.com/cockroachdb/errors"

// Error taxonomy, per spec.md §7, declared with
// github.com/cockroachdb/errors. The internal packages do not return or
// wrap these values; they define their own sentinels (for example
// rules.ErrDuplicateID, compress.ErrInvalidMagic, sink.ErrWriteSink).
var (
	// ErrConfig covers invalid size/duration strings, unknown time
	// formats, and unknown level names.
	ErrConfig = errors.New("riverlog: config error")

	// ErrIO covers open/write/rename/unlink failures on a sink.
	ErrIO = errors.New("riverlog: io error")

	// ErrBufferFull names an async ring buffer overflow. Enqueue returns
	// no error; overflow drops are counted in the ring's Stats.
	ErrBufferFull = errors.New("riverlog: buffer full")

	// ErrFormat covers a template parse failure; the record is still
	// emitted in the default format and format_errors is incremented.
	ErrFormat = errors.New("riverlog: format error")

	// ErrCompression is the parent of the more specific compression
	// errors below.
	ErrCompression     = errors.New("riverlog: compression error")
	ErrInvalidMagic    = errors.Wrap(ErrCompression, "invalid magic")
	ErrChecksumMismatch = errors.Wrap(ErrCompression, "checksum mismatch")
	ErrInvalidOffset   = errors.Wrap(ErrCompression, "invalid offset")

	// ErrRuleDuplicate names a duplicate rule id; rules.Engine.Add
	// reports that case with rules.ErrDuplicateID (AddOrUpdate does not).
	ErrRuleDuplicate = errors.New("riverlog: duplicate rule id")

	// ErrDependency names an unsatisfied task dependency. The scheduler
	// skips such a task without returning an error.
	ErrDependency = errors.New("riverlog: dependency not satisfied")
)

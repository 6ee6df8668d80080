package format

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"riverlog/internal/recordmodel"
)

// Context carries the rendering options derived from a SinkConfig
// (spec §3 SinkConfig, §4.2 FormatContext). It is constructed once per
// sink and reused across Format calls.
type Context struct {
	JSON             bool
	PrettyJSON       bool
	Color            bool
	LogFormat        string // template, empty -> default text layout
	TimeFormat       string
	UTC              bool
	IncludeTimestamp bool
	IncludeLevel     bool
	IncludeSource    bool
	IncludeTraceID   bool
	Thread           string // caller-supplied "thread" placeholder value
	RulePrefix       string // prefix symbol for rendered rule attachments
	Diag             DiagFields
}

// DiagFields backs the {diag.*} template placeholders (spec §6). It is
// populated once at startup from the external diagnostics collector
// (out of scope here per spec.md §1; the core only renders it).
type DiagFields struct {
	OS          string
	Arch        string
	CPU         string
	Cores       int
	RAMTotalMB  int64
	RAMAvailMB  int64
}

// Counters are the formatter's own atomic observability counters
// (spec §4.2: records_formatted, json_formats, custom_formats,
// format_errors, bytes_formatted).
type Counters struct {
	RecordsFormatted atomic.Int64
	JSONFormats      atomic.Int64
	CustomFormats    atomic.Int64
	FormatErrors     atomic.Int64
	BytesFormatted   atomic.Int64
}

// Formatter renders Records to bytes per a Context. It never allocates
// unbounded: a pooled scratch buffer backs every Format call (Go has no
// thread-locals, so sync.Pool is the idiomatic stand-in, per
// SPEC_FULL.md §4 C2 addition).
type Formatter struct {
	ctx      Context
	counters Counters
	pool     sync.Pool
}

// New builds a Formatter for the given rendering context.
func New(ctx Context) *Formatter {
	f := &Formatter{ctx: ctx}
	f.pool.New = func() any {
		buf := make([]byte, 0, 256)
		return &buf
	}
	return f
}

// Counters exposes the formatter's atomic counters for metrics wiring.
func (f *Formatter) Counters() *Counters { return &f.counters }

// Format renders rec into a freshly-sized byte slice ready for one
// sink write. It renders one bare record; the "[" / "," glue for JSON
// array wrapping in file sinks is added by the sink, not here.
func (f *Formatter) Format(rec recordmodel.Record) ([]byte, error) {
	bufPtr := f.pool.Get().(*[]byte)
	buf := (*bufPtr)[:0]
	defer func() {
		*bufPtr = buf
		f.pool.Put(bufPtr)
	}()

	var out []byte
	var err error
	if f.ctx.JSON {
		out, err = f.formatJSON(rec, buf)
		f.counters.JSONFormats.Add(1)
	} else {
		out, err = f.formatText(rec, buf)
	}
	if err != nil {
		f.counters.FormatErrors.Add(1)
		return nil, err
	}
	if f.ctx.LogFormat != "" {
		f.counters.CustomFormats.Add(1)
	}
	f.counters.RecordsFormatted.Add(1)
	f.counters.BytesFormatted.Add(int64(len(out)))

	// Return a copy: the pooled buffer is reused on the next call, and
	// the caller may hold this slice past that point (e.g. async queue).
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

func (f *Formatter) formatText(rec recordmodel.Record, buf []byte) ([]byte, error) {
	var line string
	if f.ctx.LogFormat != "" {
		rendered, err := f.renderTemplate(f.ctx.LogFormat, rec)
		if err != nil {
			// spec §7 FormatError: fall back to default format.
			f.counters.FormatErrors.Add(1)
			line = f.defaultTextLine(rec)
		} else {
			line = rendered
		}
	} else {
		line = f.defaultTextLine(rec)
	}

	buf = append(buf, line...)
	for _, rm := range rec.RuleMessages {
		buf = append(buf, '\n')
		buf = append(buf, f.renderRuleLineText(rm)...)
	}
	buf = append(buf, '\n')

	if f.ctx.Color {
		buf = wrapColor(buf, rec.Level.Color)
	}
	return buf, nil
}

func (f *Formatter) defaultTextLine(rec recordmodel.Record) string {
	var parts []string
	if f.ctx.IncludeTimestamp {
		parts = append(parts, "["+FormatTimestamp(rec.TimestampNS, f.ctx.TimeFormat, f.ctx.UTC)+"]")
	}
	if f.ctx.IncludeLevel {
		parts = append(parts, "["+rec.Level.Name+"]")
	}
	if f.ctx.IncludeSource && rec.Source != nil {
		parts = append(parts, sourceLoc(rec.Source)+":")
	}
	parts = append(parts, rec.Message)
	return strings.Join(parts, " ")
}

func sourceLoc(s *recordmodel.Source) string {
	if s.Function != "" {
		return s.Module + "." + s.Function
	}
	return s.File + ":" + strconv.Itoa(s.Line)
}

// wrapColor wraps the entire line (including trailing newline) in
// ESC[{code}m ... ESC[0m, per spec S1.
func wrapColor(line []byte, code string) []byte {
	out := make([]byte, 0, len(line)+12+len(code))
	out = append(out, '\x1b', '[')
	out = append(out, code...)
	out = append(out, 'm')
	out = append(out, line...)
	out = append(out, '\x1b', '[', '0', 'm')
	return out
}

var categorySymbol = map[string]string{
	"cause": "!", "fix": "+", "suggest": "~", "action": ">",
	"docs": "?", "report": "#", "note": "*", "caution": "^",
	"perf": "%", "security": "&", "custom": "-",
}

func (f *Formatter) renderRuleLineText(rm RuleMessageLike) string {
	symbol := categorySymbol[strings.ToLower(rm.Cat())]
	if symbol == "" {
		symbol = "-"
	}
	prefix := f.ctx.RulePrefix
	if prefix == "" {
		prefix = "  "
	}
	line := prefix + symbol + " " + rm.Msg()
	if rm.TitleOf() != "" {
		line = prefix + symbol + " " + rm.TitleOf() + ": " + rm.Msg()
	}
	if rm.URLOf() != "" {
		line += " (" + rm.URLOf() + ")"
	}
	return line
}

// RuleMessageLike abstracts recordmodel.RuleMessage to avoid an import
// cycle concern when formatting; recordmodel.RuleMessage satisfies it
// through the Cat/Msg/TitleOf/URLOf methods in internal/recordmodel.
type RuleMessageLike interface {
	Cat() string
	Msg() string
	TitleOf() string
	URLOf() string
}

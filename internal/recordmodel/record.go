package recordmodel

import (
	"time"

	"github.com/google/uuid"
)

// ContextValue is a tagged sum type for context entries, per the design
// note in spec.md §9: represent context values as a tagged enum rather
// than leaning on interface{} everywhere a serializer has to switch on it.
type ContextValue struct {
	Kind   ContextKind
	Str    string
	Int    int64
	Float  float64
	Bool   bool
	Object []ContextField // nested object, ordered
	Array  []ContextValue
}

// ContextKind tags the active field of ContextValue.
type ContextKind uint8

const (
	ContextString ContextKind = iota
	ContextInt
	ContextFloat
	ContextBool
	ContextNull
	ContextObject
	ContextArray
)

func StringValue(s string) ContextValue   { return ContextValue{Kind: ContextString, Str: s} }
func IntValue(i int64) ContextValue       { return ContextValue{Kind: ContextInt, Int: i} }
func FloatValue(f float64) ContextValue   { return ContextValue{Kind: ContextFloat, Float: f} }
func BoolValue(b bool) ContextValue       { return ContextValue{Kind: ContextBool, Bool: b} }
func NullValue() ContextValue             { return ContextValue{Kind: ContextNull} }
func ObjectValue(f []ContextField) ContextValue { return ContextValue{Kind: ContextObject, Object: f} }
func ArrayValue(v []ContextValue) ContextValue  { return ContextValue{Kind: ContextArray, Array: v} }

// ContextField is one key/value pair in an ordered context mapping.
type ContextField struct {
	Key   string
	Value ContextValue
}

// Source locates the call site that produced a Record.
type Source struct {
	File     string
	Line     int
	Column   int
	Module   string
	Function string
}

// ErrorInfo describes an error attached to a Record.
type ErrorInfo struct {
	Name       string
	Message    string
	StackTrace string
	Code       string
}

// RuleMessage is a diagnostic attachment produced by the Rules engine (C5).
type RuleMessage struct {
	Category   string
	Message    string
	Title      string
	URL        string
	Color      string
	Prefix     string
	Background string
}

// Cat, Msg, TitleOf, URLOf satisfy format.RuleMessageLike without
// format needing to import recordmodel's concrete struct layout.
func (r RuleMessage) Cat() string     { return r.Category }
func (r RuleMessage) Msg() string     { return r.Message }
func (r RuleMessage) TitleOf() string { return r.Title }
func (r RuleMessage) URLOf() string   { return r.URL }

// Record is an immutable-after-emit snapshot of one log event (spec §3).
// Fields are exported for formatter/sink access within the module, but a
// Record should be treated as read-only after it reaches the pipeline;
// callers needing to fan it out to multiple sinks should Clone it.
type Record struct {
	Level       Level
	Message     string
	TimestampNS int64

	Source *Source

	TraceID       string
	SpanID        string
	ParentSpanID  string
	CorrelationID string

	DurationNS *uint64
	ErrorInfo  *ErrorInfo

	Context      []ContextField
	RuleMessages []RuleMessage
}

// NewRecord constructs a Record at the given level with the monotonic
// wall-clock timestamp captured now. Source is optional.
func NewRecord(level Level, message string, source *Source) Record {
	return Record{
		Level:       level,
		Message:     message,
		TimestampNS: time.Now().UnixNano(),
		Source:      source,
	}
}

// WithContext returns a copy of r with key/value appended to its
// context. Context binding is copy-on-modify (spec §5 "Shared-resource
// policy") so an in-flight record's context snapshot never mutates
// underneath a concurrent reader.
func (r Record) WithContext(key string, value ContextValue) Record {
	next := make([]ContextField, len(r.Context), len(r.Context)+1)
	copy(next, r.Context)
	next = append(next, ContextField{Key: key, Value: value})
	r.Context = next
	return r
}

// WithTrace sets trace/span/parent-span ids, generating a trace id via
// uuid when traceID is empty (a convenience recorded as Open Question
// decision 4 in DESIGN.md — the original spec leaves default generation
// unspecified).
func (r Record) WithTrace(traceID, spanID, parentSpanID string) Record {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	r.TraceID = traceID
	r.SpanID = spanID
	r.ParentSpanID = parentSpanID
	return r
}

// WithCorrelationID sets the correlation id.
func (r Record) WithCorrelationID(id string) Record {
	r.CorrelationID = id
	return r
}

// WithDuration attaches a timed-operation duration.
func (r Record) WithDuration(d time.Duration) Record {
	ns := uint64(d.Nanoseconds())
	r.DurationNS = &ns
	return r
}

// WithError attaches error info.
func (r Record) WithError(info ErrorInfo) Record {
	r.ErrorInfo = &info
	return r
}

// Clone returns a deep-enough copy of r suitable for independent fan-out
// to multiple sinks (slices are copied so later RuleMessages/Context
// mutation on one sink's copy doesn't leak to another's).
func (r Record) Clone() Record {
	clone := r
	if r.Context != nil {
		clone.Context = append([]ContextField(nil), r.Context...)
	}
	if r.RuleMessages != nil {
		clone.RuleMessages = append([]RuleMessage(nil), r.RuleMessages...)
	}
	if r.Source != nil {
		s := *r.Source
		clone.Source = &s
	}
	if r.ErrorInfo != nil {
		e := *r.ErrorInfo
		clone.ErrorInfo = &e
	}
	if r.DurationNS != nil {
		d := *r.DurationNS
		clone.DurationNS = &d
	}
	return clone
}

// AppendRuleMessage is used by the rules engine (C5) to attach a
// diagnostic to the record in place.
func (r *Record) AppendRuleMessage(m RuleMessage) {
	r.RuleMessages = append(r.RuleMessages, m)
}

package riverlog

import (
	"time"

	"riverlog/internal/recordmodel"
)

// Record is an immutable-after-emit snapshot of one log event (spec §3,
// C1). It aliases internal/recordmodel.Record so the whole pipeline
// (format, gate, redact, rules, sink, ring...) shares one concrete type.
type Record = recordmodel.Record

// Source locates the call site that produced a Record.
type Source = recordmodel.Source

// ErrorInfo describes an error attached to a Record.
type ErrorInfo = recordmodel.ErrorInfo

// RuleMessage is a diagnostic attachment produced by the rules engine (C5).
type RuleMessage = recordmodel.RuleMessage

// ContextValue, ContextField, and ContextKind back the tagged-enum
// context model (spec §9).
type ContextValue = recordmodel.ContextValue
type ContextField = recordmodel.ContextField
type ContextKind = recordmodel.ContextKind

// Context value constructors.
var (
	StringValue = recordmodel.StringValue
	IntValue    = recordmodel.IntValue
	FloatValue  = recordmodel.FloatValue
	BoolValue   = recordmodel.BoolValue
	NullValue   = recordmodel.NullValue
	ObjectValue = recordmodel.ObjectValue
	ArrayValue  = recordmodel.ArrayValue
)

// NewRecord constructs a Record at the given level with the current
// wall-clock timestamp. source is optional.
func NewRecord(level Level, message string, source *Source) Record {
	return recordmodel.NewRecord(level, message, source)
}

// WithDuration is exposed at the package level for callers building a
// Record outside of Logger.Log (e.g. timing helpers).
func WithDuration(r Record, d time.Duration) Record {
	return r.WithDuration(d)
}

package format

import (
	"strconv"
	"strings"

	"riverlog/internal/recordmodel"
)

// formatJSON renders rec as a single JSON object per spec §4.2: a fixed
// key set (timestamp, level, message) plus optional fields gated by the
// Include* flags, plus context keys as sibling fields, plus a trailing
// "rules" array when the record carries rule_messages. The surrounding
// "[" / "]" / "," glue for a JSON file sink is the sink's job, not the
// formatter's — this always returns one bare object.
func (f *Formatter) formatJSON(rec recordmodel.Record, buf []byte) ([]byte, error) {
	w := &jsonWriter{buf: buf, pretty: f.ctx.PrettyJSON}
	w.beginObject()

	w.field("timestamp", FormatTimestamp(rec.TimestampNS, f.ctx.TimeFormat, f.ctx.UTC))
	w.field("level", rec.Level.Name)
	w.field("message", rec.Message)

	if f.ctx.IncludeSource && rec.Source != nil {
		w.field("file", rec.Source.File)
		w.rawIntField("line", rec.Source.Line)
		w.field("module", rec.Source.Module)
		w.field("function", rec.Source.Function)
	}
	if f.ctx.IncludeTraceID && rec.TraceID != "" {
		w.field("trace_id", rec.TraceID)
		if rec.SpanID != "" {
			w.field("span_id", rec.SpanID)
		}
		if rec.ParentSpanID != "" {
			w.field("parent_span_id", rec.ParentSpanID)
		}
	}
	if rec.CorrelationID != "" {
		w.field("correlation_id", rec.CorrelationID)
	}
	if rec.DurationNS != nil {
		w.rawIntField("duration_ns", int(*rec.DurationNS))
	}
	if rec.ErrorInfo != nil {
		w.beginObjectField("error")
		w.field("name", rec.ErrorInfo.Name)
		w.field("message", rec.ErrorInfo.Message)
		if rec.ErrorInfo.Code != "" {
			w.field("code", rec.ErrorInfo.Code)
		}
		if rec.ErrorInfo.StackTrace != "" {
			w.field("stack_trace", rec.ErrorInfo.StackTrace)
		}
		w.endObject()
	}

	for _, c := range rec.Context {
		w.rawField(c.Key, renderContextValue(c.Value))
	}

	if len(rec.RuleMessages) > 0 {
		w.beginArrayField("rules")
		for i, rm := range rec.RuleMessages {
			if i > 0 {
				w.arraySep()
			}
			w.beginArrayObject()
			w.field("category", rm.Category)
			w.field("message", rm.Message)
			if rm.Title != "" {
				w.field("title", rm.Title)
			}
			if rm.URL != "" {
				w.field("url", rm.URL)
			}
			w.endObject()
		}
		w.endArray()
	}

	w.endObject()

	out := w.buf
	if f.ctx.Color {
		out = wrapColor(out, rec.Level.Color)
	}
	return out, nil
}

// renderContextValue renders a recordmodel.ContextValue as a raw JSON
// value (caller writes it in as-is, not as a quoted string).
func renderContextValue(v recordmodel.ContextValue) string {
	switch v.Kind {
	case recordmodel.ContextString:
		return jsonQuote(v.Str)
	case recordmodel.ContextInt:
		return strconv.FormatInt(v.Int, 10)
	case recordmodel.ContextFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case recordmodel.ContextBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case recordmodel.ContextNull:
		return "null"
	case recordmodel.ContextObject:
		var b strings.Builder
		b.WriteByte('{')
		for i, f := range v.Object {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(jsonQuote(f.Key))
			b.WriteByte(':')
			b.WriteString(renderContextValue(f.Value))
		}
		b.WriteByte('}')
		return b.String()
	case recordmodel.ContextArray:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range v.Array {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(renderContextValue(e))
		}
		b.WriteByte(']')
		return b.String()
	default:
		return "null"
	}
}

// jsonQuote escapes s as a JSON string literal, including the
// surrounding quotes.
func jsonQuote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString("\\u")
				const hex = "0123456789abcdef"
				b.WriteByte(hex[(r>>12)&0xf])
				b.WriteByte(hex[(r>>8)&0xf])
				b.WriteByte(hex[(r>>4)&0xf])
				b.WriteByte(hex[r&0xf])
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// jsonWriter incrementally builds one JSON object into a byte buffer,
// optionally with two-space pretty indentation (spec §4.2 pretty_json).
// It tracks comma placement per nesting depth so callers can write
// fields without worrying about leading commas.
type jsonWriter struct {
	buf       []byte
	pretty    bool
	depth     int
	fieldSeen []bool // per-depth: has a field already been written at this level
}

func (w *jsonWriter) indent() {
	if !w.pretty {
		return
	}
	w.buf = append(w.buf, '\n')
	for i := 0; i < w.depth; i++ {
		w.buf = append(w.buf, ' ', ' ')
	}
}

func (w *jsonWriter) comma() {
	if len(w.fieldSeen) > w.depth-1 && w.depth > 0 && w.fieldSeen[w.depth-1] {
		w.buf = append(w.buf, ',')
	}
	w.indent()
}

func (w *jsonWriter) markSeen() {
	for len(w.fieldSeen) < w.depth {
		w.fieldSeen = append(w.fieldSeen, false)
	}
	w.fieldSeen[w.depth-1] = true
}

func (w *jsonWriter) beginObject() {
	w.buf = append(w.buf, '{')
	w.depth++
}

func (w *jsonWriter) endObject() {
	w.depth--
	if len(w.fieldSeen) > w.depth {
		w.fieldSeen[w.depth] = false
		w.fieldSeen = w.fieldSeen[:w.depth]
	}
	if w.pretty {
		w.indent()
	}
	w.buf = append(w.buf, '}')
	if w.depth > 0 {
		w.markSeen()
	}
}

func (w *jsonWriter) beginObjectField(key string) {
	w.comma()
	w.buf = append(w.buf, jsonQuote(key)...)
	w.buf = append(w.buf, ':')
	w.markSeen()
	w.buf = append(w.buf, '{')
	w.depth++
}

func (w *jsonWriter) beginArrayField(key string) {
	w.comma()
	w.buf = append(w.buf, jsonQuote(key)...)
	w.buf = append(w.buf, ':')
	w.markSeen()
	w.buf = append(w.buf, '[')
	w.depth++
}

func (w *jsonWriter) beginArrayObject() {
	w.buf = append(w.buf, '{')
	w.depth++
}

func (w *jsonWriter) arraySep() {
	w.buf = append(w.buf, ',')
}

func (w *jsonWriter) endArray() {
	w.depth--
	if len(w.fieldSeen) > w.depth {
		w.fieldSeen[w.depth] = false
		w.fieldSeen = w.fieldSeen[:w.depth]
	}
	w.buf = append(w.buf, ']')
	if w.depth > 0 {
		w.markSeen()
	}
}

func (w *jsonWriter) field(key, value string) {
	w.comma()
	w.buf = append(w.buf, jsonQuote(key)...)
	w.buf = append(w.buf, ':')
	w.buf = append(w.buf, jsonQuote(value)...)
	w.markSeen()
}

func (w *jsonWriter) rawField(key, rawValue string) {
	w.comma()
	w.buf = append(w.buf, jsonQuote(key)...)
	w.buf = append(w.buf, ':')
	w.buf = append(w.buf, rawValue...)
	w.markSeen()
}

func (w *jsonWriter) rawIntField(key string, value int) {
	w.rawField(key, strconv.Itoa(value))
}

// renderTemplate substitutes the placeholders documented in spec §6 into
// format. An unknown "{...}" placeholder is a FormatError (§7): the
// caller falls back to the default text line.
func (f *Formatter) renderTemplate(tmpl string, rec recordmodel.Record) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] != '{' {
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			return "", errUnterminatedPlaceholder
		}
		name := tmpl[i+1 : i+end]
		val, err := f.resolvePlaceholder(name, rec)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
		i += end + 1
	}
	return b.String(), nil
}

func (f *Formatter) resolvePlaceholder(name string, rec recordmodel.Record) (string, error) {
	switch name {
	case "time":
		return FormatTimestamp(rec.TimestampNS, f.ctx.TimeFormat, f.ctx.UTC), nil
	case "level":
		return rec.Level.Name, nil
	case "message":
		return rec.Message, nil
	case "trace_id":
		return rec.TraceID, nil
	case "span_id":
		return rec.SpanID, nil
	case "thread":
		return f.ctx.Thread, nil
	case "caller":
		if rec.Source == nil {
			return "", nil
		}
		return sourceLoc(rec.Source), nil
	case "module":
		if rec.Source == nil {
			return "", nil
		}
		return rec.Source.Module, nil
	case "function":
		if rec.Source == nil {
			return "", nil
		}
		return rec.Source.Function, nil
	case "file":
		if rec.Source == nil {
			return "", nil
		}
		return rec.Source.File, nil
	case "line":
		if rec.Source == nil {
			return "", nil
		}
		return strconv.Itoa(rec.Source.Line), nil
	case "diag.os":
		return f.ctx.Diag.OS, nil
	case "diag.arch":
		return f.ctx.Diag.Arch, nil
	case "diag.cpu":
		return f.ctx.Diag.CPU, nil
	case "diag.cores":
		return strconv.Itoa(f.ctx.Diag.Cores), nil
	case "diag.ram_total_mb":
		return strconv.FormatInt(f.ctx.Diag.RAMTotalMB, 10), nil
	case "diag.ram_avail_mb":
		return strconv.FormatInt(f.ctx.Diag.RAMAvailMB, 10), nil
	default:
		return "", errUnknownPlaceholder
	}
}

// Package format implements C2: rendering a Record to bytes for a sink,
// in text or JSON mode, per spec.md §4.2 and the time/format token
// tables in §6.
package format

import (
	"strconv"
	"strings"
	"time"
)

// Named time formats accepted by SinkConfig.TimeFormat (spec §6).
const (
	TimeDefault = "default"
	TimeISO8601 = "ISO8601"
	TimeRFC3339 = "RFC3339"
	TimeUnix    = "unix"
	TimeUnixMS  = "unix_ms"
)

// tokens, longest match first so e.g. "YYYY" is tried before "YY".
var timeTokens = []string{"YYYY", "YY", "MM", "M", "DD", "D", "HH", "H", "mm", "m", "ss", "s", "SSS"}

// FormatTimestamp renders a nanosecond unix timestamp per the named
// format or token pattern in format. utc forces UTC rendering (used by
// ISO8601 per spec: "(UTC if timezone=utc)").
func FormatTimestamp(nowNS int64, format string, utc bool) string {
	t := time.Unix(0, nowNS)
	if utc {
		t = t.UTC()
	}
	switch format {
	case "", TimeDefault:
		return renderPattern(t, "YYYY-MM-DD HH:mm:ss.SSS")
	case TimeISO8601:
		return renderPattern(t, "YYYY-MM-DDTHH:mm:ss.SSS") + isoZone(t, utc)
	case TimeRFC3339:
		return t.Format(time.RFC3339)
	case TimeUnix:
		return strconv.FormatInt(t.Unix(), 10)
	case TimeUnixMS:
		return strconv.FormatInt(t.UnixNano()/int64(time.Millisecond), 10)
	default:
		return renderPattern(t, format)
	}
}

func isoZone(t time.Time, utc bool) string {
	if utc {
		return "Z"
	}
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h := offset / 3600
	m := (offset % 3600) / 60
	return sign + pad2(h) + ":" + pad2(m)
}

func pad2(n int) string {
	s := strconv.Itoa(n)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

// renderPattern substitutes YYYY YY MM M DD D HH H mm m ss s SSS tokens;
// any other character passes through literally, per spec §6.
func renderPattern(t time.Time, pattern string) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		matched := false
		for _, tok := range timeTokens {
			if strings.HasPrefix(pattern[i:], tok) {
				b.WriteString(tokenValue(t, tok))
				i += len(tok)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

func tokenValue(t time.Time, tok string) string {
	switch tok {
	case "YYYY":
		return strconv.Itoa(t.Year())
	case "YY":
		return pad2(t.Year() % 100)
	case "MM":
		return pad2(int(t.Month()))
	case "M":
		return strconv.Itoa(int(t.Month()))
	case "DD":
		return pad2(t.Day())
	case "D":
		return strconv.Itoa(t.Day())
	case "HH":
		return pad2(t.Hour())
	case "H":
		return strconv.Itoa(t.Hour())
	case "mm":
		return pad2(t.Minute())
	case "m":
		return strconv.Itoa(t.Minute())
	case "ss":
		return pad2(t.Second())
	case "s":
		return strconv.Itoa(t.Second())
	case "SSS":
		ms := t.Nanosecond() / int(time.Millisecond)
		s := strconv.Itoa(ms)
		for len(s) < 3 {
			s = "0" + s
		}
		return s
	}
	return tok
}

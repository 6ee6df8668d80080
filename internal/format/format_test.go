package format

import (
	"strings"
	"testing"

	"riverlog/internal/recordmodel"
)

// TestTextColorWrapsWholeLine covers scenario S1: with color active, the
// entire rendered line (including the trailing newline) is wrapped in a
// single ESC[{code}m ... ESC[0m pair.
func TestTextColorWrapsWholeLine(t *testing.T) {
	f := New(Context{
		Color:            true,
		IncludeTimestamp: true,
		IncludeLevel:     true,
	})
	rec := recordmodel.NewRecord(recordmodel.LevelInfo, "hello", nil)

	out, err := f.Format(rec)
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "\x1b[37m") {
		t.Fatalf("expected line to start with color escape, got %q", s)
	}
	if !strings.HasSuffix(s, "\x1b[0m") {
		t.Fatalf("expected line to end with reset escape, got %q", s)
	}
	if !strings.Contains(s, "[INFO]") {
		t.Fatalf("expected level name in line, got %q", s)
	}
	if !strings.Contains(s, "hello") {
		t.Fatalf("expected message in line, got %q", s)
	}
}

// TestJSONFixedKeySet covers the JSON object shape from spec §4.2: a
// fixed timestamp/level/message key set plus context as siblings.
func TestJSONFixedKeySet(t *testing.T) {
	f := New(Context{JSON: true})
	rec := recordmodel.NewRecord(recordmodel.LevelError, "B", nil)
	rec = rec.WithContext("user_id", recordmodel.IntValue(42))

	out, err := f.Format(rec)
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, `{"timestamp":"`) {
		t.Fatalf("expected object to start with timestamp field, got %q", s)
	}
	if !strings.Contains(s, `"level":"ERROR"`) {
		t.Fatalf("expected uppercase level name, got %q", s)
	}
	if !strings.Contains(s, `"message":"B"`) {
		t.Fatalf("expected message field, got %q", s)
	}
	if !strings.Contains(s, `"user_id":42`) {
		t.Fatalf("expected context key as a sibling field, got %q", s)
	}
	if !strings.HasSuffix(s, "}") {
		t.Fatalf("expected object to end with closing brace, got %q", s)
	}
}

// TestJSONRulesArray covers rule_messages rendering as a "rules" array
// field with category/message/title/url.
func TestJSONRulesArray(t *testing.T) {
	f := New(Context{JSON: true})
	rec := recordmodel.NewRecord(recordmodel.LevelWarning, "disk low", nil)
	rec.AppendRuleMessage(recordmodel.RuleMessage{
		Category: "fix",
		Message:  "free up space",
		URL:      "https://example.com/disk",
	})

	out, err := f.Format(rec)
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `"rules":[{"category":"fix","message":"free up space","url":"https://example.com/disk"}]`) {
		t.Fatalf("unexpected rules array rendering: %q", s)
	}
}

// TestRenderTemplateUnknownPlaceholderFallsBack covers the FormatError
// policy from spec §7: an unparseable template falls back to the
// default text line instead of erroring out of Format.
func TestRenderTemplateUnknownPlaceholderFallsBack(t *testing.T) {
	f := New(Context{
		LogFormat:        "{nope}",
		IncludeTimestamp: false,
		IncludeLevel:     true,
	})
	rec := recordmodel.NewRecord(recordmodel.LevelInfo, "hi", nil)

	out, err := f.Format(rec)
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	if !strings.Contains(string(out), "[INFO] hi") {
		t.Fatalf("expected fallback to default text line, got %q", string(out))
	}
}

// TestRenderTemplatePlaceholders covers successful placeholder
// substitution across the documented set.
func TestRenderTemplatePlaceholders(t *testing.T) {
	f := New(Context{})
	src := &recordmodel.Source{File: "main.go", Line: 10, Module: "app", Function: "Run"}
	rec := recordmodel.NewRecord(recordmodel.LevelDebug, "starting", src)

	rendered, err := f.renderTemplate("{level}: {message} ({module}.{function} {file}:{line})", rec)
	if err != nil {
		t.Fatalf("renderTemplate returned error: %v", err)
	}
	want := "DEBUG: starting (app.Run main.go:10)"
	if rendered != want {
		t.Fatalf("expected %q, got %q", want, rendered)
	}
}

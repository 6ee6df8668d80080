package redact

import (
	"testing"

	"riverlog/internal/recordmodel"
)

// TestNoRulesReturnsMessageUnchanged covers spec.md testable property
// #10: a redactor with no rules returns the input message byte-identical.
func TestNoRulesReturnsMessageUnchanged(t *testing.T) {
	r := New(Config{})
	msg := "nothing sensitive here"
	if got := r.RedactMessage(msg); got != msg {
		t.Fatalf("expected unchanged message, got %q", got)
	}
}

func TestContainsPatternRedacts(t *testing.T) {
	r := New(Config{Patterns: []PatternRule{
		{Name: "email", Type: Contains, Pattern: "secret@example.com", Replacement: "[EMAIL]"},
	}})
	got := r.RedactMessage("contact secret@example.com now")
	want := "contact [EMAIL] now"
	if got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
	if r.Stats().PatternsMatched.Load() != 1 {
		t.Fatalf("expected 1 pattern match recorded")
	}
}

func TestFieldRedactionPartialStart(t *testing.T) {
	r := New(Config{Fields: map[string]FieldRule{
		"ssn": {Type: PartialStart, Keep: 3},
	}})
	ctx := []recordmodel.ContextField{{Key: "ssn", Value: recordmodel.StringValue("123456789")}}
	out := r.RedactContext(ctx)
	if out[0].Value.Str != "123******" {
		t.Fatalf("unexpected redaction: %q", out[0].Value.Str)
	}
}

func TestFieldRedactionHash(t *testing.T) {
	r := New(Config{Fields: map[string]FieldRule{
		"token": {Type: Hash},
	}})
	ctx := []recordmodel.ContextField{{Key: "token", Value: recordmodel.StringValue("abc")}}
	out := r.RedactContext(ctx)
	if len(out[0].Value.Str) != 64 {
		t.Fatalf("expected 64-char hex sha256 digest, got %q", out[0].Value.Str)
	}
}

func TestFieldWithoutRulePassesThrough(t *testing.T) {
	r := New(Config{Fields: map[string]FieldRule{"ssn": {Type: Full}}})
	ctx := []recordmodel.ContextField{{Key: "user_id", Value: recordmodel.IntValue(7)}}
	out := r.RedactContext(ctx)
	if out[0].Value.Int != 7 {
		t.Fatalf("expected unrelated field unchanged")
	}
}

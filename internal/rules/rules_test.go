package rules

import (
	"testing"

	"riverlog/internal/recordmodel"
)

// TestRulesAttachCauseFixDocs covers scenario S6: a single rule with
// three attachments fires once and records rules_matched==1,
// messages_emitted==3.
func TestRulesAttachCauseFixDocs(t *testing.T) {
	e := New()
	err := e.Add(Rule{
		ID:              1,
		Level:           LevelMatch{Kind: LevelExact, Level: recordmodel.LevelError},
		MessageContains: "Database",
		Priority:        0,
		Enabled:         true,
		Messages: []recordmodel.RuleMessage{
			{Category: "cause", Message: "Pool exhausted"},
			{Category: "fix", Message: "Increase max_connections"},
			{Category: "docs", Message: "Guide", Title: "Guide", URL: "https://example/db"},
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	rec := recordmodel.NewRecord(recordmodel.LevelError, "Database connection timeout", nil)
	e.Evaluate(&rec)

	if len(rec.RuleMessages) != 3 {
		t.Fatalf("expected 3 rule messages, got %d", len(rec.RuleMessages))
	}
	if e.Stats().RulesMatched.Load() != 1 {
		t.Fatalf("expected rules_matched=1, got %d", e.Stats().RulesMatched.Load())
	}
	if e.Stats().MessagesEmitted.Load() != 3 {
		t.Fatalf("expected messages_emitted=3, got %d", e.Stats().MessagesEmitted.Load())
	}
}

func TestEmptyEngineSkipsWithoutLock(t *testing.T) {
	e := New()
	rec := recordmodel.NewRecord(recordmodel.LevelInfo, "x", nil)
	e.Evaluate(&rec)
	if e.Stats().EvaluationsSkipped.Load() != 1 {
		t.Fatalf("expected evaluations_skipped=1")
	}
}

func TestOnceRuleFiresOnlyOnce(t *testing.T) {
	e := New()
	e.Add(Rule{
		ID:       2,
		Level:    LevelMatch{Kind: LevelAny},
		Once:     true,
		Enabled:  true,
		Messages: []recordmodel.RuleMessage{{Category: "note", Message: "first time"}},
	})
	rec1 := recordmodel.NewRecord(recordmodel.LevelInfo, "a", nil)
	e.Evaluate(&rec1)
	rec2 := recordmodel.NewRecord(recordmodel.LevelInfo, "b", nil)
	e.Evaluate(&rec2)

	if len(rec1.RuleMessages) != 1 {
		t.Fatalf("expected first evaluation to attach once")
	}
	if len(rec2.RuleMessages) != 0 {
		t.Fatalf("expected once rule not to fire twice")
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	e := New()
	e.Add(Rule{ID: 5, Enabled: true})
	if err := e.Add(Rule{ID: 5, Enabled: true}); err != ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestPriorityDescendingInsertionTiebreak(t *testing.T) {
	e := New()
	var order []int
	e.SetAttachCallback(func(r Rule, _ recordmodel.RuleMessage) {
		order = append(order, int(r.ID))
	})
	e.Add(Rule{ID: 1, Priority: 5, Enabled: true, Messages: []recordmodel.RuleMessage{{Category: "note", Message: "a"}}})
	e.Add(Rule{ID: 2, Priority: 10, Enabled: true, Messages: []recordmodel.RuleMessage{{Category: "note", Message: "b"}}})
	e.Add(Rule{ID: 3, Priority: 10, Enabled: true, Messages: []recordmodel.RuleMessage{{Category: "note", Message: "c"}}})

	rec := recordmodel.NewRecord(recordmodel.LevelInfo, "x", nil)
	e.Evaluate(&rec)

	want := []int{2, 3, 1}
	if len(order) != len(want) {
		t.Fatalf("expected %d attachments, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

package riverlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"riverlog/internal/gate"
	"riverlog/internal/pool"
	"riverlog/internal/rules"
	"riverlog/internal/sink"
)

// syncBuffer lets a *bytes.Buffer be safely written from the ring
// buffer's background worker goroutine in async tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoggerEmitsAboveMinLevel(t *testing.T) {
	var out syncBuffer
	l := New(Options{MinLevel: LevelWarning})
	if err := l.AddSink(sink.Config{
		Name: "out", Kind: sink.KindCustomWriter, Writer: &out,
		MinLevel: LevelTrace,
		Format:   sink.Format{IncludeLevel: true, IncludeTimestamp: false},
	}); err != nil {
		t.Fatalf("AddSink: %v", err)
	}
	defer l.Close()

	l.Log(NewRecord(LevelInfo, "should be dropped", nil))
	l.Log(NewRecord(LevelError, "should appear", nil))

	got := out.String()
	if strings.Contains(got, "should be dropped") {
		t.Fatalf("expected INFO record below MinLevel=WARNING to be dropped, got %q", got)
	}
	if !strings.Contains(got, "should appear") {
		t.Fatalf("expected ERROR record to appear, got %q", got)
	}
}

func TestLoggerModuleLevelOverride(t *testing.T) {
	var out syncBuffer
	l := New(Options{MinLevel: LevelError})
	l.SetModuleLevel("noisy", LevelTrace)
	_ = l.AddSink(sink.Config{Name: "out", Kind: sink.KindCustomWriter, Writer: &out, MinLevel: LevelTrace})
	defer l.Close()

	rec := NewRecord(LevelDebug, "module debug line", &Source{Module: "noisy"})
	l.Log(rec)

	if !strings.Contains(out.String(), "module debug line") {
		t.Fatalf("expected module-level override to admit a DEBUG record, got %q", out.String())
	}
}

func TestLoggerFilterDropsAndCountsMetrics(t *testing.T) {
	var out syncBuffer
	filter := gate.NewFilter(gate.Rule{Type: gate.MessageContains, Needle: "secret", Action: gate.Deny})
	l := New(Options{MinLevel: LevelTrace, Filter: filter})
	_ = l.AddSink(sink.Config{Name: "out", Kind: sink.KindCustomWriter, Writer: &out, MinLevel: LevelTrace})
	defer l.Close()

	l.Log(NewRecord(LevelInfo, "contains secret data", nil))
	l.Log(NewRecord(LevelInfo, "fine", nil))

	if strings.Contains(out.String(), "secret") {
		t.Fatal("expected filter to deny the record containing \"secret\"")
	}
	snap := l.Metrics()
	if snap.DroppedRecords != 1 {
		t.Fatalf("expected dropped_records=1, got %d", snap.DroppedRecords)
	}
}

func TestLoggerRulesAttachOnErrorRecord(t *testing.T) {
	var out syncBuffer
	engine := rules.New()
	if err := engine.Add(rules.Rule{
		ID:              1,
		Level:           rules.LevelMatch{Kind: rules.LevelExact, Level: LevelError},
		MessageContains: "Database",
		Enabled:         true,
		Messages: []RuleMessage{
			{Category: "cause", Message: "Pool exhausted"},
			{Category: "fix", Message: "Increase max_connections"},
			{Category: "docs", Title: "Guide", URL: "https://example/db", Message: "see docs"},
		},
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	l := New(Options{MinLevel: LevelTrace, Rules: engine})
	_ = l.AddSink(sink.Config{Name: "out", Kind: sink.KindCustomWriter, Writer: &out, MinLevel: LevelTrace})
	defer l.Close()

	l.Log(NewRecord(LevelError, "Database connection timeout", nil))

	got := out.String()
	if !strings.Contains(got, "Pool exhausted") || !strings.Contains(got, "Increase max_connections") || !strings.Contains(got, "https://example/db") {
		t.Fatalf("expected all three rule attachments in output, got %q", got)
	}
	stats := engine.Stats()
	if stats.RulesMatched.Load() != 1 {
		t.Fatalf("expected rules_matched=1, got %d", stats.RulesMatched.Load())
	}
	if stats.MessagesEmitted.Load() != 3 {
		t.Fatalf("expected messages_emitted=3, got %d", stats.MessagesEmitted.Load())
	}
}

func TestLoggerWithBindsContext(t *testing.T) {
	var out syncBuffer
	l := New(Options{MinLevel: LevelTrace})
	_ = l.AddSink(sink.Config{
		Name: "out", Kind: sink.KindCustomWriter, Writer: &out, MinLevel: LevelTrace,
		Format: sink.Format{JSON: true},
	})
	defer l.Close()

	child := l.With(ContextField{Key: "request_id", Value: StringValue("abc-123")})
	child.Log(NewRecord(LevelInfo, "handled", nil))

	if !strings.Contains(out.String(), `"request_id":"abc-123"`) {
		t.Fatalf("expected bound context field in JSON output, got %q", out.String())
	}
}

func TestLoggerAsyncDispatchReachesSink(t *testing.T) {
	var out syncBuffer
	l := New(Options{
		MinLevel: LevelTrace,
		Async:    true,
	})
	_ = l.AddSink(sink.Config{Name: "out", Kind: sink.KindCustomWriter, Writer: &out, MinLevel: LevelTrace})

	for i := 0; i < 10; i++ {
		l.Log(NewRecord(LevelInfo, "async line", nil))
	}
	l.Close()

	count := strings.Count(out.String(), "async line")
	if count != 10 {
		t.Fatalf("expected 10 async-dispatched lines to reach the sink, got %d", count)
	}
}

// TestLoggerPoolFanOutReachesAllSinks exercises C11 wiring: with a
// Pool configured, writeToAllSinks submits each sink's write as a pool
// task instead of running them on the calling goroutine, but every
// sink must still observe the record.
func TestLoggerPoolFanOutReachesAllSinks(t *testing.T) {
	var outA, outB syncBuffer
	l := New(Options{
		MinLevel: LevelTrace,
		Pool:     &pool.Config{Workers: 2},
	})
	_ = l.AddSink(sink.Config{Name: "a", Kind: sink.KindCustomWriter, Writer: &outA, MinLevel: LevelTrace})
	_ = l.AddSink(sink.Config{Name: "b", Kind: sink.KindCustomWriter, Writer: &outB, MinLevel: LevelTrace})
	defer l.Close()

	l.Log(NewRecord(LevelInfo, "fanned out", nil))

	if !strings.Contains(outA.String(), "fanned out") {
		t.Fatalf("expected pool-dispatched write to reach sink a, got %q", outA.String())
	}
	if !strings.Contains(outB.String(), "fanned out") {
		t.Fatalf("expected pool-dispatched write to reach sink b, got %q", outB.String())
	}
}

// TestLoggerHousekeepingForcesRotationWithoutWrites exercises C10
// wiring: a Scheduler-driven TaskRotation task must force a rotation
// sweep on a file sink purely on a timer, with no Write calls at all.
func TestLoggerHousekeepingForcesRotationWithoutWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	l := New(Options{
		MinLevel: LevelTrace,
		Housekeeping: &HousekeepingConfig{
			RotationCheckInterval: 20 * time.Millisecond,
		},
	})
	if err := l.AddSink(sink.Config{
		Name: "file",
		Kind: sink.KindFile,
		Path: path,
		Rotation: &sink.RotationConfig{
			Naming: sink.NamingIndex,
		},
	}); err != nil {
		t.Fatalf("AddSink: %v", err)
	}
	defer l.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the scheduler's housekeeping task to have forced at least one rotation without any writes")
}

func TestLoggerDisabledDropsEverything(t *testing.T) {
	var out syncBuffer
	l := New(Options{MinLevel: LevelTrace})
	_ = l.AddSink(sink.Config{Name: "out", Kind: sink.KindCustomWriter, Writer: &out, MinLevel: LevelTrace})
	defer l.Close()

	l.Disable()
	l.Log(NewRecord(LevelCritical, "should never appear", nil))

	if out.String() != "" {
		t.Fatalf("expected disabled logger to drop everything, got %q", out.String())
	}
}

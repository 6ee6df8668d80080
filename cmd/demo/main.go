// Command demo wires riverlog programmatically against a handful of
// sinks and pipeline stages to exercise the library end to end. It is
// illustrative wiring, not a config-file/flag builder (out of scope —
// SPEC_FULL.md §5 Non-goals).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"riverlog"
	"riverlog/internal/compress"
	"riverlog/internal/gate"
	"riverlog/internal/pool"
	"riverlog/internal/redact"
	"riverlog/internal/rules"
	"riverlog/internal/sink"
)

func main() {
	opLog := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	redactor := redact.New(redact.Config{
		Patterns: []redact.PatternRule{
			{Type: redact.Contains, Pattern: "password=", Replacement: "[REDACTED]"},
		},
		Fields: map[string]redact.FieldRule{
			"ssn": {Type: redact.MaskMiddle, Keep: 2},
		},
	})

	ruleEngine := rules.New()
	if err := ruleEngine.Add(rules.Rule{
		ID:              1,
		Level:           rules.LevelMatch{Kind: rules.LevelExact, Level: riverlog.LevelError},
		MessageContains: "Database",
		Enabled:         true,
		Messages: []riverlog.RuleMessage{
			{Category: "cause", Message: "Pool exhausted"},
			{Category: "fix", Message: "Increase max_connections"},
			{Category: "docs", Title: "Guide", URL: "https://example.com/db", Message: "see docs"},
		},
	}); err != nil {
		opLog.Error("failed to register rule", "error", err)
		os.Exit(1)
	}

	filter := gate.NewFilter(
		gate.Rule{Type: gate.LevelMin, Level: riverlog.LevelDebug, Action: gate.Allow},
	)

	logger := riverlog.New(riverlog.Options{
		MinLevel: riverlog.LevelTrace,
		Filter:   filter,
		Redactor: redactor,
		Rules:    ruleEngine,
		Async:    true,
		Pool:     &pool.Config{Workers: 4, WorkStealing: true},
		Housekeeping: &riverlog.HousekeepingConfig{
			RotationCheckInterval: time.Minute,
		},
	})
	defer logger.Close()

	if err := logger.AddSink(sink.Config{
		Name:   "console",
		Kind:   sink.KindConsole,
		Stderr: false,
		Format: sink.Format{
			IncludeTimestamp: true,
			IncludeLevel:     true,
			Color:            true,
			RulePrefix:       "  ",
		},
	}); err != nil {
		opLog.Error("failed to add console sink", "error", err)
		os.Exit(1)
	}

	if err := logger.AddSink(sink.Config{
		Name:       "app-log",
		Kind:       sink.KindFile,
		Path:       "app.log",
		CreateDirs: true,
		Rotation: &sink.RotationConfig{
			SizeLimit:         10 * 1024 * 1024,
			Naming:            sink.NamingTimestamp,
			RetentionMaxFiles: 5,
		},
		Compression: &sink.CompressionConfig{
			Level: compress.LevelDefault,
			OnError: func(path string, err error) {
				opLog.Error("rotated file compression failed", "path", path, "error", err)
			},
		},
		Format: sink.Format{JSON: true},
	}); err != nil {
		opLog.Error("failed to add file sink", "error", err)
		os.Exit(1)
	}

	logger.Log(riverlog.NewRecord(riverlog.LevelInfo, "service starting up", nil).
		WithContext("version", riverlog.StringValue("1.0.0")))

	logger.Log(riverlog.NewRecord(riverlog.LevelError, "Database connection timeout", nil).
		WithContext("host", riverlog.StringValue("db-primary")))

	op := riverlog.NewRecord(riverlog.LevelInfo, "request handled", nil)
	op = riverlog.WithDuration(op, 42*time.Millisecond)
	logger.Log(op)

	time.Sleep(50 * time.Millisecond)

	snap := logger.Metrics()
	fmt.Fprintf(os.Stderr, "total_records=%d dropped_records=%d error_count=%d\n",
		snap.TotalRecords, snap.DroppedRecords, snap.ErrorCount)

	if err := logger.Flush(); err != nil {
		opLog.Error("flush failed", "error", err)
	}
}

package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"riverlog/internal/format"
	"riverlog/internal/recordmodel"
)

// TestJSONFileSinkTwoRecords covers scenario S2: a JSON file sink
// writes "[" on the first record, ",\n" before each later record, and
// "]" on close.
func TestJSONFileSinkTwoRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	s, err := New(Config{
		Kind: KindFile,
		Path: path,
		Format: format.Context{
			JSON: true,
		},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Write(recordmodel.NewRecord(recordmodel.LevelInfo, "A", nil)); err != nil {
		t.Fatalf("Write A: %v", err)
	}
	if err := s.Write(recordmodel.NewRecord(recordmodel.LevelError, "B", nil)); err != nil {
		t.Fatalf("Write B: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := string(data)
	if got[0] != '[' || got[len(got)-1] != ']' {
		t.Fatalf("expected array wrapping, got %q", got)
	}
	if !strings.Contains(got, `"message":"A"`) || !strings.Contains(got, `"message":"B"`) {
		t.Fatalf("expected both records present, got %q", got)
	}
	if !strings.Contains(got, "},\n{") {
		t.Fatalf("expected records separated by \",\\n\", got %q", got)
	}
}

func TestSinkDisablesOnWriterFailure(t *testing.T) {
	s := &Sink{cfg: Config{Kind: KindCustomWriter}, writer: failingWriter{}}
	s.formatter = format.New(format.Context{})
	_ = s.Write(recordmodel.NewRecord(recordmodel.LevelInfo, "x", nil))
	if !s.Disabled() {
		t.Fatal("expected sink to disable itself after a write failure")
	}
	// Subsequent writes should be silently dropped, not attempted again.
	if err := s.Write(recordmodel.NewRecord(recordmodel.LevelInfo, "y", nil)); err != nil {
		t.Fatalf("expected nil error once disabled, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errWriteBoom }
func (failingWriter) Close() error              { return nil }

var errWriteBoom = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

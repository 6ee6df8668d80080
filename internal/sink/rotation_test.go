package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"riverlog/internal/compress"
	"riverlog/internal/format"
	"riverlog/internal/recordmodel"
)

func TestRotationBySizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	s, err := New(Config{
		Kind: KindFile,
		Path: path,
		Rotation: &RotationConfig{
			SizeLimit: 64,
			Naming:    NamingIndex,
		},
		Format: format.Context{IncludeLevel: true},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for i := 0; i < 20; i++ {
		if err := s.Write(recordmodel.NewRecord(recordmodel.LevelInfo, "some moderately long log line here", nil)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if s.rotation.Stats.TotalRotations.Load() == 0 {
		t.Fatal("expected at least one rotation to have occurred")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rotated files alongside app.log, found %d entries", len(entries))
	}
}

func TestRetentionDeletesOldest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	s, err := New(Config{
		Kind: KindFile,
		Path: path,
		Rotation: &RotationConfig{
			SizeLimit:         32,
			Naming:            NamingIndex,
			RetentionMaxFiles: 1,
		},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for i := 0; i < 40; i++ {
		s.Write(recordmodel.NewRecord(recordmodel.LevelInfo, "padding padding padding padding", nil))
	}

	if s.rotation.Stats.FilesDeleted.Load() == 0 {
		t.Fatal("expected retention to have deleted at least one rotated file")
	}
}

// TestRotationWithCompressionRoundTrip exercises S3: a sink configured
// with both Rotation and Compression must produce a rotated file that
// has actually gone through the C8 compressor, reachable end to end
// from the public Config, not just from internal/compress's own tests.
func TestRotationWithCompressionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	s, err := New(Config{
		Kind: KindFile,
		Path: path,
		Rotation: &RotationConfig{
			SizeLimit: 32,
			Naming:    NamingIndex,
		},
		Compression: &CompressionConfig{Level: compress.LevelDefault},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for i := 0; i < 20; i++ {
		s.Write(recordmodel.NewRecord(recordmodel.LevelInfo, "padding padding padding padding", nil))
	}

	if s.rotation.Stats.TotalRotations.Load() == 0 {
		t.Fatal("expected at least one rotation to have occurred")
	}
	if s.rotation.Stats.CompressionErrors.Load() != 0 {
		t.Fatalf("expected no compression errors, got %d", s.rotation.Stats.CompressionErrors.Load())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var sawCompressed bool
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".rlz") {
			sawCompressed = true
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				t.Fatalf("ReadFile %s: %v", e.Name(), err)
			}
			plain, err := compress.Decode(data)
			if err != nil {
				t.Fatalf("Decode %s: %v", e.Name(), err)
			}
			if !strings.Contains(string(plain), "padding") {
				t.Fatalf("decoded %s does not hold the logged line: %q", e.Name(), plain)
			}
		}
	}
	if !sawCompressed {
		t.Fatal("expected at least one rotated file to carry the compressed .rlz extension")
	}
}

// TestNamingTimestampDisambiguatesSameSecondRotations guards against a
// rotation burst within one wall-clock second silently clobbering an
// earlier rotated file via os.Rename (spec §9 "...{timestamp}.{n}").
func TestNamingTimestampDisambiguatesSameSecondRotations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	s, err := New(Config{
		Kind: KindFile,
		Path: path,
		Rotation: &RotationConfig{
			SizeLimit: 16,
			Naming:    NamingTimestamp,
		},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for i := 0; i < 40; i++ {
		s.Write(recordmodel.NewRecord(recordmodel.LevelInfo, "padding padding padding padding", nil))
	}

	if s.rotation.Stats.TotalRotations.Load() < 2 {
		t.Skip("did not force enough rotations within the same second to exercise disambiguation")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < int(s.rotation.Stats.TotalRotations.Load()) {
		t.Fatalf("expected one rotated file per rotation (no clobbering), found %d entries for %d rotations",
			len(entries), s.rotation.Stats.TotalRotations.Load())
	}
}

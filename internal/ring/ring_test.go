package ring

import (
	"testing"

	"riverlog/internal/recordmodel"
)

func rec(msg string) recordmodel.Record {
	return recordmodel.NewRecord(recordmodel.LevelInfo, msg, nil)
}

// TestOverflowDropOldest covers scenario S4: async queue capacity 4,
// overflow_policy=drop_oldest, no worker running. Producer enqueues
// records 1..6 from one thread. Expected final buffer occupancy:
// records 3,4,5,6 (in order); records_dropped==2.
func TestOverflowDropOldest(t *testing.T) {
	b := New(Config{BufferSize: 4, OverflowPolicy: DropOldest})
	for i := 1; i <= 6; i++ {
		b.Enqueue(rec(string(rune('0' + i))))
	}

	got := b.DrainAll()
	if len(got) != 4 {
		t.Fatalf("expected 4 buffered records, got %d", len(got))
	}
	want := []string{"3", "4", "5", "6"}
	for i, r := range got {
		if r.Message != want[i] {
			t.Fatalf("expected order %v, got message %q at index %d", want, r.Message, i)
		}
	}
	if b.Stats.RecordsDropped.Load() != 2 {
		t.Fatalf("expected records_dropped=2, got %d", b.Stats.RecordsDropped.Load())
	}
}

func TestOverflowDropNewest(t *testing.T) {
	b := New(Config{BufferSize: 4, OverflowPolicy: DropNewest})
	for i := 1; i <= 6; i++ {
		b.Enqueue(rec(string(rune('0' + i))))
	}
	got := b.DrainAll()
	if len(got) != 4 {
		t.Fatalf("expected 4 buffered records, got %d", len(got))
	}
	want := []string{"1", "2", "3", "4"}
	for i, r := range got {
		if r.Message != want[i] {
			t.Fatalf("expected order %v, got message %q at index %d", want, r.Message, i)
		}
	}
	if b.Stats.RecordsDropped.Load() != 2 {
		t.Fatalf("expected records_dropped=2, got %d", b.Stats.RecordsDropped.Load())
	}
}

func TestOverflowExpandGrowsCapacity(t *testing.T) {
	b := New(Config{BufferSize: 2, OverflowPolicy: Expand, MaxCapacity: 16})
	for i := 1; i <= 5; i++ {
		b.Enqueue(rec(string(rune('0' + i))))
	}
	got := b.DrainAll()
	if len(got) != 5 {
		t.Fatalf("expected all 5 records retained after expansion, got %d", len(got))
	}
	if b.Stats.RecordsDropped.Load() != 0 {
		t.Fatalf("expected no drops while under MaxCapacity, got %d", b.Stats.RecordsDropped.Load())
	}
}

func TestBackgroundWorkerDrains(t *testing.T) {
	written := make(chan recordmodel.Record, 16)
	b := New(Config{
		BufferSize:       8,
		BatchSize:        4,
		BackgroundWorker: true,
		SinkWrite: func(r recordmodel.Record) {
			written <- r
		},
	})
	defer b.Stop()

	for i := 0; i < 5; i++ {
		b.Enqueue(rec("x"))
	}
	b.Stop()

	close(written)
	count := 0
	for range written {
		count++
	}
	if count != 5 {
		t.Fatalf("expected worker to drain all 5 records, got %d", count)
	}
}

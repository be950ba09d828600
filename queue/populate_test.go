package queue

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/janelia-flyem/voltasks/tasks"
	"github.com/janelia-flyem/voltasks/volume"
)

// memSink records every batch it receives.
type memSink struct {
	mu      sync.Mutex
	batches [][]tasks.Descriptor
	runIDs  map[string]bool
	failAt  int // fail on this Put call (1-based) if > 0
	calls   int
}

func (s *memSink) Put(ctx context.Context, batch []tasks.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return errors.New("sink unavailable")
	}
	if s.runIDs == nil {
		s.runIDs = make(map[string]bool)
	}
	s.runIDs[RunID(ctx)] = true
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) commands() []string {
	var cmds []string
	for _, batch := range s.batches {
		for _, d := range batch {
			cmds = append(cmds, d.Command)
		}
	}
	return cmds
}

func testIterator(t *testing.T) tasks.Iterator {
	var p tasks.Planner
	it, err := p.ChunkOverlaps(context.Background(), tasks.ChunkOverlapsParams{
		SegPath:     "gs://bucket/seg",
		BaseSegPath: "gs://bucket/base",
		Storage:     "gs://bucket/proc",
		Bounds:      volume.Box3d{Max: volume.Point3d{300, 200, 170}},
		Shape:       volume.Point3d{64, 64, 16},
	})
	if err != nil {
		t.Fatalf("unable to make iterator: %v\n", err)
	}
	return it
}

func TestPopulateCoverage(t *testing.T) {
	it := testIterator(t)
	expected := make([]string, 0, it.NumTasks())
	for d := range it.All() {
		expected = append(expected, d.Command)
	}
	sort.Strings(expected)

	for _, opts := range []Options{
		{},
		{Workers: 4},
		{Workers: 3, Slices: 7, BatchSize: 5},
		{Workers: 2, Slices: 50, BatchSize: 1},
	} {
		sink := &memSink{}
		stats, err := Populate(context.Background(), it, sink, opts)
		if err != nil {
			t.Fatalf("populate %+v: %v\n", opts, err)
		}
		got := sink.commands()
		sort.Strings(got)
		if len(got) != len(expected) {
			t.Fatalf("populate %+v: got %d commands, expected %d\n", opts, len(got), len(expected))
		}
		for i := range expected {
			if got[i] != expected[i] {
				t.Fatalf("populate %+v: command mismatch %q vs %q\n", opts, got[i], expected[i])
			}
		}
		if stats.Descriptors != int64(len(expected)) || stats.Batches != int64(len(sink.batches)) {
			t.Errorf("bad stats %s for %d commands in %d batches\n", stats, len(expected), len(sink.batches))
		}
		if len(sink.runIDs) != 1 || sink.runIDs[""] || !sink.runIDs[stats.RunID] {
			t.Errorf("expected every batch tagged with run %s, got %v\n", stats.RunID, sink.runIDs)
		}
		maxBatch := opts.BatchSize
		if maxBatch == 0 {
			maxBatch = DefaultBatchSize
		}
		for _, batch := range sink.batches {
			if len(batch) == 0 || len(batch) > maxBatch {
				t.Errorf("bad batch size %d\n", len(batch))
			}
		}
	}
}

func TestPopulateSliceCount(t *testing.T) {
	it := testIterator(t) // 11 levels
	stats, err := Populate(context.Background(), it, &memSink{}, Options{Workers: 2, Slices: 40, RunID: "fixed"})
	if err != nil {
		t.Fatalf("populate: %v\n", err)
	}
	if stats.Slices != it.Len() {
		t.Errorf("expected slices capped at %d levels, got %d\n", it.Len(), stats.Slices)
	}
	if stats.RunID != "fixed" {
		t.Errorf("expected given run id, got %s\n", stats.RunID)
	}
	if _, err := Populate(context.Background(), it, &memSink{}, Options{Workers: -1}); err == nil {
		t.Errorf("expected error for negative workers\n")
	}
}

func TestPopulateSinkError(t *testing.T) {
	it := testIterator(t)
	sink := &memSink{failAt: 3}
	stats, err := Populate(context.Background(), it, sink, Options{Workers: 2, Slices: 4, BatchSize: 2})
	if err == nil || !strings.Contains(err.Error(), "sink unavailable") {
		t.Fatalf("expected sink error, got %v\n", err)
	}
	if stats.Descriptors >= int64(it.NumTasks()) {
		t.Errorf("expected populate to stop early, delivered %d of %d\n", stats.Descriptors, it.NumTasks())
	}
}

func TestPopulateCancel(t *testing.T) {
	it := testIterator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memSink{}
	if _, err := Populate(ctx, it, sink, Options{Workers: 2}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v\n", err)
	}
	if len(sink.batches) != 0 {
		t.Errorf("expected nothing delivered after cancel, got %d batches\n", len(sink.batches))
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	var p tasks.Planner
	it, err := p.PickEdge("proc", 3)
	if err != nil {
		t.Fatalf("pick_edge: %v\n", err)
	}
	if _, err := Populate(context.Background(), it, sink, Options{BatchSize: 2}); err != nil {
		t.Fatalf("populate: %v\n", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v\n", err)
	}
	expected := "pick_edge proc 0\npick_edge proc 1\npick_edge proc 2\n"
	if buf.String() != expected {
		t.Errorf("expected %q, got %q\n", expected, buf.String())
	}
}

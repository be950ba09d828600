package pipeline

import (
	"errors"
	"testing"

	"github.com/janelia-flyem/voltasks/tasks"
)

func TestSliceLevels(t *testing.T) {
	var p tasks.Planner
	it, err := p.PickEdge("gs://b/proc", 10)
	if err != nil {
		t.Fatalf("pick_edge: %v\n", err)
	}
	tests := []struct {
		offset, count int
		start, end    int
	}{
		{0, -1, 0, 10},
		{3, -1, 3, 10},
		{0, 4, 0, 4},
		{6, 4, 6, 10},
		{10, -1, 10, 10},
		{2, 0, 2, 2},
	}
	for _, tc := range tests {
		sliced, err := SliceLevels(it, tc.offset, tc.count)
		if err != nil {
			t.Fatalf("slice (%d,%d): %v\n", tc.offset, tc.count, err)
		}
		start, end := sliced.Levels()
		if start != tc.start || end != tc.end {
			t.Errorf("slice (%d,%d): expected levels [%d,%d), got [%d,%d)\n",
				tc.offset, tc.count, tc.start, tc.end, start, end)
		}
		if got := len(tasks.Collect(sliced)); got != tc.end-tc.start {
			t.Errorf("slice (%d,%d): expected %d descriptors, got %d\n", tc.offset, tc.count, tc.end-tc.start, got)
		}
	}

	for _, bad := range [][2]int{{11, -1}, {8, 3}, {-1, 2}} {
		_, err := SliceLevels(it, bad[0], bad[1])
		var rangeErr *tasks.RangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("slice (%d,%d): expected RangeError, got %v\n", bad[0], bad[1], err)
		}
	}
}

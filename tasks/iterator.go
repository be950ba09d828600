package tasks

import (
	"fmt"
	"iter"

	"github.com/janelia-flyem/voltasks/volume"
)

// Iterator is a lazy, sliceable sequence of descriptors for one stage.  Its
// identity is a range of levels (z slabs for spatial stages, bucket indices for
// hashed stages); descriptors are recomputed from that range on every traversal.
type Iterator interface {
	// Stage returns the stage whose commands are generated.
	Stage() Stage

	// Len returns the number of levels covered.  It never enumerates.
	Len() int

	// Levels returns the covered level range [start, end).
	Levels() (start, end int)

	// NumTasks returns the number of descriptors a traversal yields.
	NumTasks() int

	// Slice returns an independent iterator over levels
	// [start+offset, start+offset+count).  A *RangeError is returned if the
	// requested range is not within [0, Len()).
	Slice(offset, count int) (Iterator, error)

	// All returns the descriptors in order.  Every traversal yields the same
	// sequence and a consumer may stop at any point.
	All() iter.Seq[Descriptor]
}

// levelRange is the [start, end) identity shared by both iterator kinds.
type levelRange struct {
	start, end int
}

func (r levelRange) Len() int {
	return r.end - r.start
}

func (r levelRange) Levels() (start, end int) {
	return r.start, r.end
}

func (r levelRange) sub(stage Stage, offset, count int) (levelRange, error) {
	if offset < 0 || count < 0 || offset+count > r.Len() {
		return levelRange{}, &RangeError{Stage: stage, Offset: offset, Count: count, Len: r.Len()}
	}
	return levelRange{r.start + offset, r.start + offset + count}, nil
}

// ChunkFormatter returns the command for one chunk of a spatial stage.
type ChunkFormatter func(chunk volume.Box3d) string

// GridIterator generates one descriptor per chunk of a ChunkGrid, where the
// levels are the grid's z slabs.
type GridIterator struct {
	levelRange
	stage  Stage
	grid   volume.ChunkGrid
	format ChunkFormatter
}

// NewGridIterator returns an iterator over every level of the grid.
func NewGridIterator(stage Stage, grid volume.ChunkGrid, format ChunkFormatter) GridIterator {
	return GridIterator{
		levelRange: levelRange{0, grid.NumLevels()},
		stage:      stage,
		grid:       grid,
		format:     format,
	}
}

func (it GridIterator) Stage() Stage {
	return it.stage
}

// Grid returns the chunk grid, whose bounds are already clamped to the volume.
func (it GridIterator) Grid() volume.ChunkGrid {
	return it.grid
}

func (it GridIterator) NumTasks() int {
	return it.grid.NumChunks(it.start, it.end)
}

func (it GridIterator) Slice(offset, count int) (Iterator, error) {
	r, err := it.sub(it.stage, offset, count)
	if err != nil {
		return nil, err
	}
	sliced := it
	sliced.levelRange = r
	return sliced, nil
}

func (it GridIterator) All() iter.Seq[Descriptor] {
	chunks := it.grid.Chunks(it.start, it.end)
	return func(yield func(Descriptor) bool) {
		for chunk := range chunks {
			if !yield(Descriptor{Stage: it.stage, Command: it.format(chunk)}) {
				return
			}
		}
	}
}

func (it GridIterator) String() string {
	return fmt.Sprintf("%s levels [%d,%d) of %s in %s chunks", it.stage, it.start, it.end, it.grid.Bounds, it.grid.Shape)
}

// BucketFormatter returns the command for one hash bucket.
type BucketFormatter func(bucket int) string

// BucketIterator generates one descriptor per bucket index.
type BucketIterator struct {
	levelRange
	stage  Stage
	format BucketFormatter
}

// NewBucketIterator returns an iterator over buckets [0, numBuckets).
func NewBucketIterator(stage Stage, numBuckets int, format BucketFormatter) BucketIterator {
	if numBuckets < 0 {
		numBuckets = 0
	}
	return BucketIterator{
		levelRange: levelRange{0, numBuckets},
		stage:      stage,
		format:     format,
	}
}

// single returns a one-bucket iterator for stages that run as one command.
func single(stage Stage, cmd string) BucketIterator {
	return NewBucketIterator(stage, 1, func(int) string { return cmd })
}

func (it BucketIterator) Stage() Stage {
	return it.stage
}

func (it BucketIterator) NumTasks() int {
	return it.Len()
}

func (it BucketIterator) Slice(offset, count int) (Iterator, error) {
	r, err := it.sub(it.stage, offset, count)
	if err != nil {
		return nil, err
	}
	sliced := it
	sliced.levelRange = r
	return sliced, nil
}

func (it BucketIterator) All() iter.Seq[Descriptor] {
	start, end := it.start, it.end
	return func(yield func(Descriptor) bool) {
		for bucket := start; bucket < end; bucket++ {
			if !yield(Descriptor{Stage: it.stage, Command: it.format(bucket)}) {
				return
			}
		}
	}
}

func (it BucketIterator) String() string {
	return fmt.Sprintf("%s buckets [%d,%d)", it.stage, it.start, it.end)
}

// Partition splits an iterator into at most n contiguous, disjoint iterators
// that together cover its range exactly once.  Part lengths differ by at most
// one and empty parts are omitted.
func Partition(it Iterator, n int) ([]Iterator, error) {
	if n < 1 {
		return nil, fmt.Errorf("cannot partition %s iterator into %d parts", it.Stage(), n)
	}
	total := it.Len()
	if n > total {
		n = total
	}
	parts := make([]Iterator, 0, n)
	var offset int
	for i := 0; i < n; i++ {
		count := total / n
		if i < total%n {
			count++
		}
		part, err := it.Slice(offset, count)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		offset += count
	}
	return parts, nil
}

// Collect traverses the iterator and returns all descriptors.
func Collect(it Iterator) []Descriptor {
	descs := make([]Descriptor, 0, it.NumTasks())
	for d := range it.All() {
		descs = append(descs, d)
	}
	return descs
}

package volume

import (
	"errors"
	"fmt"
	"iter"
)

// ErrBadChunkShape is returned when a chunk shape has a non-positive element.
var ErrBadChunkShape = errors.New("chunk shape must be positive in every dimension")

// ChunkGrid partitions a bounding box into chunks of a nominal shape.  Levels are
// slabs of the box along z, each Shape[2] thick except possibly the last.
// A ChunkGrid is a value and is never modified after construction.
type ChunkGrid struct {
	Bounds Box3d
	Shape  Point3d
}

// NewChunkGrid returns a grid over bounds with the given chunk shape.
func NewChunkGrid(bounds Box3d, shape Point3d) (ChunkGrid, error) {
	if !shape.Positive() {
		return ChunkGrid{}, fmt.Errorf("bad chunk shape %s: %w", shape, ErrBadChunkShape)
	}
	if _, err := NewBox3d(bounds.Min, bounds.Max); err != nil {
		return ChunkGrid{}, err
	}
	return ChunkGrid{Bounds: bounds, Shape: shape}, nil
}

// NumLevels returns the number of z slabs needed to cover the bounds.
func (g ChunkGrid) NumLevels() int {
	return ceilDiv(extent(g.Bounds, 2), g.Shape[2])
}

// LevelBox returns the part of the bounds covered by levels [levelStart, levelEnd).
// The box never extends past the bounds along z.
func (g ChunkGrid) LevelBox(levelStart, levelEnd int) Box3d {
	lb := g.Bounds
	lb.Min[2] = g.levelZ(levelStart)
	lb.Max[2] = g.levelZ(levelEnd)
	if lb.Min[2] > lb.Max[2] {
		lb.Min[2] = lb.Max[2]
	}
	return lb
}

// levelZ returns the z at which the given level starts, clipped to the bounds.
func (g ChunkGrid) levelZ(level int) int32 {
	z := int64(g.Bounds.Min[2]) + int64(level)*int64(g.Shape[2])
	return int32(clip(z, int64(g.Bounds.Min[2]), int64(g.Bounds.Max[2])))
}

func clip(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NumChunks returns how many chunks Chunks would yield for the given levels
// without enumerating them.
func (g ChunkGrid) NumChunks(levelStart, levelEnd int) int {
	lb := g.LevelBox(levelStart, levelEnd)
	n := 1
	for dim := 0; dim < 3; dim++ {
		n *= ceilDiv(extent(lb, dim), g.Shape[dim])
	}
	return n
}

// Chunks returns the chunks covering levels [levelStart, levelEnd) in z, y, x
// order with x varying fastest.  Chunks on the far boundary are clipped to the
// bounds, never padded, and zero-volume candidates are skipped.  The sequence
// can be traversed any number of times and yields the same boxes each time.
func (g ChunkGrid) Chunks(levelStart, levelEnd int) iter.Seq[Box3d] {
	lb := g.LevelBox(levelStart, levelEnd)
	return func(yield func(Box3d) bool) {
		// Strides are walked in int64 so bounds near the int32 limit can't wrap.
		for z := int64(lb.Min[2]); z < int64(lb.Max[2]); z += int64(g.Shape[2]) {
			for y := int64(lb.Min[1]); y < int64(lb.Max[1]); y += int64(g.Shape[1]) {
				for x := int64(lb.Min[0]); x < int64(lb.Max[0]); x += int64(g.Shape[0]) {
					origin := Point3d{int32(x), int32(y), int32(z)}
					chunk := Box3d{Min: origin}
					for dim, v := range [3]int64{x, y, z} {
						chunk.Max[dim] = int32(clip(v+int64(g.Shape[dim]), v, int64(lb.Max[dim])))
					}
					if chunk.Volume() < 1 {
						continue
					}
					if !yield(chunk) {
						return
					}
				}
			}
		}
	}
}

func extent(b Box3d, dim int) int64 {
	return int64(b.Max[dim]) - int64(b.Min[dim])
}

func ceilDiv(extent int64, stride int32) int {
	if extent <= 0 {
		return 0
	}
	return int((extent + int64(stride) - 1) / int64(stride))
}

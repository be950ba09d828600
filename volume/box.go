package volume

import "fmt"

// Box3d is an axis-aligned box of voxels.  Min is included and Max is excluded,
// so a box from (0,0,0) to (64,64,64) holds 64^3 voxels.
type Box3d struct {
	Min Point3d `toml:"min" json:"min"`
	Max Point3d `toml:"max" json:"max"`
}

// NewBox3d returns a box with the given corners.  An error is returned if any
// element of min exceeds the corresponding element of max.
func NewBox3d(min, max Point3d) (Box3d, error) {
	for dim := 0; dim < 3; dim++ {
		if min[dim] > max[dim] {
			return Box3d{}, fmt.Errorf("box min %s exceeds max %s along dim %d", min, max, dim)
		}
	}
	return Box3d{min, max}, nil
}

// BoxFromOffsetSize returns the box starting at offset with the given size.
func BoxFromOffsetSize(offset, size Point3d) (Box3d, error) {
	return NewBox3d(offset, offset.Add(size))
}

// Size returns the extent in each dimension.
func (b Box3d) Size() Point3d {
	return b.Max.Sub(b.Min)
}

// Volume returns the number of voxels in the box, or 0 for degenerate boxes.
func (b Box3d) Volume() int64 {
	size := b.Size()
	if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
		return 0
	}
	return size.Prod()
}

// Empty returns true if the box holds no voxels.
func (b Box3d) Empty() bool {
	return b.Volume() == 0
}

// Contains returns true if the point lies within the box.
func (b Box3d) Contains(p Point3d) bool {
	for dim := 0; dim < 3; dim++ {
		if p[dim] < b.Min[dim] || p[dim] >= b.Max[dim] {
			return false
		}
	}
	return true
}

// Clamp returns the intersection of the receiver with the other box.  If the
// boxes are disjoint, the result is a zero-volume box whose Max equals its Min
// along the disjoint dimensions.
func (b Box3d) Clamp(other Box3d) Box3d {
	min, _ := b.Min.Max(other.Min)
	max, _ := b.Max.Min(other.Max)
	max, _ = max.Max(min)
	return Box3d{min, max}
}

// Equal returns true if both corners match.
func (b Box3d) Equal(other Box3d) bool {
	return b.Min == other.Min && b.Max == other.Max
}

func (b Box3d) String() string {
	return fmt.Sprintf("[%s,%s)", b.Min, b.Max)
}

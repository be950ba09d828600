package volume

import "fmt"

// Point3d is an ordered list of three 32-bit signed integers in (x,y,z) order.
type Point3d [3]int32

// Add returns the addition of two points.
func (p Point3d) Add(x Point3d) Point3d {
	return Point3d{p[0] + x[0], p[1] + x[1], p[2] + x[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(x Point3d) Point3d {
	return Point3d{p[0] - x[0], p[1] - x[1], p[2] - x[2]}
}

// Max returns a Point3d where each of its elements are the maximum of two points' elements.
// The returned bool is true if any element differs from the receiver.
func (p Point3d) Max(x Point3d) (Point3d, bool) {
	var changed bool
	result := p
	for dim := 0; dim < 3; dim++ {
		if p[dim] < x[dim] {
			result[dim] = x[dim]
			changed = true
		}
	}
	return result, changed
}

// Min returns a Point3d where each of its elements are the minimum of two points' elements.
// The returned bool is true if any element differs from the receiver.
func (p Point3d) Min(x Point3d) (Point3d, bool) {
	var changed bool
	result := p
	for dim := 0; dim < 3; dim++ {
		if p[dim] > x[dim] {
			result[dim] = x[dim]
			changed = true
		}
	}
	return result, changed
}

// Prod returns the product of the point elements.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

// Positive returns true if every element is greater than zero.
func (p Point3d) Positive() bool {
	return p[0] > 0 && p[1] > 0 && p[2] > 0
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// Tuple returns the elements joined by single spaces, e.g., "8 8 40", which
// is how coordinate tuples appear in worker command lines.
func (p Point3d) Tuple() string {
	return fmt.Sprintf("%d %d %d", p[0], p[1], p[2])
}

// Point2d is a 2d point, used for face shapes in continuation matching.
type Point2d [2]int32

func (p Point2d) String() string {
	return fmt.Sprintf("(%d,%d)", p[0], p[1])
}

// Tuple returns the elements joined by a single space.
func (p Point2d) Tuple() string {
	return fmt.Sprintf("%d %d", p[0], p[1])
}

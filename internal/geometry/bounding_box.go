package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Axis aligned box described by its min and max corners. A box whose min exceeds its max on any
// axis is invalid; a freshly reset box is invalid until the first point is added.
type BoundingBox struct {
	MinPoint [3]float64
	MaxPoint [3]float64
}

// Builds a reset (invalid) bounding box
func NewBoundingBox() BoundingBox {
	var box BoundingBox
	box.Reset()
	return box
}

// Builds a bounding box from bounds ordered as (xmin, xmax, ymin, ymax, zmin, zmax)
func NewBoundingBoxFromBounds(bounds [6]float64) BoundingBox {
	var box BoundingBox
	box.SetBounds(bounds)
	return box
}

// Computes the bounding box of the given points
func ComputeBounds(points []r3.Vector) BoundingBox {
	box := NewBoundingBox()
	for _, p := range points {
		box.AddVector(p)
	}
	return box
}

func (b *BoundingBox) Reset() {
	b.MinPoint = [3]float64{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}
	b.MaxPoint = [3]float64{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64}
}

func (b *BoundingBox) SetBounds(bounds [6]float64) {
	for i := 0; i < 3; i++ {
		b.MinPoint[i] = bounds[2*i]
		b.MaxPoint[i] = bounds[2*i+1]
	}
}

// Sets the min corner, pushing the max corner out where needed so the box stays valid
func (b *BoundingBox) SetMinPoint(p [3]float64) {
	for i := 0; i < 3; i++ {
		b.MinPoint[i] = p[i]
		if p[i] > b.MaxPoint[i] {
			b.MaxPoint[i] = p[i]
		}
	}
}

// Sets the max corner, pulling the min corner in where needed so the box stays valid
func (b *BoundingBox) SetMaxPoint(p [3]float64) {
	for i := 0; i < 3; i++ {
		b.MaxPoint[i] = p[i]
		if p[i] < b.MinPoint[i] {
			b.MinPoint[i] = p[i]
		}
	}
}

// Returns the bounds ordered as (xmin, xmax, ymin, ymax, zmin, zmax)
func (b BoundingBox) GetBounds() [6]float64 {
	return [6]float64{b.MinPoint[0], b.MaxPoint[0], b.MinPoint[1], b.MaxPoint[1], b.MinPoint[2], b.MaxPoint[2]}
}

func (b *BoundingBox) AddPoint(p [3]float64) {
	for i := 0; i < 3; i++ {
		if p[i] < b.MinPoint[i] {
			b.MinPoint[i] = p[i]
		}
		if p[i] > b.MaxPoint[i] {
			b.MaxPoint[i] = p[i]
		}
	}
}

func (b *BoundingBox) AddVector(v r3.Vector) {
	b.AddPoint([3]float64{v.X, v.Y, v.Z})
}

// Grows the box to contain the other box. Adding a reset box is a no-op.
func (b *BoundingBox) AddBox(other BoundingBox) {
	for i := 0; i < 3; i++ {
		if other.MinPoint[i] < b.MinPoint[i] {
			b.MinPoint[i] = other.MinPoint[i]
		}
		if other.MaxPoint[i] > b.MaxPoint[i] {
			b.MaxPoint[i] = other.MaxPoint[i]
		}
	}
}

// Grows the box to contain the given bounds, ignoring invalid bounds
func (b *BoundingBox) AddBounds(bounds [6]float64) {
	other := NewBoundingBoxFromBounds(bounds)
	if other.IsValid() {
		b.AddBox(other)
	}
}

// Intersects this box with another one in place. Returns false, leaving the box untouched,
// when the boxes do not overlap or either one is invalid.
func (b *BoundingBox) IntersectBox(other BoundingBox) bool {
	if !b.IsValid() || !other.IsValid() {
		return false
	}
	var newMin, newMax [3]float64
	for i := 0; i < 3; i++ {
		if other.MinPoint[i] > b.MaxPoint[i] || other.MaxPoint[i] < b.MinPoint[i] {
			return false
		}
		newMin[i] = math.Max(b.MinPoint[i], other.MinPoint[i])
		newMax[i] = math.Min(b.MaxPoint[i], other.MaxPoint[i])
	}
	b.MinPoint = newMin
	b.MaxPoint = newMax
	return true
}

// Reports whether the two boxes overlap, boundaries included
func (b BoundingBox) Intersects(other BoundingBox) bool {
	if !b.IsValid() || !other.IsValid() {
		return false
	}
	for i := 0; i < 3; i++ {
		if other.MinPoint[i] > b.MaxPoint[i] || other.MaxPoint[i] < b.MinPoint[i] {
			return false
		}
	}
	return true
}

func (b BoundingBox) IntersectsSphere(center [3]float64, radius float64) bool {
	if !b.IsValid() || radius < 0 {
		return false
	}
	return b.Distance2ToPoint(center) <= radius*radius
}

// Reports whether the segment p1-p2 touches the box, boundary included
func (b BoundingBox) IntersectsLine(p1, p2 [3]float64) bool {
	_, _, ok := b.ClipLine(p1, p2)
	return ok
}

// Clips the segment p1-p2 against the box with the slab method. On success returns the
// parametric interval [t0, t1] within [0, 1] where the segment lies inside the box.
func (b BoundingBox) ClipLine(p1, p2 [3]float64) (t0, t1 float64, ok bool) {
	if !b.IsValid() {
		return 0, 0, false
	}
	t0, t1 = 0.0, 1.0
	for i := 0; i < 3; i++ {
		d := p2[i] - p1[i]
		if d == 0 {
			if p1[i] < b.MinPoint[i] || p1[i] > b.MaxPoint[i] {
				return 0, 0, false
			}
			continue
		}
		ta := (b.MinPoint[i] - p1[i]) / d
		tb := (b.MaxPoint[i] - p1[i]) / d
		if ta > tb {
			ta, tb = tb, ta
		}
		if ta > t0 {
			t0 = ta
		}
		if tb < t1 {
			t1 = tb
		}
		if t0 > t1 {
			return 0, 0, false
		}
	}
	return t0, t1, true
}

// Reports whether the point lies in the box, boundary included
func (b BoundingBox) ContainsPoint(p [3]float64) bool {
	return p[0] >= b.MinPoint[0] && p[0] <= b.MaxPoint[0] &&
		p[1] >= b.MinPoint[1] && p[1] <= b.MaxPoint[1] &&
		p[2] >= b.MinPoint[2] && p[2] <= b.MaxPoint[2]
}

// Reports whether the other box lies entirely within this one
func (b BoundingBox) Contains(other BoundingBox) bool {
	if !b.IsValid() || !other.IsValid() {
		return false
	}
	return b.ContainsPoint(other.MinPoint) && b.ContainsPoint(other.MaxPoint)
}

func (b BoundingBox) IsSubsetOf(other BoundingBox) bool {
	return other.Contains(b)
}

// Tests whether the finite line from the box center x to lineEnd stays within the box of half
// extents s. When it escapes, returns the parametric position t along the line, the exit point
// and the exit plane (0..5 = -x,+x,-y,+y,-z,+z).
func ContainsLine(x, s, lineEnd [3]float64) (contained bool, t float64, xInt [3]float64, plane int) {
	t = math.MaxFloat64
	plane = -1
	for i := 0; i < 3; i++ {
		d := lineEnd[i] - x[i]
		if d < -s[i] {
			if tt := -s[i] / d; tt < t {
				t, plane = tt, 2*i
			}
		} else if d > s[i] {
			if tt := s[i] / d; tt < t {
				t, plane = tt, 2*i+1
			}
		}
	}
	if plane < 0 {
		return true, 1.0, lineEnd, -1
	}
	for i := 0; i < 3; i++ {
		xInt[i] = x[i] + t*(lineEnd[i]-x[i])
	}
	// snap the exit coordinate onto the plane to avoid round off
	axis := plane / 2
	if plane%2 == 0 {
		xInt[axis] = x[axis] - s[axis]
	} else {
		xInt[axis] = x[axis] + s[axis]
	}
	return false, t, xInt, plane
}

// Expands the degenerate axes of the box by 1% of its longest edge, or by one unit when all the
// edges have zero length, so that the box gets a non-zero volume.
func (b *BoundingBox) Inflate() {
	maxLen := b.GetMaxLength()
	delta := 0.5
	if maxLen > 0 {
		delta = 0.005 * maxLen
	}
	for i := 0; i < 3; i++ {
		if b.MaxPoint[i]-b.MinPoint[i] <= 0 {
			b.MinPoint[i] -= delta
			b.MaxPoint[i] += delta
		}
	}
}

// Expands every axis by delta on both sides
func (b *BoundingBox) InflateBy(delta float64) {
	for i := 0; i < 3; i++ {
		b.MinPoint[i] -= delta
		b.MaxPoint[i] += delta
	}
}

func (b *BoundingBox) ScaleAboutCenter(s float64) {
	center := b.GetCenter()
	for i := 0; i < 3; i++ {
		b.MinPoint[i] = center[i] + s*(b.MinPoint[i]-center[i])
		b.MaxPoint[i] = center[i] + s*(b.MaxPoint[i]-center[i])
	}
}

func (b BoundingBox) IsValid() bool {
	return b.MinPoint[0] <= b.MaxPoint[0] && b.MinPoint[1] <= b.MaxPoint[1] && b.MinPoint[2] <= b.MaxPoint[2]
}

func (b BoundingBox) Equals(other BoundingBox) bool {
	return b.MinPoint == other.MinPoint && b.MaxPoint == other.MaxPoint
}

func (b BoundingBox) GetCenter() [3]float64 {
	return [3]float64{
		0.5 * (b.MinPoint[0] + b.MaxPoint[0]),
		0.5 * (b.MinPoint[1] + b.MaxPoint[1]),
		0.5 * (b.MinPoint[2] + b.MaxPoint[2]),
	}
}

func (b BoundingBox) GetLengths() [3]float64 {
	return [3]float64{
		b.MaxPoint[0] - b.MinPoint[0],
		b.MaxPoint[1] - b.MinPoint[1],
		b.MaxPoint[2] - b.MinPoint[2],
	}
}

func (b BoundingBox) GetLength(i int) float64 {
	return b.MaxPoint[i] - b.MinPoint[i]
}

func (b BoundingBox) GetDiagonalLength() float64 {
	l := b.GetLengths()
	return math.Sqrt(l[0]*l[0] + l[1]*l[1] + l[2]*l[2])
}

func (b BoundingBox) GetMaxLength() float64 {
	l := b.GetLengths()
	return math.Max(l[0], math.Max(l[1], l[2]))
}

// Returns the number of axes with a non-zero length
func (b BoundingBox) ComputeInnerDimension() int {
	l := b.GetLengths()
	tol := 1e-12 * math.Max(1.0, b.GetMaxLength())
	dim := 0
	for i := 0; i < 3; i++ {
		if l[i] > tol {
			dim++
		}
	}
	return dim
}

// Squared distance from the point to the box, zero when the point is inside
func (b BoundingBox) Distance2ToPoint(p [3]float64) float64 {
	dist2 := 0.0
	for i := 0; i < 3; i++ {
		if p[i] < b.MinPoint[i] {
			d := b.MinPoint[i] - p[i]
			dist2 += d * d
		} else if p[i] > b.MaxPoint[i] {
			d := p[i] - b.MaxPoint[i]
			dist2 += d * d
		}
	}
	return dist2
}

// Returns the point of the box closest to p
func (b BoundingBox) ClampPoint(p [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = math.Min(math.Max(p[i], b.MinPoint[i]), b.MaxPoint[i])
	}
	return out
}

// Partitions the box into close to cubical sub-boxes totalling at most totalBins. Returns the
// bounds the partition should be laid over (degenerate axes get a non-zero width), the
// divisions per axis and their product.
func (b BoundingBox) ComputeDivisions(totalBins int64) ([6]float64, [3]int, int64) {
	if totalBins <= 0 {
		totalBins = 1
	}

	lengths := b.GetLengths()
	numNonZero := 0
	maxAxis := -1
	maxLen := 0.0
	var nonZero [3]bool
	for i := 0; i < 3; i++ {
		if lengths[i] > 0 {
			nonZero[i] = true
			numNonZero++
			if lengths[i] > maxLen {
				maxLen = lengths[i]
				maxAxis = i
			}
		}
	}

	var bounds [6]float64
	if numNonZero == 0 {
		for i := 0; i < 3; i++ {
			bounds[2*i] = b.MinPoint[i] - 0.5
			bounds[2*i+1] = b.MaxPoint[i] + 0.5
		}
		return bounds, [3]int{1, 1, 1}, 1
	}

	// divisions roughly proportional to the edge lengths
	f := float64(totalBins)
	for i := 0; i < 3; i++ {
		if nonZero[i] {
			f /= lengths[i] / maxLen
		}
	}
	f = math.Pow(f, 1.0/float64(numNonZero))

	var divs [3]int
	for i := 0; i < 3; i++ {
		divs[i] = 1
		if nonZero[i] {
			d := math.Floor(f * lengths[i] / maxLen)
			if d > math.MaxInt32 {
				d = math.MaxInt32
			}
			if d > 1 {
				divs[i] = int(d)
			}
		}
	}

	// floating point can overshoot the target by a bin or two
	for int64(divs[0])*int64(divs[1])*int64(divs[2]) > totalBins {
		largest := 0
		for i := 1; i < 3; i++ {
			if divs[i] > divs[largest] {
				largest = i
			}
		}
		if divs[largest] == 1 {
			break
		}
		divs[largest]--
	}

	delta := 0.5 * lengths[maxAxis] / float64(divs[maxAxis])
	for i := 0; i < 3; i++ {
		if nonZero[i] {
			bounds[2*i] = b.MinPoint[i]
			bounds[2*i+1] = b.MaxPoint[i]
		} else {
			bounds[2*i] = b.MinPoint[i] - delta
			bounds[2*i+1] = b.MaxPoint[i] + delta
		}
	}

	return bounds, divs, int64(divs[0]) * int64(divs[1]) * int64(divs[2])
}

// Converts a vector into the array form used by the box arithmetic
func ToArray(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func ToVector(p [3]float64) r3.Vector {
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}
}

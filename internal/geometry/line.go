package geometry

// Squared distance from x to the infinite line through p1 and p2. Also returns the parametric
// coordinate t of the projection of x (t=0 at p1, t=1 at p2) and the projected point itself.
// A degenerate line collapses to the point p1.
func DistanceToLine(x, p1, p2 [3]float64) (dist2 float64, t float64, closest [3]float64) {
	var d, w [3]float64
	denom := 0.0
	for i := 0; i < 3; i++ {
		d[i] = p2[i] - p1[i]
		w[i] = x[i] - p1[i]
		denom += d[i] * d[i]
	}
	if denom > 0 {
		t = (w[0]*d[0] + w[1]*d[1] + w[2]*d[2]) / denom
	}
	for i := 0; i < 3; i++ {
		closest[i] = p1[i] + t*d[i]
	}
	return Distance2(x, closest), t, closest
}

// Same as DistanceToLine but the projection is clamped to the segment p1-p2
func DistanceToSegment(x, p1, p2 [3]float64) (dist2 float64, t float64, closest [3]float64) {
	_, t, _ = DistanceToLine(x, p1, p2)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	for i := 0; i < 3; i++ {
		closest[i] = p1[i] + t*(p2[i]-p1[i])
	}
	return Distance2(x, closest), t, closest
}

func Distance2(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return dx*dx + dy*dy + dz*dz
}

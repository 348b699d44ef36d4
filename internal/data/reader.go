package data

// PointReader reads point coordinates as arrays. Point sets backed by flat float64 or float32
// slices are read directly, others through PointSet.Point.
type PointReader struct {
	ps  PointSet
	f64 []float64
	f32 []float32
}

func NewPointReader(ps PointSet) PointReader {
	r := PointReader{ps: ps}
	if s, ok := ps.(Float64Storage); ok {
		r.f64 = s.Float64Coordinates()
	} else if s, ok := ps.(Float32Storage); ok {
		r.f32 = s.Float32Coordinates()
	}
	return r
}

func (r PointReader) Point(id int) [3]float64 {
	if r.f64 != nil {
		return [3]float64{r.f64[3*id], r.f64[3*id+1], r.f64[3*id+2]}
	}
	if r.f32 != nil {
		return [3]float64{float64(r.f32[3*id]), float64(r.f32[3*id+1]), float64(r.f32[3*id+2])}
	}
	p := r.ps.Point(id)
	return [3]float64{p.X, p.Y, p.Z}
}

// Reports whether coordinates are read without going through PointSet.Point
func (r PointReader) IsDirect() bool {
	return r.f64 != nil || r.f32 != nil
}

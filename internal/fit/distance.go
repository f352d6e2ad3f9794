package fit

import "math"

// Distances returns the planar distance from c to every control point,
// index-aligned with the collection.
func Distances(points *Points, c Center) []float64 {
	d := make([]float64, len(points.pts))
	for i, cp := range points.pts {
		d[i] = math.Hypot(cp.X-c.X, cp.Y-c.Y)
	}
	return d
}

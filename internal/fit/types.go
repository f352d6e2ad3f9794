package fit

import (
	"fmt"
	"math"
)

// MinPoints is the smallest control-point set a reconstruction accepts.
const MinPoints = 3

// ControlPoint is a sampled location on a surviving surface remnant:
// planar coordinates X, Y and elevation Z in meters.
type ControlPoint struct {
	X, Y, Z float64
}

// Center is a candidate apex location in the control points' planar system.
type Center struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector returns the center as an optimizer parameter vector.
func (c Center) Vector() []float64 {
	return []float64{c.X, c.Y}
}

// CenterFromVector decodes an optimizer parameter vector.
func CenterFromVector(v []float64) Center {
	return Center{X: v[0], Y: v[1]}
}

// Points is an immutable, ordered control-point collection. The zero value
// is empty; build one with NewPoints.
type Points struct {
	pts []ControlPoint
}

// NewPoints copies the x, y, z columns into a Points collection.
func NewPoints(xs, ys, zs []float64) (*Points, error) {
	if len(xs) != len(ys) || len(xs) != len(zs) {
		return nil, &InvalidConfigurationError{
			Field:  "points",
			Reason: fmt.Sprintf("column lengths differ (x=%d, y=%d, z=%d)", len(xs), len(ys), len(zs)),
		}
	}
	if len(xs) < MinPoints {
		return nil, &DegenerateInputError{
			Reason: fmt.Sprintf("need at least %d control points, got %d", MinPoints, len(xs)),
		}
	}

	pts := make([]ControlPoint, len(xs))
	distinct := false
	for i := range xs {
		if !finite(xs[i]) || !finite(ys[i]) || !finite(zs[i]) {
			return nil, &InvalidConfigurationError{
				Field:  "points",
				Reason: fmt.Sprintf("non-finite coordinate at index %d", i),
			}
		}
		pts[i] = ControlPoint{X: xs[i], Y: ys[i], Z: zs[i]}
		if xs[i] != xs[0] || ys[i] != ys[0] {
			distinct = true
		}
	}
	if !distinct {
		return nil, &DegenerateInputError{Reason: "all control points share one horizontal position"}
	}

	return &Points{pts: pts}, nil
}

// Len returns the number of control points.
func (p *Points) Len() int {
	return len(p.pts)
}

// At returns the i-th control point.
func (p *Points) At(i int) ControlPoint {
	return p.pts[i]
}

// Columns returns copies of the x, y and z columns.
func (p *Points) Columns() (xs, ys, zs []float64) {
	xs = make([]float64, len(p.pts))
	ys = make([]float64, len(p.pts))
	zs = make([]float64, len(p.pts))
	for i, cp := range p.pts {
		xs[i], ys[i], zs[i] = cp.X, cp.Y, cp.Z
	}
	return xs, ys, zs
}

// Elevations returns a copy of the z column.
func (p *Points) Elevations() []float64 {
	zs := make([]float64, len(p.pts))
	for i, cp := range p.pts {
		zs[i] = cp.Z
	}
	return zs
}

// Centroid returns the mean horizontal position of the points.
func (p *Points) Centroid() Center {
	var sx, sy float64
	for _, cp := range p.pts {
		sx += cp.X
		sy += cp.Y
	}
	n := float64(len(p.pts))
	return Center{X: sx / n, Y: sy / n}
}

// Bounds is an axis-aligned search window for a candidate center.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// BoundingBox returns the horizontal extent of the points, grown on every
// side by margin times the larger side length.
func (p *Points) BoundingBox(margin float64) Bounds {
	b := Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, cp := range p.pts {
		b.MinX = math.Min(b.MinX, cp.X)
		b.MinY = math.Min(b.MinY, cp.Y)
		b.MaxX = math.Max(b.MaxX, cp.X)
		b.MaxY = math.Max(b.MaxY, cp.Y)
	}
	pad := margin * math.Max(b.MaxX-b.MinX, b.MaxY-b.MinY)
	b.MinX -= pad
	b.MinY -= pad
	b.MaxX += pad
	b.MaxY += pad
	return b
}

// Contains reports whether c lies inside the bounds.
func (b Bounds) Contains(c Center) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Y >= b.MinY && c.Y <= b.MaxY
}

// Clamp moves c to the nearest point inside the bounds.
func (b Bounds) Clamp(c Center) Center {
	return Center{
		X: clamp(c.X, b.MinX, b.MaxX),
		Y: clamp(c.Y, b.MinY, b.MaxY),
	}
}

// FromUnit maps a point of the unit square onto the bounds.
func (b Bounds) FromUnit(u []float64) Center {
	return Center{
		X: b.MinX + u[0]*(b.MaxX-b.MinX),
		Y: b.MinY + u[1]*(b.MaxY-b.MinY),
	}
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

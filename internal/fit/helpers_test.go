package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// fivePointCone places five points at distances 100..500 from the origin
// with elevation falling linearly from 900 to 500.
func fivePointCone(t *testing.T) *Points {
	t.Helper()

	pts, err := NewPoints(
		[]float64{100, 0, -300, 0, 300},
		[]float64{0, 200, 0, -400, 400},
		[]float64{900, 800, 700, 600, 500},
	)
	require.NoError(t, err)
	return pts
}

// spiralCone samples a straight-sided cone with apex at (cx, cy) along a
// golden-angle spiral, so no two points share a distance from the apex.
func spiralCone(t *testing.T, cx, cy float64, n int) *Points {
	t.Helper()

	golden := math.Pi * (3 - math.Sqrt(5))
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	for k := 0; k < n; k++ {
		r := 100 + 15*float64(k)
		theta := golden * float64(k)
		xs[k] = cx + r*math.Cos(theta)
		ys[k] = cy + r*math.Sin(theta)
		zs[k] = 2500 - 0.8*r
	}

	pts, err := NewPoints(xs, ys, zs)
	require.NoError(t, err)
	return pts
}

// ringCone samples a cone on concentric rings of twelve points each. Ring
// points use 3-4-5 offsets so every distance from the apex is exact.
func ringCone(t *testing.T, cx, cy float64) *Points {
	t.Helper()

	var xs, ys, zs []float64
	for r := 200; r <= 2000; r += 200 {
		a, b, c := float64(3*r/5), float64(4*r/5), float64(r)
		offsets := [][2]float64{
			{c, 0}, {-c, 0}, {0, c}, {0, -c},
			{a, b}, {-a, b}, {a, -b}, {-a, -b},
			{b, a}, {-b, a}, {b, -a}, {-b, -a},
		}
		for _, o := range offsets {
			xs = append(xs, cx+o[0])
			ys = append(ys, cy+o[1])
			zs = append(zs, 2500-0.8*c)
		}
	}

	pts, err := NewPoints(xs, ys, zs)
	require.NoError(t, err)
	return pts
}

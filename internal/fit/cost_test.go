package fit

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistances(t *testing.T) {
	pts := fivePointCone(t)

	d := Distances(pts, Center{})
	assert.Equal(t, []float64{100, 200, 300, 400, 500}, d)

	onPoint := Distances(pts, Center{X: 0, Y: 200})
	assert.Equal(t, 0.0, onPoint[1])
	for i, v := range onPoint {
		if i != 1 {
			assert.Greater(t, v, 0.0)
		}
	}
}

func TestDistancesNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pts := spiralCone(t, 0, 0, 50)

	for i := 0; i < 100; i++ {
		c := Center{X: rng.Float64()*4000 - 2000, Y: rng.Float64()*4000 - 2000}
		for j, d := range Distances(pts, c) {
			p := pts.At(j)
			require.GreaterOrEqual(t, d, 0.0)
			require.Equal(t, d == 0, p.X == c.X && p.Y == c.Y)
		}
	}
}

func TestRegressionLossPerfectLine(t *testing.T) {
	loss, err := RegressionLoss(
		[]float64{100, 200, 300, 400, 500},
		[]float64{900, 800, 700, 600, 500},
	)
	require.NoError(t, err)
	assert.InDelta(t, 0, loss, 1e-12)
}

func TestRegressionLossNoisyLine(t *testing.T) {
	loss, err := RegressionLoss(
		[]float64{1, 2, 3, 4, 5},
		[]float64{10, 7, 9, 4, 5},
	)
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)
	assert.Less(t, loss, 1.0)
}

func TestRankCorrelationLoss(t *testing.T) {
	tests := []struct {
		name       string
		distances  []float64
		elevations []float64
		min, max   float64
	}{
		{
			name:       "perfect linear decrease",
			distances:  []float64{100, 200, 300, 400, 500},
			elevations: []float64{900, 800, 700, 600, 500},
			min:        0,
			max:        1e-12,
		},
		{
			name:       "monotonic but curved decrease",
			distances:  []float64{1, 2, 3, 4, 5},
			elevations: []float64{100, 50, 20, 10, 9},
			min:        0,
			max:        1e-2,
		},
		{
			name:       "increasing",
			distances:  []float64{1, 2, 3, 4, 5},
			elevations: []float64{1, 2, 3, 4, 5},
			min:        2 - 1e-9,
			max:        2 + 1e-2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loss, err := RankCorrelationLoss(tt.distances, tt.elevations)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, loss, tt.min)
			assert.LessOrEqual(t, loss, tt.max)
		})
	}
}

func TestRankCorrelationLossPrefersLinearWithinRanking(t *testing.T) {
	d := []float64{1, 2, 3, 4, 5}
	linear, err := RankCorrelationLoss(d, []float64{50, 40, 30, 20, 10})
	require.NoError(t, err)
	curved, err := RankCorrelationLoss(d, []float64{50, 20, 15, 12, 10})
	require.NoError(t, err)

	assert.Less(t, linear, curved)
	// Same ranking: the Spearman term is identical, only the tie-break differs.
	assert.Less(t, curved-linear, 1/(4*5*24.0)*2+1e-12)
}

func TestLossAtApex(t *testing.T) {
	for _, m := range Methods {
		t.Run(m.String(), func(t *testing.T) {
			loss, err := Loss(m, ringCone(t, 1000, 2000), Center{X: 1000, Y: 2000})
			require.NoError(t, err)
			assert.InDelta(t, 0, loss, 1e-9)
		})
	}
}

func TestLossDeterministic(t *testing.T) {
	pts := spiralCone(t, 0, 0, 200)
	c := Center{X: 37.5, Y: -12.25}

	for _, m := range Methods {
		first, err := Loss(m, pts, c)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := Loss(m, pts, c)
			require.NoError(t, err)
			assert.Equal(t, math.Float64bits(first), math.Float64bits(again))
		}
	}
}

func TestLossDegenerate(t *testing.T) {
	// Every point sits 100 units from the origin.
	pts, err := NewPoints(
		[]float64{100, 0, -100, 0},
		[]float64{0, 100, 0, -100},
		[]float64{10, 20, 30, 40},
	)
	require.NoError(t, err)

	for _, m := range Methods {
		_, err := Loss(m, pts, Center{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDegenerateInput), "%s: got %v", m, err)
	}
}

func TestLossFlatElevation(t *testing.T) {
	_, err := RankCorrelationLoss([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.True(t, errors.Is(err, ErrDegenerateInput))

	_, err = RegressionLoss([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.True(t, errors.Is(err, ErrDegenerateInput))
}

func TestRanksAverageTies(t *testing.T) {
	assert.Equal(t, []float64{2.5, 1, 2.5, 4}, ranks([]float64{20, 10, 20, 30}))
	assert.Equal(t, []float64{2, 2, 2}, ranks([]float64{7, 7, 7}))
	assert.Equal(t, []float64{3, 2, 1}, ranks([]float64{3, 2, 1}))
}

func TestSpearman(t *testing.T) {
	rho, err := Spearman([]float64{1, 2, 3, 4}, []float64{10, 100, 1000, 10000})
	require.NoError(t, err)
	assert.InDelta(t, 1, rho, 1e-12)

	rho, err = Spearman([]float64{1, 2, 3, 4}, []float64{4, 3, 2, 1})
	require.NoError(t, err)
	assert.InDelta(t, -1, rho, 1e-12)
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods {
		parsed, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	m, err := ParseMethod("spearman")
	require.NoError(t, err)
	assert.Equal(t, MethodRankCorrelation, m)

	_, err = ParseMethod("kendall")
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

package fit

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Method selects the criterion a center is scored with.
type Method int

const (
	// MethodRegression scores the least-squares line elevation ≈ a·distance + b.
	MethodRegression Method = iota
	// MethodRankCorrelation scores the Spearman rank correlation between
	// distance and elevation.
	MethodRankCorrelation
)

// Methods lists every scoring method in reporting order.
var Methods = []Method{MethodRegression, MethodRankCorrelation}

func (m Method) String() string {
	switch m {
	case MethodRegression:
		return "regression"
	case MethodRankCorrelation:
		return "rank-correlation"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod accepts the names produced by String plus the short forms
// "lr" and "spearman".
func ParseMethod(s string) (Method, error) {
	switch s {
	case "regression", "lr":
		return MethodRegression, nil
	case "rank-correlation", "spearman", "sp":
		return MethodRankCorrelation, nil
	}
	return 0, &InvalidConfigurationError{Field: "method", Reason: fmt.Sprintf("unknown method %q", s)}
}

func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// LossFunc scores a (distance, elevation) series; lower is better.
type LossFunc func(distances, elevations []float64) (float64, error)

// LossFunc returns the scorer for m.
func (m Method) LossFunc() LossFunc {
	if m == MethodRankCorrelation {
		return RankCorrelationLoss
	}
	return RegressionLoss
}

// Loss evaluates method m for a candidate center against the full
// control-point set.
func Loss(m Method, points *Points, c Center) (float64, error) {
	return m.LossFunc()(Distances(points, c), points.Elevations())
}

// RegressionLoss fits elevation ≈ a·distance + b by ordinary least squares
// and returns 1 − R², computed as SSres/SStot. It is 0 only for a perfect
// linear fit.
func RegressionLoss(distances, elevations []float64) (float64, error) {
	if err := checkSeries(distances, elevations); err != nil {
		return 0, err
	}

	alpha, beta := stat.LinearRegression(distances, elevations, nil, false)
	mean := stat.Mean(elevations, nil)

	var ssRes, ssTot float64
	for i, d := range distances {
		r := elevations[i] - (alpha + beta*d)
		ssRes += r * r
		dz := elevations[i] - mean
		ssTot += dz * dz
	}
	return ssRes / ssTot, nil
}

// RankCorrelationLoss returns (1 + ρs) + τ·(1 + ρp), where ρs is Spearman's
// coefficient between distance and elevation (ties take their average
// rank), ρp is the Pearson coefficient of the raw series and
// τ = 1/(4·n·(n²−1)).
//
// The Spearman term is piecewise constant in the center position. The
// Pearson term is scaled below the smallest step the Spearman term can take
// between tie-free rankings, so it only orders centers that share a ranking.
// The loss is 0 for a perfectly linear decrease and just above 2 for a
// perfectly increasing relationship.
func RankCorrelationLoss(distances, elevations []float64) (float64, error) {
	if err := checkSeries(distances, elevations); err != nil {
		return 0, err
	}

	n := float64(len(distances))
	rs := clamp(stat.Correlation(ranks(distances), ranks(elevations), nil), -1, 1)
	rp := clamp(stat.Correlation(distances, elevations, nil), -1, 1)
	tau := 1 / (4 * n * (n*n - 1))

	return (1 + rs) + tau*(1+rp), nil
}

// Spearman returns Spearman's rank correlation between x and y using
// average ranks for ties.
func Spearman(x, y []float64) (float64, error) {
	if err := checkSeries(x, y); err != nil {
		return 0, err
	}
	return stat.Correlation(ranks(x), ranks(y), nil), nil
}

// ranks assigns 1-based ranks to x; tied values share the mean of the ranks
// they span.
func ranks(x []float64) []float64 {
	n := len(x)
	sorted := make([]float64, n)
	copy(sorted, x)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	floats.Argsort(sorted, idx)

	r := make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && sorted[j] == sorted[i] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			r[idx[k]] = avg
		}
		i = j
	}
	return r
}

func checkSeries(distances, elevations []float64) error {
	if len(distances) != len(elevations) {
		return &InvalidConfigurationError{
			Field:  "series",
			Reason: fmt.Sprintf("length mismatch (%d distances, %d elevations)", len(distances), len(elevations)),
		}
	}
	if len(distances) < MinPoints {
		return &DegenerateInputError{Reason: fmt.Sprintf("need at least %d samples, got %d", MinPoints, len(distances))}
	}
	if !hasSpread(distances) {
		return &DegenerateInputError{Reason: "all control points are equidistant from the center"}
	}
	if !hasSpread(elevations) {
		return &DegenerateInputError{Reason: "all control points share one elevation"}
	}
	return nil
}

func hasSpread(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return true
		}
	}
	return false
}

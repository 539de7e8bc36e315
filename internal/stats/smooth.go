package stats

import (
	"fmt"
	"math"

	"gossipsim/internal/model"
)

const (
	DefaultSmoothingWindow = 11
	DefaultSmoothingDegree = 3

	minSmoothingLength = 5
)

// SmoothingConfig selects the Savitzky-Golay window and polynomial degree.
// A zero window and a nil degree select the defaults; degree 0 is a moving
// average.
type SmoothingConfig struct {
	Window int  `json:"window"`
	Degree *int `json:"degree,omitempty"`
}

// SmoothingDegree returns a degree for SmoothingConfig.Degree.
func SmoothingDegree(d int) *int {
	return &d
}

type smoothing struct {
	window int
	degree int
}

func (c SmoothingConfig) normalized() (smoothing, error) {
	if c.Window < 0 {
		return smoothing{}, fmt.Errorf("smoothing window must be >= 0, got %d", c.Window)
	}
	out := smoothing{window: c.Window, degree: DefaultSmoothingDegree}
	if c.Degree != nil {
		if *c.Degree < 0 {
			return smoothing{}, fmt.Errorf("smoothing degree must be >= 0, got %d", *c.Degree)
		}
		out.degree = *c.Degree
	}
	if out.window == 0 {
		out.window = DefaultSmoothingWindow
	}
	return out, nil
}

// clampWindow fits the configured window and degree to a series of length n
// so the filter preconditions always hold: odd window, at least 5, no longer
// than n, degree below the window. Only meaningful for n >= 5.
func clampWindow(n int, c smoothing) (window, degree int) {
	window = min(c.window, n)
	if window%2 == 0 {
		window--
	}
	if window < minSmoothingLength {
		window = minSmoothingLength
	}
	degree = c.degree
	if degree >= window {
		degree = window - 2
	}
	return window, degree
}

// Smooth applies a guarded Savitzky-Golay pass. Series shorter than 5 are
// returned unchanged. Edge samples take the value of the polynomial fitted
// to the first or last full window.
func Smooth(curve []float64, cfg SmoothingConfig) ([]float64, error) {
	c, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	n := len(curve)
	out := make([]float64, n)
	if n < minSmoothingLength {
		copy(out, curve)
		return out, nil
	}

	window, degree := clampWindow(n, c)
	half := window / 2

	center, err := savgolWeights(window, degree, half)
	if err != nil {
		return nil, err
	}
	for i := half; i < n-half; i++ {
		out[i] = dot(center, curve[i-half:i+half+1])
	}

	head := curve[:window]
	tail := curve[n-window:]
	for k := 0; k < half; k++ {
		w, err := savgolWeights(window, degree, k)
		if err != nil {
			return nil, err
		}
		out[k] = dot(w, head)

		w, err = savgolWeights(window, degree, window-1-k)
		if err != nil {
			return nil, err
		}
		out[n-1-k] = dot(w, tail)
	}
	return out, nil
}

// Deviation returns |mean - smoothed| elementwise.
func Deviation(mean, smoothed []float64) ([]float64, error) {
	if len(mean) != len(smoothed) {
		return nil, fmt.Errorf("curve length mismatch: mean=%d smoothed=%d", len(mean), len(smoothed))
	}
	out := make([]float64, len(mean))
	for i := range mean {
		out[i] = math.Abs(mean[i] - smoothed[i])
	}
	return out, nil
}

// MaxDeviation reports the first sample with the largest deviation, with the
// mean expressed as a percentage.
func MaxDeviation(times, mean, deviation []float64) (model.DeviationPoint, error) {
	if len(times) == 0 || len(times) != len(mean) || len(mean) != len(deviation) {
		return model.DeviationPoint{}, fmt.Errorf("curve length mismatch: times=%d mean=%d deviation=%d", len(times), len(mean), len(deviation))
	}
	idx := 0
	for i := 1; i < len(deviation); i++ {
		if deviation[i] > deviation[idx] {
			idx = i
		}
	}
	return model.DeviationPoint{
		Time:      times[idx],
		Percent:   mean[idx] * 100.0,
		Deviation: deviation[idx],
	}, nil
}

// savgolWeights returns the weights that evaluate, at sample pos of a window,
// the least-squares polynomial of the given degree fitted to that window.
// The weights are row pos of the projection onto the polynomial space, built
// from an orthonormal basis of the sampled monomials so high degrees stay
// well conditioned.
func savgolWeights(window, degree, pos int) ([]float64, error) {
	half := window / 2
	scale := float64(max(half, 1))
	xs := make([]float64, window)
	for j := range xs {
		xs[j] = float64(j-half) / scale
	}

	weights := make([]float64, window)
	basis := make([][]float64, 0, degree+1)
	for k := 0; k <= degree; k++ {
		q := make([]float64, window)
		if k == 0 {
			for j := range q {
				q[j] = 1
			}
		} else {
			prev := basis[k-1]
			for j := range q {
				q[j] = xs[j] * prev[j]
			}
		}
		// Orthogonalize twice; one pass loses orthogonality at high degree.
		for pass := 0; pass < 2; pass++ {
			for _, b := range basis {
				c := dot(b, q)
				for j := range q {
					q[j] -= c * b[j]
				}
			}
		}
		norm := math.Sqrt(dot(q, q))
		if norm == 0 || math.IsNaN(norm) {
			return nil, fmt.Errorf("savgol window=%d degree=%d: degenerate basis at degree %d", window, degree, k)
		}
		for j := range q {
			q[j] /= norm
		}
		basis = append(basis, q)
		for j := range weights {
			weights[j] += q[j] * q[pos]
		}
	}
	return weights, nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

package stats

import "fmt"

// Thresholds are the aware fractions whose first crossing is reported.
var Thresholds = []float64{0.10, 0.50, 0.90, 0.99}

// FirstCrossing returns the earliest sample time at which curve >= threshold.
// Times are sample-quantized; there is no interpolation between samples.
func FirstCrossing(times, curve []float64, threshold float64) (float64, bool) {
	for i, v := range curve {
		if v >= threshold {
			return times[i], true
		}
	}
	return 0, false
}

type Crossings struct {
	T10     *float64
	T50     *float64
	T90     *float64
	T99     *float64
	T10To90 *float64
}

func CrossingTimes(times, curve []float64) (Crossings, error) {
	if len(times) != len(curve) {
		return Crossings{}, fmt.Errorf("curve length mismatch: times=%d curve=%d", len(times), len(curve))
	}
	found := make([]*float64, len(Thresholds))
	for i, thr := range Thresholds {
		if t, ok := FirstCrossing(times, curve, thr); ok {
			found[i] = &t
		}
	}
	c := Crossings{T10: found[0], T50: found[1], T90: found[2], T99: found[3]}
	if c.T10 != nil && c.T90 != nil {
		spread := *c.T90 - *c.T10
		c.T10To90 = &spread
	}
	return c, nil
}

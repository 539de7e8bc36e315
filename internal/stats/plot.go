package stats

import (
	"fmt"

	"gossipsim/internal/model"
)

type PlotPoint struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

// PlotSeries carries everything an external plotter needs to draw the
// convergence chart: a mean +/- std band, the mean and smoothed curves and
// the max-deviation marker.
type PlotSeries struct {
	XLabel   string    `json:"x_label"`
	YLabel   string    `json:"y_label"`
	YMin     float64   `json:"y_min"`
	YMax     float64   `json:"y_max"`
	Times    []float64 `json:"times"`
	Mean     []float64 `json:"mean"`
	Lower    []float64 `json:"band_lower"`
	Upper    []float64 `json:"band_upper"`
	Smoothed []float64 `json:"smoothed"`
	MaxDev   PlotPoint `json:"max_dev"`
}

func BuildPlotSeries(metrics model.CurveMetrics) PlotSeries {
	lower := make([]float64, len(metrics.Mean))
	upper := make([]float64, len(metrics.Mean))
	for i, m := range metrics.Mean {
		var s float64
		if i < len(metrics.Std) {
			s = metrics.Std[i]
		}
		lower[i] = m - s
		upper[i] = m + s
	}
	point := metrics.MaxDeviation
	return PlotSeries{
		XLabel:   "time (s)",
		YLabel:   "aware fraction",
		YMin:     -0.02,
		YMax:     1.02,
		Times:    append([]float64(nil), metrics.Times...),
		Mean:     append([]float64(nil), metrics.Mean...),
		Lower:    lower,
		Upper:    upper,
		Smoothed: append([]float64(nil), metrics.Smoothed...),
		MaxDev: PlotPoint{
			Time:  point.Time,
			Value: point.Percent / 100.0,
			Label: fmt.Sprintf("max dev at %.1f%% (t=%ss)", point.Percent, formatFloat(point.Time)),
		},
	}
}

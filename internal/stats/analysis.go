package stats

import (
	"fmt"

	"gossipsim/internal/model"
)

// Analyze aligns the raw records of one configuration and derives the full
// convergence metrics. It returns ErrNoRecords for an empty record set.
func Analyze(records []model.Record, cfg SmoothingConfig) (model.CurveMetrics, error) {
	if len(records) == 0 {
		return model.CurveMetrics{}, ErrNoRecords
	}

	m, err := BuildMatrix(records)
	if err != nil {
		return model.CurveMetrics{}, fmt.Errorf("aggregate: %w", err)
	}
	m.FillGaps()
	mean, std, err := MeanStd(m)
	if err != nil {
		return model.CurveMetrics{}, fmt.Errorf("aggregate: %w", err)
	}

	smoothed, err := Smooth(mean, cfg)
	if err != nil {
		return model.CurveMetrics{}, fmt.Errorf("smooth: %w", err)
	}
	deviation, err := Deviation(mean, smoothed)
	if err != nil {
		return model.CurveMetrics{}, fmt.Errorf("smooth: %w", err)
	}
	point, err := MaxDeviation(m.Times, mean, deviation)
	if err != nil {
		return model.CurveMetrics{}, fmt.Errorf("smooth: %w", err)
	}

	crossings, err := CrossingTimes(m.Times, mean)
	if err != nil {
		return model.CurveMetrics{}, fmt.Errorf("thresholds: %w", err)
	}

	return model.CurveMetrics{
		Times:        append([]float64(nil), m.Times...),
		Mean:         mean,
		Std:          std,
		Smoothed:     smoothed,
		Deviation:    deviation,
		MaxDeviation: point,
		T10:          crossings.T10,
		T50:          crossings.T50,
		T90:          crossings.T90,
		T99:          crossings.T99,
		T10To90:      crossings.T10To90,
	}, nil
}

package model

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

type SimulationParams struct {
	Nodes    int     `json:"nodes"`
	Fanout   int     `json:"fanout"`
	Loss     float64 `json:"loss"`
	Interval float64 `json:"interval"`
	MaxTime  float64 `json:"max_time"`
	Runs     int     `json:"runs"`
	Workers  int     `json:"workers"`
	Seed     int64   `json:"seed"`
}

// MaxSteps is the number of rounds a trial may record.
func (p SimulationParams) MaxSteps() int {
	return int(math.Floor(p.MaxTime / p.Interval))
}

// Validate rejects parameter sets that would produce undefined numerical
// behavior. It must pass before any trial executes.
func (p SimulationParams) Validate() error {
	if p.Nodes < 1 {
		return fmt.Errorf("%w: nodes must be >= 1, got %d", ErrInvalidConfig, p.Nodes)
	}
	if p.Fanout < 0 {
		return fmt.Errorf("%w: fanout must be >= 0, got %d", ErrInvalidConfig, p.Fanout)
	}
	if math.IsNaN(p.Loss) || p.Loss < 0 || p.Loss > 1 {
		return fmt.Errorf("%w: loss must be in [0, 1], got %v", ErrInvalidConfig, p.Loss)
	}
	if !isPositiveFinite(p.Interval) {
		return fmt.Errorf("%w: interval must be > 0, got %v", ErrInvalidConfig, p.Interval)
	}
	if !isPositiveFinite(p.MaxTime) {
		return fmt.Errorf("%w: max time must be > 0, got %v", ErrInvalidConfig, p.MaxTime)
	}
	if p.MaxSteps() < 1 {
		return fmt.Errorf("%w: max time %v is shorter than one interval %v", ErrInvalidConfig, p.MaxTime, p.Interval)
	}
	if p.Runs < 1 {
		return fmt.Errorf("%w: runs must be >= 1, got %d", ErrInvalidConfig, p.Runs)
	}
	if p.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, p.Workers)
	}
	return nil
}

func isPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1) && !math.IsNaN(v)
}

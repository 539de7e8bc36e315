package model

import (
	"errors"
	"math"
	"testing"
)

func validParams() SimulationParams {
	return SimulationParams{
		Nodes:    50,
		Fanout:   5,
		Loss:     0.1,
		Interval: 0.1,
		MaxTime:  60,
		Runs:     30,
		Workers:  4,
		Seed:     1,
	}
}

func TestSimulationParamsMaxSteps(t *testing.T) {
	p := validParams()
	if got := p.MaxSteps(); got != 600 {
		t.Fatalf("expected 600 steps, got %d", got)
	}
	p.Interval = 1.5
	p.MaxTime = 4
	if got := p.MaxSteps(); got != 2 {
		t.Fatalf("expected floor(4/1.5)=2 steps, got %d", got)
	}
}

func TestSimulationParamsValidate(t *testing.T) {
	if err := validParams().Validate(); err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}

	cases := map[string]func(*SimulationParams){
		"zero nodes":        func(p *SimulationParams) { p.Nodes = 0 },
		"negative fanout":   func(p *SimulationParams) { p.Fanout = -1 },
		"loss above one":    func(p *SimulationParams) { p.Loss = 1.01 },
		"negative loss":     func(p *SimulationParams) { p.Loss = -0.1 },
		"nan loss":          func(p *SimulationParams) { p.Loss = math.NaN() },
		"zero interval":     func(p *SimulationParams) { p.Interval = 0 },
		"infinite interval": func(p *SimulationParams) { p.Interval = math.Inf(1) },
		"zero max time":     func(p *SimulationParams) { p.MaxTime = 0 },
		"sub-interval time": func(p *SimulationParams) { p.Interval = 2; p.MaxTime = 1 },
		"zero runs":         func(p *SimulationParams) { p.Runs = 0 },
		"zero workers":      func(p *SimulationParams) { p.Workers = 0 },
	}
	for name, mutate := range cases {
		p := validParams()
		mutate(&p)
		err := p.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestSimulationParamsValidateBoundaries(t *testing.T) {
	p := validParams()
	p.Nodes = 1
	p.Fanout = 0
	p.Loss = 1
	p.Runs = 1
	p.Workers = 1
	p.Interval = 1
	p.MaxTime = 1
	if err := p.Validate(); err != nil {
		t.Fatalf("expected boundary params to be valid, got %v", err)
	}
}

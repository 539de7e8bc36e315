package gossip

import (
	"context"
	"fmt"
	"math/rand"

	"gossipsim/internal/model"
)

// RunTrial executes one synchronous round-based dissemination starting from
// node 0. Each round records the start-of-round aware fraction; the trial
// stops after recording full awareness or after MaxSteps rounds.
func RunTrial(ctx context.Context, runID int, params model.SimulationParams, rng *rand.Rand) (model.Trial, error) {
	if rng == nil {
		return model.Trial{}, fmt.Errorf("trial %d: rng is required", runID)
	}
	if err := params.Validate(); err != nil {
		return model.Trial{}, err
	}

	n := params.Nodes
	maxSteps := params.MaxSteps()
	deliver := 1.0 - params.Loss

	aware := make([]bool, n)
	aware[0] = true
	awareCount := 1

	targets := newTargetSampler(n, params.Fanout)
	incoming := make([]int, 0, n)
	marked := make([]bool, n)

	samples := make([]model.Sample, 0, min(maxSteps, 64))
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return model.Trial{}, fmt.Errorf("trial %d round %d: %w", runID, step, err)
		}

		fraction := float64(awareCount) / float64(n)
		samples = append(samples, model.Sample{
			Time:          float64(step) * params.Interval,
			AwareFraction: fraction,
		})
		if fraction >= 1.0 {
			break
		}

		incoming = incoming[:0]
		for sender := 0; sender < n; sender++ {
			if !aware[sender] {
				continue
			}
			for _, target := range targets.pick(sender, rng) {
				if rng.Float64() >= deliver {
					continue
				}
				if !marked[target] {
					marked[target] = true
					incoming = append(incoming, target)
				}
			}
		}

		for _, node := range incoming {
			marked[node] = false
			if !aware[node] {
				aware[node] = true
				awareCount++
			}
		}
	}

	return model.Trial{RunID: runID, Samples: samples}, nil
}

// targetSampler draws distinct recipients other than the sender. It keeps a
// permutation of all node ids with the sender swapped to the tail, then runs
// a partial Fisher-Yates shuffle over the head.
type targetSampler struct {
	k    int
	all  bool
	pool []int
	pos  []int
}

func newTargetSampler(n, fanout int) *targetSampler {
	s := &targetSampler{
		k:    min(fanout, n-1),
		all:  fanout >= n-1,
		pool: make([]int, n),
		pos:  make([]int, n),
	}
	for i := range s.pool {
		s.pool[i] = i
		s.pos[i] = i
	}
	return s
}

func (s *targetSampler) pick(sender int, rng *rand.Rand) []int {
	last := len(s.pool) - 1
	s.swap(s.pos[sender], last)
	others := s.pool[:last]
	if s.k <= 0 {
		return nil
	}
	if s.all {
		return others
	}
	for j := 0; j < s.k; j++ {
		r := j + rng.Intn(len(others)-j)
		s.swap(j, r)
	}
	return others[:s.k]
}

func (s *targetSampler) swap(i, j int) {
	if i == j {
		return
	}
	s.pool[i], s.pool[j] = s.pool[j], s.pool[i]
	s.pos[s.pool[i]] = i
	s.pos[s.pool[j]] = j
}

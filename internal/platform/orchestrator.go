package platform

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"gossipsim/internal/gossip"
	"gossipsim/internal/model"
)

// TrialFunc executes one trial. It is swapped out in tests.
type TrialFunc func(ctx context.Context, runID int, params model.SimulationParams, rng *rand.Rand) (model.Trial, error)

type OrchestratorConfig struct {
	// Progress, when set, is called after each trial completes.
	Progress func(done, total int)
	Trial    TrialFunc
}

type Orchestrator struct {
	cfg OrchestratorConfig
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Trial == nil {
		cfg.Trial = gossip.RunTrial
	}
	return &Orchestrator{cfg: cfg}
}

// TrialSeed derives the private stream seed for a run id.
func TrialSeed(base int64, runID int) int64 {
	return base*1_000_003 + int64(runID)
}

// Run executes params.Runs independent trials on params.Workers goroutines
// and returns their samples tagged with run ids, ordered by run then time.
// It fails as a whole if any trial fails.
func (o *Orchestrator) Run(ctx context.Context, params model.SimulationParams) ([]model.Record, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	type result struct {
		runID int
		trial model.Trial
		err   error
	}

	jobs := make(chan int)
	results := make(chan result, params.Runs)

	workerCount := params.Workers
	if workerCount > params.Runs {
		workerCount = params.Runs
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for runID := range jobs {
				trial, err := o.runOne(ctx, runID, params)
				results <- result{runID: runID, trial: trial, err: err}
			}
		}()
	}

	go func() {
		for runID := 0; runID < params.Runs; runID++ {
			jobs <- runID
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	trials := make([]model.Trial, params.Runs)
	var firstErr error
	done := 0
	for res := range results {
		done++
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		trials[res.runID] = res.trial
		if o.cfg.Progress != nil {
			o.cfg.Progress(done, params.Runs)
		}
	}
	if firstErr != nil {
		return nil, fmt.Errorf("orchestrate %d runs: %w", params.Runs, firstErr)
	}

	return mergeTrials(trials), nil
}

func (o *Orchestrator) runOne(ctx context.Context, runID int, params model.SimulationParams) (trial model.Trial, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trial %d panicked: %v", runID, r)
		}
	}()
	rng := rand.New(rand.NewSource(TrialSeed(params.Seed, runID)))
	trial, err = o.cfg.Trial(ctx, runID, params, rng)
	if err != nil {
		return model.Trial{}, fmt.Errorf("trial %d: %w", runID, err)
	}
	if trial.RunID != runID {
		return model.Trial{}, fmt.Errorf("trial %d returned run id %d", runID, trial.RunID)
	}
	return trial, nil
}

func mergeTrials(trials []model.Trial) []model.Record {
	total := 0
	for _, trial := range trials {
		total += len(trial.Samples)
	}
	records := make([]model.Record, 0, total)
	for _, trial := range trials {
		for _, s := range trial.Samples {
			records = append(records, model.Record{
				Time:          s.Time,
				Run:           trial.RunID,
				AwareFraction: s.AwareFraction,
			})
		}
	}
	return records
}

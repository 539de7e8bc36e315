package platform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"gossipsim/internal/model"
	"gossipsim/internal/stats"
	"gossipsim/internal/storage"
)

var (
	ErrNotStarted      = errors.New("lab is not initialized")
	ErrRecordsNotFound = errors.New("records not found")
)

type Config struct {
	Store        storage.Store
	Orchestrator OrchestratorConfig
	Logger       *log.Logger
}

// SimulationResult is a persisted simulation and the records it produced.
type SimulationResult struct {
	Experiment model.Experiment
	Records    []model.Record
}

// Lab owns the store and the trial orchestrator. Simulations and analyses
// run through it are persisted under their experiment id.
type Lab struct {
	store        storage.Store
	orchestrator *Orchestrator
	logger       *log.Logger

	mu      sync.RWMutex
	started bool
}

func NewLab(cfg Config) *Lab {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "lab: ", log.LstdFlags)
	}
	return &Lab{
		store:        cfg.Store,
		orchestrator: NewOrchestrator(cfg.Orchestrator),
		logger:       logger,
	}
}

func (l *Lab) Init(ctx context.Context) error {
	if l.store == nil {
		return fmt.Errorf("store is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}
	l.started = true
	return nil
}

func (l *Lab) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

// RunSimulation orchestrates all trials of params and persists the
// experiment together with its raw records. Nothing is persisted when any
// trial fails.
func (l *Lab) RunSimulation(ctx context.Context, experiment model.Experiment) (SimulationResult, error) {
	if !l.Started() {
		return SimulationResult{}, ErrNotStarted
	}
	if experiment.ID == "" {
		return SimulationResult{}, fmt.Errorf("experiment id is required")
	}

	records, err := l.orchestrator.Run(ctx, experiment.Params)
	if err != nil {
		return SimulationResult{}, err
	}
	experiment.RecordCount = len(records)

	if err := l.store.SaveRecords(ctx, experiment.ID, records); err != nil {
		return SimulationResult{}, fmt.Errorf("save records %s: %w", experiment.ID, err)
	}
	if err := l.store.SaveExperiment(ctx, experiment); err != nil {
		return SimulationResult{}, fmt.Errorf("save experiment %s: %w", experiment.ID, err)
	}
	l.logger.Printf("experiment %s: %d runs, %d records", experiment.ID, experiment.Params.Runs, len(records))
	return SimulationResult{Experiment: experiment, Records: records}, nil
}

// UpdateExperiment overwrites stored experiment metadata, e.g. once the
// record file location is known.
func (l *Lab) UpdateExperiment(ctx context.Context, experiment model.Experiment) error {
	if !l.Started() {
		return ErrNotStarted
	}
	return l.store.SaveExperiment(ctx, experiment)
}

// Records loads the raw record set of a stored experiment.
func (l *Lab) Records(ctx context.Context, experimentID string) ([]model.Record, error) {
	if !l.Started() {
		return nil, ErrNotStarted
	}
	records, ok, err := l.store.GetRecords(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w for experiment %s", ErrRecordsNotFound, experimentID)
	}
	return records, nil
}

func (l *Lab) Experiment(ctx context.Context, experimentID string) (model.Experiment, bool, error) {
	if !l.Started() {
		return model.Experiment{}, false, ErrNotStarted
	}
	return l.store.GetExperiment(ctx, experimentID)
}

func (l *Lab) Experiments(ctx context.Context) ([]model.Experiment, error) {
	if !l.Started() {
		return nil, ErrNotStarted
	}
	return l.store.ListExperiments(ctx)
}

// Analyze derives convergence metrics from records. When experimentID is
// set the metrics are stored under it.
func (l *Lab) Analyze(ctx context.Context, experimentID string, records []model.Record, cfg stats.SmoothingConfig) (model.CurveMetrics, error) {
	if !l.Started() {
		return model.CurveMetrics{}, ErrNotStarted
	}
	metrics, err := stats.Analyze(records, cfg)
	if err != nil {
		return model.CurveMetrics{}, err
	}
	if experimentID != "" {
		if err := l.store.SaveMetrics(ctx, experimentID, metrics); err != nil {
			return model.CurveMetrics{}, fmt.Errorf("save metrics %s: %w", experimentID, err)
		}
	}
	return metrics, nil
}

func (l *Lab) Metrics(ctx context.Context, experimentID string) (model.CurveMetrics, bool, error) {
	if !l.Started() {
		return model.CurveMetrics{}, false, ErrNotStarted
	}
	return l.store.GetMetrics(ctx, experimentID)
}

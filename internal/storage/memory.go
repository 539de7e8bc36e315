package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gossipsim/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	experiments map[string]model.Experiment
	records     map[string][]model.Record
	metrics     map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.experiments = make(map[string]model.Experiment)
	s.records = make(map[string][]model.Record)
	s.metrics = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SaveExperiment(_ context.Context, experiment model.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if experiment.ID == "" {
		return errors.New("experiment id is required")
	}
	experiment.VersionedRecord = currentVersion()
	s.experiments[experiment.ID] = experiment
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (model.Experiment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	experiment, ok := s.experiments[id]
	return experiment, ok, nil
}

// ListExperiments returns experiments newest first.
func (s *MemoryStore) ListExperiments(_ context.Context) ([]model.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Experiment, 0, len(s.experiments))
	for _, experiment := range s.experiments {
		out = append(out, experiment)
	}
	sortExperiments(out)
	return out, nil
}

func (s *MemoryStore) SaveRecords(_ context.Context, experimentID string, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.records[experimentID] = append([]model.Record(nil), records...)
	return nil
}

func (s *MemoryStore) GetRecords(_ context.Context, experimentID string) ([]model.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.records[experimentID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.Record{}, records...), true, nil
}

func (s *MemoryStore) SaveMetrics(_ context.Context, experimentID string, metrics model.CurveMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	payload, err := EncodeMetrics(metrics)
	if err != nil {
		return err
	}
	s.metrics[experimentID] = payload
	return nil
}

func (s *MemoryStore) GetMetrics(_ context.Context, experimentID string) (model.CurveMetrics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.metrics[experimentID]
	if !ok {
		return model.CurveMetrics{}, false, nil
	}
	metrics, err := DecodeMetrics(payload)
	if err != nil {
		return model.CurveMetrics{}, false, err
	}
	return metrics, true, nil
}

var errNotInitialized = errors.New("store is not initialized")

func sortExperiments(experiments []model.Experiment) {
	sort.SliceStable(experiments, func(i, j int) bool {
		if experiments[i].CreatedAtUTC == experiments[j].CreatedAtUTC {
			return experiments[i].ID < experiments[j].ID
		}
		return experiments[i].CreatedAtUTC > experiments[j].CreatedAtUTC
	})
}

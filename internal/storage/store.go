package storage

import (
	"context"

	"gossipsim/internal/model"
)

// Store persists simulation experiments, their raw record sets and the
// metrics derived from them.
type Store interface {
	Init(ctx context.Context) error
	SaveExperiment(ctx context.Context, experiment model.Experiment) error
	GetExperiment(ctx context.Context, id string) (model.Experiment, bool, error)
	ListExperiments(ctx context.Context) ([]model.Experiment, error)
	SaveRecords(ctx context.Context, experimentID string, records []model.Record) error
	GetRecords(ctx context.Context, experimentID string) ([]model.Record, bool, error)
	SaveMetrics(ctx context.Context, experimentID string, metrics model.CurveMetrics) error
	GetMetrics(ctx context.Context, experimentID string) (model.CurveMetrics, bool, error)
}

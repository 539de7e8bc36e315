package storage

import (
	"encoding/json"
	"errors"

	"gossipsim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// EncodeExperiment stamps the current schema and codec versions.
func EncodeExperiment(e model.Experiment) ([]byte, error) {
	e.VersionedRecord = currentVersion()
	return json.Marshal(e)
}

func DecodeExperiment(data []byte) (model.Experiment, error) {
	var experiment model.Experiment
	if err := json.Unmarshal(data, &experiment); err != nil {
		return model.Experiment{}, err
	}
	if err := checkVersion(experiment.VersionedRecord); err != nil {
		return model.Experiment{}, err
	}
	return experiment, nil
}

// EncodeMetrics stamps the current schema and codec versions.
func EncodeMetrics(m model.CurveMetrics) ([]byte, error) {
	m.VersionedRecord = currentVersion()
	return json.Marshal(m)
}

func DecodeMetrics(data []byte) (model.CurveMetrics, error) {
	var metrics model.CurveMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return model.CurveMetrics{}, err
	}
	if err := checkVersion(metrics.VersionedRecord); err != nil {
		return model.CurveMetrics{}, err
	}
	return metrics, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

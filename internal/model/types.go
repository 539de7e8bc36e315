package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Sample is one start-of-round observation within a trial.
type Sample struct {
	Time          float64 `json:"time"`
	AwareFraction float64 `json:"aware_fraction"`
}

// Trial is the ordered timeline produced by a single run.
type Trial struct {
	RunID   int      `json:"run"`
	Samples []Sample `json:"samples"`
}

// Record is one row of the raw record set. Field order mirrors the
// persisted column order: time, run, aware_fraction.
type Record struct {
	Time          float64 `json:"time"`
	Run           int     `json:"run"`
	AwareFraction float64 `json:"aware_fraction"`
}

type Experiment struct {
	VersionedRecord
	ID           string           `json:"id"`
	Params       SimulationParams `json:"params"`
	RecordCount  int              `json:"record_count"`
	CSVPath      string           `json:"csv_path,omitempty"`
	CreatedAtUTC string           `json:"created_at_utc"`
}

type DeviationPoint struct {
	Time      float64 `json:"t_at_max_dev"`
	Percent   float64 `json:"percent_at_max_dev"`
	Deviation float64 `json:"dev_max"`
}

// CurveMetrics is the combined analysis output for one configuration.
// Nil crossing times mean the threshold was never reached; a nil T10To90
// means the spread is undefined.
type CurveMetrics struct {
	VersionedRecord
	Times        []float64      `json:"times"`
	Mean         []float64      `json:"mean_curve"`
	Std          []float64      `json:"std_curve"`
	Smoothed     []float64      `json:"smoothed_curve"`
	Deviation    []float64      `json:"deviation_curve"`
	MaxDeviation DeviationPoint `json:"max_deviation"`
	T10          *float64       `json:"t10"`
	T50          *float64       `json:"t50"`
	T90          *float64       `json:"t90"`
	T99          *float64       `json:"t99"`
	T10To90      *float64       `json:"t10_90"`
}

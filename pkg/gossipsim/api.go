package gossipsim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"gossipsim/internal/model"
	"gossipsim/internal/platform"
	"gossipsim/internal/stats"
	"gossipsim/internal/storage"
)

const (
	defaultResultsDir = "swim_results"
	defaultDBPath     = "gossipsim.db"
)

var defaultAnalysisDir = filepath.Join(defaultResultsDir, "analysis")

type Options struct {
	StoreKind   string
	DBPath      string
	ResultsDir  string
	AnalysisDir string
	// Logger receives non-fatal conditions such as skipped analyses.
	Logger *log.Logger
	// Progress, when set, is called after each simulated trial.
	Progress func(done, total int)
}

type Client struct {
	store storage.Store
	lab   *platform.Lab

	resultsDir  string
	analysisDir string
	logger      *log.Logger
	progress    func(done, total int)
}

type SimulateRequest struct {
	Nodes    int
	Fanout   int
	Loss     float64
	Interval float64
	MaxTime  float64
	Runs     int
	Workers  int
	Seed     int64
}

type SimulateSummary struct {
	ExperimentID string
	CSVPath      string
	MetaPath     string
	RecordCount  int
	Params       model.SimulationParams
}

// AnalyzeRequest names exactly one input: a records CSV or a stored
// experiment. A nil Degree selects the default polynomial degree.
type AnalyzeRequest struct {
	CSVPath      string
	ExperimentID string
	Window       int
	Degree       *int
	OutDir       string
}

type AnalyzeSummary struct {
	Source  string
	Skipped bool
	Metrics model.CurveMetrics
	Files   stats.AnalysisFiles
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	ExperimentID string
	CreatedAtUTC string
	CSVPath      string
	Nodes        int
	Fanout       int
	Loss         float64
	Runs         int
	Seed         int64
	RecordCount  int
	MetricsJSON  string
}

type MetricsRequest struct {
	ExperimentID string
	Latest       bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	resultsDir := opts.ResultsDir
	if resultsDir == "" {
		resultsDir = defaultResultsDir
	}
	analysisDir := opts.AnalysisDir
	if analysisDir == "" {
		analysisDir = defaultAnalysisDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "gossipsim: ", log.LstdFlags)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:       store,
		resultsDir:  resultsDir,
		analysisDir: analysisDir,
		logger:      logger,
		progress:    opts.Progress,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureLab(ctx)
	return err
}

// Simulate runs every trial of the request, writes the records CSV and its
// meta.txt sidecar into the results directory and records the experiment in
// the store and the run index.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateSummary, error) {
	params := model.SimulationParams{
		Nodes:    req.Nodes,
		Fanout:   req.Fanout,
		Loss:     req.Loss,
		Interval: req.Interval,
		MaxTime:  req.MaxTime,
		Runs:     req.Runs,
		Workers:  req.Workers,
		Seed:     req.Seed,
	}
	if err := params.Validate(); err != nil {
		return SimulateSummary{}, err
	}

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return SimulateSummary{}, err
	}

	now := time.Now().UTC()
	result, err := lab.RunSimulation(ctx, model.Experiment{
		ID:           uuid.NewString(),
		Params:       params,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return SimulateSummary{}, err
	}
	experiment := result.Experiment

	csvPath := filepath.Join(c.resultsDir, stats.RecordsFileName(params))
	if err := stats.WriteRecordsCSV(csvPath, result.Records); err != nil {
		return SimulateSummary{}, fmt.Errorf("write records: %w", err)
	}
	metaPath, err := stats.WriteMeta(c.resultsDir, params)
	if err != nil {
		return SimulateSummary{}, fmt.Errorf("write meta: %w", err)
	}

	experiment.CSVPath = csvPath
	if err := lab.UpdateExperiment(ctx, experiment); err != nil {
		return SimulateSummary{}, err
	}
	if err := stats.AppendRunIndex(c.resultsDir, stats.RunIndexEntry{
		ExperimentID: experiment.ID,
		CSVPath:      csvPath,
		Nodes:        params.Nodes,
		Fanout:       params.Fanout,
		Loss:         params.Loss,
		Interval:     params.Interval,
		MaxTime:      params.MaxTime,
		Runs:         params.Runs,
		Workers:      params.Workers,
		Seed:         params.Seed,
		RecordCount:  experiment.RecordCount,
		CreatedAtUTC: experiment.CreatedAtUTC,
	}); err != nil {
		return SimulateSummary{}, err
	}

	return SimulateSummary{
		ExperimentID: experiment.ID,
		CSVPath:      filepath.Clean(csvPath),
		MetaPath:     filepath.Clean(metaPath),
		RecordCount:  experiment.RecordCount,
		Params:       params,
	}, nil
}

// Analyze derives convergence metrics for one record set and writes the
// metrics and plot artifacts. An empty record set is logged and skipped
// without error. When the input belongs to an indexed run the artifacts are
// recorded in the run index.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeSummary, error) {
	if req.CSVPath != "" && req.ExperimentID != "" {
		return AnalyzeSummary{}, errors.New("use either csv path or experiment id")
	}
	if req.CSVPath == "" && req.ExperimentID == "" {
		return AnalyzeSummary{}, errors.New("analyze requires csv path or experiment id")
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.analysisDir
	}

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return AnalyzeSummary{}, err
	}

	var (
		records      []model.Record
		source       string
		base         string
		experimentID = req.ExperimentID
	)
	if req.CSVPath != "" {
		source = req.CSVPath
		base = artifactBase(req.CSVPath)
		records, err = stats.ReadRecordsCSV(req.CSVPath)
		if err != nil {
			return AnalyzeSummary{}, fmt.Errorf("analyze %s: %w", source, err)
		}
		entry, ok, err := stats.LookupRunIndex(c.resultsDir, func(e stats.RunIndexEntry) bool {
			return samePath(e.CSVPath, req.CSVPath)
		})
		if err != nil {
			return AnalyzeSummary{}, fmt.Errorf("analyze %s: %w", source, err)
		}
		if ok {
			experimentID = entry.ExperimentID
		}
	} else {
		source = "experiment:" + req.ExperimentID
		records, base, err = c.experimentRecords(ctx, lab, req.ExperimentID)
		if err != nil {
			return AnalyzeSummary{}, fmt.Errorf("analyze %s: %w", source, err)
		}
	}

	cfg := stats.SmoothingConfig{Window: req.Window, Degree: req.Degree}
	metrics, err := lab.Analyze(ctx, experimentID, records, cfg)
	if errors.Is(err, stats.ErrNoRecords) {
		c.logger.Printf("no records in %s, skipping analysis", source)
		return AnalyzeSummary{Source: source, Skipped: true}, nil
	}
	if err != nil {
		return AnalyzeSummary{}, fmt.Errorf("analyze %s: %w", source, err)
	}

	files, err := stats.WriteAnalysisArtifacts(outDir, base, source, metrics)
	if err != nil {
		return AnalyzeSummary{}, fmt.Errorf("write artifacts for %s: %w", source, err)
	}
	if experimentID != "" {
		if _, err := stats.RecordAnalysis(c.resultsDir, experimentID, files); err != nil {
			return AnalyzeSummary{}, fmt.Errorf("index analysis of %s: %w", source, err)
		}
	}
	c.logger.Printf("wrote %s", files.MetricsText)

	return AnalyzeSummary{
		Source:  source,
		Metrics: metrics,
		Files:   files,
	}, nil
}

// experimentRecords loads the record set of an experiment and the artifact
// base name for it. When the store does not hold the records, the CSV of the
// indexed run is read instead.
func (c *Client) experimentRecords(ctx context.Context, lab *platform.Lab, experimentID string) ([]model.Record, string, error) {
	base := experimentID
	experiment, ok, err := lab.Experiment(ctx, experimentID)
	if err != nil {
		return nil, "", err
	}
	if ok && experiment.CSVPath != "" {
		base = artifactBase(experiment.CSVPath)
	}

	records, err := lab.Records(ctx, experimentID)
	if err == nil {
		return records, base, nil
	}
	if !errors.Is(err, platform.ErrRecordsNotFound) {
		return nil, "", err
	}
	entry, ok, lookupErr := stats.LookupRunIndex(c.resultsDir, byExperimentID(experimentID))
	if lookupErr != nil {
		return nil, "", lookupErr
	}
	if !ok || entry.CSVPath == "" {
		return nil, "", err
	}
	records, err = stats.ReadRecordsCSV(entry.CSVPath)
	if err != nil {
		return nil, "", err
	}
	return records, artifactBase(entry.CSVPath), nil
}

// Runs lists simulations, newest first: the runs indexed in the results
// directory plus any stored experiment the index does not hold.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.resultsDir)
	if err != nil {
		return nil, err
	}
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return nil, err
	}
	experiments, err := lab.Experiments(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(entries)+len(experiments))
	indexed := make(map[string]bool, len(entries))
	for _, e := range entries {
		item := RunItem{
			ExperimentID: e.ExperimentID,
			CreatedAtUTC: e.CreatedAtUTC,
			CSVPath:      e.CSVPath,
			Nodes:        e.Nodes,
			Fanout:       e.Fanout,
			Loss:         e.Loss,
			Runs:         e.Runs,
			Seed:         e.Seed,
			RecordCount:  e.RecordCount,
		}
		if e.Analysis != nil {
			item.MetricsJSON = e.Analysis.MetricsJSON
		}
		indexed[e.ExperimentID] = true
		out = append(out, item)
	}
	for _, e := range experiments {
		if indexed[e.ID] {
			continue
		}
		out = append(out, RunItem{
			ExperimentID: e.ID,
			CreatedAtUTC: e.CreatedAtUTC,
			CSVPath:      e.CSVPath,
			Nodes:        e.Params.Nodes,
			Fanout:       e.Params.Fanout,
			Loss:         e.Params.Loss,
			Runs:         e.Params.Runs,
			Seed:         e.Params.Seed,
			RecordCount:  e.RecordCount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAtUTC > out[j].CreatedAtUTC
	})
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Metrics returns the metrics of an analyzed experiment: from the store when
// it holds them, otherwise from the metrics JSON recorded in the run index.
func (c *Client) Metrics(ctx context.Context, req MetricsRequest) (model.CurveMetrics, error) {
	if req.ExperimentID != "" && req.Latest {
		return model.CurveMetrics{}, errors.New("use either experiment id or latest")
	}

	experimentID := req.ExperimentID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.resultsDir)
		if err != nil {
			return model.CurveMetrics{}, err
		}
		if len(entries) == 0 {
			return model.CurveMetrics{}, errors.New("no runs available")
		}
		experimentID = entries[0].ExperimentID
	}
	if experimentID == "" {
		return model.CurveMetrics{}, errors.New("metrics requires experiment id or latest")
	}

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return model.CurveMetrics{}, err
	}
	metrics, ok, err := lab.Metrics(ctx, experimentID)
	if err != nil {
		return model.CurveMetrics{}, err
	}
	if ok {
		return metrics, nil
	}

	entry, ok, err := stats.LookupRunIndex(c.resultsDir, byExperimentID(experimentID))
	if err != nil {
		return model.CurveMetrics{}, err
	}
	if !ok || entry.Analysis == nil || entry.Analysis.MetricsJSON == "" {
		return model.CurveMetrics{}, fmt.Errorf("metrics not found for experiment %s", experimentID)
	}
	return stats.ReadMetricsJSON(entry.Analysis.MetricsJSON)
}

func (c *Client) ensureLab(ctx context.Context) (*platform.Lab, error) {
	if c.lab != nil {
		return c.lab, nil
	}
	lab := platform.NewLab(platform.Config{
		Store:        c.store,
		Orchestrator: platform.OrchestratorConfig{Progress: c.progress},
		Logger:       c.logger,
	})
	if err := lab.Init(ctx); err != nil {
		return nil, err
	}
	c.lab = lab
	return c.lab, nil
}

func byExperimentID(id string) func(stats.RunIndexEntry) bool {
	return func(e stats.RunIndexEntry) bool {
		return e.ExperimentID == id
	}
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func artifactBase(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"gossipsim/internal/stats"
	"gossipsim/internal/storage"
	"gossipsim/pkg/gossipsim"
)

const (
	defaultResultsDir = "swim_results"
	defaultDBPath     = "gossipsim.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "simulate":
		return runSimulate(ctx, args[1:])
	case "analyze":
		return runAnalyze(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "metrics":
		return runMetrics(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type simulationFlags struct {
	config   *string
	nodes    *int
	fanout   *int
	loss     *float64
	interval *float64
	maxTime  *float64
	runs     *int
	workers  *int
	seed     *int64
}

func addSimulationFlags(fs *flag.FlagSet) *simulationFlags {
	return &simulationFlags{
		config:   fs.String("config", "", "optional JSON or YAML config path; explicit flags override it"),
		nodes:    fs.Int("nodes", 50, "cluster size"),
		fanout:   fs.Int("fanout", 5, "peers contacted per informed node per round"),
		loss:     fs.Float64("loss", 0.1, "per-message drop probability in [0,1]"),
		interval: fs.Float64("interval", 0.1, "seconds per gossip round"),
		maxTime:  fs.Float64("max-time", 60, "simulated time horizon in seconds"),
		runs:     fs.Int("runs", 30, "number of independent trials"),
		workers:  fs.Int("workers", 4, "concurrent trial workers"),
		seed:     fs.Int64("seed", 1, "base rng seed"),
	}
}

func (f *simulationFlags) values() map[string]any {
	return map[string]any{
		"nodes":    *f.nodes,
		"fanout":   *f.fanout,
		"loss":     *f.loss,
		"interval": *f.interval,
		"max-time": *f.maxTime,
		"runs":     *f.runs,
		"workers":  *f.workers,
		"seed":     *f.seed,
	}
}

func (f *simulationFlags) request() gossipsim.SimulateRequest {
	return gossipsim.SimulateRequest{
		Nodes:    *f.nodes,
		Fanout:   *f.fanout,
		Loss:     *f.loss,
		Interval: *f.interval,
		MaxTime:  *f.maxTime,
		Runs:     *f.runs,
		Workers:  *f.workers,
		Seed:     *f.seed,
	}
}

// resolveConfig merges flag defaults, the optional config file and the
// explicitly set flags, in that order of precedence.
func resolveConfig(fs *flag.FlagSet, sim *simulationFlags, window, degree *int) (runConfig, error) {
	cfg := runConfig{Simulate: sim.request()}
	if window != nil {
		cfg.Window = *window
	}
	if degree != nil {
		cfg.Degree = *degree
	}
	if *sim.config == "" {
		return cfg, nil
	}

	raw, err := loadConfigFile(*sim.config)
	if err != nil {
		return runConfig{}, err
	}
	if err := applyConfig(&cfg, raw); err != nil {
		return runConfig{}, err
	}

	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	flagValue := sim.values()
	if window != nil {
		flagValue["window"] = *window
	}
	if degree != nil {
		flagValue["degree"] = *degree
	}
	overrideFromFlags(&cfg, setFlags, flagValue)
	return cfg, nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	sim := addSimulationFlags(fs)
	outDir := fs.String("outdir", defaultResultsDir, "directory for the records CSV, meta.txt and run index")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := resolveConfig(fs, sim, nil, nil)
	if err != nil {
		return err
	}

	client, err := gossipsim.New(gossipsim.Options{
		StoreKind:  *storeKind,
		DBPath:     *dbPath,
		ResultsDir: *outDir,
		Progress:   progressReporter(),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Simulate(ctx, cfg.Simulate)
	if err != nil {
		return err
	}
	printSimulateSummary(summary)
	return nil
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	csvPath := fs.String("csv", "", "records CSV to analyze")
	experimentID := fs.String("id", "", "stored experiment id to analyze")
	outDir := fs.String("outdir", filepath.Join(defaultResultsDir, "analysis"), "directory for metrics and plot artifacts")
	resultsDir := fs.String("results-dir", defaultResultsDir, "results directory holding the run index")
	window := fs.Int("window", stats.DefaultSmoothingWindow, "Savitzky-Golay window (clamped to the series)")
	degree := fs.Int("degree", stats.DefaultSmoothingDegree, "Savitzky-Golay polynomial degree (0 is a moving average)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit full metrics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *csvPath == "" && *experimentID == "" {
		return usageError("analyze requires --csv or --id")
	}

	client, err := gossipsim.New(gossipsim.Options{
		StoreKind:   *storeKind,
		DBPath:      *dbPath,
		ResultsDir:  *resultsDir,
		AnalysisDir: *outDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Analyze(ctx, gossipsim.AnalyzeRequest{
		CSVPath:      *csvPath,
		ExperimentID: *experimentID,
		Window:       *window,
		Degree:       stats.SmoothingDegree(*degree),
	})
	if err != nil {
		return err
	}
	return printAnalyzeSummary(summary, *jsonOut)
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sim := addSimulationFlags(fs)
	outDir := fs.String("outdir", defaultResultsDir, "directory for the records CSV, meta.txt and run index")
	analysisDir := fs.String("analysis-outdir", "", "directory for analysis artifacts (default <outdir>/analysis)")
	window := fs.Int("window", stats.DefaultSmoothingWindow, "Savitzky-Golay window (clamped to the series)")
	degree := fs.Int("degree", stats.DefaultSmoothingDegree, "Savitzky-Golay polynomial degree (0 is a moving average)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit full metrics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := resolveConfig(fs, sim, window, degree)
	if err != nil {
		return err
	}
	if *analysisDir == "" {
		*analysisDir = filepath.Join(*outDir, "analysis")
	}

	client, err := gossipsim.New(gossipsim.Options{
		StoreKind:   *storeKind,
		DBPath:      *dbPath,
		ResultsDir:  *outDir,
		AnalysisDir: *analysisDir,
		Progress:    progressReporter(),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	simSummary, err := client.Simulate(ctx, cfg.Simulate)
	if err != nil {
		return err
	}
	if !*jsonOut {
		printSimulateSummary(simSummary)
	}

	summary, err := client.Analyze(ctx, gossipsim.AnalyzeRequest{
		ExperimentID: simSummary.ExperimentID,
		Window:       cfg.Window,
		Degree:       stats.SmoothingDegree(cfg.Degree),
	})
	if err != nil {
		return err
	}
	return printAnalyzeSummary(summary, *jsonOut)
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	outDir := fs.String("outdir", defaultResultsDir, "results directory holding the run index")
	limit := fs.Int("limit", 20, "max runs to list")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := gossipsim.New(gossipsim.Options{
		StoreKind:  *storeKind,
		DBPath:     *dbPath,
		ResultsDir: *outDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, gossipsim.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			ExperimentID string  `json:"experiment_id"`
			CreatedAtUTC string  `json:"created_at_utc"`
			CSVPath      string  `json:"csv_path"`
			Nodes        int     `json:"nodes"`
			Fanout       int     `json:"fanout"`
			Loss         float64 `json:"loss"`
			Runs         int     `json:"runs"`
			Seed         int64   `json:"seed"`
			RecordCount  int     `json:"record_count"`
			MetricsJSON  string  `json:"metrics_json,omitempty"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem(item))
		}
		return writeJSON(out)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("experiment_id=%s created_at=%s nodes=%d fanout=%d loss=%s runs=%d seed=%d records=%s csv=%s metrics=%s\n",
			item.ExperimentID,
			item.CreatedAtUTC,
			item.Nodes,
			item.Fanout,
			strconv.FormatFloat(item.Loss, 'f', -1, 64),
			item.Runs,
			item.Seed,
			humanize.Comma(int64(item.RecordCount)),
			item.CSVPath,
			orNone(item.MetricsJSON),
		)
	}
	return nil
}

func runMetrics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	experimentID := fs.String("id", "", "experiment id")
	latest := fs.Bool("latest", false, "use the most recent indexed run")
	outDir := fs.String("outdir", defaultResultsDir, "results directory holding the run index")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit full metrics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *experimentID == "" && !*latest {
		return usageError("metrics requires --id or --latest")
	}

	client, err := gossipsim.New(gossipsim.Options{
		StoreKind:  *storeKind,
		DBPath:     *dbPath,
		ResultsDir: *outDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	metrics, err := client.Metrics(ctx, gossipsim.MetricsRequest{ExperimentID: *experimentID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(metrics)
	}
	source := "experiment:" + *experimentID
	if *latest {
		source = "latest"
	}
	fmt.Print(stats.FormatMetricsText(source, metrics))
	return nil
}

func printSimulateSummary(summary gossipsim.SimulateSummary) {
	size := "unknown"
	if info, err := os.Stat(summary.CSVPath); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	p := summary.Params
	fmt.Printf("simulation completed experiment_id=%s nodes=%d fanout=%d loss=%s runs=%d seed=%d\n",
		summary.ExperimentID, p.Nodes, p.Fanout, strconv.FormatFloat(p.Loss, 'f', -1, 64), p.Runs, p.Seed)
	fmt.Printf("records=%s\n", humanize.Comma(int64(summary.RecordCount)))
	fmt.Printf("csv=%s size=%s\n", summary.CSVPath, size)
	fmt.Printf("meta=%s\n", summary.MetaPath)
}

func printAnalyzeSummary(summary gossipsim.AnalyzeSummary, jsonOut bool) error {
	if summary.Skipped {
		fmt.Printf("analysis skipped source=%s: no records\n", summary.Source)
		return nil
	}
	if jsonOut {
		return writeJSON(summary.Metrics)
	}
	fmt.Print(stats.FormatMetricsText(summary.Source, summary.Metrics))
	fmt.Printf("metrics_text=%s\n", summary.Files.MetricsText)
	fmt.Printf("metrics_json=%s\n", summary.Files.MetricsJSON)
	fmt.Printf("plot=%s\n", summary.Files.Plot)
	return nil
}

// progressReporter returns a trial progress callback when stderr is a
// terminal and nil otherwise.
func progressReporter() func(done, total int) {
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rtrials %d/%d", done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func writeJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gossipsimctl <simulate|analyze|run|runs|metrics> [flags]", msg)
}

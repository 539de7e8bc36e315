package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gossipsim/internal/model"
)

const (
	runIndexFile = "run_index.json"
	metaFile     = "meta.txt"
)

// RecordColumns is the persisted column order of the raw record set.
var RecordColumns = []string{"time", "run", "aware_fraction"}

type RunIndexEntry struct {
	ExperimentID string  `json:"experiment_id"`
	CSVPath      string  `json:"csv_path"`
	Nodes        int     `json:"nodes"`
	Fanout       int     `json:"fanout"`
	Loss         float64 `json:"loss"`
	Interval     float64 `json:"interval"`
	MaxTime      float64 `json:"max_time"`
	Runs         int     `json:"runs"`
	Workers      int     `json:"workers"`
	Seed         int64   `json:"seed"`
	RecordCount  int     `json:"record_count"`
	CreatedAtUTC string  `json:"created_at_utc"`
	// Analysis locates the artifacts of the latest analysis of the run.
	Analysis *AnalysisFiles `json:"analysis,omitempty"`
}

type AnalysisFiles struct {
	MetricsText string `json:"metrics_text"`
	MetricsJSON string `json:"metrics_json"`
	Plot        string `json:"plot"`
}

// RecordsFileName names the CSV for one configuration. Loss is encoded as an
// integer percentage.
func RecordsFileName(params model.SimulationParams) string {
	return fmt.Sprintf("swim_nodes%d_fan%d_loss%d.csv", params.Nodes, params.Fanout, int(params.Loss*100))
}

func WriteRecordsCSV(path string, records []model.Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(RecordColumns); err != nil {
		return err
	}
	for _, r := range records {
		if err := writer.Write([]string{
			formatFloat(r.Time),
			strconv.Itoa(r.Run),
			formatFloat(r.AwareFraction),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadRecordsCSV loads a record set. Columns are located by header name; a
// header-only file yields an empty set.
func ReadRecordsCSV(path string) ([]model.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.Record{}, nil
		}
		return nil, err
	}
	index := map[string]int{}
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	cols := make([]int, len(RecordColumns))
	for i, name := range RecordColumns {
		idx, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
		cols[i] = idx
	}

	records := make([]model.Record, 0, 256)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		for _, c := range cols {
			if c >= len(row) {
				return nil, fmt.Errorf("%s:%d: expected at least %d columns, got %d", path, line, c+1, len(row))
			}
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(row[cols[0]]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: time: %w", path, line, err)
		}
		run, err := parseRunID(row[cols[1]])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: run: %w", path, line, err)
		}
		fraction, err := strconv.ParseFloat(strings.TrimSpace(row[cols[2]]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: aware_fraction: %w", path, line, err)
		}
		records = append(records, model.Record{Time: t, Run: run, AwareFraction: fraction})
	}
	return records, nil
}

// WriteMeta writes the key=value sidecar describing a simulation.
func WriteMeta(dir string, params model.SimulationParams) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "nodes=%d\n", params.Nodes)
	fmt.Fprintf(&b, "fanout=%d\n", params.Fanout)
	fmt.Fprintf(&b, "loss=%s\n", formatFloat(params.Loss))
	fmt.Fprintf(&b, "interval=%s\n", formatFloat(params.Interval))
	fmt.Fprintf(&b, "runs=%d\n", params.Runs)
	path := filepath.Join(dir, metaFile)
	return path, os.WriteFile(path, []byte(b.String()), 0o644)
}

// WriteAnalysisArtifacts writes {base}_metrics.txt, {base}_metrics.json and
// {base}_plot.json into outDir. source names the analyzed input.
func WriteAnalysisArtifacts(outDir, base, source string, metrics model.CurveMetrics) (AnalysisFiles, error) {
	if base == "" {
		return AnalysisFiles{}, fmt.Errorf("artifact base name is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return AnalysisFiles{}, err
	}
	files := AnalysisFiles{
		MetricsText: filepath.Join(outDir, base+"_metrics.txt"),
		MetricsJSON: filepath.Join(outDir, base+"_metrics.json"),
		Plot:        filepath.Join(outDir, base+"_plot.json"),
	}
	if err := os.WriteFile(files.MetricsText, []byte(FormatMetricsText(source, metrics)), 0o644); err != nil {
		return AnalysisFiles{}, err
	}
	if err := writeJSON(files.MetricsJSON, metrics); err != nil {
		return AnalysisFiles{}, err
	}
	if err := writeJSON(files.Plot, BuildPlotSeries(metrics)); err != nil {
		return AnalysisFiles{}, err
	}
	return files, nil
}

// FormatMetricsText renders the scalar metrics as key=value lines. Unreached
// thresholds and an undefined spread are written as None.
func FormatMetricsText(source string, metrics model.CurveMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "csv=%s\n", source)
	fmt.Fprintf(&b, "t_at_max_dev=%s\n", formatFloat(metrics.MaxDeviation.Time))
	fmt.Fprintf(&b, "percent_at_max_dev=%s\n", formatFloat(metrics.MaxDeviation.Percent))
	fmt.Fprintf(&b, "dev_max=%s\n", formatFloat(metrics.MaxDeviation.Deviation))
	fmt.Fprintf(&b, "t10=%s\n", formatOptional(metrics.T10))
	fmt.Fprintf(&b, "t50=%s\n", formatOptional(metrics.T50))
	fmt.Fprintf(&b, "t90=%s\n", formatOptional(metrics.T90))
	fmt.Fprintf(&b, "t99=%s\n", formatOptional(metrics.T99))
	fmt.Fprintf(&b, "t10_90=%s\n", formatOptional(metrics.T10To90))
	return b.String()
}

func ReadMetricsJSON(path string) (model.CurveMetrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.CurveMetrics{}, err
	}
	var metrics model.CurveMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return model.CurveMetrics{}, fmt.Errorf("%s: %w", path, err)
	}
	return metrics, nil
}

// AppendRunIndex adds entry to the index kept in baseDir, replacing any entry
// with the same experiment id. A replacement without analysis files keeps the
// ones already indexed.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.ExperimentID == "" {
		return fmt.Errorf("experiment id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].ExperimentID == entry.ExperimentID {
			if entry.Analysis == nil {
				entry.Analysis = index[i].Analysis
			}
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// RecordAnalysis attaches analysis artifacts to an indexed run. It reports
// false, and writes nothing, when the run is not indexed in baseDir.
func RecordAnalysis(baseDir, experimentID string, files AnalysisFiles) (bool, error) {
	index, err := readRunIndex(baseDir)
	if err != nil {
		return false, err
	}
	for i := range index {
		if index[i].ExperimentID == experimentID {
			index[i].Analysis = &files
			return true, writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	return false, nil
}

// LookupRunIndex finds the first indexed run accepted by match, newest first.
func LookupRunIndex(baseDir string, match func(RunIndexEntry) bool) (RunIndexEntry, bool, error) {
	entries, err := ListRunIndex(baseDir)
	if err != nil {
		return RunIndexEntry{}, false, err
	}
	for _, e := range entries {
		if match(e) {
			return e, true, nil
		}
	}
	return RunIndexEntry{}, false, nil
}

// ListRunIndex returns indexed simulations, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// readRunIndex returns the index in file order.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}
	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%s: %w", runIndexFile, err)
	}
	return entries, nil
}

func parseRunID(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("run id %q is not an integer", raw)
	}
	return int(f), nil
}

// formatFloat always keeps a decimal point so integral values read back as
// floats in downstream tools (12 -> "12.0").
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.ContainsAny(s, ".nN") {
		return s
	}
	return s + ".0"
}

func formatOptional(v *float64) string {
	if v == nil {
		return "None"
	}
	return formatFloat(*v)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

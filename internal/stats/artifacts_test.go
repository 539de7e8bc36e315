package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gossipsim/internal/model"
)

func TestRecordsFileName(t *testing.T) {
	name := RecordsFileName(model.SimulationParams{Nodes: 50, Fanout: 5, Loss: 0.1})
	if name != "swim_nodes50_fan5_loss10.csv" {
		t.Fatalf("unexpected file name: %s", name)
	}
}

func TestWriteReadRecordsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.csv")
	input := []model.Record{
		{Time: 0, Run: 0, AwareFraction: 0.02},
		{Time: 0.1, Run: 0, AwareFraction: 0.06},
		{Time: 0, Run: 1, AwareFraction: 0.02},
	}
	if err := WriteRecordsCSV(path, input); err != nil {
		t.Fatalf("write records: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "time,run,aware_fraction" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "0.0,0,0.02" {
		t.Fatalf("unexpected first row: %q", lines[1])
	}

	output, err := ReadRecordsCSV(path)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(output) != len(input) {
		t.Fatalf("expected %d records, got %d", len(input), len(output))
	}
	for i := range input {
		if output[i] != input[i] {
			t.Fatalf("record %d mismatch: got %+v want %+v", i, output[i], input[i])
		}
	}
}

func TestReadRecordsCSVByColumnName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reordered.csv")
	content := "run,aware_fraction,time\n3.0,0.5,1.5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	records, err := ReadRecordsCSV(path)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(records) != 1 || records[0] != (model.Record{Time: 1.5, Run: 3, AwareFraction: 0.5}) {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestReadRecordsCSVHeaderOnlyIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := WriteRecordsCSV(path, nil); err != nil {
		t.Fatalf("write records: %v", err)
	}
	records, err := ReadRecordsCSV(path)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestReadRecordsCSVRejectsMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("time,aware_fraction\n0,0.1\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := ReadRecordsCSV(path); err == nil || !strings.Contains(err.Error(), "run") {
		t.Fatalf("expected missing run column error, got %v", err)
	}
}

func TestReadRecordsCSVRejectsFractionalRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("time,run,aware_fraction\n0,1.5,0.1\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := ReadRecordsCSV(path); err == nil {
		t.Fatal("expected fractional run id error")
	}
}

func TestWriteMeta(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteMeta(dir, model.SimulationParams{Nodes: 50, Fanout: 5, Loss: 0.1, Interval: 0.1, Runs: 30})
	if err != nil {
		t.Fatalf("write meta: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	want := "nodes=50\nfanout=5\nloss=0.1\ninterval=0.1\nruns=30\n"
	if string(data) != want {
		t.Fatalf("unexpected meta:\n%s", data)
	}
}

func TestFormatMetricsTextUsesNoneSentinel(t *testing.T) {
	t10 := 1.0
	metrics := model.CurveMetrics{
		MaxDeviation: model.DeviationPoint{Time: 3, Percent: 42.5, Deviation: 0.0125},
		T10:          &t10,
	}
	text := FormatMetricsText("in.csv", metrics)
	want := strings.Join([]string{
		"csv=in.csv",
		"t_at_max_dev=3.0",
		"percent_at_max_dev=42.5",
		"dev_max=0.0125",
		"t10=1.0",
		"t50=None",
		"t90=None",
		"t99=None",
		"t10_90=None",
	}, "\n") + "\n"
	if text != want {
		t.Fatalf("unexpected metrics text:\n%s", text)
	}
}

func TestWriteAnalysisArtifacts(t *testing.T) {
	dir := t.TempDir()
	t50 := 2.0
	metrics := model.CurveMetrics{
		Times:        []float64{0, 1, 2},
		Mean:         []float64{0.1, 0.4, 0.9},
		Std:          []float64{0, 0.1, 0.05},
		Smoothed:     []float64{0.1, 0.4, 0.9},
		Deviation:    []float64{0, 0, 0},
		MaxDeviation: model.DeviationPoint{Time: 0, Percent: 10, Deviation: 0},
		T50:          &t50,
	}
	files, err := WriteAnalysisArtifacts(dir, "swim_nodes10_fan2_loss0", "in.csv", metrics)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, path := range []string{files.MetricsText, files.MetricsJSON, files.Plot} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected artifact %s: %v", path, err)
		}
	}

	loaded, err := ReadMetricsJSON(files.MetricsJSON)
	if err != nil {
		t.Fatalf("read metrics json: %v", err)
	}
	if loaded.T50 == nil || *loaded.T50 != 2 || loaded.T90 != nil {
		t.Fatalf("unexpected metrics sentinels: %+v", loaded)
	}

	raw, err := os.ReadFile(files.MetricsJSON)
	if err != nil {
		t.Fatalf("read raw metrics: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("decode metrics json: %v", err)
	}
	if v, ok := generic["t99"]; !ok || v != nil {
		t.Fatalf("expected explicit null for t99, got %v (present=%v)", v, ok)
	}

	if _, err := WriteAnalysisArtifacts(dir, "", "in.csv", metrics); err == nil {
		t.Fatal("expected error for empty base name")
	}
}

func TestRunIndexNewestFirstAndReplace(t *testing.T) {
	base := t.TempDir()
	entries := []RunIndexEntry{
		{ExperimentID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", Nodes: 10},
		{ExperimentID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z", Nodes: 20},
	}
	for _, e := range entries {
		if err := AppendRunIndex(base, e); err != nil {
			t.Fatalf("append %s: %v", e.ExperimentID, err)
		}
	}
	if err := AppendRunIndex(base, RunIndexEntry{ExperimentID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", Nodes: 11}); err != nil {
		t.Fatalf("replace a: %v", err)
	}

	index, err := ListRunIndex(base)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 2 || index[0].ExperimentID != "b" || index[1].Nodes != 11 {
		t.Fatalf("unexpected index: %+v", index)
	}
	if err := AppendRunIndex(base, RunIndexEntry{}); err == nil {
		t.Fatal("expected error for missing experiment id")
	}
}

func TestListRunIndexMissingFile(t *testing.T) {
	index, err := ListRunIndex(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index, got %+v", index)
	}
}

func TestRecordAnalysisAttachesFilesToIndexedRun(t *testing.T) {
	base := t.TempDir()
	if ok, err := RecordAnalysis(base, "a", AnalysisFiles{MetricsJSON: "x.json"}); err != nil || ok {
		t.Fatalf("expected unindexed run to be ignored, ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(base, runIndexFile)); !os.IsNotExist(err) {
		t.Fatalf("expected no index file for an unindexed run, got %v", err)
	}

	if err := AppendRunIndex(base, RunIndexEntry{ExperimentID: "a", CSVPath: "a.csv", CreatedAtUTC: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	files := AnalysisFiles{MetricsText: "a_metrics.txt", MetricsJSON: "a_metrics.json", Plot: "a_plot.json"}
	if ok, err := RecordAnalysis(base, "a", files); err != nil || !ok {
		t.Fatalf("record analysis: ok=%v err=%v", ok, err)
	}
	// Re-indexing the run keeps its analysis.
	if err := AppendRunIndex(base, RunIndexEntry{ExperimentID: "a", CSVPath: "a.csv", CreatedAtUTC: "2026-01-01T00:00:00Z", RecordCount: 9}); err != nil {
		t.Fatalf("re-append: %v", err)
	}

	entry, ok, err := LookupRunIndex(base, func(e RunIndexEntry) bool { return e.CSVPath == "a.csv" })
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if entry.RecordCount != 9 || entry.Analysis == nil || *entry.Analysis != files {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if _, ok, _ := LookupRunIndex(base, func(e RunIndexEntry) bool { return e.ExperimentID == "b" }); ok {
		t.Fatal("expected no match for unknown run")
	}
}

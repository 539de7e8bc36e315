package storage

import (
	"context"
	"errors"
	"testing"

	"gossipsim/internal/model"
)

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveExperiment(context.Background(), model.Experiment{ID: "e1"}); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestMemoryStoreExperimentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	older := model.Experiment{ID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", RecordCount: 3}
	newer := model.Experiment{ID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z", RecordCount: 4}
	for _, e := range []model.Experiment{older, newer} {
		if err := store.SaveExperiment(ctx, e); err != nil {
			t.Fatalf("save %s: %v", e.ID, err)
		}
	}
	if err := store.SaveExperiment(ctx, model.Experiment{}); err == nil {
		t.Fatal("expected missing id error")
	}

	loaded, ok, err := store.GetExperiment(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get experiment: ok=%v err=%v", ok, err)
	}
	if loaded.RecordCount != 3 || loaded.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("unexpected experiment: %+v", loaded)
	}

	list, err := store.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	if _, ok, err := store.GetExperiment(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing experiment, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreRecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.Record{{Time: 0, Run: 0, AwareFraction: 0.1}, {Time: 1, Run: 0, AwareFraction: 0.3}}
	if err := store.SaveRecords(ctx, "e1", input); err != nil {
		t.Fatalf("save records: %v", err)
	}
	input[0].AwareFraction = 0.9

	output, ok, err := store.GetRecords(ctx, "e1")
	if err != nil || !ok {
		t.Fatalf("get records: ok=%v err=%v", ok, err)
	}
	if output[0].AwareFraction != 0.1 {
		t.Fatalf("expected stored copy, got %+v", output)
	}
	output[1].AwareFraction = 0.8
	again, _, _ := store.GetRecords(ctx, "e1")
	if again[1].AwareFraction != 0.3 {
		t.Fatalf("expected returned copy, got %+v", again)
	}

	if err := store.SaveRecords(ctx, "empty", nil); err != nil {
		t.Fatalf("save empty records: %v", err)
	}
	empty, ok, err := store.GetRecords(ctx, "empty")
	if err != nil || !ok || len(empty) != 0 {
		t.Fatalf("expected empty stored set, got %+v ok=%v err=%v", empty, ok, err)
	}
}

func TestMemoryStoreMetricsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	t50 := 2.0
	input := model.CurveMetrics{
		Times: []float64{0, 1, 2},
		Mean:  []float64{0.1, 0.3, 0.6},
		T50:   &t50,
	}
	if err := store.SaveMetrics(ctx, "e1", input); err != nil {
		t.Fatalf("save metrics: %v", err)
	}
	t50 = 99

	output, ok, err := store.GetMetrics(ctx, "e1")
	if err != nil || !ok {
		t.Fatalf("get metrics: ok=%v err=%v", ok, err)
	}
	if output.T50 == nil || *output.T50 != 2 || output.T90 != nil {
		t.Fatalf("unexpected metrics: %+v", output)
	}
	if output.CodecVersion != CurrentCodecVersion {
		t.Fatalf("expected stamped codec version, got %+v", output.VersionedRecord)
	}
}

package stats

import "testing"

func TestCrossingTimesSampleResolution(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4}
	curve := []float64{0.0, 0.2, 0.5, 0.8, 1.0}

	c, err := CrossingTimes(times, curve)
	if err != nil {
		t.Fatalf("crossing times: %v", err)
	}
	expect := map[string]struct {
		got  *float64
		want float64
	}{
		"t10":    {c.T10, 1},
		"t50":    {c.T50, 2},
		"t90":    {c.T90, 4},
		"t99":    {c.T99, 4},
		"t10_90": {c.T10To90, 3},
	}
	for name, e := range expect {
		if e.got == nil {
			t.Fatalf("%s: expected %v, got unreached", name, e.want)
		}
		if *e.got != e.want {
			t.Fatalf("%s: expected %v, got %v", name, e.want, *e.got)
		}
	}
}

func TestCrossingTimesUnreached(t *testing.T) {
	c, err := CrossingTimes([]float64{0, 0.5}, []float64{0.05, 0.3})
	if err != nil {
		t.Fatalf("crossing times: %v", err)
	}
	if c.T10 == nil || *c.T10 != 0.5 {
		t.Fatalf("expected t10=0.5, got %v", c.T10)
	}
	if c.T50 != nil || c.T90 != nil || c.T99 != nil {
		t.Fatalf("expected unreached thresholds, got %+v", c)
	}
	if c.T10To90 != nil {
		t.Fatalf("expected undefined spread, got %v", *c.T10To90)
	}
}

func TestFirstCrossingInclusive(t *testing.T) {
	at, ok := FirstCrossing([]float64{0, 10, 20}, []float64{0.05, 0.5, 0.5}, 0.5)
	if !ok || at != 10 {
		t.Fatalf("expected inclusive crossing at 10, got %v %v", at, ok)
	}
	if _, ok := FirstCrossing(nil, nil, 0.1); ok {
		t.Fatal("expected no crossing on empty curve")
	}
}

func TestCrossingTimesLengthMismatch(t *testing.T) {
	if _, err := CrossingTimes([]float64{0}, []float64{0.1, 0.2}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

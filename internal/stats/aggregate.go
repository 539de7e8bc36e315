package stats

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"gossipsim/internal/model"
)

var (
	ErrNoRecords      = errors.New("no records to analyze")
	ErrUnresolvedCell = errors.New("matrix has unresolved cells")
)

// Matrix aligns per-run samples on a shared time axis. Rows follow Times,
// columns follow Runs. A cell is only meaningful when its validity bit is set.
type Matrix struct {
	Times []float64
	Runs  []int

	values []float64
	valid  []bool
}

// BuildMatrix places every record into its (time, run) cell. When a cell is
// recorded twice the later record wins.
func BuildMatrix(records []model.Record) (*Matrix, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	times := make([]float64, 0, len(records))
	runs := make([]int, 0, 16)
	for i, r := range records {
		if math.IsNaN(r.Time) || math.IsInf(r.Time, 0) {
			return nil, fmt.Errorf("record %d: time must be finite, got %v", i, r.Time)
		}
		if math.IsNaN(r.AwareFraction) || r.AwareFraction < 0 || r.AwareFraction > 1 {
			return nil, fmt.Errorf("record %d: aware fraction must be in [0, 1], got %v", i, r.AwareFraction)
		}
		times = append(times, r.Time)
		runs = append(runs, r.Run)
	}
	slices.Sort(times)
	times = slices.Compact(times)
	slices.Sort(runs)
	runs = slices.Compact(runs)

	m := &Matrix{
		Times:  times,
		Runs:   runs,
		values: make([]float64, len(times)*len(runs)),
		valid:  make([]bool, len(times)*len(runs)),
	}
	for _, r := range records {
		row, _ := slices.BinarySearch(m.Times, r.Time)
		col, _ := slices.BinarySearch(m.Runs, r.Run)
		m.set(row, col, r.AwareFraction)
	}
	return m, nil
}

func (m *Matrix) At(row, col int) (float64, bool) {
	i := row*len(m.Runs) + col
	return m.values[i], m.valid[i]
}

// Column returns the values of one run; unresolved cells read as NaN.
func (m *Matrix) Column(col int) []float64 {
	out := make([]float64, len(m.Times))
	for row := range m.Times {
		v, ok := m.At(row, col)
		if !ok {
			v = math.NaN()
		}
		out[row] = v
	}
	return out
}

func (m *Matrix) Unresolved() int {
	count := 0
	for _, ok := range m.valid {
		if !ok {
			count++
		}
	}
	return count
}

// FillGaps resolves every cell column by column: forward-fill from the last
// known value, then backward-fill leading gaps from the first known value,
// then default anything left to 0.
func (m *Matrix) FillGaps() {
	for col := range m.Runs {
		values := m.Column(col)
		fillColumn(values)
		for row, v := range values {
			m.set(row, col, v)
		}
	}
}

// fillColumn replaces NaN entries in place.
func fillColumn(values []float64) {
	first := -1
	last := math.NaN()
	for i, v := range values {
		if !math.IsNaN(v) {
			if first < 0 {
				first = i
			}
			last = v
			continue
		}
		values[i] = last
	}
	if first < 0 {
		for i := range values {
			values[i] = 0
		}
		return
	}
	for i := 0; i < first; i++ {
		values[i] = values[first]
	}
}

// MeanStd returns the per-time arithmetic mean and population standard
// deviation across runs. The matrix must be fully resolved.
func MeanStd(m *Matrix) (mean, std []float64, err error) {
	if n := m.Unresolved(); n > 0 {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrUnresolvedCell, n, len(m.valid))
	}
	mean = make([]float64, len(m.Times))
	std = make([]float64, len(m.Times))
	row := make([]float64, len(m.Runs))
	for r := range m.Times {
		for c := range m.Runs {
			row[c], _ = m.At(r, c)
		}
		if mean[r], err = Avg(row); err != nil {
			return nil, nil, fmt.Errorf("mean at t=%v: %w", m.Times[r], err)
		}
		if std[r], err = Std(row); err != nil {
			return nil, nil, fmt.Errorf("std at t=%v: %w", m.Times[r], err)
		}
	}
	return mean, std, nil
}

func (m *Matrix) set(row, col int, v float64) {
	i := row*len(m.Runs) + col
	m.values[i] = v
	m.valid[i] = true
}

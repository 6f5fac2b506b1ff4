package normalizer

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Scaler rescales every column of a feature matrix in place.
type Scaler interface {
	Scale(m *mat.Dense) error
}

// BatchMinMaxScaler fits min/max per column on the batch itself and maps each
// column to [0,1]. A constant column maps to all zeros.
type BatchMinMaxScaler struct{}

func (BatchMinMaxScaler) Scale(m *mat.Dense) error {
	rows, cols := m.Dims()
	if rows == 0 {
		return nil
	}
	for c := 0; c < cols; c++ {
		lo, hi := m.At(0, c), m.At(0, c)
		for r := 1; r < rows; r++ {
			v := m.At(r, c)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		span := hi - lo
		for r := 0; r < rows; r++ {
			if span == 0 {
				m.Set(r, c, 0)
				continue
			}
			m.Set(r, c, (m.At(r, c)-lo)/span)
		}
	}
	return nil
}

// FixedRangeScaler applies per-column min/max bounds persisted alongside the
// model weights, so scores stay comparable across batches.
type FixedRangeScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// LoadFixedRangeScaler reads a JSON artifact holding per-column bounds.
func LoadFixedRangeScaler(path string) (*FixedRangeScaler, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler artifact: %w", err)
	}
	var scaler FixedRangeScaler
	if err := json.Unmarshal(payload, &scaler); err != nil {
		return nil, fmt.Errorf("failed to parse scaler artifact: %w", err)
	}
	if len(scaler.Min) == 0 || len(scaler.Min) != len(scaler.Max) {
		return nil, fmt.Errorf("scaler artifact has mismatched bounds: %d min, %d max", len(scaler.Min), len(scaler.Max))
	}
	return &scaler, nil
}

func (s *FixedRangeScaler) Scale(m *mat.Dense) error {
	rows, cols := m.Dims()
	if cols > len(s.Min) {
		return fmt.Errorf("scaler covers %d columns, matrix has %d", len(s.Min), cols)
	}
	for c := 0; c < cols; c++ {
		span := s.Max[c] - s.Min[c]
		for r := 0; r < rows; r++ {
			if span == 0 {
				m.Set(r, c, 0)
				continue
			}
			v := (m.At(r, c) - s.Min[c]) / span
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			m.Set(r, c, v)
		}
	}
	return nil
}

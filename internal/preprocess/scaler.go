package preprocess

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// zeroScale is ten float64 machine epsilons. A standard deviation below it is
// treated as zero and replaced with 1.
const zeroScale = 10 * 2.220446049250313e-16

// StandardScaler holds per-column means and scales learned from training
// data. Scale is the population standard deviation, or 1 for constant
// columns.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitStandardScaler learns mean and scale for each column.
func FitStandardScaler(columns [][]float64) StandardScaler {
	s := StandardScaler{
		Mean:  make([]float64, len(columns)),
		Scale: make([]float64, len(columns)),
	}
	for j, col := range columns {
		// A constant column centers on its own value so it transforms to exact
		// zeros; a summed mean can be off by a few ulps.
		if len(col) > 0 && floats.Min(col) == floats.Max(col) {
			s.Mean[j] = col[0]
			s.Scale[j] = 1
			continue
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		std := math.Sqrt(variance)
		if math.IsNaN(std) || std < zeroScale {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s
}

// Apply standardizes value v of column j.
func (s StandardScaler) Apply(j int, v float64) float64 {
	return (v - s.Mean[j]) / s.Scale[j]
}

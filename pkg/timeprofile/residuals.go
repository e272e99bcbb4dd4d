package timeprofile

import (
	"gonum.org/v1/gonum/stat"
)

// ResidualStats summarises the difference between raw and smoothed times.
type ResidualStats struct {
	// Mean of raw - smoothed; the systematic offset of the raw times
	Mean float64

	// StdDev is the sample standard deviation of raw - smoothed
	StdDev float64
}

// Residuals returns the mean and standard deviation of raw - smoothed over the
// common length of the two series. StdDev is zero for fewer than two samples.
func Residuals(raw, smoothed []float64) ResidualStats {
	n := min(len(raw), len(smoothed))
	if n == 0 {
		return ResidualStats{}
	}

	diffs := make([]float64, n)
	for i := range diffs {
		diffs[i] = raw[i] - smoothed[i]
	}

	if n == 1 {
		return ResidualStats{Mean: diffs[0]}
	}
	mean, std := stat.MeanStdDev(diffs, nil)
	return ResidualStats{Mean: mean, StdDev: std}
}

package timeprofile

// TimeSeries pairs along-path distances with elapsed times, ordered by
// distance then time.
type TimeSeries struct {
	Distances []float64
	Times     []float64
}

// Len returns the number of samples.
func (s TimeSeries) Len() int {
	return len(s.Distances)
}

// Smooth returns a new series with the same distances and times smoothed by
// SmoothTimes. The receiver is not modified.
func (s TimeSeries) Smooth(windowSize, iterations int, maxSpeed float64) (TimeSeries, error) {
	times, err := SmoothTimes(s.Distances, s.Times, windowSize, iterations, maxSpeed)
	if err != nil {
		return TimeSeries{}, err
	}
	distances := make([]float64, len(s.Distances))
	copy(distances, s.Distances)
	return TimeSeries{Distances: distances, Times: times}, nil
}

// Speeds returns the ground speed over the leg ending at each sample.
func (s TimeSeries) Speeds() []float64 {
	return LegSpeeds(s.Distances, s.Times)
}

// Residuals compares the raw times of s with those of smoothed.
func (s TimeSeries) Residuals(smoothed TimeSeries) ResidualStats {
	return Residuals(s.Times, smoothed.Times)
}

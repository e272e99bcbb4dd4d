package timeprofile

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroundSpeed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, GroundSpeed(0, 5))
	assert.Equal(t, 0.0, GroundSpeed(10, 0))
	assert.Equal(t, 0.0, GroundSpeed(10, -1))
	assert.Equal(t, 2.0, GroundSpeed(10, 5))
}

func TestLegSpeeds(t *testing.T) {
	t.Parallel()

	speeds := LegSpeeds([]float64{0, 10, 10, 30}, []float64{0, 5, 5, 15})
	assert.Equal(t, []float64{0, 2, 0, 2}, speeds)
	assert.Empty(t, LegSpeeds(nil, nil))
}

func TestElapsedTimes(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{start, start.Add(4 * time.Second), start.Add(1500 * time.Millisecond)}

	assert.Equal(t, []float64{0, 4, 1.5}, ElapsedTimes(times))
	assert.Empty(t, ElapsedTimes(nil))
}

func TestFindDuplicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		distances []float64
		tolerance float64
		want      []bool
	}{
		{
			name:      "pairs within tolerance",
			distances: []float64{0, 0.001, 5, 5.0005},
			tolerance: 0.01,
			want:      []bool{false, true, false, true},
		},
		{
			name:      "decreasing distances compare by magnitude",
			distances: []float64{5, 4.995, 3},
			tolerance: 0.01,
			want:      []bool{false, true, false},
		},
		{
			name:      "zero tolerance flags nothing",
			distances: []float64{1, 1, 1},
			tolerance: 0,
			want:      []bool{false, false, false},
		},
		{
			name:      "single sample",
			distances: []float64{3},
			tolerance: 1,
			want:      []bool{false},
		},
		{
			name:      "empty",
			distances: nil,
			tolerance: 1,
			want:      []bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FindDuplicates(tt.distances, tt.tolerance))
		})
	}
}

// assertSpeedLimited checks times are non-decreasing and no leg exceeds maxSpeed.
func assertSpeedLimited(t *testing.T, distances, times []float64, maxSpeed float64) {
	t.Helper()
	for i := 1; i < len(times); i++ {
		leg := distances[i] - distances[i-1]
		dur := times[i] - times[i-1]
		assert.GreaterOrEqual(t, dur, -1e-9, "leg %d runs backwards", i)
		if leg > 0 {
			assert.LessOrEqual(t, leg, maxSpeed*dur*(1+1e-9)+1e-9, "leg %d too fast", i)
		}
	}
}

func TestSmoothTimes(t *testing.T) {
	t.Parallel()

	t.Run("preserves endpoints and speed limit", func(t *testing.T) {
		t.Parallel()
		distances := []float64{0, 10, 20, 40}
		times := []float64{0, 58, 121, 240}

		smoothed, err := SmoothTimes(distances, times, 3, 2, 500)
		require.NoError(t, err)
		require.Len(t, smoothed, 4)

		assert.Equal(t, 0.0, smoothed[0])
		assert.Equal(t, 240.0, smoothed[3])
		assertSpeedLimited(t, distances, smoothed, 500)
		assert.Equal(t, []float64{0, 58, 121, 240}, times, "input modified")
	})

	t.Run("constant speed is unchanged", func(t *testing.T) {
		t.Parallel()
		n := 20
		distances := make([]float64, n)
		times := make([]float64, n)
		for i := range n {
			distances[i] = float64(i) * 2
			times[i] = float64(i) * 10
		}

		smoothed, err := SmoothTimes(distances, times, 5, 3, 1)
		require.NoError(t, err)
		assert.InDeltaSlice(t, times, smoothed, 1e-9)
	})

	t.Run("removes timing noise", func(t *testing.T) {
		t.Parallel()
		rng := rand.New(rand.NewSource(7))
		n := 200
		distances := make([]float64, n)
		truth := make([]float64, n)
		noisy := make([]float64, n)
		for i := range n {
			distances[i] = float64(i) * 0.1
			truth[i] = float64(i) * 1.0
			noisy[i] = truth[i] + rng.NormFloat64()*0.3
		}
		noisy[0], noisy[n-1] = truth[0], truth[n-1]

		smoothed, err := SmoothTimes(distances, noisy, 15, 2, 1)
		require.NoError(t, err)

		rawErr := Residuals(noisy, truth).StdDev
		smoothErr := Residuals(smoothed, truth).StdDev
		assert.Less(t, smoothErr, rawErr)
		assertSpeedLimited(t, distances, smoothed, 1)
	})

	t.Run("speed limit enforced on a spike", func(t *testing.T) {
		t.Parallel()
		distances := []float64{0, 1, 2, 3, 4, 5, 6}
		times := []float64{0, 10, 11, 30, 40, 50, 60}

		smoothed, err := SmoothTimes(distances, times, 1, 1, 0.2)
		require.NoError(t, err)

		assert.Equal(t, 0.0, smoothed[0])
		assert.Equal(t, 60.0, smoothed[6])
		assertSpeedLimited(t, distances, smoothed, 0.2)
	})

	t.Run("zero iterations still applies the speed limit", func(t *testing.T) {
		t.Parallel()
		distances := []float64{0, 5, 10}
		times := []float64{0, 1, 100}

		smoothed, err := SmoothTimes(distances, times, 3, 0, 0.1)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{0, 50, 100}, smoothed, 1e-9)
	})

	t.Run("duplicate distances", func(t *testing.T) {
		t.Parallel()
		distances := []float64{0, 0, 0, 5, 5}
		times := []float64{0, 3, 6, 9, 12}

		smoothed, err := SmoothTimes(distances, times, 3, 2, 10)
		require.NoError(t, err)
		for _, v := range smoothed {
			assert.False(t, math.IsNaN(v))
		}
		assertSpeedLimited(t, distances, smoothed, 10)
	})

	t.Run("window may cover the whole series", func(t *testing.T) {
		t.Parallel()
		smoothed, err := SmoothTimes([]float64{0, 1}, []float64{0, 1}, 2, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1}, smoothed)
	})
}

func TestSmoothTimesErrors(t *testing.T) {
	t.Parallel()

	d := []float64{0, 1, 2}
	tm := []float64{0, 10, 20}

	tests := []struct {
		name       string
		distances  []float64
		times      []float64
		window     int
		iterations int
		maxSpeed   float64
		want       error
	}{
		{"too few samples", []float64{0}, []float64{0}, 1, 1, 1, ErrDegenerateInput},
		{"length mismatch", d, []float64{0, 1}, 1, 1, 1, ErrDegenerateInput},
		{"decreasing distance", []float64{0, 2, 1}, tm, 1, 1, 1, ErrDegenerateInput},
		{"single distinct distance", []float64{0, 0, 0}, tm, 3, 1, 1, ErrDegenerateInput},
		{"non-finite time", d, []float64{0, math.NaN(), 20}, 1, 1, 1, ErrDegenerateInput},
		{"window too small", d, tm, 0, 1, 1, ErrInvalidWindow},
		{"window too large", d, tm, 4, 1, 1, ErrInvalidWindow},
		{"negative iterations", d, tm, 1, -1, 1, ErrInvalidIterations},
		{"zero max speed", d, tm, 1, 1, 0, ErrInvalidMaxSpeed},
		{"NaN max speed", d, tm, 1, 1, math.NaN(), ErrInvalidMaxSpeed},
		{"infeasible", d, tm, 1, 1, 0.05, ErrSpeedLimitInfeasible},
		{"end before start", []float64{0, 1}, []float64{10, 5}, 1, 1, 1, ErrSpeedLimitInfeasible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := SmoothTimes(tt.distances, tt.times, tt.window, tt.iterations, tt.maxSpeed)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResiduals(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ResidualStats{}, Residuals(nil, nil))
	assert.Equal(t, ResidualStats{Mean: 2}, Residuals([]float64{3}, []float64{1}))

	stats := Residuals([]float64{1, 2, 3, 4}, []float64{0, 1, 2, 3})
	assert.InDelta(t, 1.0, stats.Mean, 1e-12)
	assert.InDelta(t, 0.0, stats.StdDev, 1e-12)

	stats = Residuals([]float64{2, 0}, []float64{0, 0})
	assert.InDelta(t, 1.0, stats.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt2, stats.StdDev, 1e-12)
}

func TestTimeSeries(t *testing.T) {
	t.Parallel()

	raw := TimeSeries{
		Distances: []float64{0, 10, 20, 40},
		Times:     []float64{0, 58, 121, 240},
	}

	smoothed, err := raw.Smooth(3, 2, 500)
	require.NoError(t, err)
	require.Equal(t, raw.Len(), smoothed.Len())

	assert.Equal(t, raw.Distances, smoothed.Distances)
	smoothed.Distances[1] = 99
	assert.Equal(t, 10.0, raw.Distances[1], "distances shared with input")
	smoothed.Distances[1] = 10

	speeds := smoothed.Speeds()
	assert.Equal(t, 0.0, speeds[0])
	for _, s := range speeds {
		assert.LessOrEqual(t, s, 500.0)
	}

	residuals := raw.Residuals(smoothed)
	assert.Equal(t, Residuals(raw.Times, smoothed.Times), residuals)

	_, err = TimeSeries{Distances: []float64{0}, Times: []float64{0}}.Smooth(1, 1, 1)
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

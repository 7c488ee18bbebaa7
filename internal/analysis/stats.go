package analysis

import (
	"errors"
	"math"
)

// ErrTooShort is returned when a series has too few samples for a statistic.
var ErrTooShort = errors.New("analysis: series too short")

// Summary describes a sampled series.
type Summary struct {
	N     int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
	Slope float64 // least-squares trend per timestep
	Span  int64   // last minus first timestep
}

// Summarize computes a Summary of values sampled at steps. steps may be nil,
// in which case samples are taken to be one timestep apart.
func Summarize(steps []int64, values []float64) Summary {
	s := Summary{N: len(values)}
	if s.N == 0 {
		return s
	}
	if steps == nil {
		steps = make([]int64, len(values))
		for i := range steps {
			steps[i] = int64(i)
		}
	}

	s.Min, s.Max = values[0], values[0]
	var sumX, sumY float64
	for i, v := range values {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		sumX += float64(steps[i])
		sumY += v
	}
	n := float64(s.N)
	s.Mean = sumY / n
	meanX := sumX / n
	s.Span = steps[len(steps)-1] - steps[0]

	var sxx, sxy, syy float64
	for i, v := range values {
		dx := float64(steps[i]) - meanX
		dy := v - s.Mean
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	s.Std = math.Sqrt(syy / n)
	if sxx > 0 {
		s.Slope = sxy / sxx
	}
	return s
}

// Autocorrelation returns the normalized autocorrelation for lags
// 0..maxLag. A constant series has no defined correlation and yields 1 at
// lag 0 and 0 elsewhere.
func Autocorrelation(values []float64, maxLag int) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	maxLag = min(maxLag, n-1)

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var c0 float64
	for _, v := range values {
		c0 += (v - mean) * (v - mean)
	}

	acf := make([]float64, maxLag+1)
	acf[0] = 1
	if c0 == 0 {
		return acf
	}
	for lag := 1; lag <= maxLag; lag++ {
		var c float64
		for i := 0; i+lag < n; i++ {
			c += (values[i] - mean) * (values[i+lag] - mean)
		}
		acf[lag] = c / c0
	}
	return acf
}

// BlockAverage splits values into blocks equal-size blocks, dropping the
// remainder, and returns the grand mean with the standard error of the
// block means.
func BlockAverage(values []float64, blocks int) (mean, stderr float64, err error) {
	if blocks < 2 || len(values) < blocks {
		return 0, 0, ErrTooShort
	}
	size := len(values) / blocks

	means := make([]float64, blocks)
	for b := range blocks {
		for _, v := range values[b*size : (b+1)*size] {
			means[b] += v
		}
		means[b] /= float64(size)
		mean += means[b]
	}
	mean /= float64(blocks)

	var ss float64
	for _, m := range means {
		ss += (m - mean) * (m - mean)
	}
	stderr = math.Sqrt(ss / float64(blocks*(blocks-1)))
	return mean, stderr, nil
}

// Package analysis characterizes sampled time series such as temperature
// or potential energy recorded during a run.
//
//   - [PowerSpectrum] and [DominantFrequency]: spectral content via FFT
//   - [Autocorrelation]: normalized autocorrelation up to a lag
//   - [BlockAverage]: mean with a block-averaged standard error
//   - [Summarize]: count, mean, spread and linear trend
//
// # Equilibration
//
// A run is usually considered equilibrated once the trend of its total
// energy is small against its fluctuations:
//
//	s := analysis.Summarize(steps, etotal)
//	if math.Abs(s.Slope)*float64(s.Span) < s.Std {
//	    // no significant trend
//	}
package analysis

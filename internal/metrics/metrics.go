// Package metrics accumulates summary statistics over a sampled scalar
// series, one observation at a time.
package metrics

import (
	"fmt"
	"math"
)

// Metric observes samples of one series.
type Metric interface {
	Name() string
	Observe(timestep int64, v float64)
	Value() float64
	Reset()
}

// New builds a metric by name.
func New(name string, threshold float64) (Metric, error) {
	switch name {
	case "mean":
		return NewMean(), nil
	case "stddev":
		return NewStddev(), nil
	case "drift":
		return NewDrift(), nil
	case "bounded":
		return NewBounded(threshold), nil
	default:
		return nil, fmt.Errorf("metrics: unknown metric %q", name)
	}
}

// Names lists the metrics New accepts.
func Names() []string { return []string{"bounded", "drift", "mean", "stddev"} }

type Mean struct {
	sum     float64
	samples int
}

func NewMean() *Mean { return &Mean{} }

func (m *Mean) Name() string { return "mean" }

func (m *Mean) Observe(_ int64, v float64) {
	m.sum += v
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() { *m = Mean{} }

// Stddev is the population standard deviation, using Welford's update.
type Stddev struct {
	mean    float64
	m2      float64
	samples int
}

func NewStddev() *Stddev { return &Stddev{} }

func (s *Stddev) Name() string { return "stddev" }

func (s *Stddev) Observe(_ int64, v float64) {
	s.samples++
	d := v - s.mean
	s.mean += d / float64(s.samples)
	s.m2 += d * (v - s.mean)
}

func (s *Stddev) Value() float64 {
	if s.samples < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.samples))
}

func (s *Stddev) Reset() { *s = Stddev{} }

// Drift is the largest relative deviation from the first sample. For a
// conserved quantity such as total energy it measures integration error.
type Drift struct {
	initial  float64
	maxDrift float64
	samples  int
}

func NewDrift() *Drift { return &Drift{} }

func (d *Drift) Name() string { return "drift" }

func (d *Drift) Observe(_ int64, v float64) {
	if d.samples == 0 {
		d.initial = v
	}
	d.samples++

	if d.initial != 0 {
		d.maxDrift = math.Max(d.maxDrift, math.Abs(v-d.initial)/math.Abs(d.initial))
	}
}

func (d *Drift) Value() float64 { return d.maxDrift }

func (d *Drift) Reset() { *d = Drift{} }

// Bounded is the fraction of samples whose magnitude stayed within the
// threshold. Non-finite samples always count as violations.
type Bounded struct {
	threshold  float64
	violations int
	samples    int
}

func NewBounded(threshold float64) *Bounded {
	return &Bounded{threshold: threshold}
}

func (b *Bounded) Name() string { return "bounded" }

func (b *Bounded) Observe(_ int64, v float64) {
	b.samples++
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > b.threshold {
		b.violations++
	}
}

func (b *Bounded) Value() float64 {
	if b.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(b.violations)/float64(b.samples)
}

func (b *Bounded) Reset() {
	b.violations = 0
	b.samples = 0
}

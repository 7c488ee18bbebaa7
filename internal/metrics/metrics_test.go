package metrics

import (
	"math"
	"testing"
)

func observeAll(m Metric, values ...float64) {
	for i, v := range values {
		m.Observe(int64(i), v)
	}
}

func TestMean(t *testing.T) {
	m := NewMean()
	if m.Value() != 0 {
		t.Errorf("expected 0 with no samples, got %f", m.Value())
	}

	observeAll(m, 1, 2, 3, 4)
	if math.Abs(m.Value()-2.5) > 1e-12 {
		t.Errorf("expected mean 2.5, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero mean after reset")
	}
}

func TestStddev(t *testing.T) {
	s := NewStddev()
	observeAll(s, 2, 4, 4, 4, 5, 5, 7, 9)
	if math.Abs(s.Value()-2) > 1e-9 {
		t.Errorf("expected stddev 2, got %f", s.Value())
	}

	s.Reset()
	s.Observe(0, 10)
	if s.Value() != 0 {
		t.Errorf("expected 0 for a single sample, got %f", s.Value())
	}
}

func TestDrift(t *testing.T) {
	d := NewDrift()
	observeAll(d, -4, -4.1, -3.8, -4)
	if math.Abs(d.Value()-0.05) > 1e-12 {
		t.Errorf("expected drift 0.05, got %f", d.Value())
	}

	d.Reset()
	observeAll(d, 0, 1)
	if d.Value() != 0 {
		t.Errorf("drift from zero should stay 0, got %f", d.Value())
	}
}

func TestBounded(t *testing.T) {
	b := NewBounded(10)
	if b.Value() != 1 {
		t.Errorf("expected 1 with no samples, got %f", b.Value())
	}

	observeAll(b, 1, -20, math.NaN(), 5)
	if b.Value() != 0.5 {
		t.Errorf("expected 0.5, got %f", b.Value())
	}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		m, err := New(name, 1)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if m.Name() != name {
			t.Errorf("expected name %q, got %q", name, m.Name())
		}
	}

	if _, err := New("entropy", 0); err == nil {
		t.Error("expected error for unknown metric")
	}
}

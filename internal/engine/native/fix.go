package native

import (
	"fmt"
	"strconv"

	"github.com/san-kum/mdctl/internal/modifier"
)

// fixNVE integrates positions and velocities with velocity Verlet.
type fixNVE struct{}

func (fixNVE) shape() modifier.Shape        { return modifier.None }
func (fixNVE) value(*Engine) modifier.Value { return modifier.Value{} }

func (fixNVE) initialIntegrate(e *Engine) {
	dtf := 0.5 * e.dt * e.units.ftm2v
	for i := 0; i < e.atoms.n(); i++ {
		dtfm := dtf / e.masses[e.atoms.typ[i]]
		for d := 0; d < 3; d++ {
			e.atoms.v[3*i+d] += dtfm * e.atoms.f[3*i+d]
			e.atoms.x[3*i+d] += e.dt * e.atoms.v[3*i+d]
		}
	}
}

func (fixNVE) finalIntegrate(e *Engine) {
	dtf := 0.5 * e.dt * e.units.ftm2v
	for i := 0; i < e.atoms.n(); i++ {
		dtfm := dtf / e.masses[e.atoms.typ[i]]
		for d := 0; d < 3; d++ {
			e.atoms.v[3*i+d] += dtfm * e.atoms.f[3*i+d]
		}
	}
}

// fixSetForce overrides force components. Its vector is the total force
// before the override.
type fixSetForce struct {
	set      [3]bool
	value3   [3]float64
	original [3]float64
}

func newFixSetForce(e *Engine, args []string) (fix, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("Illegal fix setforce command")
	}
	f := &fixSetForce{}
	for d, a := range args {
		if a == "NULL" {
			continue
		}
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("Illegal fix setforce command: %q", a)
		}
		f.set[d] = true
		f.value3[d] = v
	}
	return f, nil
}

func (f *fixSetForce) shape() modifier.Shape { return modifier.Vector }

func (f *fixSetForce) value(*Engine) modifier.Value {
	return modifier.Value{Shape: modifier.Vector, Vector: append([]float64(nil), f.original[:]...)}
}

func (f *fixSetForce) postForce(e *Engine) {
	f.original = [3]float64{}
	for i := 0; i < e.atoms.n(); i++ {
		for d := 0; d < 3; d++ {
			f.original[d] += e.atoms.f[3*i+d]
			if f.set[d] {
				e.atoms.f[3*i+d] = f.value3[d]
			}
		}
	}
}

// fixMomentum removes centre-of-mass drift every n steps.
type fixMomentum struct {
	every  int
	linear [3]bool
}

func newFixMomentum(e *Engine, args []string) (fix, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("Illegal fix momentum command")
	}
	every, err := strconv.Atoi(args[0])
	if err != nil || every < 1 {
		return nil, fmt.Errorf("Illegal fix momentum command: bad interval %q", args[0])
	}
	f := &fixMomentum{every: every, linear: [3]bool{true, true, true}}
	if len(args) >= 5 && args[1] == "linear" {
		for d := 0; d < 3; d++ {
			f.linear[d] = args[2+d] != "0"
		}
	}
	return f, nil
}

func (f *fixMomentum) shape() modifier.Shape        { return modifier.None }
func (f *fixMomentum) value(*Engine) modifier.Value { return modifier.Value{} }

func (f *fixMomentum) endOfStep(e *Engine) {
	if e.ntimestep%int64(f.every) != 0 {
		return
	}
	var p [3]float64
	total := 0.0
	for i := 0; i < e.atoms.n(); i++ {
		m := e.masses[e.atoms.typ[i]]
		for d := 0; d < 3; d++ {
			p[d] += m * e.atoms.v[3*i+d]
		}
		total += m
	}
	if total == 0 {
		return
	}
	for i := 0; i < e.atoms.n(); i++ {
		for d := 0; d < 3; d++ {
			if f.linear[d] {
				e.atoms.v[3*i+d] -= p[d] / total
			}
		}
	}
}

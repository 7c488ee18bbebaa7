package native

import (
	"fmt"
	"strings"
)

// advance runs one velocity Verlet timestep through the fix hooks.
func (e *Engine) advance() {
	for _, f := range e.fixes {
		if h, ok := f.f.(initialIntegrator); ok {
			h.initialIntegrate(e)
		}
	}

	e.ntimestep++
	if e.neighborDue() {
		e.buildNeighbors()
	}
	e.computeForces()

	for _, f := range e.fixes {
		if h, ok := f.f.(postForcer); ok {
			h.postForce(e)
		}
	}
	for _, f := range e.fixes {
		if h, ok := f.f.(finalIntegrator); ok {
			h.finalIntegrate(e)
		}
	}
	for _, f := range e.fixes {
		if h, ok := f.f.(endOfStepper); ok {
			h.endOfStep(e)
		}
	}
}

var thermoColumns = []string{"Step", "Temp", "E_pair", "TotEng", "Press"}

func (e *Engine) printThermoHeader() {
	fmt.Fprintln(e.cfg.Print, strings.Join(thermoColumns, " "))
}

func (e *Engine) printThermo() {
	n := float64(max(e.atoms.n(), 1))
	ke := e.kinetic() / n
	pe := e.pe / n
	fmt.Fprintf(e.cfg.Print, "%d %.8g %.8g %.8g %.8g\n",
		e.ntimestep, e.temperature(), pe, pe+ke, e.pressure())
}

// pressure combines the kinetic term with the pair virial.
func (e *Engine) pressure() float64 {
	if e.box == nil || e.atoms.n() == 0 {
		return 0
	}
	n := float64(e.atoms.n())
	return (n*e.units.boltz*e.temperature() + e.virial/3) / e.box.volume() * e.units.nktv2p
}

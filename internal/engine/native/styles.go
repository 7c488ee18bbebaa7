package native

import (
	"fmt"
	"sort"

	"github.com/san-kum/mdctl/internal/modifier"
)

type compute interface {
	shape() modifier.Shape
	value(e *Engine) modifier.Value
}

type fix interface {
	shape() modifier.Shape
	value(e *Engine) modifier.Value
}

// Optional fix hooks, called at the matching point of each timestep.
type (
	initialIntegrator interface{ initialIntegrate(e *Engine) }
	postForcer        interface{ postForce(e *Engine) }
	finalIntegrator   interface{ finalIntegrate(e *Engine) }
	endOfStepper      interface{ endOfStep(e *Engine) }
)

type namedCompute struct {
	id, style string
	c         compute
}

type namedFix struct {
	id, style string
	f         fix
}

type computeFactory func(e *Engine, args []string) (compute, error)
type fixFactory func(e *Engine, args []string) (fix, error)

// registry maps style names to constructors.
type registry struct {
	computes map[string]computeFactory
	fixes    map[string]fixFactory
}

func newRegistry() *registry {
	r := &registry{
		computes: make(map[string]computeFactory),
		fixes:    make(map[string]fixFactory),
	}

	r.computes["temp"] = func(e *Engine, args []string) (compute, error) { return computeTemp{}, nil }
	r.computes["ke"] = func(e *Engine, args []string) (compute, error) { return computeKE{}, nil }
	r.computes["pe"] = func(e *Engine, args []string) (compute, error) { return computePE{}, nil }
	r.computes["com"] = func(e *Engine, args []string) (compute, error) { return computeCOM{}, nil }
	r.computes["rdf"] = newComputeRDF

	r.fixes["nve"] = func(e *Engine, args []string) (fix, error) { return fixNVE{}, nil }
	r.fixes["setforce"] = newFixSetForce
	r.fixes["momentum"] = newFixMomentum

	return r
}

var styles = newRegistry()

func (r *registry) compute(style string) (computeFactory, error) {
	fn, ok := r.computes[style]
	if !ok {
		return nil, fmt.Errorf("Unrecognized compute style '%s'", style)
	}
	return fn, nil
}

func (r *registry) fix(style string) (fixFactory, error) {
	fn, ok := r.fixes[style]
	if !ok {
		return nil, fmt.Errorf("Unrecognized fix style '%s'", style)
	}
	return fn, nil
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComputeStyles lists the compute styles the engine understands.
func ComputeStyles() []string { return sortedKeys(styles.computes) }

// FixStyles lists the fix styles the engine understands.
func FixStyles() []string { return sortedKeys(styles.fixes) }

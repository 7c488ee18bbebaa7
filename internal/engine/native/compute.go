package native

import (
	"fmt"
	"math"
	"strconv"

	"github.com/san-kum/mdctl/internal/modifier"
)

type computeTemp struct{}

func (computeTemp) shape() modifier.Shape { return modifier.Scalar }
func (computeTemp) value(e *Engine) modifier.Value {
	return modifier.Value{Shape: modifier.Scalar, Scalar: e.temperature()}
}

type computeKE struct{}

func (computeKE) shape() modifier.Shape { return modifier.Scalar }
func (computeKE) value(e *Engine) modifier.Value {
	return modifier.Value{Shape: modifier.Scalar, Scalar: e.kinetic()}
}

type computePE struct{}

func (computePE) shape() modifier.Shape { return modifier.Scalar }
func (computePE) value(e *Engine) modifier.Value {
	return modifier.Value{Shape: modifier.Scalar, Scalar: e.pe}
}

type computeCOM struct{}

func (computeCOM) shape() modifier.Shape { return modifier.Vector }
func (computeCOM) value(e *Engine) modifier.Value {
	var com [3]float64
	total := 0.0
	for i := 0; i < e.atoms.n(); i++ {
		m := e.masses[e.atoms.typ[i]]
		for d := 0; d < 3; d++ {
			com[d] += m * e.atoms.x[3*i+d]
		}
		total += m
	}
	if total > 0 {
		for d := range com {
			com[d] /= total
		}
	}
	return modifier.Value{Shape: modifier.Vector, Vector: com[:]}
}

// computeRDF histograms pair distances into bins rows of (r, g(r), coord(r)).
type computeRDF struct {
	bins int
	cut  float64
}

func newComputeRDF(e *Engine, args []string) (compute, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("Illegal compute rdf command")
	}
	bins, err := strconv.Atoi(args[0])
	if err != nil || bins < 1 {
		return nil, fmt.Errorf("Illegal compute rdf command: bad bin count %q", args[0])
	}
	c := computeRDF{bins: bins}
	if len(args) >= 3 && args[1] == "cutoff" {
		if c.cut, err = strconv.ParseFloat(args[2], 64); err != nil || c.cut <= 0 {
			return nil, fmt.Errorf("Illegal compute rdf command: bad cutoff %q", args[2])
		}
	}
	return c, nil
}

func (computeRDF) shape() modifier.Shape { return modifier.Array }

func (c computeRDF) cutoff(e *Engine) float64 {
	if c.cut > 0 {
		return c.cut
	}
	if e.pair != nil {
		return e.pair.maxCut()
	}
	if e.box == nil {
		return 1
	}
	return 0.5 * math.Min(e.box.length(0), math.Min(e.box.length(1), e.box.length(2)))
}

func (c computeRDF) value(e *Engine) modifier.Value {
	rows := make([][]float64, c.bins)
	cut := c.cutoff(e)
	dr := cut / float64(c.bins)
	hist := make([]float64, c.bins)

	n := e.atoms.n()
	if e.box != nil {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx, dy, dz := e.box.minimumImage(
					e.atoms.x[3*j]-e.atoms.x[3*i],
					e.atoms.x[3*j+1]-e.atoms.x[3*i+1],
					e.atoms.x[3*j+2]-e.atoms.x[3*i+2],
				)
				r := math.Sqrt(dx*dx + dy*dy + dz*dz)
				if r < cut {
					hist[min(int(r/dr), c.bins-1)] += 2
				}
			}
		}
	}

	rho := 0.0
	if e.box != nil && n > 0 {
		rho = float64(n) / e.box.volume()
	}
	coord := 0.0
	for b := 0; b < c.bins; b++ {
		rlo, rhi := float64(b)*dr, float64(b+1)*dr
		shell := 4.0 / 3.0 * math.Pi * (rhi*rhi*rhi - rlo*rlo*rlo)
		g := 0.0
		if rho > 0 {
			g = hist[b] / (float64(n) * rho * shell)
		}
		coord += rho * g * shell
		rows[b] = []float64{rlo + 0.5*dr, g, coord}
	}
	return modifier.Value{Shape: modifier.Array, Array: rows}
}

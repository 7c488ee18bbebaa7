package native

import (
	"fmt"
	"math"
)

type unitSystem struct {
	name   string
	boltz  float64
	mvv2e  float64
	ftm2v  float64
	// nktv2p converts energy/volume to pressure units.
	nktv2p float64
	dt     float64
	skin   float64
}

var unitSystems = map[string]unitSystem{
	"lj":    {name: "lj", boltz: 1, mvv2e: 1, ftm2v: 1, nktv2p: 1, dt: 0.005, skin: 0.3},
	"real":  {name: "real", boltz: 0.0019872067, mvv2e: 48.88821291 * 48.88821291, ftm2v: 1 / 48.88821291 / 48.88821291, nktv2p: 68568.415, dt: 1, skin: 2},
	"metal": {name: "metal", boltz: 8.617343e-5, mvv2e: 1.0364269e-4, ftm2v: 1 / 1.0364269e-4, nktv2p: 1.6021765e6, dt: 0.001, skin: 2},
}

var latticeBasis = map[string][][3]float64{
	"sc":  {{0, 0, 0}},
	"bcc": {{0, 0, 0}, {0.5, 0.5, 0.5}},
	"fcc": {{0, 0, 0}, {0.5, 0.5, 0}, {0.5, 0, 0.5}, {0, 0.5, 0.5}},
}

type lattice struct {
	style string
	scale float64
	a     float64
}

// newLattice derives the cubic lattice constant. In lj units scale is a
// reduced density; otherwise it is the lattice constant itself.
func newLattice(style string, scale float64, units unitSystem) (lattice, error) {
	if scale <= 0 {
		return lattice{}, fmt.Errorf("Illegal lattice command: scale must be positive")
	}
	if style == "none" {
		return lattice{style: style, scale: scale, a: scale}, nil
	}
	basis, ok := latticeBasis[style]
	if !ok {
		return lattice{}, fmt.Errorf("Unknown lattice style %s", style)
	}
	a := scale
	if units.name == "lj" {
		a = math.Cbrt(float64(len(basis)) / scale)
	}
	return lattice{style: style, scale: scale, a: a}, nil
}

func (l lattice) defined() bool { return l.style != "none" }

// region is an axis-aligned block in box units.
type region struct {
	lo, hi [3]float64
}

func (r region) contains(p [3]float64) bool {
	for d := 0; d < 3; d++ {
		if p[d] < r.lo[d] || p[d] >= r.hi[d] {
			return false
		}
	}
	return true
}

// box is the periodic orthogonal simulation cell.
type box struct {
	lo, hi [3]float64
}

func (b *box) length(d int) float64 { return b.hi[d] - b.lo[d] }

func (b *box) volume() float64 { return b.length(0) * b.length(1) * b.length(2) }

// minimumImage folds a separation vector into the nearest periodic image.
func (b *box) minimumImage(dx, dy, dz float64) (float64, float64, float64) {
	lx, ly, lz := b.length(0), b.length(1), b.length(2)
	dx -= lx * math.Round(dx/lx)
	dy -= ly * math.Round(dy/ly)
	dz -= lz * math.Round(dz/lz)
	return dx, dy, dz
}

func (b *box) wrap(p [3]float64) [3]float64 {
	for d := 0; d < 3; d++ {
		l := b.length(d)
		p[d] = b.lo[d] + math.Mod(p[d]-b.lo[d], l)
		if p[d] < b.lo[d] {
			p[d] += l
		}
		if p[d] >= b.hi[d] {
			p[d] -= l
		}
	}
	return p
}

// latticePoints returns every lattice site inside r. Sites on an upper face
// belong to the neighbouring periodic image and are skipped.
func latticePoints(l lattice, r region) [][3]float64 {
	basis := latticeBasis[l.style]
	eps := 1e-8 * l.a

	var lo, hi [3]int
	for d := 0; d < 3; d++ {
		lo[d] = int(math.Floor(r.lo[d]/l.a)) - 1
		hi[d] = int(math.Ceil(r.hi[d]/l.a)) + 1
	}

	var pts [][3]float64
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				for _, b := range basis {
					p := [3]float64{
						(float64(i) + b[0]) * l.a,
						(float64(j) + b[1]) * l.a,
						(float64(k) + b[2]) * l.a,
					}
					inside := true
					for d := 0; d < 3; d++ {
						if p[d] < r.lo[d]-eps || p[d] >= r.hi[d]-eps {
							inside = false
							break
						}
					}
					if inside {
						pts = append(pts, p)
					}
				}
			}
		}
	}
	return pts
}

// atoms holds per-atom state as flat x,y,z records.
type atoms struct {
	x, v, f []float64
	tag     []int32
	typ     []int32
}

func (a *atoms) n() int { return len(a.tag) }

func (a *atoms) add(tag, typ int32, p [3]float64) {
	a.x = append(a.x, p[0], p[1], p[2])
	a.v = append(a.v, 0, 0, 0)
	a.f = append(a.f, 0, 0, 0)
	a.tag = append(a.tag, tag)
	a.typ = append(a.typ, typ)
}

func (a *atoms) pos(i int) [3]float64 {
	return [3]float64{a.x[3*i], a.x[3*i+1], a.x[3*i+2]}
}

// filter keeps the atoms for which keep returns true, preserving order.
func (a *atoms) filter(keep func(i int) bool) int {
	n := 0
	removed := 0
	for i := 0; i < a.n(); i++ {
		if !keep(i) {
			removed++
			continue
		}
		copy(a.x[3*n:3*n+3], a.x[3*i:3*i+3])
		copy(a.v[3*n:3*n+3], a.v[3*i:3*i+3])
		copy(a.f[3*n:3*n+3], a.f[3*i:3*i+3])
		a.tag[n] = a.tag[i]
		a.typ[n] = a.typ[i]
		n++
	}
	a.x, a.v, a.f = a.x[:3*n], a.v[:3*n], a.f[:3*n]
	a.tag, a.typ = a.tag[:n], a.typ[:n]
	return removed
}

package native

type ljCoeff struct {
	set     bool
	epsilon float64
	sigma   float64
	cut     float64
}

// ljCut is the 12-6 Lennard-Jones pair potential, truncated without shift.
type ljCut struct {
	cutGlobal float64
	coeff     [][]ljCoeff
}

func newLJCut(cut float64, ntypes int) *ljCut {
	p := &ljCut{cutGlobal: cut}
	p.resize(ntypes)
	return p
}

func (p *ljCut) resize(ntypes int) {
	c := make([][]ljCoeff, ntypes+1)
	for i := range c {
		c[i] = make([]ljCoeff, ntypes+1)
		if i < len(p.coeff) {
			copy(c[i], p.coeff[i])
		}
	}
	p.coeff = c
}

func (p *ljCut) setCoeff(i, j int, eps, sigma, cut float64) {
	c := ljCoeff{set: true, epsilon: eps, sigma: sigma, cut: cut}
	p.coeff[i][j] = c
	p.coeff[j][i] = c
}

func (p *ljCut) complete(ntypes int) bool {
	for i := 1; i <= ntypes; i++ {
		for j := i; j <= ntypes; j++ {
			if !p.coeff[i][j].set {
				return false
			}
		}
	}
	return true
}

func (p *ljCut) maxCut() float64 {
	m := p.cutGlobal
	for i := range p.coeff {
		for _, c := range p.coeff[i] {
			if c.set && c.cut > m {
				m = c.cut
			}
		}
	}
	return m
}

// pair returns the force magnitude divided by r and the pair energy.
func (p *ljCut) pair(ti, tj int32, r2 float64) (fpair, energy float64) {
	c := p.coeff[ti][tj]
	if r2 >= c.cut*c.cut {
		return 0, 0
	}
	sr2 := c.sigma * c.sigma / r2
	sr6 := sr2 * sr2 * sr2
	fpair = 24 * c.epsilon * sr6 * (2*sr6 - 1) / r2
	energy = 4 * c.epsilon * (sr6*sr6 - sr6)
	return fpair, energy
}

type neighbor struct {
	skin  float64
	every int
	delay int
	check bool

	// first[i] indexes atom i's run of neighbors in the arena list.
	first     []int
	num       []int
	list      uint32
	xhold     []float64
	lastBuild int64
	builds    int
}

func newNeighbor(u unitSystem) neighbor {
	return neighbor{skin: u.skin, every: 1, check: true}
}

// neighborDue reports whether the list must be rebuilt this step.
func (e *Engine) neighborDue() bool {
	n := &e.neigh
	if n.xhold == nil || len(n.xhold) != len(e.atoms.x) {
		return true
	}
	since := e.ntimestep - n.lastBuild
	if since < int64(n.delay) || since%int64(n.every) != 0 {
		return false
	}
	if !n.check {
		return true
	}
	limit := 0.25 * n.skin * n.skin
	for i := 0; i < e.atoms.n(); i++ {
		dx := e.atoms.x[3*i] - n.xhold[3*i]
		dy := e.atoms.x[3*i+1] - n.xhold[3*i+1]
		dz := e.atoms.x[3*i+2] - n.xhold[3*i+2]
		if dx*dx+dy*dy+dz*dz > limit {
			return true
		}
	}
	return false
}

// buildNeighbors wraps atoms into the box and stores a full neighbor list
// in the arena. The list block is reallocated on every build.
func (e *Engine) buildNeighbors() {
	n := &e.neigh
	count := e.atoms.n()

	for i := 0; i < count; i++ {
		p := e.box.wrap(e.atoms.pos(i))
		copy(e.atoms.x[3*i:3*i+3], p[:])
	}

	cut := n.skin
	if e.pair != nil {
		cut += e.pair.maxCut()
	}
	cut2 := cut * cut

	n.first = make([]int, count)
	n.num = make([]int, count)
	var flat []int32
	for i := 0; i < count; i++ {
		n.first[i] = len(flat)
		for j := 0; j < count; j++ {
			if j == i {
				continue
			}
			dx, dy, dz := e.box.minimumImage(
				e.atoms.x[3*j]-e.atoms.x[3*i],
				e.atoms.x[3*j+1]-e.atoms.x[3*i+1],
				e.atoms.x[3*j+2]-e.atoms.x[3*i+2],
			)
			if dx*dx+dy*dy+dz*dz < cut2 {
				flat = append(flat, int32(j))
			}
		}
		n.num[i] = len(flat) - n.first[i]
	}

	if n.list != 0 {
		e.mem.release(n.list)
	}
	n.list = e.mem.alloc(4 * len(flat))
	for k, j := range flat {
		e.mem.putI32(n.list, k, j)
	}

	n.xhold = append(n.xhold[:0], e.atoms.x...)
	n.lastBuild = e.ntimestep
	n.builds++
}

// computeForces evaluates pair forces into atoms.f and stores the potential
// energy.
func (e *Engine) computeForces() {
	count := e.atoms.n()
	for i := range e.atoms.f {
		e.atoms.f[i] = 0
	}
	if e.pair == nil || count == 0 {
		e.pe = 0
		e.virial = 0
		e.forcesOK = true
		return
	}

	eatom := make([]float64, count)
	vatom := make([]float64, count)
	list := e.neigh.list
	parallelFor(count, 64, e.cfg.Threads, func(start, end int) {
		for i := start; i < end; i++ {
			var fx, fy, fz, ei, vi float64
			first, num := e.neigh.first[i], e.neigh.num[i]
			for k := first; k < first+num; k++ {
				j := int(e.mem.i32(list, k))
				dx, dy, dz := e.box.minimumImage(
					e.atoms.x[3*i]-e.atoms.x[3*j],
					e.atoms.x[3*i+1]-e.atoms.x[3*j+1],
					e.atoms.x[3*i+2]-e.atoms.x[3*j+2],
				)
				r2 := dx*dx + dy*dy + dz*dz
				fpair, en := e.pair.pair(e.atoms.typ[i], e.atoms.typ[j], r2)
				fx += fpair * dx
				fy += fpair * dy
				fz += fpair * dz
				ei += 0.5 * en
				vi += 0.5 * fpair * r2
			}
			e.atoms.f[3*i] = fx
			e.atoms.f[3*i+1] = fy
			e.atoms.f[3*i+2] = fz
			eatom[i] = ei
			vatom[i] = vi
		}
	})

	pe, virial := 0.0, 0.0
	for i := range eatom {
		pe += eatom[i]
		virial += vatom[i]
	}
	e.pe = pe
	e.virial = virial
	e.forcesOK = true
}

func (e *Engine) kinetic() float64 {
	sum := 0.0
	for i := 0; i < e.atoms.n(); i++ {
		m := e.masses[e.atoms.typ[i]]
		vx, vy, vz := e.atoms.v[3*i], e.atoms.v[3*i+1], e.atoms.v[3*i+2]
		sum += m * (vx*vx + vy*vy + vz*vz)
	}
	return 0.5 * e.units.mvv2e * sum
}

func (e *Engine) temperature() float64 {
	dof := float64(3*e.atoms.n() - 3)
	if dof <= 0 {
		return 0
	}
	return 2 * e.kinetic() / (dof * e.units.boltz)
}

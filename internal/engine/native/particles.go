package native

import (
	"context"

	"github.com/san-kum/mdctl/internal/arena"
	"github.com/san-kum/mdctl/internal/modifier"
)

// ComputeParticles exports positions, ids and types of every atom and
// returns the atom count. Exported blocks may move.
func (e *Engine) ComputeParticles(ctx context.Context) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := e.atoms.n()
	if n == 0 {
		e.unexport(arena.Positions)
		e.unexport(arena.AtomIDs)
		e.unexport(arena.AtomTypes)
		return 0, nil
	}

	pos := e.export(arena.Positions, 3*n)
	ids := e.export(arena.AtomIDs, n)
	types := e.export(arena.AtomTypes, n)
	for i := 0; i < n; i++ {
		for d := 0; d < 3; d++ {
			e.mem.putF64(pos.off, 3*i+d, e.atoms.x[3*i+d])
		}
		e.mem.putI32(ids.off, i, e.atoms.tag[i])
		e.mem.putI32(types.off, i, e.atoms.typ[i])
	}
	return n, nil
}

// ComputeBonds exports the two end points of every bond and returns the
// bond count. Atoms are bonded when closer than the bond distance of their
// type pair. The second end point is the nearest periodic image.
func (e *Engine) ComputeBonds(ctx context.Context) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var p1, p2 []float64
	if e.box != nil {
		e.writeBondMap()
		bm := e.exports[arena.BondDistanceMap]
		stride := e.ntypes + 1
		n := e.atoms.n()
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				d := e.mem.f64(bm.off, int(e.atoms.typ[i])*stride+int(e.atoms.typ[j]))
				if d <= 0 {
					continue
				}
				dx, dy, dz := e.box.minimumImage(
					e.atoms.x[3*j]-e.atoms.x[3*i],
					e.atoms.x[3*j+1]-e.atoms.x[3*i+1],
					e.atoms.x[3*j+2]-e.atoms.x[3*i+2],
				)
				if dx*dx+dy*dy+dz*dz >= d*d {
					continue
				}
				xi := e.atoms.pos(i)
				p1 = append(p1, xi[0], xi[1], xi[2])
				p2 = append(p2, xi[0]+dx, xi[1]+dy, xi[2]+dz)
			}
		}
	}

	bonds := len(p1) / 3
	if bonds == 0 {
		e.unexport(arena.BondPosition1)
		e.unexport(arena.BondPosition2)
		return 0, nil
	}
	b1 := e.export(arena.BondPosition1, len(p1))
	for k, v := range p1 {
		e.mem.putF64(b1.off, k, v)
	}
	b2 := e.export(arena.BondPosition2, len(p2))
	for k, v := range p2 {
		e.mem.putF64(b2.off, k, v)
	}
	return bonds, nil
}

func (e *Engine) findCompute(id string) (namedCompute, bool) {
	for _, c := range e.computes {
		if c.id == id {
			return c, true
		}
	}
	return namedCompute{}, false
}

func (e *Engine) findFix(id string) (namedFix, bool) {
	for _, f := range e.fixes {
		if f.id == id {
			return f, true
		}
	}
	return namedFix{}, false
}

// ModifierNames implements modifier.Source.
func (e *Engine) ModifierNames(kind modifier.Kind) []string {
	var names []string
	switch kind {
	case modifier.Compute:
		for _, c := range e.computes {
			names = append(names, c.id)
		}
	case modifier.Fix:
		for _, f := range e.fixes {
			names = append(names, f.id)
		}
	case modifier.Variable:
		for _, v := range e.variables {
			names = append(names, v.name)
		}
	}
	return names
}

// ModifierShape implements modifier.Source.
func (e *Engine) ModifierShape(kind modifier.Kind, name string) (modifier.Shape, bool) {
	switch kind {
	case modifier.Compute:
		if c, ok := e.findCompute(name); ok {
			return c.c.shape(), true
		}
	case modifier.Fix:
		if f, ok := e.findFix(name); ok {
			return f.f.shape(), true
		}
	case modifier.Variable:
		if v, ok := e.findVariable(name); ok {
			return v.shape(), true
		}
	}
	return modifier.None, false
}

// Sync implements modifier.Source. A variable that fails to evaluate keeps
// its previous snapshot.
func (e *Engine) Sync(kind modifier.Kind) {
	snap := e.snapshots[kind]
	switch kind {
	case modifier.Compute:
		for _, c := range e.computes {
			snap[c.id] = c.c.value(e)
		}
	case modifier.Fix:
		for _, f := range e.fixes {
			snap[f.id] = f.f.value(e)
		}
	case modifier.Variable:
		for _, v := range e.variables {
			val, err := e.evalVariable(v)
			if err != nil {
				e.log.Debug("variable not synchronized", "name", v.name, "error", err)
				continue
			}
			snap[v.name] = val
		}
	}
}

// Snapshot implements modifier.Source.
func (e *Engine) Snapshot(kind modifier.Kind, name string) (modifier.Value, bool) {
	v, ok := e.snapshots[kind][name]
	if !ok {
		return modifier.Value{}, false
	}
	return v.Clone(), true
}

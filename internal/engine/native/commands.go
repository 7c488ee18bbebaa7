package native

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/mdctl/internal/arena"
	"github.com/san-kum/mdctl/internal/modifier"
)

const maxIncludeDepth = 8

// splitLines breaks a script into commands. It drops comments and blank
// lines and joins lines ending in '&' with the next one.
func splitLines(text string) []string {
	var (
		out  []string
		cont string
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(stripComment(raw))
		if strings.HasSuffix(line, "&") {
			cont += strings.TrimSuffix(line, "&") + " "
			continue
		}
		line = strings.TrimSpace(cont + line)
		cont = ""
		if line != "" {
			out = append(out, line)
		}
	}
	if s := strings.TrimSpace(cont); s != "" {
		out = append(out, s)
	}
	return out
}

func stripComment(line string) string {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '#':
			return line[:i]
		}
	}
	return line
}

// tokenize splits on whitespace. Quoted words keep their spaces and lose
// their quotes.
func tokenize(line string) ([]string, error) {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		inArg bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\r':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("Unmatched quote in command: %s", line)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

// substitute expands $x and ${name} with the current value of a variable.
func (e *Engine) substitute(line string) (string, error) {
	if !strings.Contains(line, "$") {
		return line, nil
	}
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		if line[i] != '$' || i+1 >= len(line) {
			b.WriteByte(line[i])
			continue
		}
		var name string
		if line[i+1] == '{' {
			end := strings.IndexByte(line[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("Invalid variable name in command: %s", line)
			}
			name = line[i+2 : i+end]
			i += end
		} else {
			name = line[i+1 : i+2]
			i++
		}
		s, err := e.variableText(name)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func (e *Engine) include(ctx context.Context, name string) error {
	if e.depth >= maxIncludeDepth {
		return fmt.Errorf("Too many nested include commands")
	}
	clean := strings.TrimPrefix(path.Clean(name), "/")
	data, err := fs.ReadFile(e.cfg.FS, clean)
	if err != nil {
		return fmt.Errorf("Cannot open input script %s: %v", name, err)
	}
	e.depth++
	defer func() { e.depth-- }()
	return e.script(ctx, string(data))
}

func (e *Engine) execute(ctx context.Context, line string) error {
	line, err := e.substitute(line)
	if err != nil {
		return err
	}
	args, err := tokenize(line)
	if err != nil || len(args) == 0 {
		return err
	}
	cmd, args := args[0], args[1:]
	e.log.Debug("command", "name", cmd, "args", args)

	switch cmd {
	case "units":
		return e.cmdUnits(args)
	case "atom_style":
		return e.cmdAtomStyle(args)
	case "dimension":
		if len(args) != 1 || args[0] != "3" {
			return fmt.Errorf("Illegal dimension command: only 3d is supported")
		}
		return nil
	case "boundary":
		if len(args) != 3 || args[0] != "p" || args[1] != "p" || args[2] != "p" {
			return fmt.Errorf("Illegal boundary command: only periodic boundaries are supported")
		}
		return nil
	case "lattice":
		return e.cmdLattice(args)
	case "region":
		return e.cmdRegion(args)
	case "create_box":
		return e.cmdCreateBox(args)
	case "create_atoms":
		return e.cmdCreateAtoms(args)
	case "delete_atoms":
		return e.cmdDeleteAtoms(args)
	case "mass":
		return e.cmdMass(args)
	case "velocity":
		return e.cmdVelocity(args)
	case "pair_style":
		return e.cmdPairStyle(args)
	case "pair_coeff":
		return e.cmdPairCoeff(args)
	case "neighbor":
		return e.cmdNeighbor(args)
	case "neigh_modify":
		return e.cmdNeighModify(args)
	case "fix":
		return e.cmdFix(args)
	case "unfix":
		return e.cmdUnfix(args)
	case "compute":
		return e.cmdCompute(args)
	case "uncompute":
		return e.cmdUncompute(args)
	case "variable":
		return e.cmdVariable(args)
	case "timestep":
		return e.cmdTimestep(args)
	case "reset_timestep":
		return e.cmdResetTimestep(args)
	case "thermo":
		return e.cmdThermo(args)
	case "print":
		fmt.Fprintln(e.cfg.Print, strings.Join(args, " "))
		return nil
	case "include":
		if len(args) != 1 {
			return fmt.Errorf("Illegal include command")
		}
		return e.include(ctx, args[0])
	case "run":
		return e.cmdRun(ctx, args)
	case "clear":
		e.clear()
		return nil
	}
	return fmt.Errorf("Unknown command: %s", line)
}

func (e *Engine) cmdUnits(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Illegal units command")
	}
	if e.box != nil {
		return fmt.Errorf("Units command after simulation box is defined")
	}
	u, ok := unitSystems[args[0]]
	if !ok {
		return fmt.Errorf("Illegal units command: unknown style %s", args[0])
	}
	e.units = u
	e.dt = u.dt
	e.neigh = newNeighbor(u)
	e.lattice = lattice{style: "none", scale: 1, a: 1}
	return nil
}

func (e *Engine) cmdAtomStyle(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Illegal atom_style command")
	}
	if e.box != nil {
		return fmt.Errorf("Atom_style command after simulation box is defined")
	}
	switch args[0] {
	case "atomic", "bond", "molecular", "full":
		e.atomStyle = args[0]
		return nil
	}
	return fmt.Errorf("Unknown atom style %s", args[0])
}

func (e *Engine) cmdLattice(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("Illegal lattice command")
	}
	scale, err := parseFloat("lattice", args[1])
	if err != nil {
		return err
	}
	l, err := newLattice(args[0], scale, e.units)
	if err != nil {
		return err
	}
	e.lattice = l
	if l.defined() {
		fmt.Fprintf(e.cfg.Print, "Lattice spacing in x,y,z = %g %g %g\n", l.a, l.a, l.a)
	}
	return nil
}

func (e *Engine) cmdRegion(args []string) error {
	if len(args) < 8 || args[1] != "block" {
		return fmt.Errorf("Illegal region command: only block regions are supported")
	}
	scale := 1.0
	switch {
	case len(args) == 8, len(args) == 10 && args[8] == "units" && args[9] == "lattice":
		if !e.lattice.defined() {
			return fmt.Errorf("Use of region with undefined lattice")
		}
		scale = e.lattice.a
	case len(args) == 10 && args[8] == "units" && args[9] == "box":
	default:
		return fmt.Errorf("Illegal region command")
	}

	var r region
	for d := 0; d < 3; d++ {
		lo, err := parseFloat("region", args[2+2*d])
		if err != nil {
			return err
		}
		hi, err := parseFloat("region", args[3+2*d])
		if err != nil {
			return err
		}
		if hi <= lo {
			return fmt.Errorf("Illegal region block: %s >= %s", args[2+2*d], args[3+2*d])
		}
		r.lo[d], r.hi[d] = lo*scale, hi*scale
	}
	e.regions[args[0]] = r
	return nil
}

func (e *Engine) cmdCreateBox(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("Illegal create_box command")
	}
	if e.box != nil {
		return fmt.Errorf("Cannot create_box after simulation box is defined")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("Illegal create_box command: bad number of atom types %q", args[0])
	}
	r, ok := e.regions[args[1]]
	if !ok {
		return fmt.Errorf("Create_box region %s does not exist", args[1])
	}

	e.box = &box{lo: r.lo, hi: r.hi}
	e.ntypes = n
	e.masses = make([]float64, n+1)
	e.massSet = make([]bool, n+1)
	if e.pair != nil {
		e.pair.resize(n)
	}
	e.needSetup = true
	e.writeBox()

	fmt.Fprintf(e.cfg.Print, "Created orthogonal box = (%g %g %g) to (%g %g %g)\n",
		r.lo[0], r.lo[1], r.lo[2], r.hi[0], r.hi[1], r.hi[2])
	return nil
}

// writeBox exports the cell matrix, origin and bond distance map.
func (e *Engine) writeBox() {
	cell := e.export(arena.CellMatrix, 9)
	for i := 0; i < 9; i++ {
		e.mem.putF64(cell.off, i, 0)
	}
	for d := 0; d < 3; d++ {
		e.mem.putF64(cell.off, 4*d, e.box.length(d))
	}
	origin := e.export(arena.Origin, 3)
	for d := 0; d < 3; d++ {
		e.mem.putF64(origin.off, d, e.box.lo[d])
	}
	e.writeBondMap()
}

// bondScale times sigma is the distance under which two atoms count as
// bonded.
const bondScale = 1.2

// writeBondMap stores the bond distance for every type pair, indexed
// [i*(ntypes+1)+j]. Pairs without coefficients never bond.
func (e *Engine) writeBondMap() {
	if e.box == nil {
		return
	}
	n := e.ntypes + 1
	m := e.export(arena.BondDistanceMap, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := 0.0
			if e.pair != nil && i < len(e.pair.coeff) && e.pair.coeff[i][j].set {
				d = bondScale * e.pair.coeff[i][j].sigma
			}
			e.mem.putF64(m.off, i*n+j, d)
		}
	}
}

func (e *Engine) cmdCreateAtoms(args []string) error {
	if e.box == nil {
		return fmt.Errorf("Create_atoms command before simulation box is defined")
	}
	if len(args) < 2 {
		return fmt.Errorf("Illegal create_atoms command")
	}
	typ, err := e.atomType("create_atoms", args[0])
	if err != nil {
		return err
	}
	if !e.lattice.defined() {
		return fmt.Errorf("Cannot create atoms with undefined lattice")
	}

	target := region{lo: e.box.lo, hi: e.box.hi}
	switch {
	case args[1] == "box" && len(args) == 2:
	case args[1] == "region" && len(args) == 3:
		r, ok := e.regions[args[2]]
		if !ok {
			return fmt.Errorf("Create_atoms region %s does not exist", args[2])
		}
		target = r
	default:
		return fmt.Errorf("Illegal create_atoms command")
	}

	inBox := region{lo: e.box.lo, hi: e.box.hi}
	created := 0
	for _, p := range latticePoints(e.lattice, target) {
		if !inBox.contains(p) {
			continue
		}
		e.atoms.add(e.nextTag, int32(typ), p)
		e.nextTag++
		created++
	}
	e.atomsChanged()
	fmt.Fprintf(e.cfg.Print, "Created %d atoms\n", created)
	return nil
}

func (e *Engine) cmdDeleteAtoms(args []string) error {
	if len(args) != 2 || args[0] != "region" {
		return fmt.Errorf("Illegal delete_atoms command")
	}
	r, ok := e.regions[args[1]]
	if !ok {
		return fmt.Errorf("Could not find delete_atoms region ID %s", args[1])
	}
	removed := e.atoms.filter(func(i int) bool { return !r.contains(e.atoms.pos(i)) })
	e.atomsChanged()
	fmt.Fprintf(e.cfg.Print, "Deleted %d atoms, new total = %d\n", removed, e.atoms.n())
	return nil
}

// atomsChanged invalidates everything derived from the atom set.
func (e *Engine) atomsChanged() {
	e.needSetup = true
	e.forcesOK = false
	e.neigh.xhold = nil
}

func (e *Engine) atomType(cmd, s string) (int, error) {
	t, err := strconv.Atoi(s)
	if err != nil || t < 1 || t > e.ntypes {
		return 0, fmt.Errorf("Invalid atom type in %s command: %s", cmd, s)
	}
	return t, nil
}

// typeRange expands "*" or a single type.
func (e *Engine) typeRange(cmd, s string) (int, int, error) {
	if s == "*" {
		return 1, e.ntypes, nil
	}
	t, err := e.atomType(cmd, s)
	return t, t, err
}

func (e *Engine) cmdMass(args []string) error {
	if e.box == nil {
		return fmt.Errorf("Mass command before simulation box is defined")
	}
	if len(args) != 2 {
		return fmt.Errorf("Illegal mass command")
	}
	lo, hi, err := e.typeRange("mass", args[0])
	if err != nil {
		return err
	}
	m, err := parseFloat("mass", args[1])
	if err != nil {
		return err
	}
	if m <= 0 {
		return fmt.Errorf("Invalid mass value")
	}
	for t := lo; t <= hi; t++ {
		e.masses[t] = m
		e.massSet[t] = true
	}
	return nil
}

func (e *Engine) massesSet() bool {
	for t := 1; t <= e.ntypes; t++ {
		if !e.massSet[t] {
			return false
		}
	}
	return true
}

func (e *Engine) cmdVelocity(args []string) error {
	if len(args) < 4 || args[0] != "all" || args[1] != "create" {
		return fmt.Errorf("Illegal velocity command: only 'velocity all create' is supported")
	}
	if e.box == nil || !e.massesSet() {
		return fmt.Errorf("Velocity command before all masses are set")
	}
	temp, err := parseFloat("velocity", args[2])
	if err != nil {
		return err
	}
	seed, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil || seed == 0 {
		return fmt.Errorf("Illegal velocity create command: bad seed %q", args[3])
	}
	gaussian := false
	for i := 4; i+1 < len(args); i += 2 {
		if args[i] == "dist" {
			gaussian = args[i+1] == "gaussian"
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range e.atoms.v {
		if gaussian {
			e.atoms.v[i] = rng.NormFloat64()
		} else {
			e.atoms.v[i] = rng.Float64() - 0.5
		}
	}
	e.zeroMomentum()
	if t := e.temperature(); t > 0 {
		f := math.Sqrt(temp / t)
		for i := range e.atoms.v {
			e.atoms.v[i] *= f
		}
	}
	return nil
}

func (e *Engine) zeroMomentum() {
	(&fixMomentum{every: 1, linear: [3]bool{true, true, true}}).endOfStep(e)
}

func (e *Engine) cmdPairStyle(args []string) error {
	if len(args) == 1 && args[0] == "none" {
		e.pair = nil
		e.needSetup = true
		e.writeBondMap()
		return nil
	}
	if len(args) != 2 || args[0] != "lj/cut" {
		return fmt.Errorf("Unrecognized pair style '%s'", strings.Join(args, " "))
	}
	cut, err := parseFloat("pair_style", args[1])
	if err != nil {
		return err
	}
	if cut <= 0 {
		return fmt.Errorf("Illegal pair_style command: cutoff must be positive")
	}
	if e.pair != nil {
		e.pair.cutGlobal = cut
	} else {
		e.pair = newLJCut(cut, e.ntypes)
	}
	e.needSetup = true
	return nil
}

func (e *Engine) cmdPairCoeff(args []string) error {
	if e.box == nil {
		return fmt.Errorf("Pair_coeff command before simulation box is defined")
	}
	if e.pair == nil {
		return fmt.Errorf("Pair_coeff command without a pair style")
	}
	if len(args) != 4 && len(args) != 5 {
		return fmt.Errorf("Incorrect args for pair coefficients")
	}
	ilo, ihi, err := e.typeRange("pair_coeff", args[0])
	if err != nil {
		return err
	}
	jlo, jhi, err := e.typeRange("pair_coeff", args[1])
	if err != nil {
		return err
	}
	eps, err := parseFloat("pair_coeff", args[2])
	if err != nil {
		return err
	}
	sigma, err := parseFloat("pair_coeff", args[3])
	if err != nil {
		return err
	}
	cut := e.pair.cutGlobal
	if len(args) == 5 {
		if cut, err = parseFloat("pair_coeff", args[4]); err != nil {
			return err
		}
	}
	for i := ilo; i <= ihi; i++ {
		for j := jlo; j <= jhi; j++ {
			e.pair.setCoeff(i, j, eps, sigma, cut)
		}
	}
	e.needSetup = true
	e.writeBondMap()
	return nil
}

func (e *Engine) cmdNeighbor(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("Illegal neighbor command")
	}
	skin, err := parseFloat("neighbor", args[0])
	if err != nil {
		return err
	}
	if skin < 0 {
		return fmt.Errorf("Illegal neighbor command: negative skin")
	}
	if args[1] != "bin" && args[1] != "nsq" {
		return fmt.Errorf("Illegal neighbor command: unknown style %s", args[1])
	}
	e.neigh.skin = skin
	e.neigh.xhold = nil
	e.needSetup = true
	return nil
}

func (e *Engine) cmdNeighModify(args []string) error {
	if len(args) == 0 || len(args)%2 != 0 {
		return fmt.Errorf("Illegal neigh_modify command")
	}
	for i := 0; i < len(args); i += 2 {
		switch args[i] {
		case "every", "delay":
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 0 || (args[i] == "every" && n == 0) {
				return fmt.Errorf("Illegal neigh_modify %s value: %s", args[i], args[i+1])
			}
			if args[i] == "every" {
				e.neigh.every = n
			} else {
				e.neigh.delay = n
			}
		case "check":
			switch args[i+1] {
			case "yes":
				e.neigh.check = true
			case "no":
				e.neigh.check = false
			default:
				return fmt.Errorf("Illegal neigh_modify check value: %s", args[i+1])
			}
		default:
			return fmt.Errorf("Illegal neigh_modify keyword: %s", args[i])
		}
	}
	return nil
}

func (e *Engine) cmdFix(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("Illegal fix command")
	}
	id, group, style := args[0], args[1], args[2]
	if group != "all" {
		return fmt.Errorf("Could not find fix group ID %s", group)
	}
	factory, err := styles.fix(style)
	if err != nil {
		return err
	}
	f, err := factory(e, args[3:])
	if err != nil {
		return err
	}

	nf := namedFix{id: id, style: style, f: f}
	for i := range e.fixes {
		if e.fixes[i].id == id {
			e.fixes[i] = nf
			e.snapshots[modifier.Fix][id] = modifier.Value{Shape: f.shape()}
			return nil
		}
	}
	e.fixes = append(e.fixes, nf)
	e.snapshots[modifier.Fix][id] = modifier.Value{Shape: f.shape()}
	return nil
}

func (e *Engine) cmdUnfix(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Illegal unfix command")
	}
	for i, f := range e.fixes {
		if f.id == args[0] {
			e.fixes = append(e.fixes[:i], e.fixes[i+1:]...)
			delete(e.snapshots[modifier.Fix], args[0])
			return nil
		}
	}
	return fmt.Errorf("Could not find fix ID %s to delete", args[0])
}

func (e *Engine) cmdCompute(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("Illegal compute command")
	}
	id, group, style := args[0], args[1], args[2]
	if group != "all" {
		return fmt.Errorf("Could not find compute group ID %s", group)
	}
	for _, c := range e.computes {
		if c.id == id {
			return fmt.Errorf("Reuse of compute ID '%s'", id)
		}
	}
	factory, err := styles.compute(style)
	if err != nil {
		return err
	}
	c, err := factory(e, args[3:])
	if err != nil {
		return err
	}
	e.computes = append(e.computes, namedCompute{id: id, style: style, c: c})
	e.snapshots[modifier.Compute][id] = modifier.Value{Shape: c.shape()}
	return nil
}

func (e *Engine) cmdUncompute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Illegal uncompute command")
	}
	for i, c := range e.computes {
		if c.id == args[0] {
			e.computes = append(e.computes[:i], e.computes[i+1:]...)
			delete(e.snapshots[modifier.Compute], args[0])
			return nil
		}
	}
	return fmt.Errorf("Could not find compute ID %s to delete", args[0])
}

func (e *Engine) cmdTimestep(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Illegal timestep command")
	}
	dt, err := parseFloat("timestep", args[0])
	if err != nil {
		return err
	}
	if dt <= 0 {
		return fmt.Errorf("Timestep must be positive")
	}
	e.dt = dt
	return nil
}

func (e *Engine) cmdResetTimestep(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Illegal reset_timestep command")
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("Timestep must be >= 0")
	}
	e.ntimestep = n
	e.counters.CurrentTimestep = n
	e.neigh.lastBuild = n
	return nil
}

func (e *Engine) cmdThermo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Illegal thermo command")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("Illegal thermo output frequency %s", args[0])
	}
	e.thermo = n
	return nil
}

// cmdRun advances n timesteps. The hook is called once per step and may
// end the loop early, leaving RunTimestepsCompleted below the total.
func (e *Engine) cmdRun(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Illegal run command")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("Invalid run command N value: %s", args[0])
	}
	if err := e.setup(); err != nil {
		return err
	}

	e.counters.RunTimestepsCompleted = 0
	e.counters.RunTimestepsTotal = int64(n)
	e.counters.TimestepsPerSecond = 0
	e.runStart = time.Now()
	if e.thermo > 0 {
		e.printThermoHeader()
		e.printThermo()
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.advance()
		e.counters.RunTimestepsCompleted++
		if e.postStep() {
			e.log.Debug("run halted at checkpoint", "timestep", e.ntimestep, "completed", i+1, "total", n)
			break
		}
	}

	fmt.Fprintf(e.cfg.Print, "Loop time of %g on %d procs for %d steps with %d atoms\n",
		time.Since(e.runStart).Seconds(), e.cfg.Threads, e.counters.RunTimestepsCompleted, e.atoms.n())
	return nil
}

// setup validates the system and computes initial forces if anything
// changed since the last run.
func (e *Engine) setup() error {
	if e.box == nil {
		return fmt.Errorf("Run command before simulation box is defined")
	}
	if !e.massesSet() {
		return fmt.Errorf("Not all per-type masses are set")
	}
	if e.pair != nil && !e.pair.complete(e.ntypes) {
		return fmt.Errorf("All pair coeffs are not set")
	}
	if !e.needSetup {
		return nil
	}
	e.buildNeighbors()
	e.computeForces()
	e.needSetup = false
	return nil
}

func parseFloat(cmd, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("Expected floating point parameter instead of '%s' in %s command", s, cmd)
	}
	return v, nil
}

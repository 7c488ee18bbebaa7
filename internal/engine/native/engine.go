// Package native is an in-process molecular dynamics engine with its own
// byte arena and a small command interpreter.
//
// It implements the same entry points as the sandboxed engine module: text
// commands, script files, a single-timestep advance, a per-timestep hook,
// exported array pointers into its arena and synchronized modifier
// snapshots. Physics is limited to Lennard-Jones pairs integrated with
// velocity Verlet in periodic orthogonal boxes.
//
// Engine failures never surface as Go errors. They are recorded and read
// back through ErrorMessage, the way the sandboxed engine reports them.
// Returned errors are reserved for host problems such as a closed engine or
// a cancelled context.
//
// An Engine is not safe for concurrent use.
package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/san-kum/mdctl/internal/arena"
	"github.com/san-kum/mdctl/internal/logging"
	"github.com/san-kum/mdctl/internal/modifier"
	"github.com/san-kum/mdctl/internal/run"
)

// ErrClosed is returned by every call on a closed engine.
var ErrClosed = errors.New("native: engine closed")

// Config configures a native engine.
type Config struct {
	Print    io.Writer
	PrintErr io.Writer
	// FS is the virtual file store scripts are read from.
	FS      fs.FS
	Threads int
	Logger  *slog.Logger
}

type block struct {
	off   uint32
	count int
}

// Engine is the native engine.
type Engine struct {
	cfg  Config
	log  *slog.Logger
	mem  *memory
	hook func() bool

	units     unitSystem
	atomStyle string
	lattice   lattice
	regions   map[string]region
	box       *box
	ntypes    int
	masses    []float64
	massSet   []bool
	atoms     atoms
	nextTag   int32
	pair      *ljCut
	neigh     neighbor
	dt        float64
	thermo    int
	ntimestep int64
	pe        float64
	virial    float64
	forcesOK  bool
	needSetup bool

	computes  []namedCompute
	fixes     []namedFix
	variables []namedVariable
	snapshots map[modifier.Kind]map[string]modifier.Value
	exports   map[arena.Kind]block

	counters run.Counters
	runStart time.Time

	lastCommand  string
	errorMessage string
	depth        int
	closed       bool
}

// New returns an engine in its post-"clear" state.
func New(cfg Config) *Engine {
	if cfg.Print == nil {
		cfg.Print = io.Discard
	}
	if cfg.PrintErr == nil {
		cfg.PrintErr = io.Discard
	}
	if cfg.FS == nil {
		cfg.FS = os.DirFS(".")
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	e := &Engine{
		cfg: cfg,
		log: logging.OrDiscard(cfg.Logger).With("engine", "native"),
		mem: newMemory(1),
	}
	e.clear()
	return e
}

// clear restores the freshly created state. The hook survives.
func (e *Engine) clear() {
	e.mem.reset()
	e.units = unitSystems["lj"]
	e.atomStyle = "atomic"
	e.lattice = lattice{style: "none", scale: 1, a: 1}
	e.regions = make(map[string]region)
	e.box = nil
	e.ntypes = 0
	e.masses = nil
	e.massSet = nil
	e.atoms = atoms{}
	e.nextTag = 1
	e.pair = nil
	e.neigh = newNeighbor(e.units)
	e.dt = e.units.dt
	e.thermo = 0
	e.ntimestep = 0
	e.pe = 0
	e.virial = 0
	e.forcesOK = false
	e.needSetup = true
	e.computes = nil
	e.fixes = nil
	e.variables = nil
	e.snapshots = map[modifier.Kind]map[string]modifier.Value{
		modifier.Compute:  {},
		modifier.Fix:      {},
		modifier.Variable: {},
	}
	e.exports = make(map[arena.Kind]block)
	e.counters = run.Counters{}
}

// SetPostStep installs the per-timestep hook.
func (e *Engine) SetPostStep(fn func() bool) { e.hook = fn }

// Close releases the arena.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true
	grows := e.mem.grows
	e.mem = newMemory(1)
	e.mem.grows = grows + 1
	e.exports = nil
	return nil
}

// RunCommand executes one or more newline-separated commands. Execution
// stops at the first failing command, whose message is kept in
// ErrorMessage.
func (e *Engine) RunCommand(ctx context.Context, text string) error {
	if e.closed {
		return ErrClosed
	}
	e.errorMessage = ""
	return e.report(e.script(ctx, text))
}

// RunFile executes the commands in path, read from the virtual file store.
func (e *Engine) RunFile(ctx context.Context, path string) error {
	if e.closed {
		return ErrClosed
	}
	e.errorMessage = ""
	e.lastCommand = "include " + path
	return e.report(e.include(ctx, path))
}

func (e *Engine) script(ctx context.Context, text string) error {
	for _, line := range splitLines(text) {
		e.lastCommand = line
		if err := e.execute(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// report turns a command failure into the polled error message. Context
// errors still reach the caller.
func (e *Engine) report(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.fail(err)
	return nil
}

func (e *Engine) fail(err error) {
	e.errorMessage = "ERROR: " + err.Error()
	fmt.Fprintln(e.cfg.PrintErr, e.errorMessage)
	e.log.Debug("command failed", "command", e.lastCommand, "error", err)
}

// Step advances exactly one timestep and calls the hook once. It reports
// false, with the reason in ErrorMessage, when the system cannot be set up.
func (e *Engine) Step(ctx context.Context) (bool, error) {
	if e.closed {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := e.setup(); err != nil {
		e.fail(err)
		return false, nil
	}
	if e.runStart.IsZero() {
		e.runStart = time.Now()
	}
	e.advance()
	e.counters.RunTimestepsCompleted++
	if e.counters.RunTimestepsCompleted > e.counters.RunTimestepsTotal {
		e.counters.RunTimestepsTotal = e.counters.RunTimestepsCompleted
	}
	e.postStep()
	return true, nil
}

// ResetRun clears the run-scoped counters.
func (e *Engine) ResetRun() {
	e.counters.RunTimestepsCompleted = 0
	e.counters.RunTimestepsTotal = 0
	e.counters.TimestepsPerSecond = 0
	e.runStart = time.Time{}
}

// postStep updates counters, prints thermo output and calls the hook. It
// reports whether the hook asked to leave the current loop.
func (e *Engine) postStep() bool {
	e.counters.CurrentTimestep = e.ntimestep
	if el := time.Since(e.runStart).Seconds(); el > 0 {
		e.counters.TimestepsPerSecond = float64(e.counters.RunTimestepsCompleted) / el
	}
	if e.thermo > 0 && e.ntimestep%int64(e.thermo) == 0 {
		e.printThermo()
	}
	if e.hook == nil {
		return false
	}
	return e.hook()
}

func (e *Engine) Counters() run.Counters {
	c := e.counters
	c.CurrentTimestep = e.ntimestep
	return c
}

func (e *Engine) NumAtoms() int { return e.atoms.n() }

// MemoryUsage is the number of arena bytes currently allocated.
func (e *Engine) MemoryUsage() int64 { return int64(e.mem.inUse) }

func (e *Engine) LastCommand() string  { return e.lastCommand }
func (e *Engine) ErrorMessage() string { return e.errorMessage }

// Extent implements arena.Source.
func (e *Engine) Extent(kind arena.Kind) (uint32, int, bool) {
	b, ok := e.exports[kind]
	if !ok || b.count == 0 {
		return 0, 0, false
	}
	return b.off, b.count, true
}

// Memory implements arena.Source.
func (e *Engine) Memory() []byte { return e.mem.buf }

// Generation implements arena.Source.
func (e *Engine) Generation() uint64 { return uint64(e.mem.grows) }

func (e *Engine) export(kind arena.Kind, count int) block {
	b := e.exports[kind]
	b.off = e.mem.realloc(b.off, count*kind.Stride())
	b.count = count
	e.exports[kind] = b
	return b
}

func (e *Engine) unexport(kind arena.Kind) {
	if b, ok := e.exports[kind]; ok {
		e.mem.release(b.off)
		delete(e.exports, kind)
	}
}

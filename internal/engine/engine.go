// Package engine is the single entry point to a molecular dynamics engine.
//
// An Engine owns one backend instance and composes the run controller, the
// modifier registry and the arena view provider around it. At most one
// Engine is active per process; creating another before closing the first
// fails with ErrEngineActive.
//
// Views resolved through View or ViewAll are invalidated by every call that
// can move engine memory: RunCommand, RunFile, Step, Continue, ComputeBonds,
// ComputeParticles and Close. Accessors on an invalidated view return an
// arena.StaleViewError.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync/atomic"

	"github.com/san-kum/mdctl/internal/arena"
	"github.com/san-kum/mdctl/internal/engine/native"
	"github.com/san-kum/mdctl/internal/engine/wasm"
	"github.com/san-kum/mdctl/internal/logging"
	"github.com/san-kum/mdctl/internal/modifier"
	"github.com/san-kum/mdctl/internal/run"
)

var (
	ErrEngineActive   = errors.New("engine: another engine is active")
	ErrClosed         = errors.New("engine: closed")
	ErrUnknownBackend = errors.New("engine: unknown backend")
)

// Backend is an engine instance with its own memory.
type Backend interface {
	arena.Source
	modifier.Source

	RunCommand(ctx context.Context, text string) error
	RunFile(ctx context.Context, path string) error
	// Step advances one timestep and calls the post-step hook once.
	Step(ctx context.Context) (bool, error)
	ResetRun()
	Counters() run.Counters

	NumAtoms() int
	MemoryUsage() int64
	LastCommand() string
	ErrorMessage() string

	ComputeBonds(ctx context.Context) (int, error)
	ComputeParticles(ctx context.Context) (int, error)

	// SetPostStep installs the per-timestep hook. A true return asks the
	// engine to leave its current loop.
	SetPostStep(fn func() bool)
	Close(ctx context.Context) error
}

var (
	_ Backend = (*native.Engine)(nil)
	_ Backend = (*wasm.Engine)(nil)
)

// Backend names.
const (
	Native = "native"
	Wasm   = "wasm"
)

// Options configures Open.
type Options struct {
	// Backend is Native (default) or Wasm.
	Backend string
	// WasmBinary is the pre-fetched engine module for the Wasm backend.
	WasmBinary []byte
	// FS is the virtual file store RunFile reads from.
	FS      fs.FS
	Threads int

	Print    io.Writer
	PrintErr io.Writer
	// PostStep is registered as the post-step callback. Nil never pauses.
	PostStep func() bool
	Logger   *slog.Logger
}

// CommandError is an engine-reported command failure.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("engine: command %q failed: %s", e.Command, e.Message)
}

var active atomic.Bool

func acquire() error {
	if !active.CompareAndSwap(false, true) {
		return ErrEngineActive
	}
	return nil
}

// Engine is the handle to the live engine.
type Engine struct {
	backend Backend
	ctl     *run.Controller
	hook    run.Slot
	epoch   arena.Epoch
	views   *arena.Provider
	mods    *modifier.Registry
	log     *slog.Logger

	// adopted is set while a run command halted by a pause is waiting to
	// be continued.
	adopted bool
	closed  bool
}

// Open builds the backend named in opts and takes ownership of it.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	b, err := newBackend(ctx, opts)
	if err != nil {
		active.Store(false)
		return nil, err
	}
	return attach(b, opts), nil
}

// New takes ownership of an existing backend.
func New(b Backend, opts Options) (*Engine, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	return attach(b, opts), nil
}

func newBackend(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case "", Native:
		return native.New(native.Config{
			Print:    opts.Print,
			PrintErr: opts.PrintErr,
			FS:       opts.FS,
			Threads:  opts.Threads,
			Logger:   opts.Logger,
		}), nil
	case Wasm:
		return wasm.New(ctx, wasm.Config{
			Binary:   opts.WasmBinary,
			Print:    opts.Print,
			PrintErr: opts.PrintErr,
			FS:       opts.FS,
			Logger:   opts.Logger,
		})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}

func attach(b Backend, opts Options) *Engine {
	log := logging.OrDiscard(opts.Logger)
	e := &Engine{backend: b, log: log}
	e.ctl = run.NewController(b, log)
	e.views = arena.NewProvider(b, &e.epoch)
	e.mods = modifier.NewRegistry(b, log)

	e.ctl.Listen(e.hook.Invoke)
	b.SetPostStep(e.ctl.Checkpoint)
	if opts.PostStep != nil {
		e.hook.Register(opts.PostStep)
	}
	log.Debug("engine attached", "backend", fmt.Sprintf("%T", b))
	return e
}

// Close tears down the backend and releases the process-wide slot.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.epoch.Advance()
	e.ctl.Stop()
	err := e.backend.Close(ctx)
	active.Store(false)
	return err
}

// RunCommand forwards text to the engine's interpreter. Engine failures are
// not returned; poll ErrorMessage or CommandError afterwards. A run command
// executed while idle is tracked as Running until it returns.
func (e *Engine) RunCommand(ctx context.Context, text string) error {
	if e.closed {
		return ErrClosed
	}
	return e.command(func() error { return e.backend.RunCommand(ctx, text) })
}

// RunFile executes a script from the virtual file store.
func (e *Engine) RunFile(ctx context.Context, path string) error {
	if e.closed {
		return ErrClosed
	}
	return e.command(func() error { return e.backend.RunFile(ctx, path) })
}

func (e *Engine) command(fn func() error) error {
	defer e.epoch.Advance()

	began := e.ctl.Begin()
	err := fn()
	if began && !e.ctl.End() && e.ctl.State() == run.Paused {
		e.adopted = true
	}
	if msg := e.backend.ErrorMessage(); msg != "" {
		e.log.Debug("engine reported error", "command", e.backend.LastCommand(), "message", msg)
	}
	return err
}

// CommandError returns the last engine-reported failure, or nil.
func (e *Engine) CommandError() error {
	msg := e.backend.ErrorMessage()
	if msg == "" {
		return nil
	}
	return &CommandError{Command: e.backend.LastCommand(), Message: msg}
}

func (e *Engine) Start() bool {
	e.adopted = false
	return e.ctl.Start()
}

func (e *Engine) Stop() bool {
	e.adopted = false
	return e.ctl.Stop()
}

func (e *Engine) SetPaused(paused bool) bool { return e.ctl.SetPaused(paused) }

// Cancel may be called from any goroutine. A running loop stops at its next
// checkpoint.
func (e *Engine) Cancel() bool { return e.ctl.Cancel() }

// Step advances one timestep while Running or Paused.
func (e *Engine) Step(ctx context.Context) (bool, error) {
	if e.closed {
		return false, ErrClosed
	}
	defer e.epoch.Advance()
	return e.ctl.Step(ctx)
}

// Continue resumes a run that a pause cut short and advances its remaining
// timesteps. It returns the number taken.
func (e *Engine) Continue(ctx context.Context) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	c := e.backend.Counters()
	remaining := int(c.RunTimestepsTotal - c.RunTimestepsCompleted)
	if remaining <= 0 {
		return 0, nil
	}

	began := false
	switch e.ctl.State() {
	case run.Paused:
		e.ctl.SetPaused(false)
	case run.Idle:
		began = e.ctl.Begin()
	case run.Cancelled:
		return 0, nil
	}

	defer e.epoch.Advance()
	n, err := e.ctl.Run(ctx, remaining)
	if n == remaining && (began || e.adopted) {
		e.ctl.End()
		e.adopted = false
	}
	return n, err
}

// SetPostStepCallback registers fn as the post-step callback. Only the first
// registration for this engine takes effect.
func (e *Engine) SetPostStepCallback(fn func() bool) bool { return e.hook.Register(fn) }

// AddPostStepListener adds a listener alongside the callback.
func (e *Engine) AddPostStepListener(fn func() bool) (remove func()) { return e.ctl.Listen(fn) }

func (e *Engine) ComputeBonds(ctx context.Context) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	defer e.epoch.Advance()
	return e.backend.ComputeBonds(ctx)
}

func (e *Engine) ComputeParticles(ctx context.Context) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	defer e.epoch.Advance()
	return e.backend.ComputeParticles(ctx)
}

// View resolves count elements of kind.
func (e *Engine) View(kind arena.Kind, count int) (arena.Pointer, *arena.View, error) {
	if e.closed {
		return arena.Pointer{}, nil, ErrClosed
	}
	return e.views.Resolve(kind, count)
}

// ViewAll resolves every allocated element of kind.
func (e *Engine) ViewAll(kind arena.Kind) (arena.Pointer, *arena.View, error) {
	if e.closed {
		return arena.Pointer{}, nil, ErrClosed
	}
	return e.views.ResolveAll(kind)
}

func (e *Engine) Modifiers() *modifier.Registry { return e.mods }

func (e *Engine) State() run.State       { return e.ctl.State() }
func (e *Engine) IsRunning() bool        { return e.ctl.IsRunning() }
func (e *Engine) Counters() run.Counters { return e.backend.Counters() }

func (e *Engine) Timesteps() int64            { return e.backend.Counters().CurrentTimestep }
func (e *Engine) RunTimesteps() int64         { return e.backend.Counters().RunTimestepsCompleted }
func (e *Engine) RunTotalTimesteps() int64    { return e.backend.Counters().RunTimestepsTotal }
func (e *Engine) TimestepsPerSecond() float64 { return e.backend.Counters().TimestepsPerSecond }

func (e *Engine) NumAtoms() int        { return e.backend.NumAtoms() }
func (e *Engine) MemoryUsage() int64   { return e.backend.MemoryUsage() }
func (e *Engine) LastCommand() string  { return e.backend.LastCommand() }
func (e *Engine) ErrorMessage() string { return e.backend.ErrorMessage() }

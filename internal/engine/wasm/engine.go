// Package wasm hosts a precompiled engine module in a wazero runtime.
//
// The module owns its linear memory. Arena pointers returned by the module
// are offsets into that memory, which only grows; a grow replaces the
// backing slice, so views must be re-resolved after any call into the
// module. An Engine is not safe for concurrent use.
package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/san-kum/mdctl/internal/arena"
	"github.com/san-kum/mdctl/internal/logging"
	"github.com/san-kum/mdctl/internal/modifier"
	"github.com/san-kum/mdctl/internal/run"
)

var (
	ErrClosed        = errors.New("wasm: engine closed")
	ErrMissingExport = errors.New("wasm: missing export")
)

// Config configures the hosted module.
type Config struct {
	Binary   []byte
	Print    io.Writer
	PrintErr io.Writer
	// FS is mounted at the guest root.
	FS     fs.FS
	Logger *slog.Logger
}

// Engine is an instantiated engine module.
type Engine struct {
	rt   wazero.Runtime
	mod  api.Module
	fns  map[string]api.Function
	log  *slog.Logger
	hook func() bool

	closed bool
}

// New compiles and instantiates cfg.Binary.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if len(cfg.Binary) == 0 {
		return nil, errors.New("wasm: empty module binary")
	}
	if cfg.Print == nil {
		cfg.Print = io.Discard
	}
	if cfg.PrintErr == nil {
		cfg.PrintErr = io.Discard
	}

	e := &Engine{
		log: logging.OrDiscard(cfg.Logger).With("engine", "wasm"),
		fns: make(map[string]api.Function, len(required)),
	}
	e.rt = wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	ok := false
	defer func() {
		if !ok {
			e.rt.Close(ctx)
		}
	}()

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.rt); err != nil {
		return nil, fmt.Errorf("wasm: instantiate wasi: %w", err)
	}
	_, err := e.rt.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithFunc(e.postStep).
		Export(hostPostStep).
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("wasm: instantiate host module: %w", err)
	}

	compiled, err := e.rt.CompileModule(ctx, cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("wasm: compile: %w", err)
	}
	if err := checkExports(compiled); err != nil {
		return nil, err
	}

	modCfg := wazero.NewModuleConfig().
		WithName("engine").
		WithStdout(cfg.Print).
		WithStderr(cfg.PrintErr).
		WithStartFunctions("_initialize")
	if cfg.FS != nil {
		modCfg = modCfg.WithFSConfig(wazero.NewFSConfig().WithFSMount(cfg.FS, "/"))
	}
	e.mod, err = e.rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, fmt.Errorf("wasm: instantiate: %w", err)
	}
	for _, name := range required {
		e.fns[name] = e.mod.ExportedFunction(name)
	}

	e.log.Debug("engine module instantiated", "bytes", len(cfg.Binary), "pages", e.mod.Memory().Size()/65536)
	ok = true
	return e, nil
}

func checkExports(m wazero.CompiledModule) error {
	fns := m.ExportedFunctions()
	var missing []string
	for _, name := range required {
		if _, ok := fns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if _, ok := m.ExportedMemories()["memory"]; !ok {
		missing = append(missing, "memory")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingExport, missing)
	}
	return nil
}

// postStep is the env.post_step_callback import.
func (e *Engine) postStep(ctx context.Context) int32 {
	if e.hook != nil && e.hook() {
		return 1
	}
	return 0
}

func (e *Engine) SetPostStep(fn func() bool) { e.hook = fn }

// Close tears down the runtime and the module's memory.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.rt.Close(ctx)
}

func (e *Engine) call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if e.closed {
		return nil, ErrClosed
	}
	res, err := e.fns[name].Call(ctx, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("wasm: %s: %w", name, err)
	}
	return res, nil
}

// value calls a nullary getter. Failures are logged and read as zero.
func (e *Engine) value(name string, args ...uint64) uint64 {
	res, err := e.call(context.Background(), name, args...)
	if err != nil {
		e.log.Debug("engine call failed", "fn", name, "error", err)
		return 0
	}
	if len(res) == 0 {
		return 0
	}
	return res[0]
}

// withString copies s into guest memory for the duration of fn.
func (e *Engine) withString(ctx context.Context, s string, fn func(ptr uint64) error) error {
	res, err := e.call(ctx, fnMalloc, uint64(len(s)+1))
	if err != nil {
		return err
	}
	ptr := res[0]
	if ptr == 0 {
		return errors.New("wasm: guest allocation failed")
	}
	defer e.call(ctx, fnFree, ptr)

	if !e.mod.Memory().Write(uint32(ptr), append([]byte(s), 0)) {
		return fmt.Errorf("wasm: write %d bytes at %#x out of range", len(s)+1, ptr)
	}
	return fn(ptr)
}

// cstring reads a NUL-terminated string owned by the module.
func (e *Engine) cstring(ptr uint64) string {
	if ptr == 0 {
		return ""
	}
	mem := e.Memory()
	if int(ptr) >= len(mem) {
		return ""
	}
	s := mem[ptr:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

func (e *Engine) RunCommand(ctx context.Context, text string) error {
	return e.withString(ctx, text, func(ptr uint64) error {
		_, err := e.call(ctx, fnRunCommand, ptr)
		return err
	})
}

func (e *Engine) RunFile(ctx context.Context, path string) error {
	return e.withString(ctx, path, func(ptr uint64) error {
		_, err := e.call(ctx, fnRunFile, ptr)
		return err
	})
}

func (e *Engine) Step(ctx context.Context) (bool, error) {
	res, err := e.call(ctx, fnStep)
	if err != nil {
		return false, err
	}
	return api.DecodeI32(res[0]) != 0, nil
}

func (e *Engine) ResetRun() {
	if _, err := e.call(context.Background(), fnResetRun); err != nil {
		e.log.Debug("reset run failed", "error", err)
	}
}

func (e *Engine) Counters() run.Counters {
	return run.Counters{
		CurrentTimestep:       int64(e.value(fnTimestep)),
		RunTimestepsCompleted: int64(e.value(fnRunTimesteps)),
		RunTimestepsTotal:     int64(e.value(fnRunTotal)),
		TimestepsPerSecond:    api.DecodeF64(e.value(fnStepsPerSecond)),
	}
}

func (e *Engine) NumAtoms() int        { return int(api.DecodeI32(e.value(fnNumAtoms))) }
func (e *Engine) MemoryUsage() int64   { return int64(e.value(fnMemoryUsage)) }
func (e *Engine) LastCommand() string  { return e.cstring(e.value(fnLastCommand)) }
func (e *Engine) ErrorMessage() string { return e.cstring(e.value(fnErrorMessage)) }

func (e *Engine) ComputeBonds(ctx context.Context) (int, error) {
	res, err := e.call(ctx, fnComputeBonds)
	if err != nil {
		return 0, err
	}
	return int(api.DecodeI32(res[0])), nil
}

func (e *Engine) ComputeParticles(ctx context.Context) (int, error) {
	res, err := e.call(ctx, fnComputeParticle)
	if err != nil {
		return 0, err
	}
	return int(api.DecodeI32(res[0])), nil
}

// Extent implements arena.Source.
func (e *Engine) Extent(kind arena.Kind) (uint32, int, bool) {
	off := uint32(e.value(fnPointer, uint64(kind)))
	count := int(api.DecodeI32(e.value(fnCount, uint64(kind))))
	if off == 0 || count <= 0 {
		return 0, 0, false
	}
	return off, count, true
}

// Memory implements arena.Source. The slice aliases linear memory.
func (e *Engine) Memory() []byte {
	if e.closed {
		return nil
	}
	mem := e.mod.Memory()
	b, _ := mem.Read(0, mem.Size())
	return b
}

// Generation implements arena.Source. Linear memory only grows, so its size
// tells backing slices apart.
func (e *Engine) Generation() uint64 {
	if e.closed {
		return math.MaxUint64
	}
	return uint64(e.mod.Memory().Size())
}

// ModifierNames implements modifier.Source.
func (e *Engine) ModifierNames(kind modifier.Kind) []string {
	n := int(api.DecodeI32(e.value(fnModifierCount, uint64(kind))))
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, e.cstring(e.value(fnModifierName, uint64(kind), uint64(i))))
	}
	return names
}

// nameCall runs fn with name copied into the guest.
func (e *Engine) nameCall(kind modifier.Kind, name, fn string) (uint64, bool) {
	var out uint64
	err := e.withString(context.Background(), name, func(ptr uint64) error {
		res, err := e.call(context.Background(), fn, uint64(kind), ptr)
		if err == nil {
			out = res[0]
		}
		return err
	})
	if err != nil {
		e.log.Debug("modifier call failed", "fn", fn, "name", name, "error", err)
		return 0, false
	}
	return out, true
}

// ModifierShape implements modifier.Source.
func (e *Engine) ModifierShape(kind modifier.Kind, name string) (modifier.Shape, bool) {
	raw, ok := e.nameCall(kind, name, fnModifierShape)
	if !ok {
		return modifier.None, false
	}
	s := api.DecodeI32(raw)
	if s < 0 || s > int32(modifier.Array) {
		return modifier.None, false
	}
	return modifier.Shape(s), true
}

// Sync implements modifier.Source.
func (e *Engine) Sync(kind modifier.Kind) {
	if _, err := e.call(context.Background(), fnModifierSync, uint64(kind)); err != nil {
		e.log.Debug("modifier sync failed", "kind", kind, "error", err)
	}
}

// Snapshot implements modifier.Source. Scalars are 1x1, vectors n x 1.
func (e *Engine) Snapshot(kind modifier.Kind, name string) (modifier.Value, bool) {
	shape, ok := e.ModifierShape(kind, name)
	if !ok {
		return modifier.Value{}, false
	}
	rows, _ := e.nameCall(kind, name, fnModifierRows)
	cols, _ := e.nameCall(kind, name, fnModifierCols)
	data, _ := e.nameCall(kind, name, fnModifierData)
	r, c := int(api.DecodeI32(rows)), int(api.DecodeI32(cols))

	v := modifier.Value{Shape: shape}
	if shape == modifier.None || data == 0 || r <= 0 || c <= 0 {
		return v, true
	}
	mem := e.mod.Memory()
	at := func(i int) float64 {
		f, ok := mem.ReadFloat64Le(uint32(data) + uint32(8*i))
		if !ok {
			return math.NaN()
		}
		return f
	}

	switch shape {
	case modifier.Scalar:
		v.Scalar = at(0)
	case modifier.Vector:
		v.Vector = make([]float64, r)
		for i := range v.Vector {
			v.Vector[i] = at(i)
		}
	case modifier.Array:
		v.Array = make([][]float64, r)
		for i := range v.Array {
			v.Array[i] = make([]float64, c)
			for j := range v.Array[i] {
				v.Array[i][j] = at(i*c + j)
			}
		}
	}
	return v, true
}

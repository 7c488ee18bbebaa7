package modifier

import (
	"fmt"
	"log/slog"

	"github.com/san-kum/mdctl/internal/logging"
)

// Source is the part of the engine the registry talks to.
type Source interface {
	// ModifierNames returns names in the engine's registration order.
	ModifierNames(kind Kind) []string
	// ModifierShape reports the declared shape; ok is false if undefined.
	ModifierShape(kind Kind, name string) (shape Shape, ok bool)
	// Sync pushes current values of every modifier of kind into the snapshot.
	Sync(kind Kind)
	// Snapshot returns the last synchronized value.
	Snapshot(kind Kind, name string) (Value, bool)
}

// Registry resolves modifier handles against a Source.
type Registry struct {
	src Source
	log *slog.Logger
}

// NewRegistry returns a registry backed by src.
func NewRegistry(src Source, log *slog.Logger) *Registry {
	return &Registry{src: src, log: logging.OrDiscard(log)}
}

// ListNames enumerates the modifiers of kind currently defined.
func (r *Registry) ListNames(kind Kind) []string {
	return append([]string(nil), r.src.ModifierNames(kind)...)
}

// Resolve returns a handle, or a NotFoundError if kind/name is not defined.
func (r *Registry) Resolve(kind Kind, name string) (*Handle, error) {
	shape, ok := r.src.ModifierShape(kind, name)
	if !ok {
		return nil, &NotFoundError{Kind: kind, Name: name}
	}
	return &Handle{reg: r, kind: kind, name: name, shape: shape}, nil
}

// MustResolve is Resolve for names the caller just defined.
func (r *Registry) MustResolve(kind Kind, name string) *Handle {
	h, err := r.Resolve(kind, name)
	if err != nil {
		panic(err)
	}
	return h
}

// Synchronize refreshes the snapshot for every modifier of kind.
func (r *Registry) Synchronize(kind Kind) {
	r.log.Debug("synchronize modifiers", "kind", kind)
	r.src.Sync(kind)
}

// SynchronizeAll refreshes computes, fixes and variables, in that order, so
// variables see the computes they reference.
func (r *Registry) SynchronizeAll() {
	for _, k := range Kinds {
		r.Synchronize(k)
	}
}

// Handle names one modifier. It is cheap and can be re-resolved at any time.
type Handle struct {
	reg   *Registry
	kind  Kind
	name  string
	shape Shape
}

func (h *Handle) Kind() Kind     { return h.kind }
func (h *Handle) Name() string   { return h.name }
func (h *Handle) Shape() Shape   { return h.shape }
func (h *Handle) String() string { return fmt.Sprintf("%s/%s", h.kind, h.name) }

// Read returns the last synchronized value.
func (h *Handle) Read() (Value, error) {
	shape, ok := h.reg.src.ModifierShape(h.kind, h.name)
	if !ok {
		return Value{}, &NotFoundError{Kind: h.kind, Name: h.name}
	}
	if shape != h.shape {
		return Value{}, fmt.Errorf("%w: %s was %s, now %s", ErrShapeChanged, h, h.shape, shape)
	}

	v, ok := h.reg.src.Snapshot(h.kind, h.name)
	if !ok {
		return Value{}, &NotFoundError{Kind: h.kind, Name: h.name}
	}
	v.Shape = h.shape
	return v, nil
}

// Scalar reads a scalar-shaped modifier.
func (h *Handle) Scalar() (float64, error) {
	if h.shape != Scalar {
		return 0, fmt.Errorf("modifier: %s is %s, not scalar", h, h.shape)
	}
	v, err := h.Read()
	return v.Scalar, err
}

// Scalars synchronizes every kind and returns the scalar-shaped modifiers
// keyed by kind/name. Values that cannot be read are skipped.
func (r *Registry) Scalars() map[string]float64 {
	r.SynchronizeAll()
	out := make(map[string]float64)
	for _, k := range Kinds {
		for _, name := range r.src.ModifierNames(k) {
			h, err := r.Resolve(k, name)
			if err != nil || h.Shape() != Scalar {
				continue
			}
			if v, err := h.Scalar(); err == nil {
				out[h.String()] = v
			}
		}
	}
	return out
}

package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/san-kum/mdctl/internal/modifier"
)

// Sampler reads tracked modifiers and records them into a run.
type Sampler struct {
	store   *Store
	runID   string
	reg     *modifier.Registry
	handles []*modifier.Handle
	kinds   map[modifier.Kind]bool
}

// ParseTrack splits a "kind/name" modifier reference.
func ParseTrack(ref string) (modifier.Kind, string, error) {
	kindStr, name, ok := strings.Cut(ref, "/")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("history: bad modifier reference %q, want kind/name", ref)
	}
	kind, err := modifier.ParseKind(kindStr)
	if err != nil {
		return 0, "", err
	}
	return kind, name, nil
}

// NewSampler resolves every tracked modifier up front.
func NewSampler(store *Store, runID string, reg *modifier.Registry, track []string) (*Sampler, error) {
	s := &Sampler{store: store, runID: runID, reg: reg, kinds: make(map[modifier.Kind]bool)}
	for _, ref := range track {
		kind, name, err := ParseTrack(ref)
		if err != nil {
			return nil, err
		}
		h, err := reg.Resolve(kind, name)
		if err != nil {
			return nil, err
		}
		s.handles = append(s.handles, h)
		s.kinds[kind] = true
	}
	return s, nil
}

// RunID returns the run samples go to.
func (s *Sampler) RunID() string { return s.runID }

// Values synchronizes the tracked kinds and reads every handle. Vectors are
// flattened to name[i]; arrays and shapeless modifiers are skipped.
func (s *Sampler) Values() (map[string]float64, error) {
	for _, k := range modifier.Kinds {
		if s.kinds[k] {
			s.reg.Synchronize(k)
		}
	}

	values := make(map[string]float64, len(s.handles))
	for _, h := range s.handles {
		v, err := h.Read()
		if err != nil {
			return nil, err
		}
		switch v.Shape {
		case modifier.Scalar:
			values[h.String()] = v.Scalar
		case modifier.Vector:
			for i, x := range v.Vector {
				values[fmt.Sprintf("%s[%d]", h, i+1)] = x
			}
		}
	}
	return values, nil
}

// Sample records the current values at timestep.
func (s *Sampler) Sample(ctx context.Context, timestep int64) (map[string]float64, error) {
	values, err := s.Values()
	if err != nil {
		return nil, err
	}
	return values, s.store.Record(ctx, s.runID, timestep, values)
}

// Package modifier resolves named engine quantities (computes, fixes and
// variables) to lightweight handles.
//
// Values are read from a snapshot the engine fills on [Registry.Synchronize].
// Reading without synchronizing after a timestep returns the previous
// snapshot; that is a stale read, not an error.
package modifier

import (
	"errors"
	"fmt"
)

// Kind is the family a modifier belongs to. Names are unique per kind.
type Kind int

const (
	Compute Kind = iota
	Fix
	Variable
)

// Kinds lists every modifier kind.
var Kinds = []Kind{Compute, Fix, Variable}

func (k Kind) String() string {
	switch k {
	case Compute:
		return "compute"
	case Fix:
		return "fix"
	case Variable:
		return "variable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("modifier: unknown kind %q", s)
}

// Shape is the declared layout of a modifier's global output.
type Shape int

const (
	None Shape = iota
	Scalar
	Vector
	Array
)

func (s Shape) String() string {
	switch s {
	case Scalar:
		return "scalar"
	case Vector:
		return "vector"
	case Array:
		return "array"
	default:
		return "none"
	}
}

// Value is one read of a modifier. Only the field matching Shape is set.
type Value struct {
	Shape  Shape
	Scalar float64
	Vector []float64
	Array  [][]float64
}

// Clone deep-copies v.
func (v Value) Clone() Value {
	c := Value{Shape: v.Shape, Scalar: v.Scalar}
	if v.Vector != nil {
		c.Vector = append([]float64(nil), v.Vector...)
	}
	if v.Array != nil {
		c.Array = make([][]float64, len(v.Array))
		for i, row := range v.Array {
			c.Array[i] = append([]float64(nil), row...)
		}
	}
	return c
}

var (
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = errors.New("modifier: not found")

	// ErrShapeChanged indicates a modifier redefined with a different shape
	// after a handle to it was resolved.
	ErrShapeChanged = errors.New("modifier: shape changed since resolution")
)

// NotFoundError reports a kind/name pair the engine does not define.
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("modifier: %s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

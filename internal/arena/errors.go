package arena

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleView matches any StaleViewError.
	ErrStaleView = errors.New("arena: stale view")

	// ErrElemType indicates a typed accessor that does not match the array.
	ErrElemType = errors.New("arena: element type mismatch")

	// ErrIndex indicates an element index outside the view.
	ErrIndex = errors.New("arena: index out of range")
)

// StaleViewError reports a view used after the arena was mutated.
type StaleViewError struct {
	Kind     Kind
	Resolved uint64
	Current  uint64
	// Moved is set when the epoch is unchanged but the engine replaced its
	// memory underneath the view.
	Moved bool
}

func (e *StaleViewError) Error() string {
	if e.Moved {
		return fmt.Sprintf("arena: stale view of %s (engine memory moved at epoch %d)", e.Kind, e.Current)
	}
	return fmt.Sprintf("arena: stale view of %s (resolved at epoch %d, now %d)", e.Kind, e.Resolved, e.Current)
}

func (e *StaleViewError) Is(target error) bool { return target == ErrStaleView }

// BoundsError reports a region that runs past what the engine allocated for
// the array or past the end of the arena.
type BoundsError struct {
	Kind   Kind
	Offset uint32
	Size   int
	Arena  int
	// Count and Allocated are set when more elements were asked for than
	// the array holds.
	Count     int
	Allocated int
}

func (e *BoundsError) Error() string {
	if e.Count > e.Allocated {
		return fmt.Sprintf("arena: %d elements of %s requested, %d allocated", e.Count, e.Kind, e.Allocated)
	}
	return fmt.Sprintf("arena: %s region [%d, %d) exceeds arena of %d bytes",
		e.Kind, e.Offset, int(e.Offset)+e.Size, e.Arena)
}

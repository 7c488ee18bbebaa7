package engine

import (
	"context"
	"fmt"

	"github.com/san-kum/mdctl/internal/arena"
)

// Frame is a copy of the particle state at one timestep.
type Frame struct {
	Timestep  int64
	Positions []float64
	IDs       []int32
	Types     []int32
	Cell      [9]float64
	Origin    [3]float64
}

// NumAtoms returns the number of atoms in the frame.
func (f *Frame) NumAtoms() int { return len(f.IDs) }

// Frame exports the particle arrays and copies them out of engine memory.
func (e *Engine) Frame(ctx context.Context) (*Frame, error) {
	if _, err := e.ComputeParticles(ctx); err != nil {
		return nil, err
	}

	f := &Frame{Timestep: e.Timesteps()}
	var err error
	if f.Positions, err = e.copyFloats(arena.Positions, nil); err != nil {
		return nil, err
	}
	if f.IDs, err = e.copyInts(arena.AtomIDs); err != nil {
		return nil, err
	}
	if f.Types, err = e.copyInts(arena.AtomTypes); err != nil {
		return nil, err
	}
	if _, err = e.copyFloats(arena.CellMatrix, f.Cell[:0]); err != nil {
		return nil, err
	}
	if _, err = e.copyFloats(arena.Origin, f.Origin[:0]); err != nil {
		return nil, err
	}
	if len(f.Positions) != 3*len(f.IDs) || len(f.Types) != len(f.IDs) {
		return nil, fmt.Errorf("engine: inconsistent particle arrays: %d positions, %d ids, %d types",
			len(f.Positions), len(f.IDs), len(f.Types))
	}
	return f, nil
}

func (e *Engine) copyFloats(kind arena.Kind, dst []float64) ([]float64, error) {
	_, v, err := e.ViewAll(kind)
	if err != nil {
		return nil, err
	}
	return v.CopyFloat64s(dst)
}

func (e *Engine) copyInts(kind arena.Kind) ([]int32, error) {
	_, v, err := e.ViewAll(kind)
	if err != nil {
		return nil, err
	}
	return v.CopyInt32s(nil)
}

package arena

import (
	"encoding/binary"
	"fmt"
	"math"
)

// View is a borrowed window onto an engine array. Writes go straight into
// engine memory.
type View struct {
	ptr   Pointer
	data  []byte
	stamp uint64
	epoch *Epoch
	src   Source
	gen   uint64
}

// Pointer returns the region the view was resolved from.
func (v *View) Pointer() Pointer { return v.ptr }

// Kind returns the array kind.
func (v *View) Kind() Kind { return v.ptr.Kind }

// Len returns the number of elements.
func (v *View) Len() int { return v.ptr.Count }

// Epoch returns the epoch the view was resolved in.
func (v *View) Epoch() uint64 { return v.stamp }

// Valid returns a StaleViewError once the arena has been mutated or its
// memory has moved.
func (v *View) Valid() error {
	now := v.epoch.Current()
	if now != v.stamp {
		return &StaleViewError{Kind: v.ptr.Kind, Resolved: v.stamp, Current: now}
	}
	if v.src != nil && v.src.Generation() != v.gen {
		return &StaleViewError{Kind: v.ptr.Kind, Resolved: v.stamp, Current: now, Moved: true}
	}
	return nil
}

// Bytes returns the raw region. The slice aliases engine memory and is only
// meaningful while Valid returns nil.
func (v *View) Bytes() ([]byte, error) {
	if err := v.Valid(); err != nil {
		return nil, err
	}
	return v.data, nil
}

func (v *View) check(i int, want Elem) error {
	if err := v.Valid(); err != nil {
		return err
	}
	if v.ptr.Kind.Elem() != want {
		return fmt.Errorf("%w: %s holds %s, not %s", ErrElemType, v.ptr.Kind, v.ptr.Kind.Elem(), want)
	}
	if i < 0 || i >= v.ptr.Count {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndex, i, v.ptr.Count)
	}
	return nil
}

// Float64 reads element i.
func (v *View) Float64(i int) (float64, error) {
	if err := v.check(i, Float64); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.data[i*8:])), nil
}

// SetFloat64 writes element i.
func (v *View) SetFloat64(i int, x float64) error {
	if err := v.check(i, Float64); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(v.data[i*8:], math.Float64bits(x))
	return nil
}

// Int32 reads element i.
func (v *View) Int32(i int) (int32, error) {
	if err := v.check(i, Int32); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(v.data[i*4:])), nil
}

// SetInt32 writes element i.
func (v *View) SetInt32(i int, x int32) error {
	if err := v.check(i, Int32); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(v.data[i*4:], uint32(x))
	return nil
}

// Vec3 reads the i-th triple of a float64 array laid out as x,y,z records.
func (v *View) Vec3(i int) ([3]float64, error) {
	var out [3]float64
	if err := v.check(3*i+2, Float64); err != nil {
		return out, err
	}
	for k := 0; k < 3; k++ {
		out[k] = math.Float64frombits(binary.LittleEndian.Uint64(v.data[(3*i+k)*8:]))
	}
	return out, nil
}

// CopyFloat64s appends the view's elements to dst.
func (v *View) CopyFloat64s(dst []float64) ([]float64, error) {
	if v.ptr.Count == 0 {
		return dst, v.Valid()
	}
	if err := v.check(0, Float64); err != nil {
		return dst, err
	}
	for i := 0; i < v.ptr.Count; i++ {
		dst = append(dst, math.Float64frombits(binary.LittleEndian.Uint64(v.data[i*8:])))
	}
	return dst, nil
}

// CopyInt32s appends the view's elements to dst.
func (v *View) CopyInt32s(dst []int32) ([]int32, error) {
	if v.ptr.Count == 0 {
		return dst, v.Valid()
	}
	if err := v.check(0, Int32); err != nil {
		return dst, err
	}
	for i := 0; i < v.ptr.Count; i++ {
		dst = append(dst, int32(binary.LittleEndian.Uint32(v.data[i*4:])))
	}
	return dst, nil
}

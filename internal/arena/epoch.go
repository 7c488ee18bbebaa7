package arena

import "sync/atomic"

// Epoch counts arena-affecting calls. It only increases.
type Epoch struct {
	n atomic.Uint64
}

// Advance invalidates every view resolved before the call.
func (e *Epoch) Advance() uint64 { return e.n.Add(1) }

// Current returns the epoch new views are stamped with.
func (e *Epoch) Current() uint64 { return e.n.Load() }

package run

import "sync"

// Slot holds a single post-step callback. The first registration wins;
// later ones are ignored.
type Slot struct {
	mu sync.Mutex
	fn func() bool
}

// Register installs fn if the slot is empty and reports whether it did.
func (s *Slot) Register(fn func() bool) bool {
	if fn == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn != nil {
		return false
	}
	s.fn = fn
	return true
}

// Registered reports whether a callback is installed.
func (s *Slot) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

// Invoke calls the callback. An empty slot never requests a pause.
func (s *Slot) Invoke() bool {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	return fn()
}

// Dispatcher fans one checkpoint out to any number of listeners.
type Dispatcher struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func() bool
	order     []int
}

// Add registers fn and returns a function that removes it.
func (d *Dispatcher) Add(fn func() bool) (remove func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listeners == nil {
		d.listeners = make(map[int]func() bool)
	}
	id := d.next
	d.next++
	d.listeners[id] = fn
	d.order = append(d.order, id)

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
		for i, v := range d.order {
			if v == id {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of listeners.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// Notify calls every listener in registration order and reports whether any
// of them asked for a pause. All listeners run even after one returns true.
func (d *Dispatcher) Notify() bool {
	d.mu.Lock()
	fns := make([]func() bool, 0, len(d.order))
	for _, id := range d.order {
		fns = append(fns, d.listeners[id])
	}
	d.mu.Unlock()

	pause := false
	for _, fn := range fns {
		if fn() {
			pause = true
		}
	}
	return pause
}

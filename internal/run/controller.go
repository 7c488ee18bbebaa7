package run

import (
	"context"
	"log/slog"
	"sync"

	"github.com/san-kum/mdctl/internal/logging"
)

// Engine is what the controller needs from the engine.
type Engine interface {
	// Step advances exactly one timestep and calls the post-step hook once.
	// It reports whether a step was taken.
	Step(ctx context.Context) (bool, error)
	// ResetRun clears the run-scoped counters.
	ResetRun()
	Counters() Counters
}

// Controller owns the run state.
type Controller struct {
	mu    sync.Mutex
	state State

	eng       Engine
	listeners Dispatcher
	log       *slog.Logger
}

// NewController returns an idle controller for eng.
func NewController(eng Engine, log *slog.Logger) *Controller {
	return &Controller{eng: eng, log: logging.OrDiscard(log)}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether a run is in progress, paused or not.
func (c *Controller) IsRunning() bool {
	s := c.State()
	return s == Running || s == Paused
}

// Listen adds a post-step listener. A listener returning true asks for a
// pause after the current step.
func (c *Controller) Listen(fn func() bool) (remove func()) {
	return c.listeners.Add(fn)
}

func (c *Controller) transition(op string, to State, from ...State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range from {
		if c.state == s {
			c.log.Debug("run transition", "op", op, "from", c.state, "to", to)
			c.state = to
			return true
		}
	}
	c.log.Debug("run transition ignored", "op", op, "state", c.state)
	return false
}

// Start begins a fresh run from Idle or Cancelled.
func (c *Controller) Start() bool {
	if !c.transition("start", Running, Idle, Cancelled) {
		return false
	}
	c.eng.ResetRun()
	return true
}

// Begin marks an engine-driven run, such as a run command, as Running
// without resetting counters. It only succeeds from Idle.
func (c *Controller) Begin() bool {
	return c.transition("begin", Running, Idle)
}

// End returns a run started with Begin to Idle unless it was paused or
// cancelled in the meantime.
func (c *Controller) End() bool {
	return c.transition("end", Idle, Running)
}

// SetPaused toggles between Running and Paused. Pausing keeps all engine
// state; it only suspends automatic advancement.
func (c *Controller) SetPaused(paused bool) bool {
	if paused {
		return c.transition("pause", Paused, Running)
	}
	return c.transition("resume", Running, Paused)
}

// Stop finalizes the run. A following Start begins a new one.
func (c *Controller) Stop() bool {
	return c.transition("stop", Idle, Running, Paused, Cancelled)
}

// Cancel latches Cancelled. A running engine observes it at its next
// checkpoint. Cancelling an idle controller is a no-op.
func (c *Controller) Cancel() bool {
	return c.transition("cancel", Cancelled, Running, Paused)
}

// Step advances one timestep while Running or Paused. In any other state it
// does nothing and reports false.
func (c *Controller) Step(ctx context.Context) (bool, error) {
	switch c.State() {
	case Running, Paused:
	default:
		return false, nil
	}
	return c.eng.Step(ctx)
}

// Run advances up to n timesteps for as long as the state stays Running and
// returns the number taken. A pause, cancel or stop observed between steps
// ends the loop early.
func (c *Controller) Run(ctx context.Context, n int) (int, error) {
	taken := 0
	for taken < n {
		if err := ctx.Err(); err != nil {
			return taken, err
		}
		if c.State() != Running {
			break
		}
		ok, err := c.eng.Step(ctx)
		if err != nil {
			return taken, err
		}
		if !ok {
			break
		}
		taken++
	}
	return taken, nil
}

// Checkpoint is the per-timestep interruption point the engine calls. It
// returns true when the engine should leave its loop after this step: on
// cancel, when a listener asks for a pause, and whenever the state is no
// longer Running once listeners have been told.
func (c *Controller) Checkpoint() bool {
	if c.State() == Cancelled {
		c.log.Log(context.Background(), logging.LevelTrace, "checkpoint observed cancel")
		return true
	}
	if c.listeners.Notify() && c.SetPaused(true) {
		c.log.Debug("checkpoint requested pause", "timestep", c.eng.Counters().CurrentTimestep)
	}
	if s := c.State(); s != Running {
		c.log.Log(context.Background(), logging.LevelTrace, "checkpoint leaving loop", "state", s)
		return true
	}
	return false
}

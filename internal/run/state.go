package run

import "fmt"

// State is the run state of the engine.
type State int

const (
	Idle State = iota
	Running
	Paused
	Cancelled
)

// States lists every state.
var States = []State{Idle, Running, Paused, Cancelled}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Counters are updated by the engine as it advances.
type Counters struct {
	CurrentTimestep       int64
	RunTimestepsCompleted int64
	RunTimestepsTotal     int64
	TimestepsPerSecond    float64
}

// Remaining is the number of steps left in the current run.
func (c Counters) Remaining() int64 {
	if r := c.RunTimestepsTotal - c.RunTimestepsCompleted; r > 0 {
		return r
	}
	return 0
}

package run_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mdctl/internal/run"
)

// stepEngine advances a counter and calls its hook once per step, the way a
// real engine calls the controller's checkpoint.
type stepEngine struct {
	counters run.Counters
	hook     func() bool
	resets   int
	fail     error
}

func (e *stepEngine) Step(ctx context.Context) (bool, error) {
	if e.fail != nil {
		return false, e.fail
	}
	e.counters.CurrentTimestep++
	e.counters.RunTimestepsCompleted++
	if e.counters.RunTimestepsCompleted > e.counters.RunTimestepsTotal {
		e.counters.RunTimestepsTotal = e.counters.RunTimestepsCompleted
	}
	if e.hook != nil {
		e.hook()
	}
	return true, nil
}

func (e *stepEngine) ResetRun() {
	e.resets++
	e.counters.RunTimestepsCompleted = 0
	e.counters.RunTimestepsTotal = 0
}

func (e *stepEngine) Counters() run.Counters { return e.counters }

// runN mimics an engine-owned "run N" loop that leaves early when the
// checkpoint asks it to.
func (e *stepEngine) runN(n int) int {
	e.counters.RunTimestepsCompleted = 0
	e.counters.RunTimestepsTotal = int64(n)
	for i := 0; i < n; i++ {
		e.counters.CurrentTimestep++
		e.counters.RunTimestepsCompleted++
		if e.hook() {
			return i + 1
		}
	}
	return n
}

type op struct {
	name string
	do   func(*run.Controller) bool
}

var ops = []op{
	{"start", (*run.Controller).Start},
	{"stop", (*run.Controller).Stop},
	{"cancel", (*run.Controller).Cancel},
	{"pause", func(c *run.Controller) bool { return c.SetPaused(true) }},
	{"resume", func(c *run.Controller) bool { return c.SetPaused(false) }},
}

// expected is the transition table; a missing entry means no-op.
var expected = map[run.State]map[string]run.State{
	run.Idle:      {"start": run.Running},
	run.Running:   {"stop": run.Idle, "cancel": run.Cancelled, "pause": run.Paused},
	run.Paused:    {"stop": run.Idle, "cancel": run.Cancelled, "resume": run.Running},
	run.Cancelled: {"start": run.Running, "stop": run.Idle},
}

// reach drives a fresh controller into s.
func reach(c *run.Controller, s run.State) {
	switch s {
	case run.Running:
		c.Start()
	case run.Paused:
		c.Start()
		c.SetPaused(true)
	case run.Cancelled:
		c.Start()
		c.Cancel()
	}
	Expect(c.State()).To(Equal(s))
}

var _ = Describe("Controller", func() {
	var (
		eng  *stepEngine
		ctrl *run.Controller
	)

	BeforeEach(func() {
		eng = &stepEngine{}
		ctrl = run.NewController(eng, nil)
		eng.hook = ctrl.Checkpoint
	})

	It("starts idle", func() {
		Expect(ctrl.State()).To(Equal(run.Idle))
		Expect(ctrl.IsRunning()).To(BeFalse())
	})

	Describe("transition table", func() {
		for _, from := range run.States {
			for _, o := range ops {
				from, o := from, o
				It("applies "+o.name+" from "+from.String(), func() {
					reach(ctrl, from)
					want, valid := expected[from][o.name]
					ok := o.do(ctrl)
					Expect(ok).To(Equal(valid))
					if valid {
						Expect(ctrl.State()).To(Equal(want))
					} else {
						Expect(ctrl.State()).To(Equal(from))
					}
				})
			}
		}

		It("replays every pair of operations deterministically", func() {
			for _, a := range ops {
				for _, b := range ops {
					c := run.NewController(&stepEngine{}, nil)
					state := run.Idle
					for _, o := range []op{a, b} {
						if next, ok := expected[state][o.name]; ok {
							state = next
						}
						o.do(c)
						Expect(c.State()).To(Equal(state), "after %s,%s", a.name, b.name)
					}
				}
			}
		})
	})

	Describe("Start", func() {
		It("resets run counters", func() {
			eng.counters.RunTimestepsCompleted = 7
			Expect(ctrl.Start()).To(BeTrue())
			Expect(eng.resets).To(Equal(1))
			Expect(eng.counters.RunTimestepsCompleted).To(BeZero())
		})

		It("fails while already running", func() {
			ctrl.Start()
			Expect(ctrl.Start()).To(BeFalse())
			Expect(eng.resets).To(Equal(1))
		})
	})

	Describe("Begin and End", func() {
		It("brackets an engine-driven run without resetting counters", func() {
			eng.counters.RunTimestepsCompleted = 7
			Expect(ctrl.Begin()).To(BeTrue())
			Expect(ctrl.State()).To(Equal(run.Running))
			Expect(eng.resets).To(BeZero())
			Expect(ctrl.End()).To(BeTrue())
			Expect(ctrl.State()).To(Equal(run.Idle))
		})

		It("leaves a paused run paused", func() {
			ctrl.Listen(func() bool { return true })
			Expect(ctrl.Begin()).To(BeTrue())
			eng.runN(10)
			Expect(ctrl.End()).To(BeFalse())
			Expect(ctrl.State()).To(Equal(run.Paused))
		})

		It("does not take over an existing run", func() {
			ctrl.Start()
			ctrl.SetPaused(true)
			Expect(ctrl.Begin()).To(BeFalse())
		})
	})

	Describe("Step", func() {
		It("advances the timestep by exactly N", func() {
			ctrl.Start()
			for i := 0; i < 12; i++ {
				ok, err := ctrl.Step(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			}
			Expect(eng.counters.CurrentTimestep).To(Equal(int64(12)))
		})

		It("is a no-op while idle", func() {
			ok, err := ctrl.Step(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(eng.counters.CurrentTimestep).To(BeZero())
		})

		It("is a no-op after stop", func() {
			ctrl.Start()
			ctrl.Step(context.Background())
			Expect(ctrl.IsRunning()).To(BeTrue())
			ctrl.Stop()
			Expect(ctrl.IsRunning()).To(BeFalse())
			ok, _ := ctrl.Step(context.Background())
			Expect(ok).To(BeFalse())
			Expect(eng.counters.CurrentTimestep).To(Equal(int64(1)))
		})

		It("steps manually while paused", func() {
			ctrl.Start()
			ctrl.SetPaused(true)
			ok, err := ctrl.Step(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(ctrl.State()).To(Equal(run.Paused))
		})

		It("invokes listeners exactly once per step", func() {
			calls := 0
			ctrl.Listen(func() bool { calls++; return false })
			ctrl.Start()
			for i := 0; i < 3; i++ {
				ctrl.Step(context.Background())
			}
			Expect(calls).To(Equal(3))
		})

		It("propagates engine errors", func() {
			eng.fail = errors.New("trap")
			ctrl.Start()
			_, err := ctrl.Step(context.Background())
			Expect(err).To(MatchError("trap"))
		})
	})

	Describe("Run", func() {
		It("stops advancing once paused", func() {
			calls := 0
			ctrl.Listen(func() bool { calls++; return calls == 4 })
			ctrl.Start()
			n, err := ctrl.Run(context.Background(), 50)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(4))
			Expect(ctrl.State()).To(Equal(run.Paused))

			ctrl.SetPaused(false)
			n, _ = ctrl.Run(context.Background(), 3)
			Expect(n).To(Equal(3))
		})

		It("honours context cancellation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			ctrl.Start()
			n, err := ctrl.Run(ctx, 10)
			Expect(err).To(MatchError(context.Canceled))
			Expect(n).To(BeZero())
		})
	})

	Describe("Checkpoint", func() {
		It("pauses an engine-owned loop when a listener asks", func() {
			calls := 0
			ctrl.Listen(func() bool { calls++; return calls == 5 })
			ctrl.Start()

			taken := eng.runN(100)
			Expect(taken).To(BeNumerically(">=", 5))
			Expect(eng.counters.RunTimestepsCompleted).To(BeNumerically("<", 100))
			Expect(ctrl.State()).To(Equal(run.Paused))
		})

		It("aborts an engine-owned loop after cancel", func() {
			calls := 0
			ctrl.Listen(func() bool {
				calls++
				if calls == 3 {
					ctrl.Cancel()
				}
				return false
			})
			ctrl.Start()

			taken := eng.runN(100)
			Expect(taken).To(Equal(3))
			Expect(ctrl.State()).To(Equal(run.Cancelled))
		})

		It("leaves an engine-owned loop once the run is stopped", func() {
			calls := 0
			ctrl.Listen(func() bool {
				calls++
				if calls == 3 {
					ctrl.Stop()
				}
				return false
			})
			ctrl.Start()

			Expect(eng.runN(50)).To(Equal(3))
			Expect(ctrl.State()).To(Equal(run.Idle))
			Expect(ctrl.IsRunning()).To(BeFalse())
		})

		It("does not let an engine-owned loop advance a paused run", func() {
			ctrl.Start()
			ctrl.SetPaused(true)

			Expect(eng.runN(20)).To(Equal(1))
			Expect(ctrl.State()).To(Equal(run.Paused))
		})

		It("never asks to pause without listeners", func() {
			ctrl.Start()
			Expect(eng.runN(20)).To(Equal(20))
			Expect(ctrl.State()).To(Equal(run.Running))
		})
	})
})

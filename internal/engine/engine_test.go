package engine_test

import (
	"bytes"
	"context"
	"errors"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mdctl/internal/arena"
	"github.com/san-kum/mdctl/internal/engine"
	"github.com/san-kum/mdctl/internal/modifier"
	"github.com/san-kum/mdctl/internal/run"
)

const setup = `
units lj
atom_style atomic
lattice fcc 0.8442
region box block 0 4 0 4 0 4
create_box 1 box
create_atoms 1 box
`

const dynamics = `
mass 1 1.0
velocity all create 1.44 87287
pair_style lj/cut 2.5
pair_coeff 1 1 1.0 1.0 2.5
fix 1 all nve
`

var _ = Describe("Engine", func() {
	var (
		ctx context.Context
		eng *engine.Engine
		out *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		out = &bytes.Buffer{}
		var err error
		eng, err = engine.Open(ctx, engine.Options{Print: out, PrintErr: out})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(eng.Close(ctx)).To(Succeed()) })
	})

	mustRun := func(text string) {
		GinkgoHelper()
		Expect(eng.RunCommand(ctx, text)).To(Succeed())
		Expect(eng.CommandError()).NotTo(HaveOccurred())
	}

	Describe("ownership", func() {
		It("refuses a second engine while one is active", func() {
			_, err := engine.Open(ctx, engine.Options{})
			Expect(err).To(MatchError(engine.ErrEngineActive))
		})

		It("allows a new engine after close", func() {
			Expect(eng.Close(ctx)).To(Succeed())
			again, err := engine.Open(ctx, engine.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Close(ctx)).To(Succeed())
		})

		It("rejects calls after close", func() {
			Expect(eng.Close(ctx)).To(Succeed())
			Expect(eng.RunCommand(ctx, "print hi")).To(MatchError(engine.ErrClosed))
		})

		It("reports unknown backends", func() {
			Expect(eng.Close(ctx)).To(Succeed())
			_, err := engine.Open(ctx, engine.Options{Backend: "gpu"})
			Expect(err).To(MatchError(engine.ErrUnknownBackend))

			again, err := engine.Open(ctx, engine.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Close(ctx)).To(Succeed())
		})
	})

	Describe("commands", func() {
		It("fills the fcc block with 256 atoms", func() {
			mustRun(setup)
			Expect(eng.NumAtoms()).To(Equal(256))
			Expect(eng.MemoryUsage()).To(BeNumerically(">", 0))
		})

		It("surfaces engine failures by polling", func() {
			Expect(eng.RunCommand(ctx, "frobnicate")).To(Succeed())
			Expect(eng.LastCommand()).To(Equal("frobnicate"))
			Expect(eng.ErrorMessage()).To(ContainSubstring("Unknown command"))

			var cmdErr *engine.CommandError
			Expect(eng.CommandError()).To(BeAssignableToTypeOf(cmdErr))
			Expect(eng.CommandError().Error()).To(ContainSubstring("frobnicate"))

			mustRun("print ok")
		})

		It("leaves state intact after a failing command", func() {
			mustRun(setup)
			Expect(eng.RunCommand(ctx, "create_atoms 9 box")).To(Succeed())
			Expect(eng.ErrorMessage()).NotTo(BeEmpty())
			Expect(eng.NumAtoms()).To(Equal(256))
		})
	})

	Describe("run control", func() {
		BeforeEach(func() {
			mustRun(setup + dynamics)
		})

		It("steps exactly once after start and not at all after stop", func() {
			before := eng.Timesteps()
			Expect(eng.Start()).To(BeTrue())

			ok, err := eng.Step(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(eng.Timesteps()).To(Equal(before + 1))
			Expect(eng.IsRunning()).To(BeTrue())

			Expect(eng.Stop()).To(BeTrue())
			Expect(eng.IsRunning()).To(BeFalse())

			ok, err = eng.Step(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(eng.Timesteps()).To(Equal(before + 1))
		})

		It("advances by exactly N steps while running", func() {
			eng.Start()
			for i := 0; i < 12; i++ {
				_, err := eng.Step(ctx)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(eng.Timesteps()).To(BeEquivalentTo(12))
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(12))
		})

		It("pauses a run command when the callback asks and continues it later", func() {
			calls := 0
			Expect(eng.SetPostStepCallback(func() bool { calls++; return calls == 5 })).To(BeTrue())
			Expect(eng.SetPostStepCallback(func() bool { return true })).To(BeFalse())

			mustRun("run 100")
			Expect(eng.RunTimesteps()).To(BeNumerically(">=", 5))
			Expect(eng.RunTimesteps()).To(BeNumerically("<", 100))
			Expect(eng.RunTotalTimesteps()).To(BeEquivalentTo(100))
			Expect(eng.State()).To(Equal(run.Paused))

			n, err := eng.Continue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(95))
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(100))
			Expect(eng.Timesteps()).To(BeEquivalentTo(100))
			Expect(eng.State()).To(Equal(run.Idle))
		})

		It("returns to idle after an uninterrupted run command", func() {
			mustRun("run 10")
			Expect(eng.State()).To(Equal(run.Idle))
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(10))
		})

		It("aborts a run command at the next checkpoint after cancel", func() {
			calls := 0
			eng.AddPostStepListener(func() bool {
				calls++
				if calls == 3 {
					eng.Cancel()
				}
				return false
			})

			mustRun("run 50")
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(3))
			Expect(eng.State()).To(Equal(run.Cancelled))

			n, err := eng.Continue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			Expect(eng.Start()).To(BeTrue())
			Expect(eng.RunTimesteps()).To(BeZero())
		})

		It("leaves a run command as soon as the run is stopped", func() {
			eng.AddPostStepListener(func() bool {
				if eng.RunTimesteps() == 3 {
					eng.Stop()
				}
				return false
			})

			mustRun("run 50")
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(3))
			Expect(eng.State()).To(Equal(run.Idle))
			Expect(eng.IsRunning()).To(BeFalse())
		})

		It("holds a run command issued while paused after one step", func() {
			Expect(eng.Start()).To(BeTrue())
			Expect(eng.SetPaused(true)).To(BeTrue())

			mustRun("run 20")
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(1))
			Expect(eng.RunTotalTimesteps()).To(BeEquivalentTo(20))
			Expect(eng.State()).To(Equal(run.Paused))

			n, err := eng.Continue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(19))
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(20))
		})

		It("removes listeners", func() {
			remove := eng.AddPostStepListener(func() bool { return true })
			remove()
			mustRun("run 5")
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(5))
		})

		It("calls the callback given at open", func() {
			Expect(eng.Close(ctx)).To(Succeed())

			calls := 0
			var err error
			eng, err = engine.Open(ctx, engine.Options{PostStep: func() bool { calls++; return false }})
			Expect(err).NotTo(HaveOccurred())
			mustRun(setup + dynamics + "run 6")
			Expect(calls).To(Equal(6))
		})
	})

	Describe("modifiers", func() {
		BeforeEach(func() {
			mustRun(setup + dynamics + "compute t all temp\nvariable s equal step")
		})

		It("resolves exactly the listed names", func() {
			reg := eng.Modifiers()
			for _, kind := range modifier.Kinds {
				for _, name := range reg.ListNames(kind) {
					_, err := reg.Resolve(kind, name)
					Expect(err).NotTo(HaveOccurred())
				}
			}
			_, err := reg.Resolve(modifier.Compute, "missing")
			Expect(err).To(MatchError(modifier.ErrNotFound))
		})

		It("fails for a removed modifier", func() {
			h, err := eng.Modifiers().Resolve(modifier.Compute, "t")
			Expect(err).NotTo(HaveOccurred())

			mustRun("uncompute t")
			Expect(eng.Modifiers().ListNames(modifier.Compute)).NotTo(ContainElement("t"))
			_, err = eng.Modifiers().Resolve(modifier.Compute, "t")
			Expect(err).To(MatchError(modifier.ErrNotFound))
			_, err = h.Read()
			Expect(err).To(MatchError(modifier.ErrNotFound))
		})

		It("reads values as of the last synchronize", func() {
			s := eng.Modifiers().MustResolve(modifier.Variable, "s")

			mustRun("run 3")
			eng.Modifiers().Synchronize(modifier.Variable)
			Expect(s.Scalar()).To(BeEquivalentTo(3))

			mustRun("run 2")
			Expect(s.Scalar()).To(BeEquivalentTo(3))

			eng.Modifiers().SynchronizeAll()
			Expect(s.Scalar()).To(BeEquivalentTo(5))
		})
	})

	Describe("views", func() {
		It("returns empty views for unallocated arrays", func() {
			for _, kind := range arena.Kinds {
				ptr, v, err := eng.ViewAll(kind)
				Expect(err).NotTo(HaveOccurred())
				Expect(ptr.Empty()).To(BeTrue())
				Expect(v.Len()).To(BeZero())
			}
		})

		It("has no bonds before they are computed", func() {
			mustRun(setup + dynamics)
			ptr, v, err := eng.View(arena.BondPosition1, 30)
			Expect(err).NotTo(HaveOccurred())
			Expect(ptr.Empty()).To(BeTrue())
			Expect(v.Len()).To(BeZero())

			n, err := eng.ComputeBonds(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1536))
			_, v, err = eng.ViewAll(arena.BondPosition1)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Len()).To(Equal(3 * n))
		})

		It("reads particle data without copying", func() {
			mustRun(setup)
			n, err := eng.ComputeParticles(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, ids, err := eng.View(arena.AtomIDs, n)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids.Int32(n - 1)).To(BeEquivalentTo(256))

			_, pos, err := eng.ViewAll(arena.Positions)
			Expect(err).NotTo(HaveOccurred())
			Expect(pos.SetFloat64(0, 0.25)).To(Succeed())
			Expect(pos.Float64(0)).To(Equal(0.25))

			_, err = pos.Int32(0)
			Expect(err).To(MatchError(arena.ErrElemType))
		})

		It("rejects views held across a mutating call", func() {
			mustRun(setup + dynamics)
			_, cell, err := eng.ViewAll(arena.CellMatrix)
			Expect(err).NotTo(HaveOccurred())
			Expect(cell.Float64(0)).To(BeNumerically(">", 0))

			mustRun("run 1")
			_, err = cell.Float64(0)
			Expect(err).To(MatchError(arena.ErrStaleView))

			var stale *arena.StaleViewError
			Expect(err).To(BeAssignableToTypeOf(stale))
		})

		It("refuses views longer than the engine array", func() {
			mustRun(setup)
			n, err := eng.ComputeParticles(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = eng.View(arena.AtomIDs, n+8)
			var bounds *arena.BoundsError
			Expect(errors.As(err, &bounds)).To(BeTrue())
			Expect(bounds.Allocated).To(Equal(n))

			_, types, err := eng.ViewAll(arena.AtomTypes)
			Expect(err).NotTo(HaveOccurred())
			Expect(types.Int32(0)).To(BeEquivalentTo(1))
		})

		It("copies a frame", func() {
			mustRun(setup + dynamics + "run 2")
			f, err := eng.Frame(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.NumAtoms()).To(Equal(256))
			Expect(f.Positions).To(HaveLen(3 * 256))
			Expect(f.Timestep).To(BeEquivalentTo(2))
			Expect(f.Cell[0]).To(BeNumerically(">", 6))
			Expect(f.Types).To(HaveEach(BeEquivalentTo(1)))
		})
	})

	Describe("wasm backend", func() {
		BeforeEach(func() {
			Expect(eng.Close(ctx)).To(Succeed())
			bin, err := os.ReadFile("wasm/testdata/engine.wasm")
			Expect(err).NotTo(HaveOccurred())
			eng, err = engine.Open(ctx, engine.Options{Backend: engine.Wasm, WasmBinary: bin})
			Expect(err).NotTo(HaveOccurred())
		})

		It("invalidates views when a modifier call grows guest memory", func() {
			_, pos, err := eng.ViewAll(arena.Positions)
			Expect(err).NotTo(HaveOccurred())
			Expect(pos.Float64(0)).To(Equal(0.5))

			_, err = eng.Modifiers().Resolve(modifier.Compute, "s_temp")
			Expect(err).NotTo(HaveOccurred())

			_, err = pos.Float64(0)
			Expect(err).To(MatchError(arena.ErrStaleView))

			_, pos, err = eng.ViewAll(arena.Positions)
			Expect(err).NotTo(HaveOccurred())
			Expect(pos.Float64(0)).To(Equal(0.5))
		})

		It("pauses a guest run command through the callback", func() {
			calls := 0
			Expect(eng.SetPostStepCallback(func() bool { calls++; return calls == 2 })).To(BeTrue())

			Expect(eng.RunCommand(ctx, "run 6")).To(Succeed())
			Expect(eng.CommandError()).NotTo(HaveOccurred())
			Expect(eng.RunTimesteps()).To(BeEquivalentTo(2))
			Expect(eng.State()).To(Equal(run.Paused))

			n, err := eng.Continue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(4))
			Expect(eng.State()).To(Equal(run.Idle))
		})

		It("reports guest command failures", func() {
			Expect(eng.RunCommand(ctx, "frobnicate")).To(Succeed())
			var cerr *engine.CommandError
			Expect(errors.As(eng.CommandError(), &cerr)).To(BeTrue())
			Expect(cerr.Message).To(Equal("unknown command"))
			Expect(cerr.Command).To(Equal("frobnicate"))
		})
	})
})

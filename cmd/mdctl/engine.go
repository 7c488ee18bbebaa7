package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/mdctl/internal/arena"
	"github.com/san-kum/mdctl/internal/automation"
	"github.com/san-kum/mdctl/internal/config"
	"github.com/san-kum/mdctl/internal/engine"
	"github.com/san-kum/mdctl/internal/history"
	"github.com/san-kum/mdctl/internal/modifier"
	"github.com/san-kum/mdctl/internal/storage"
	"github.com/san-kum/mdctl/internal/tui"
)

var (
	noHistory bool
	snapLabel string
	pauseAt   int64
	stepCount int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [script]",
		Short: "run a script or preset and record sampled modifiers",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScript,
	}
	cmd.Flags().StringVar(&preset, "preset", "", "preset system to run")
	cmd.Flags().IntVar(&steps, "steps", 0, "timesteps to run after the script (default: preset length)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record samples")
	cmd.Flags().StringVar(&snapLabel, "snapshot", "", "save a snapshot with this label at the end")
	addSampleFlags(cmd)
	return cmd
}

func runScript(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(args) == 0 && preset == "" {
		return fmt.Errorf("give a script or --preset")
	}

	s := &automation.Session{
		Name:        "run",
		Preset:      preset,
		Track:       trackList(),
		SampleEvery: sampleEvery(),
	}
	n := steps
	if p := config.GetPreset(preset); p != nil {
		s.Name = preset
		if n == 0 {
			n = p.Steps
		}
	}
	if len(args) == 1 {
		s.Name = args[0]
		s.Steps = append(s.Steps, automation.Step{Name: "script", File: args[0]})
	}
	if n > 0 {
		s.Steps = append(s.Steps, automation.Step{Name: "run", Run: n})
	}
	if snapLabel != "" {
		s.Steps = append(s.Steps, automation.Step{Name: "snapshot", Snapshot: snapLabel})
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	r := &automation.Runner{Engine: eng, Logger: logger}
	if !noHistory && len(s.Track) > 0 {
		hist, err := historyStore(ctx)
		if err != nil {
			return err
		}
		defer hist.Close()
		r.History = hist
	}
	if snapLabel != "" {
		if r.Snapshots, err = snapshotStore(); err != nil {
			return err
		}
	}

	res, err := r.Run(ctx, s)
	if err != nil {
		return err
	}
	c := eng.Counters()
	fmt.Printf("\ntimesteps: %d (%.1f/s)\n", c.CurrentTimestep, c.TimestepsPerSecond)
	if res.RunID != "" {
		fmt.Printf("history run: %s\n", res.RunID)
	}
	for _, id := range res.Snapshots {
		fmt.Printf("snapshot: %s\n", id)
	}
	return nil
}

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [command...]",
		Short: "execute engine commands and report the outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(eng *engine.Engine) error {
				for _, text := range args {
					if err := runChecked(ctx, eng, text); err != nil {
						return err
					}
				}
				fmt.Printf("last command: %s\natoms: %d\nmemory: %d bytes\n",
					eng.LastCommand(), eng.NumAtoms(), eng.MemoryUsage())
				return nil
			})
		},
	}
	addSystemFlags(cmd)
	return cmd
}

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "advance a run one timestep at a time under the run controller",
		RunE:  stepRun,
	}
	addSystemFlags(cmd)
	cmd.Flags().IntVarP(&stepCount, "steps", "n", 10, "timesteps to take")
	cmd.Flags().Int64Var(&pauseAt, "pause-at", 0, "pause from the post-step callback at this run timestep")
	return cmd
}

func stepRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withEngine(ctx, func(eng *engine.Engine) error {
		if pauseAt > 0 {
			eng.SetPostStepCallback(func() bool { return eng.RunTimesteps() == pauseAt })
		}
		if !eng.Start() {
			return fmt.Errorf("cannot start from %s", eng.State())
		}

		for i := 0; i < stepCount; i++ {
			if ok, err := eng.Step(ctx); err != nil || !ok {
				if err != nil {
					return err
				}
				break
			}
			c := eng.Counters()
			fmt.Printf("step %d  run %d/%d  %s\n", c.CurrentTimestep, c.RunTimestepsCompleted, c.RunTimestepsTotal, eng.State())
		}
		if err := eng.CommandError(); err != nil {
			return err
		}
		eng.Stop()
		return nil
	})
}

func newModifiersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modifiers",
		Short: "list computes, fixes and variables with their current values",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(eng *engine.Engine) error {
				if steps > 0 {
					if err := runChecked(ctx, eng, fmt.Sprintf("run %d", steps)); err != nil {
						return err
					}
				}
				return printModifiers(eng.Modifiers())
			})
		},
	}
	addSystemFlags(cmd)
	cmd.Flags().IntVar(&steps, "steps", 0, "timesteps to run first")
	return cmd
}

func printModifiers(reg *modifier.Registry) error {
	reg.SynchronizeAll()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tSHAPE\tVALUE")
	for _, kind := range modifier.Kinds {
		for _, name := range reg.ListNames(kind) {
			h, err := reg.Resolve(kind, name)
			if err != nil {
				return err
			}
			v, err := h.Read()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind, name, h.Shape(), formatValue(v))
		}
	}
	return w.Flush()
}

func formatValue(v modifier.Value) string {
	switch v.Shape {
	case modifier.Scalar:
		return fmt.Sprintf("%.6g", v.Scalar)
	case modifier.Vector:
		parts := make([]string, len(v.Vector))
		for i, x := range v.Vector {
			parts[i] = fmt.Sprintf("%.4g", x)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case modifier.Array:
		return fmt.Sprintf("%d rows", len(v.Array))
	}
	return "-"
}

func newViewCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "view",
		Short: "map particle and bond data and print the first rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(eng *engine.Engine) error {
				if steps > 0 {
					if err := runChecked(ctx, eng, fmt.Sprintf("run %d", steps)); err != nil {
						return err
					}
				}
				return printViews(ctx, eng, limit)
			})
		},
	}
	addSystemFlags(cmd)
	cmd.Flags().IntVar(&steps, "steps", 0, "timesteps to run first")
	cmd.Flags().IntVar(&limit, "limit", 5, "rows to print")
	return cmd
}

func printViews(ctx context.Context, eng *engine.Engine, limit int) error {
	frame, err := eng.Frame(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("timestep %d, %d atoms, cell %.4g x %.4g x %.4g\n",
		frame.Timestep, frame.NumAtoms(), frame.Cell[0], frame.Cell[4], frame.Cell[8])
	for i := 0; i < min(limit, frame.NumAtoms()); i++ {
		fmt.Printf("  %6d %3d  %10.4f %10.4f %10.4f\n", frame.IDs[i], frame.Types[i],
			frame.Positions[3*i], frame.Positions[3*i+1], frame.Positions[3*i+2])
	}

	n, err := eng.ComputeBonds(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d bonds\n", n)
	if n == 0 {
		return nil
	}
	_, p1, err := eng.ViewAll(arena.BondPosition1)
	if err != nil {
		return err
	}
	_, p2, err := eng.ViewAll(arena.BondPosition2)
	if err != nil {
		return err
	}
	for i := 0; i < min(limit, n); i++ {
		a, err := p1.Vec3(i)
		if err != nil {
			return err
		}
		b, err := p2.Vec3(i)
		if err != nil {
			return err
		}
		fmt.Printf("  (%8.4f %8.4f %8.4f) - (%8.4f %8.4f %8.4f)\n", a[0], a[1], a[2], b[0], b[1], b[2])
	}
	return nil
}

func newSnapshotCmd() *cobra.Command {
	var svgPath string
	cmd := &cobra.Command{
		Use:   "snapshot [label]",
		Short: "save the current particles to the snapshot store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := snapshotStore()
			if err != nil {
				return err
			}
			return withEngine(ctx, func(eng *engine.Engine) error {
				if steps > 0 {
					if err := runChecked(ctx, eng, fmt.Sprintf("run %d", steps)); err != nil {
						return err
					}
				}
				frame, err := eng.Frame(ctx)
				if err != nil {
					return err
				}
				id, err := st.Save(args[0], frame, eng.Modifiers().Scalars())
				if err != nil {
					return err
				}
				fmt.Printf("saved %s (%d atoms at timestep %d)\n", id, frame.NumAtoms(), frame.Timestep)
				if svgPath != "" {
					return os.WriteFile(svgPath, []byte(storage.FrameSVG(frame, 600, 3)), 0644)
				}
				return nil
			})
		},
	}
	addSystemFlags(cmd)
	cmd.Flags().IntVar(&steps, "steps", 0, "timesteps to run first")
	cmd.Flags().StringVar(&svgPath, "svg", "", "also draw the particles to this svg file")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		system string
		limit  int64
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "interactive view of a running system",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close(ctx)

			p := config.GetPreset(system)
			if p == nil {
				return fmt.Errorf("unknown preset %q", system)
			}
			// thermo output would corrupt the terminal view
			if err := runChecked(ctx, eng, p.Script+"thermo 0\n"); err != nil {
				return err
			}

			var handles []*modifier.Handle
			for _, ref := range trackList() {
				kind, name, err := history.ParseTrack(ref)
				if err != nil {
					return err
				}
				h, err := eng.Modifiers().Resolve(kind, name)
				if err != nil {
					return err
				}
				handles = append(handles, h)
			}
			return tui.Run(ctx, eng, tui.Options{
				Title:         system,
				FPS:           cfg.Watch.FPS,
				StepsPerFrame: cfg.Watch.StepsPerFrame,
				Steps:         limit,
				Track:         handles,
			})
		},
	}
	cmd.Flags().StringVar(&system, "preset", "melt", "preset system to watch")
	cmd.Flags().Int64Var(&limit, "steps", 0, "stop after this many timesteps")
	cmd.Flags().StringSliceVar(&track, "track", nil, "scalar modifiers to show, as kind/name")
	return cmd
}

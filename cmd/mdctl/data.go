package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/mdctl/internal/analysis"
	"github.com/san-kum/mdctl/internal/automation"
	"github.com/san-kum/mdctl/internal/config"
	"github.com/san-kum/mdctl/internal/metrics"
	"github.com/san-kum/mdctl/internal/storage"
)

var (
	listSnapshots bool
	exportPath    string
	sweepVar      string
	sweepValues   string
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs, or snapshots with --snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listSnapshots {
				return listSnapshotsCmd()
			}
			return listRuns(cmd)
		},
	}
	cmd.Flags().BoolVar(&listSnapshots, "snapshots", false, "list snapshots instead of runs")
	return cmd
}

func listRuns(cmd *cobra.Command) error {
	ctx := cmd.Context()
	hist, err := historyStore(ctx)
	if err != nil {
		return err
	}
	defer hist.Close()

	runs, err := hist.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tSTARTED\tSAMPLES")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.ID, r.Label, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Samples)
	}
	return w.Flush()
}

func listSnapshotsCmd() error {
	st, err := snapshotStore()
	if err != nil {
		return err
	}
	snaps, err := st.List()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("no snapshots found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tTIME\tTIMESTEP\tATOMS")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", s.ID, s.Label, s.Timestamp.Local().Format("2006-01-02 15:04:05"), s.Timestep, s.NumAtoms)
	}
	return w.Flush()
}

func newPlotCmd() *cobra.Command {
	var svgDir string
	cmd := &cobra.Command{
		Use:   "plot [run_id] [name...]",
		Short: "plot recorded series of a run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hist, err := historyStore(ctx)
			if err != nil {
				return err
			}
			defer hist.Close()

			runID, names := args[0], args[1:]
			if len(names) == 0 {
				if names, err = hist.Names(ctx, runID); err != nil {
					return err
				}
			}
			if len(names) == 0 {
				return fmt.Errorf("no data to plot")
			}

			fmt.Printf("run: %s\n\n", runID)
			for _, name := range names {
				steps, values, err := hist.Series(ctx, runID, name)
				if err != nil {
					return err
				}
				if len(values) == 0 {
					fmt.Printf("%s: no samples\n", name)
					continue
				}
				graph := asciigraph.Plot(values,
					asciigraph.Height(10),
					asciigraph.Width(80),
					asciigraph.Caption(fmt.Sprintf("%s, steps %d-%d", name, steps[0], steps[len(steps)-1])),
				)
				fmt.Println(graph)
				fmt.Println()

				if svgDir != "" {
					path := filepath.Join(svgDir, strings.NewReplacer("/", "_", "[", "_", "]", "").Replace(name)+".svg")
					if err := os.WriteFile(path, []byte(storage.SeriesSVG(steps, values, 800, 300, "#00ff00")), 0644); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&svgDir, "svg", "", "also write each series as svg into this directory")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var blocks int
	cmd := &cobra.Command{
		Use:   "analyze [run_id] [name]",
		Short: "statistics and frequency analysis of a recorded series",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hist, err := historyStore(ctx)
			if err != nil {
				return err
			}
			defer hist.Close()

			steps, values, err := hist.Series(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if len(values) < 2 {
				return fmt.Errorf("no data")
			}

			s := analysis.Summarize(steps, values)
			fmt.Printf("analysis: %s %s\n\n", args[0], args[1])
			fmt.Printf("samples: %d over %d timesteps\n", s.N, s.Span)
			fmt.Printf("mean: %.6g  std: %.4g  min: %.6g  max: %.6g\n", s.Mean, s.Std, s.Min, s.Max)
			fmt.Printf("trend: %.4g per timestep\n", s.Slope)

			for _, name := range metrics.Names() {
				m, _ := metrics.New(name, math.Abs(s.Mean)+3*s.Std)
				for i, v := range values {
					m.Observe(steps[i], v)
				}
				fmt.Printf("%s: %.4g\n", name, m.Value())
			}

			if mean, stderr, err := analysis.BlockAverage(values, blocks); err == nil {
				fmt.Printf("block average: %.6g ± %.2g (%d blocks)\n", mean, stderr, blocks)
			}

			interval := float64(steps[1] - steps[0])
			ps := analysis.PowerSpectrum(values)
			plotData := ps[:min(len(ps), max(len(ps)/4, 2))]
			fmt.Println()
			fmt.Println(asciigraph.Plot(plotData,
				asciigraph.Height(15),
				asciigraph.Width(80),
				asciigraph.Caption("power spectrum ("+args[1]+")"),
			))
			fmt.Println()

			freq, _ := analysis.DominantFrequency(values, interval)
			fmt.Printf("dominant frequency: %.4g per timestep\n", freq)
			if freq > 0 {
				fmt.Printf("period: %.1f timesteps\n", 1.0/freq)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&blocks, "blocks", 5, "blocks for the block average")
	return cmd
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session [file.yaml]",
		Short: "run a scripted session, optionally as a variable sweep",
		Args:  cobra.ExactArgs(1),
		RunE:  runSession,
	}
	cmd.Flags().StringVar(&sweepVar, "sweep", "", "equal-style variable to sweep")
	cmd.Flags().StringVar(&sweepValues, "values", "", "sweep values as min:max:count or a comma list")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the final frame as JSON")
	return cmd
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := automation.LoadSession(args[0])
	if err != nil {
		return err
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	r := &automation.Runner{Engine: eng, Out: os.Stdout, Logger: logger}
	if len(s.Track) > 0 {
		hist, err := historyStore(ctx)
		if err != nil {
			return err
		}
		defer hist.Close()
		r.History = hist
	}
	if r.Snapshots, err = snapshotStore(); err != nil {
		return err
	}

	if sweepVar != "" {
		values, err := automation.ParseValues(sweepValues)
		if err != nil {
			return err
		}
		results, err := r.RunSweep(ctx, automation.Sweep{Variable: sweepVar, Values: values}, s)
		if err != nil {
			return err
		}
		return printSweep(results)
	}

	res, err := r.Run(ctx, s)
	if err != nil {
		return err
	}
	fmt.Printf("\ntimesteps: %d\n", res.Timesteps)
	if res.RunID != "" {
		fmt.Printf("history run: %s\n", res.RunID)
	}
	for _, id := range res.Snapshots {
		fmt.Printf("snapshot: %s\n", id)
	}
	for name, ms := range res.Metrics {
		parts := make([]string, 0, len(ms))
		for m, v := range ms {
			parts = append(parts, fmt.Sprintf("%s=%.4g", m, v))
		}
		fmt.Printf("%s: %s\n", name, strings.Join(parts, " "))
	}

	if exportPath != "" {
		frame, err := eng.Frame(ctx)
		if err != nil {
			return err
		}
		if err := storage.ExportJSON(exportPath, frame, eng.Modifiers().Scalars()); err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", exportPath)
	}
	return nil
}

func printSweep(results []automation.SweepResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VALUE\tSTABLE\tRUN\tFINAL")
	for _, r := range results {
		parts := make([]string, 0, len(r.Final))
		for name, v := range r.Final {
			parts = append(parts, fmt.Sprintf("%s=%.4g", name, v))
		}
		fmt.Fprintf(w, "%g\t%t\t%s\t%s\n", r.Value, r.Stable, r.RunID, strings.Join(parts, " "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	stable, unstable := automation.SweepStats(results)
	fmt.Printf("\nstable: %d  unstable: %d\n", stable, unstable)
	return nil
}

func newPresetsCmd() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list preset systems, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				p := config.GetPreset(args[0])
				if p == nil {
					return fmt.Errorf("unknown preset %q", args[0])
				}
				fmt.Printf("# %s (%d steps)\n%s", p.Description, p.Steps, p.Script)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%d steps\t%s\n", name, p.Steps, p.Description)
				if show {
					fmt.Fprintf(w, "\t\t%s\n", strings.ReplaceAll(strings.TrimSpace(p.Script), "\n", "; "))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "include the scripts")
	return cmd
}

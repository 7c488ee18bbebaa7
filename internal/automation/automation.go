package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/mdctl/internal/config"
	"github.com/san-kum/mdctl/internal/engine"
	"github.com/san-kum/mdctl/internal/history"
	"github.com/san-kum/mdctl/internal/logging"
	"github.com/san-kum/mdctl/internal/metrics"
	"github.com/san-kum/mdctl/internal/storage"
)

// Session is a scripted sequence of engine work.
type Session struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Preset names a canned setup script run before Setup.
	Preset string   `yaml:"preset"`
	Setup  []string `yaml:"setup"`
	// Track lists kind/name modifier references to sample.
	Track       []string `yaml:"track"`
	SampleEvery int64    `yaml:"sample_every"`
	// Metrics are summarized per tracked value at the end of the session.
	Metrics   []string `yaml:"metrics"`
	Threshold float64  `yaml:"threshold"`
	Steps     []Step   `yaml:"steps"`
}

// Step is one block of a session. Commands and File run first, then Run
// timesteps, then Snapshot is taken if set.
type Step struct {
	Name     string   `yaml:"name"`
	Commands []string `yaml:"commands"`
	File     string   `yaml:"file"`
	Run      int      `yaml:"run"`
	Snapshot string   `yaml:"snapshot"`
}

// Result summarizes a finished session.
type Result struct {
	RunID     string
	Timesteps int64
	Snapshots []string
	// Final holds the last sampled value of every tracked quantity.
	Final   map[string]float64
	Metrics map[string]map[string]float64
}

// LoadSession loads a session from a YAML file.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSession(data)
}

func ParseSession(data []byte) (*Session, error) {
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("automation: parse session: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Session) Validate() error {
	if s.Preset != "" && config.GetPreset(s.Preset) == nil {
		return fmt.Errorf("automation: unknown preset %q", s.Preset)
	}
	if s.SampleEvery < 0 {
		return errors.New("automation: sample_every must not be negative")
	}
	if len(s.Track) > 0 && s.SampleEvery == 0 {
		s.SampleEvery = 10
	}
	for _, name := range s.Metrics {
		if _, err := metrics.New(name, s.Threshold); err != nil {
			return fmt.Errorf("automation: %w", err)
		}
	}
	for _, ref := range s.Track {
		if _, _, err := history.ParseTrack(ref); err != nil {
			return fmt.Errorf("automation: %w", err)
		}
	}
	for i, step := range s.Steps {
		if step.Run < 0 {
			return fmt.Errorf("automation: step %d: negative run length", i+1)
		}
	}
	return nil
}

// Runner executes sessions against an open engine.
type Runner struct {
	Engine *engine.Engine
	// History and Snapshots are optional.
	History   *history.Store
	Snapshots *storage.Store
	Out       io.Writer
	Logger    *slog.Logger
}

func (r *Runner) log() *slog.Logger { return logging.OrDiscard(r.Logger) }

func (r *Runner) printf(format string, args ...any) {
	if r.Out != nil {
		fmt.Fprintf(r.Out, format, args...)
	}
}

// command runs text and turns an engine-reported failure into an error.
func (r *Runner) command(ctx context.Context, text string) error {
	if err := r.Engine.RunCommand(ctx, text); err != nil {
		return err
	}
	return r.Engine.CommandError()
}

// Run executes s from the engine's current state.
func (r *Runner) Run(ctx context.Context, s *Session) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	res := &Result{Final: map[string]float64{}}

	if s.Preset != "" {
		if err := r.command(ctx, config.GetPreset(s.Preset).Script); err != nil {
			return nil, fmt.Errorf("preset %s: %w", s.Preset, err)
		}
	}
	for _, line := range s.Setup {
		if err := r.command(ctx, line); err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	rec, err := r.recorder(ctx, s)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		res.RunID = rec.runID
		remove := r.Engine.AddPostStepListener(rec.observe)
		defer remove()
		rec.sample()
	}

	for i, step := range s.Steps {
		label := step.Name
		if label == "" {
			label = strconv.Itoa(i + 1)
		}
		r.printf("Running step %d/%d: %s\n", i+1, len(s.Steps), label)

		if err := r.runStep(ctx, step, res); err != nil {
			return res, fmt.Errorf("step %s: %w", label, err)
		}
		if rec != nil && rec.err != nil {
			return res, fmt.Errorf("step %s: sample: %w", label, rec.err)
		}
	}

	res.Timesteps = r.Engine.Timesteps()
	if rec != nil {
		res.Final = rec.last
		res.Metrics = rec.summary()
	}
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, res *Result) error {
	for _, line := range step.Commands {
		if err := r.command(ctx, line); err != nil {
			return err
		}
	}
	if step.File != "" {
		if err := r.Engine.RunFile(ctx, step.File); err != nil {
			return err
		}
		if err := r.Engine.CommandError(); err != nil {
			return err
		}
	}
	if step.Run > 0 {
		if err := r.command(ctx, fmt.Sprintf("run %d", step.Run)); err != nil {
			return err
		}
	}
	if step.Snapshot != "" {
		if r.Snapshots == nil {
			return errors.New("snapshot requested without a snapshot store")
		}
		frame, err := r.Engine.Frame(ctx)
		if err != nil {
			return err
		}
		id, err := r.Snapshots.Save(step.Snapshot, frame, r.Engine.Modifiers().Scalars())
		if err != nil {
			return err
		}
		res.Snapshots = append(res.Snapshots, id)
		r.log().Info("snapshot saved", "id", id, "timestep", frame.Timestep)
	}
	return nil
}

// recorder samples tracked modifiers from the post-step listener.
type recorder struct {
	ctx     context.Context
	eng     *engine.Engine
	sampler *history.Sampler
	hist    *history.Store
	runID   string
	every   int64
	names   []string
	thresh  float64
	series  map[string][]metrics.Metric
	last    map[string]float64
	err     error
}

func (r *Runner) recorder(ctx context.Context, s *Session) (*recorder, error) {
	if len(s.Track) == 0 {
		return nil, nil
	}
	rec := &recorder{
		ctx:    ctx,
		eng:    r.Engine,
		hist:   r.History,
		every:  s.SampleEvery,
		names:  s.Metrics,
		thresh: s.Threshold,
		series: map[string][]metrics.Metric{},
		last:   map[string]float64{},
	}

	var store *history.Store
	if r.History != nil {
		label := s.Name
		if label == "" {
			label = "session"
		}
		id, err := r.History.BeginRun(ctx, label)
		if err != nil {
			return nil, err
		}
		rec.runID = id
		store = r.History
	}

	sampler, err := history.NewSampler(store, rec.runID, r.Engine.Modifiers(), s.Track)
	if err != nil {
		return nil, err
	}
	rec.sampler = sampler
	return rec, nil
}

func (rec *recorder) observe() bool {
	if rec.err == nil && rec.eng.Timesteps()%rec.every == 0 {
		rec.sample()
	}
	return false
}

func (rec *recorder) sample() {
	step := rec.eng.Timesteps()
	var (
		values map[string]float64
		err    error
	)
	if rec.hist != nil {
		values, err = rec.sampler.Sample(rec.ctx, step)
	} else {
		values, err = rec.sampler.Values()
	}
	if err != nil {
		rec.err = err
		return
	}

	for name, v := range values {
		rec.last[name] = v
		ms, ok := rec.series[name]
		if !ok {
			for _, m := range rec.names {
				metric, _ := metrics.New(m, rec.thresh)
				ms = append(ms, metric)
			}
			rec.series[name] = ms
		}
		for _, m := range ms {
			m.Observe(step, v)
		}
	}
}

func (rec *recorder) summary() map[string]map[string]float64 {
	if len(rec.names) == 0 {
		return nil
	}
	out := make(map[string]map[string]float64, len(rec.series))
	for name, ms := range rec.series {
		out[name] = make(map[string]float64, len(ms))
		for _, m := range ms {
			out[name][m.Name()] = m.Value()
		}
	}
	return out
}

// Sweep reruns a session once per value of an equal-style variable. The
// engine is cleared before every point and the variable is defined before
// the session's preset and setup, so setup lines can reference it.
type Sweep struct {
	Variable string    `yaml:"variable"`
	Values   []float64 `yaml:"values"`
}

// SweepResult holds the outcome of one sweep point.
type SweepResult struct {
	Value  float64
	RunID  string
	Final  map[string]float64
	Stable bool // every final value finite
}

// ParseValues reads "min:max:count" or a comma-separated list.
func ParseValues(s string) ([]float64, error) {
	if parts := strings.Split(s, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("automation: bad range %q: %w", s, err)
		}
		if n < 2 {
			return nil, fmt.Errorf("automation: range %q needs at least 2 points", s)
		}
		values := make([]float64, n)
		for i := range values {
			values[i] = lo + float64(i)*(hi-lo)/float64(n-1)
		}
		return values, nil
	}

	var values []float64
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("automation: bad value %q: %w", f, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// RunSweep executes the sweep.
func (r *Runner) RunSweep(ctx context.Context, sweep Sweep, s *Session) ([]SweepResult, error) {
	if sweep.Variable == "" {
		return nil, errors.New("automation: sweep needs a variable")
	}
	results := make([]SweepResult, 0, len(sweep.Values))

	for i, v := range sweep.Values {
		if err := r.command(ctx, "clear"); err != nil {
			return results, err
		}
		def := fmt.Sprintf("variable %s equal %s", sweep.Variable, strconv.FormatFloat(v, 'g', -1, 64))
		if err := r.command(ctx, def); err != nil {
			return results, err
		}

		res, err := r.Run(ctx, s)
		if err != nil {
			return results, fmt.Errorf("sweep %s=%g: %w", sweep.Variable, v, err)
		}

		stable := true
		for _, x := range res.Final {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				stable = false
			}
		}
		results = append(results, SweepResult{Value: v, RunID: res.RunID, Final: res.Final, Stable: stable})
		r.printf("Sweep %d/%d: %s=%.4g\n", i+1, len(sweep.Values), sweep.Variable, v)
	}
	return results, nil
}

// SweepStats counts stable and unstable points.
func SweepStats(results []SweepResult) (stable, unstable int) {
	for _, r := range results {
		if r.Stable {
			stable++
		} else {
			unstable++
		}
	}
	return
}

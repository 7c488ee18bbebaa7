package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/mdctl/internal/config"
	"github.com/san-kum/mdctl/internal/engine"
	"github.com/san-kum/mdctl/internal/modifier"
	"github.com/san-kum/mdctl/internal/run"
)

func meltEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.Open(ctx, engine.Options{})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { eng.Close(ctx) })

	if err := eng.RunCommand(ctx, config.GetPreset("melt").Script); err != nil {
		t.Fatal(err)
	}
	if err := eng.CommandError(); err != nil {
		t.Fatal(err)
	}
	return eng
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestWatchKeysDriveController(t *testing.T) {
	eng := meltEngine(t)
	temp := eng.Modifiers().MustResolve(modifier.Compute, "thermo_temp")
	m := New(context.Background(), eng, Options{StepsPerFrame: 5, Track: []*modifier.Handle{temp}})

	if eng.State() != run.Idle {
		t.Fatalf("expected idle, got %s", eng.State())
	}

	m = send(m, tickMsg(time.Now()))
	if eng.Timesteps() != 0 {
		t.Errorf("idle tick should not advance, got step %d", eng.Timesteps())
	}

	m = send(m, key("s"), tickMsg(time.Now()), tickMsg(time.Now()))
	if eng.State() != run.Running {
		t.Fatalf("expected running, got %s", eng.State())
	}
	if eng.Timesteps() != 10 {
		t.Errorf("expected 10 timesteps after two frames, got %d", eng.Timesteps())
	}

	m = send(m, key(" "), tickMsg(time.Now()))
	if eng.State() != run.Paused {
		t.Fatalf("expected paused, got %s", eng.State())
	}
	if eng.Timesteps() != 10 {
		t.Errorf("paused tick should not advance, got %d", eng.Timesteps())
	}

	m = send(m, key("n"))
	if eng.Timesteps() != 11 {
		t.Errorf("manual step should advance one, got %d", eng.Timesteps())
	}
	if !strings.Contains(m.View(), "paused") {
		t.Error("view should show paused state")
	}

	m = send(m, key("x"))
	if eng.State() != run.Cancelled {
		t.Fatalf("expected cancelled, got %s", eng.State())
	}
	m = send(m, key("t"))
	if eng.State() != run.Idle {
		t.Fatalf("expected idle after stop, got %s", eng.State())
	}

	if len(m.history) < 2 {
		t.Errorf("expected tracked history, got %d samples", len(m.history))
	}
	if !strings.Contains(m.View(), "thermo_temp=") {
		t.Error("view should show the tracked value")
	}
}

func TestWatchStopsAtStepLimit(t *testing.T) {
	eng := meltEngine(t)
	m := New(context.Background(), eng, Options{StepsPerFrame: 4, Steps: 6})

	m = send(m, key("s"), tickMsg(time.Now()), tickMsg(time.Now()), tickMsg(time.Now()))
	if eng.RunTimesteps() != 6 {
		t.Errorf("expected 6 run timesteps, got %d", eng.RunTimesteps())
	}
	if eng.State() != run.Idle {
		t.Errorf("expected idle after the limit, got %s", eng.State())
	}
	if !strings.Contains(m.View(), "6/6") {
		t.Error("view should show full progress")
	}
}

func TestWatchQuit(t *testing.T) {
	eng := meltEngine(t)
	m := New(context.Background(), eng, Options{})
	m = send(m, key("s"))

	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if eng.State() != run.Idle {
		t.Errorf("quit should stop the run, got %s", eng.State())
	}
}

func TestCanvasProject(t *testing.T) {
	f := &engine.Frame{
		Positions: []float64{0.1, 0.1, 0, 0.1, 0.1, 0, 9.9, 9.9, 0},
		IDs:       []int32{1, 2, 3},
		Types:     []int32{1, 1, 1},
		Cell:      [9]float64{10, 0, 0, 0, 10, 0, 0, 0, 10},
	}
	c := newCanvas(12, 12)
	c.project(f)

	if c.cells[0][0] != '┌' || c.cells[11][11] != '┘' {
		t.Error("expected a border")
	}
	if got := c.cells[10][1]; got != '●' {
		t.Errorf("crowded cell should use the densest glyph, got %q", got)
	}
	if got := c.cells[1][10]; got != '·' {
		t.Errorf("single atom should use the lightest glyph, got %q", got)
	}
}

func TestSparkline(t *testing.T) {
	if s := sparkline(nil, 10); s != "" {
		t.Errorf("expected empty, got %q", s)
	}
	s := sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 4)
	if s != "▁▃▅█" {
		t.Errorf("unexpected sparkline %q", s)
	}
}

// Package tui renders a live view of the engine and drives its run
// controller from the keyboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/mdctl/internal/engine"
	"github.com/san-kum/mdctl/internal/modifier"
	"github.com/san-kum/mdctl/internal/run"
)

// Options configures the watch view.
type Options struct {
	Title         string
	FPS           int
	StepsPerFrame int
	// Steps stops automatic advancement after this many timesteps of the
	// current run. Zero means unbounded.
	Steps int64
	// Track is shown under the canvas; the first entry gets a sparkline.
	Track []*modifier.Handle
}

type tickMsg time.Time

// Model is the bubbletea model for the watch view.
type Model struct {
	ctx  context.Context
	eng  *engine.Engine
	opts Options

	frame   *engine.Frame
	values  []string
	history []float64
	err     error

	lastFrame time.Time
	fps       float64
	width     int
	height    int
}

// New returns a watch model over eng. The engine must already hold a
// system to run.
func New(ctx context.Context, eng *engine.Engine, opts Options) Model {
	if opts.FPS <= 0 {
		opts.FPS = 20
	}
	if opts.StepsPerFrame <= 0 {
		opts.StepsPerFrame = 1
	}
	if opts.Title == "" {
		opts.Title = "mdctl"
	}
	m := Model{ctx: ctx, eng: eng, opts: opts, width: 80, height: 30}
	m.refresh()
	return m
}

// Run starts an interactive program on the terminal and blocks until quit.
func Run(ctx context.Context, eng *engine.Engine, opts Options) error {
	p := tea.NewProgram(New(ctx, eng, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.opts.FPS), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		now := time.Now()
		if m.eng.State() == run.Running {
			if !m.lastFrame.IsZero() {
				if dt := now.Sub(m.lastFrame).Seconds(); dt > 0 {
					m.fps = 1.0 / dt
				}
			}
			m.lastFrame = now
			m.advance(m.opts.StepsPerFrame)
		} else {
			m.lastFrame = time.Time{}
		}
		return m, m.tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.eng.Stop()
		return m, tea.Quit
	case "s":
		m.eng.Start()
	case " ", "p":
		m.eng.SetPaused(m.eng.State() == run.Running)
	case "n", "right":
		if m.eng.State() == run.Paused {
			m.advance(1)
		}
	case "x":
		m.eng.Cancel()
	case "t":
		m.eng.Stop()
	}
	return m, nil
}

// advance takes up to n steps while the run stays Running, or exactly one
// when stepping a paused run by hand.
func (m *Model) advance(n int) {
	for range n {
		if m.done() {
			break
		}
		if _, err := m.eng.Step(m.ctx); err != nil {
			m.err = err
			break
		}
		if m.eng.State() != run.Running {
			break
		}
	}
	if m.done() {
		m.eng.Stop()
	}
	m.refresh()
}

func (m *Model) done() bool {
	return m.opts.Steps > 0 && m.eng.RunTimesteps() >= m.opts.Steps
}

func (m *Model) refresh() {
	f, err := m.eng.Frame(m.ctx)
	if err != nil {
		m.err = err
		return
	}
	m.frame = f

	m.values = m.values[:0]
	for i, h := range m.opts.Track {
		m.eng.Modifiers().Synchronize(h.Kind())
		v, err := h.Scalar()
		if err != nil {
			m.values = append(m.values, fmt.Sprintf("%s=?", h.Name()))
			continue
		}
		m.values = append(m.values, fmt.Sprintf("%s=%.4g", h.Name(), v))
		if i == 0 {
			m.history = append(m.history, v)
			if len(m.history) > 120 {
				m.history = m.history[1:]
			}
		}
	}
}

func (m Model) status() string {
	switch m.eng.State() {
	case run.Running:
		return green.Render("●") + " " + green.Render("running")
	case run.Paused:
		return yellow.Render("○") + " " + yellow.Render("paused")
	case run.Cancelled:
		return red.Render("■") + " " + red.Render("cancelled")
	default:
		return dim.Render("○") + " " + dim.Render("idle")
	}
}

func (m Model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n   %s %s  %s\n", m.status(), cyan.Render(m.opts.Title),
		dim.Render(fmt.Sprintf("%d atoms", m.eng.NumAtoms())))

	c := m.eng.Counters()
	if m.opts.Steps > 0 {
		progress := min(float64(c.RunTimestepsCompleted)/float64(m.opts.Steps), 1)
		barWidth := 36
		filled := int(progress * float64(barWidth))
		bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
		fmt.Fprintf(&b, "   %s %s", bar, dim.Render(fmt.Sprintf("%d/%d", c.RunTimestepsCompleted, m.opts.Steps)))
	} else {
		fmt.Fprintf(&b, "   %s", dim.Render(fmt.Sprintf("run %d", c.RunTimestepsCompleted)))
	}
	fmt.Fprintf(&b, "  %s  %s\n\n",
		white.Render(fmt.Sprintf("step %d", c.CurrentTimestep)),
		dim.Render(fmt.Sprintf("%.0ffps", m.fps)))

	cv := newCanvas(max(m.width-6, 40), max(m.height-12, 12))
	cv.project(m.frame)
	b.WriteString(cv.String())

	if len(m.values) > 0 {
		b.WriteString("\n   ")
		for _, v := range m.values {
			b.WriteString(magenta.Render(v) + "  ")
		}
		b.WriteString("\n")
	}
	if len(m.history) > 1 {
		fmt.Fprintf(&b, "   %s %s\n", dim.Render(m.opts.Track[0].Name()), cyan.Render(sparkline(m.history, 40)))
	}
	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	} else if msg := m.eng.ErrorMessage(); msg != "" {
		b.WriteString("\n   " + red.Render(msg) + "\n")
	}

	b.WriteString("\n" + dim.Render("   s start  space pause  n step  x cancel  t stop  q quit") + "\n")
	return b.String()
}

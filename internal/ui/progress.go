// Package ui provides the optional terminal progress view.
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nibzard/fanout/internal/parallel"
)

const (
	recentLimit = 8
	barWidth    = 30
)

// RunFunc performs the work behind the progress view. It must report every
// pool event to observe and stop early when ctx is cancelled.
type RunFunc func(ctx context.Context, observe func(parallel.Event)) error

// RunProgress shows live unit progress while run executes and returns run's
// error. Quitting the view cancels the context passed to run and waits for
// it to return.
func RunProgress(ctx context.Context, w io.Writer, title string, run RunFunc) error {
	if w == nil {
		w = os.Stderr
	}
	if !IsTTY(w) {
		return fmt.Errorf("progress view requires a TTY")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan parallel.Event, 256)
	stop := make(chan struct{})
	result := make(chan error, 1)

	observe := func(ev parallel.Event) {
		select {
		case events <- ev:
		case <-stop:
		}
	}
	go func() {
		err := run(runCtx, observe)
		close(events)
		result <- err
	}()

	program := tea.NewProgram(newProgressModel(title, events), tea.WithContext(ctx), tea.WithOutput(w))
	_, progErr := program.Run()
	close(stop)
	cancel()

	err := <-result
	if err != nil {
		return err
	}
	if progErr != nil && ctx.Err() == nil {
		return progErr
	}
	return nil
}

type eventMsg parallel.Event

type runDoneMsg struct{}

type tickMsg time.Time

// runningUnit is a started unit, keyed in the model by its pool Seq.
type runningUnit struct {
	name    string
	started time.Time
}

type progressModel struct {
	title    string
	events   <-chan parallel.Event
	started  time.Time
	now      time.Time
	running  map[int]runningUnit
	done     int
	failed   int
	pending  int
	peak     int
	recent   []string
	finished bool
	quitting bool
}

func newProgressModel(title string, events <-chan parallel.Event) *progressModel {
	now := time.Now()
	return &progressModel{
		title:   title,
		events:  events,
		started: now,
		now:     now,
		running: make(map[int]runningUnit),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tickCmd())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		m.now = time.Time(msg)
		if m.finished {
			return m, nil
		}
		return m, tickCmd()
	case eventMsg:
		m.apply(parallel.Event(msg))
		return m, waitForEvent(m.events)
	case runDoneMsg:
		m.finished = true
		m.now = time.Now()
		return m, tea.Quit
	}
	return m, nil
}

func (m *progressModel) apply(ev parallel.Event) {
	key := ev.Unit.String()
	m.pending = ev.Pending
	if ev.Active > m.peak {
		m.peak = ev.Active
	}
	switch ev.Type {
	case parallel.EventStarted:
		m.running[ev.Seq] = runningUnit{name: key, started: time.Now()}
	case parallel.EventFinished:
		delete(m.running, ev.Seq)
		m.done++
		line := "ok   " + key
		if ev.Outcome != nil && ev.Outcome.Err != nil {
			m.failed++
			line = "FAIL " + key + ": " + firstLine(ev.Outcome.Err.Error())
		}
		m.recent = append(m.recent, line)
		if len(m.recent) > recentLimit {
			m.recent = m.recent[len(m.recent)-recentLimit:]
		}
	}
}

// total is the number of units known so far.
func (m *progressModel) total() int {
	return m.done + len(m.running) + m.pending
}

func (m *progressModel) View() string {
	var b strings.Builder
	b.WriteString(m.title + "\n\n")

	total := m.total()
	b.WriteString(bar(m.done, total) + fmt.Sprintf(" %d/%d", m.done, total))
	if m.failed > 0 {
		b.WriteString(fmt.Sprintf("  %d failed", m.failed))
	}
	b.WriteString(fmt.Sprintf("  %s\n\n", m.now.Sub(m.started).Round(time.Second)))

	if len(m.running) > 0 {
		b.WriteString(fmt.Sprintf("Running (%d):\n", len(m.running)))
		seqs := make([]int, 0, len(m.running))
		for seq := range m.running {
			seqs = append(seqs, seq)
		}
		sort.Ints(seqs)
		for _, seq := range seqs {
			r := m.running[seq]
			elapsed := max(m.now.Sub(r.started), 0)
			b.WriteString(fmt.Sprintf("  %s  %s\n", r.name, elapsed.Round(time.Second)))
		}
		b.WriteString("\n")
	}

	if len(m.recent) > 0 {
		b.WriteString("Recent:\n")
		for _, line := range m.recent {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString("\n")
	}

	switch {
	case m.finished:
		b.WriteString(fmt.Sprintf("Done: %d succeeded, %d failed, peak %d concurrent\n", m.done-m.failed, m.failed, m.peak))
	case m.quitting:
		b.WriteString("Stopping: waiting for running units...\n")
	default:
		b.WriteString("q: stop\n")
	}
	return b.String()
}

func waitForEvent(ch <-chan parallel.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return runDoneMsg{}
		}
		return eventMsg(ev)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func bar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = done * barWidth / total
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

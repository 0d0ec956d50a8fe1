// Package tui renders a tracked job as a terminal progress view.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/baronglock/Site-legendas/internal/domain"
	"github.com/baronglock/Site-legendas/internal/jobs"
)

const eventBuffer = 256

// eventMsg carries one tracker event into the program.
type eventMsg jobs.Event

// SubmitFailedMsg reports a submission that never produced a job.
type SubmitFailedMsg struct{ Err error }

// Model is the Bubble Tea model of the job progress view.
type Model struct {
	title    string
	spinner  spinner.Model
	progress progress.Model
	events   <-chan jobs.Event
	onCancel func()

	snapshot  domain.StageSnapshot
	phase     domain.Phase
	message   string
	artifacts map[domain.Format]string
	errDetail string
	width     int

	done      bool
	cancelled bool
}

// NewModel builds a view titled title that reads events until a terminal one.
// onCancel runs when the user quits while the job is still active.
func NewModel(title string, events <-chan jobs.Event, onCancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	return Model{
		title:    title,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		events:   events,
		onCancel: onCancel,
		snapshot: domain.NewStageSnapshot(""),
		phase:    domain.PhaseSubmitting,
	}
}

// Watch forwards bus events to a channel until the returned stop func runs.
func Watch(bus *jobs.EventBus) (<-chan jobs.Event, func()) {
	ch := make(chan jobs.Event, eventBuffer)
	done := make(chan struct{})
	unsubscribe := bus.Subscribe(func(event jobs.Event) {
		select {
		case ch <- event:
		case <-done:
		}
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
}

// waitForEvent waits for the next tracker event.
func waitForEvent(ch <-chan jobs.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = clampWidth(msg.Width - 20)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.done && m.onCancel != nil {
				m.onCancel()
				m.cancelled = true
			}
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SubmitFailedMsg:
		m.errDetail = msg.Err.Error()
		m.phase = domain.PhaseFailed
		m.done = true
		return m, tea.Quit

	case eventMsg:
		m = m.apply(jobs.Event(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	}
	return m, nil
}

// apply folds one event into the model.
func (m Model) apply(event jobs.Event) Model {
	if event.Phase != "" {
		m.phase = event.Phase
	}
	if event.Snapshot != nil {
		m.snapshot = *event.Snapshot
	}
	if event.Message != "" && event.Type != jobs.EventTypeNotification {
		m.message = event.Message
	}

	switch event.Type {
	case jobs.EventTypeResult:
		m.artifacts = event.Artifacts
		m.phase = domain.PhaseCompleted
		m.snapshot.OverallPercent = 100
		m.done = true
	case jobs.EventTypeError:
		m.errDetail = event.Message
		m.phase = domain.PhaseFailed
		m.done = true
	case jobs.EventTypeStatus:
		if event.Phase == domain.PhaseCancelled {
			m.done = true
		}
	}
	return m
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n\n")

	active := !m.done
	for _, stage := range m.snapshot.Stages {
		b.WriteString(renderStage(stage, m.spinner.View(), active))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.progress.ViewAs(float64(m.snapshot.OverallPercent) / 100))
	b.WriteString("\n\n")

	switch {
	case m.phase == domain.PhaseCompleted:
		b.WriteString(SuccessStyle.Render("Subtitles ready"))
		b.WriteString("\n")
		b.WriteString(renderArtifacts(m.artifacts))
	case m.phase == domain.PhaseFailed:
		b.WriteString(ErrorStyle.Render("Failed: " + m.errDetail))
	case m.cancelled || m.phase == domain.PhaseCancelled:
		b.WriteString(MutedStyle.Render("Cancelled"))
	default:
		if m.message != "" {
			b.WriteString(BodyStyle.Render(m.message))
			b.WriteString("\n")
		}
		b.WriteString(MutedStyle.Render("q to cancel"))
	}

	box := BoxStyle
	if m.width > 0 {
		box = box.Width(m.width - 4)
	}
	return box.Render(b.String())
}

// renderStage draws one stage line; frame replaces the icon of a running stage.
func renderStage(stage domain.Stage, frame string, active bool) string {
	var icon string
	style := BodyStyle
	switch stage.Status {
	case domain.StageStatusCompleted:
		icon, style = "✓", SuccessStyle
	case domain.StageStatusError:
		icon, style = "✗", ErrorStyle
	case domain.StageStatusProcessing:
		icon = "•"
		if active && frame != "" {
			icon = frame
		}
	default:
		icon, style = "·", MutedStyle
	}
	return fmt.Sprintf("%s %s %s", icon, style.Render(fmt.Sprintf("%-18s", stage.Name)), MutedStyle.Render(fmt.Sprintf("%3d%%", stage.Percent)))
}

func renderArtifacts(artifacts map[domain.Format]string) string {
	formats := make([]string, 0, len(artifacts))
	for format := range artifacts {
		formats = append(formats, string(format))
	}
	sort.Strings(formats)

	lines := make([]string, 0, len(formats))
	for _, format := range formats {
		lines = append(lines, fmt.Sprintf("  %-4s %s", format, artifacts[domain.Format(format)]))
	}
	return MutedStyle.Render(strings.Join(lines, "\n"))
}

func clampWidth(w int) int {
	if w < 20 {
		return 20
	}
	if w > 80 {
		return 80
	}
	return w
}

// Run shows the view while submit runs in the background, until the job
// ends or the user quits.
func Run(m Model, submit func() error) (Model, error) {
	program := tea.NewProgram(m)
	go func() {
		if err := submit(); err != nil {
			program.Send(SubmitFailedMsg{Err: err})
		}
	}()

	final, err := program.Run()
	if err != nil {
		return m, err
	}
	return final.(Model), nil
}

// Done reports whether the job reached a terminal state.
func (m Model) Done() bool { return m.done }

// Cancelled reports whether the user stopped the job.
func (m Model) Cancelled() bool { return m.cancelled }

// Phase returns the last lifecycle phase seen.
func (m Model) Phase() domain.Phase { return m.phase }

// Artifacts returns the download links of a completed job.
func (m Model) Artifacts() map[domain.Format]string { return m.artifacts }

// ErrorDetail returns the failure message, if any.
func (m Model) ErrorDetail() string { return m.errDetail }

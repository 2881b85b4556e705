// Package tui provides the terminal dashboard for hivemind.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/hivemind/internal/models"
)

// RefreshInterval is how often the dashboard polls the daemon.
const RefreshInterval = 2 * time.Second

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(fgColor).
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle = lipgloss.NewStyle().Foreground(errorColor)
)

type view int

const (
	viewTasks view = iota
	viewLearnings
)

type snapshotMsg struct{ snap Snapshot }

type errMsg struct{ err error }

type tickMsg time.Time

// Fetcher loads a dashboard snapshot.
type Fetcher interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// App is the dashboard model.
type App struct {
	fetcher   Fetcher
	tasks     table.Model
	learnings table.Model
	spinner   spinner.Model
	view      view
	snap      *Snapshot
	err       error
	loading   bool
	width     int
	height    int
}

// New creates a dashboard polling the API at apiAddr.
func New(apiAddr string) *App {
	return NewWithFetcher(NewClient(apiAddr))
}

// NewWithFetcher creates a dashboard over any snapshot source.
func NewWithFetcher(f Fetcher) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return &App{
		fetcher: f,
		tasks: table.New(
			table.WithColumns(taskColumns),
			table.WithFocused(true),
			table.WithHeight(15),
		),
		learnings: table.New(
			table.WithColumns(learningColumns),
			table.WithHeight(15),
		),
		spinner: sp,
		loading: true,
	}
}

// Run starts the dashboard.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.fetch())
}

func (a *App) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultClientTimeout)
		defer cancel()

		snap, err := a.fetcher.Snapshot(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return snapshotMsg{snap: snap}
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			a.loading = true
			return a, tea.Batch(a.spinner.Tick, a.fetch())
		case "tab":
			if a.view == viewTasks {
				a.view = viewLearnings
				a.tasks.Blur()
				a.learnings.Focus()
			} else {
				a.view = viewTasks
				a.learnings.Blur()
				a.tasks.Focus()
			}
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		h := max(5, msg.Height-10)
		a.tasks.SetHeight(h)
		a.learnings.SetHeight(h)

	case snapshotMsg:
		a.loading = false
		a.err = nil
		a.snap = &msg.snap
		a.tasks.SetRows(taskRows(msg.snap.Tasks))
		a.learnings.SetRows(learningRows(msg.snap.Learnings))
		return a, tick()

	case errMsg:
		a.loading = false
		a.err = msg.err
		return a, tick()

	case tickMsg:
		return a, a.fetch()

	case spinner.TickMsg:
		if !a.loading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	if a.view == viewTasks {
		a.tasks, cmd = a.tasks.Update(msg)
	} else {
		a.learnings, cmd = a.learnings.Update(msg)
	}
	return a, cmd
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("hivemind"))
	if a.snap != nil {
		b.WriteString("  " + zoneBadge(a.snap.Stats.ResourceStatus))
		b.WriteString("  " + resourceLine(a.snap.Stats.ResourceStatus))
	}
	if a.loading {
		b.WriteString("  " + a.spinner.View())
	}
	b.WriteString("\n")

	if a.err != nil {
		b.WriteString(errorStyle.Render("daemon offline: "+a.err.Error()) + "\n")
	}

	if a.snap == nil {
		b.WriteString(mutedStyle.Render("\n  Waiting for the daemon...\n"))
		return b.String()
	}

	b.WriteString(countsLine(a.snap.Stats) + "\n\n")

	switch a.view {
	case viewTasks:
		b.WriteString(a.tasks.View())
	case viewLearnings:
		if len(a.snap.Learnings.ByType) == 0 && a.snap.Learnings.Message != "" {
			b.WriteString(mutedStyle.Render("  " + a.snap.Learnings.Message))
		} else {
			b.WriteString(a.learnings.View())
		}
	}
	b.WriteString("\n")

	status := " r:refresh | tab:learnings | q:quit"
	if a.view == viewLearnings {
		status = " r:refresh | tab:tasks | q:quit"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func zoneBadge(st models.ResourceStatus) string {
	color := successColor
	switch st.Zone {
	case models.ZoneWarning:
		color = warningColor
	case models.ZoneDanger:
		color = errorColor
	}
	return badgeStyle.Background(color).Render(strings.ToUpper(string(st.Zone)))
}

func resourceLine(st models.ResourceStatus) string {
	if !st.Sampled {
		return mutedStyle.Render(fmt.Sprintf("sample unavailable | agents %d/%d", st.CurrentAgents, st.MaxAgents))
	}
	return fmt.Sprintf("CPU %.1f%%  RAM %.1f%%  agents %d/%d",
		st.CPUUtilization*100, st.RAMUtilization*100, st.CurrentAgents, st.MaxAgents)
}

func countsLine(s models.TaskStats) string {
	return fmt.Sprintf("%s %d  %s %d  %s %d  %s %d  %s %d  total %d",
		formatStatus(models.TaskStatusRunning), s.Running,
		formatStatus(models.TaskStatusQueued), s.Queued,
		formatStatus(models.TaskStatusCompleted), s.Completed,
		formatStatus(models.TaskStatusFailed), s.Failed,
		formatStatus(models.TaskStatusCancelled), s.Cancelled,
		s.Total,
	)
}

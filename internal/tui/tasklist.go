package tui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/hivemind/internal/models"
)

var (
	statusQueued    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
	statusCancelled = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // Grey
)

func formatStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusQueued:
		return statusQueued.Render("● queued")
	case models.TaskStatusRunning:
		return statusRunning.Render("● running")
	case models.TaskStatusCompleted:
		return statusCompleted.Render("● completed")
	case models.TaskStatusFailed:
		return statusFailed.Render("● failed")
	case models.TaskStatusCancelled:
		return statusCancelled.Render("● cancelled")
	default:
		return string(status)
	}
}

var taskColumns = []table.Column{
	{Title: "ID", Width: 16},
	{Title: "Status", Width: 10},
	{Title: "Priority", Width: 8},
	{Title: "Type", Width: 10},
	{Title: "Branch", Width: 12},
	{Title: "Description", Width: 40},
}

var learningColumns = []table.Column{
	{Title: "Type", Width: 14},
	{Title: "Runs", Width: 6},
	{Title: "Success", Width: 8},
	{Title: "Avg (s)", Width: 8},
	{Title: "Score", Width: 6},
	{Title: "Recommendation", Width: 40},
}

// statusOrder shows active tasks first.
var statusOrder = map[models.TaskStatus]int{
	models.TaskStatusRunning:   0,
	models.TaskStatusQueued:    1,
	models.TaskStatusFailed:    2,
	models.TaskStatusCompleted: 3,
	models.TaskStatusCancelled: 4,
}

// taskRows renders tasks as table rows, running first, then by priority and
// creation time.
func taskRows(tasks []models.ParallelTask) []table.Row {
	sorted := make([]models.ParallelTask, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if statusOrder[a.Status] != statusOrder[b.Status] {
			return statusOrder[a.Status] < statusOrder[b.Status]
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	rows := make([]table.Row, 0, len(sorted))
	for _, t := range sorted {
		rows = append(rows, table.Row{
			t.ID,
			string(t.Status),
			t.Priority.String(),
			t.TaskType,
			t.BranchID,
			t.Description,
		})
	}
	return rows
}

// learningRows renders learnings as table rows sorted by task type.
func learningRows(l models.Learnings) []table.Row {
	types := make([]string, 0, len(l.ByType))
	for k := range l.ByType {
		types = append(types, k)
	}
	sort.Strings(types)

	rows := make([]table.Row, 0, len(types))
	for _, k := range types {
		v := l.ByType[k]
		avg := "-"
		if v.HasDurationData {
			avg = fmt.Sprintf("%.1f", v.AvgDuration)
		}
		rows = append(rows, table.Row{
			k,
			fmt.Sprintf("%d", v.Executions),
			fmt.Sprintf("%.0f%%", v.SuccessRate*100),
			avg,
			fmt.Sprintf("%.2f", v.BenefitScore),
			v.Recommendation,
		})
	}
	return rows
}

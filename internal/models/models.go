// Package models defines the core domain types for hivemind.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority orders tasks inside a plan. Lower values run first.
type Priority int

const (
	PriorityCritical Priority = iota + 1
	PriorityHigh
	PriorityMedium
	PriorityLow
)

var priorityNames = map[Priority]string{
	PriorityCritical: "CRITICAL",
	PriorityHigh:     "HIGH",
	PriorityMedium:   "MEDIUM",
	PriorityLow:      "LOW",
}

// ParsePriority maps a case-insensitive label to a Priority.
// An empty label defaults to MEDIUM.
func ParsePriority(label string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "":
		return PriorityMedium, nil
	case "CRITICAL":
		return PriorityCritical, nil
	case "HIGH":
		return PriorityHigh, nil
	case "MEDIUM":
		return PriorityMedium, nil
	case "LOW":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("%q: %w", label, ErrInvalidPriority)
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// MarshalJSON encodes the priority by name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts a priority name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ParseTaskStatus validates a status string. Empty means no filter.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case "", TaskStatusQueued, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q: %w", s, ErrInvalidTask)
}

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusRunning || next == TaskStatusCancelled
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed || next == TaskStatusCancelled
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return false
	}
	return false
}

// Zone classifies host resource pressure.
type Zone string

const (
	ZoneSafe    Zone = "safe"
	ZoneWarning Zone = "warning"
	ZoneDanger  Zone = "danger"
)

// Strategy is the execution strategy label of a plan.
type Strategy string

const (
	StrategyParallel   Strategy = "parallel"
	StrategyMixed      Strategy = "mixed"
	StrategySequential Strategy = "sequential"
)

// Mode is the caller's requested execution mode.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
	ModeAdaptive   Mode = "adaptive"
)

// ParseMode validates a mode. Empty means auto.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeParallel, ModeSequential, ModeAdaptive:
		return m, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidMode)
}

// ResourceStatus is a point-in-time view of host pressure and agent budget.
type ResourceStatus struct {
	CPUUtilization float64   `json:"cpu_utilization"`
	RAMUtilization float64   `json:"ram_utilization"`
	Zone           Zone      `json:"zone"`
	MaxAgents      int       `json:"max_agents"`
	CurrentAgents  int       `json:"current_agents"`
	CanSpawn       bool      `json:"can_spawn"`
	Reason         string    `json:"reason"`
	Sampled        bool      `json:"sampled"`
	Timestamp      time.Time `json:"timestamp"`
}

// TaskDescriptor is the caller's description of a task to plan.
type TaskDescriptor struct {
	Description string         `json:"description" yaml:"description"`
	Type        string         `json:"type,omitempty" yaml:"type,omitempty"`
	Priority    string         `json:"priority,omitempty" yaml:"priority,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ParallelTask is a unit of work tracked by the coordinator.
type ParallelTask struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	TaskType    string         `json:"task_type"`
	Priority    Priority       `json:"priority"`
	BranchID    string         `json:"branch_id"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no mutable state with t.
func (t ParallelTask) Clone() ParallelTask {
	c := t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// ExecutionPlan is the outcome of planning a batch of tasks.
type ExecutionPlan struct {
	Strategy       Strategy       `json:"strategy"`
	Mode           Mode           `json:"mode"`
	Description    string         `json:"description"`
	ParallelTasks  []ParallelTask `json:"parallel_tasks"`
	QueuedTasks    []ParallelTask `json:"queued_tasks"`
	ResourceStatus ResourceStatus `json:"resource_status"`
	TotalTasks     int            `json:"total_tasks"`
	BranchID       string         `json:"branch_id"`
}

// HistoryRecord is an append-only record of a finished task.
type HistoryRecord struct {
	TaskID          string     `json:"task_id"`
	Description     string     `json:"description"`
	TaskType        string     `json:"task_type"`
	BranchID        string     `json:"branch_id"`
	Success         bool       `json:"success"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
}

// TaskStats summarizes the registry.
type TaskStats struct {
	Total          int            `json:"total"`
	Queued         int            `json:"queued"`
	Running        int            `json:"running"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	Cancelled      int            `json:"cancelled"`
	RunningTasks   []ParallelTask `json:"running_tasks"`
	QueuedTasks    []ParallelTask `json:"queued_tasks"`
	ResourceStatus ResourceStatus `json:"resource_status"`
}

// Learning is the per task type parallelization summary.
type Learning struct {
	TaskType        string  `json:"task_type"`
	Executions      int     `json:"executions"`
	SuccessRate     float64 `json:"success_rate"`
	AvgDuration     float64 `json:"avg_duration"`
	BenefitScore    float64 `json:"parallel_benefit_score"`
	Recommendation  string  `json:"recommendation"`
	HasDurationData bool    `json:"has_duration_data"`
}

// Learnings is the result of analysing execution history.
type Learnings struct {
	Message string              `json:"message,omitempty"`
	ByType  map[string]Learning `json:"by_type"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Package coordinator owns the task registry and execution history. It
// partitions batches of prioritized tasks into a run-now set and a queued
// remainder bounded by the host resource budget.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/hivemind/internal/log"
	"github.com/fentz26/hivemind/internal/models"
	"github.com/fentz26/hivemind/internal/resource"
)

// Sampler provides the resource budget used when admitting tasks.
type Sampler interface {
	GetResourceStatus(ctx context.Context, currentAgents int) models.ResourceStatus
	RecommendParallelism(ctx context.Context, taskCount, currentAgents int) resource.Recommendation
}

// HistorySink receives every appended history record.
type HistorySink interface {
	RecordExecution(ctx context.Context, rec models.HistoryRecord) error
}

// Auditor records state-mutating decisions.
type Auditor interface {
	Record(ctx context.Context, action string, inputs any, outcome, taskID, details string) error
}

// Recorder receives coordinator observations.
type Recorder interface {
	ObservePlan(mode models.Mode, strategy models.Strategy, admitted, queued int)
	ObserveTaskFinished(status models.TaskStatus, taskType string, durationSeconds *float64)
	SetRunningTasks(n int)
}

// Retention bounds how much finished state is kept in memory. A zero value
// disables the corresponding bound. Queued and running tasks are never evicted.
type Retention struct {
	MaxTerminalTasks int           `yaml:"max_terminal_tasks"`
	MaxHistory       int           `yaml:"max_history"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// Config is the coordinator configuration.
type Config struct {
	Sampler     Sampler
	HistorySink HistorySink
	Auditor     Auditor
	Metrics     Recorder
	Logger      log.Logger
	Now         func() time.Time
	Retention   Retention

	// DefaultBranch is used when a plan names no branch.
	DefaultBranch string

	// DefaultTaskType is used when a descriptor names no type.
	DefaultTaskType string
}

func (c *Config) defaults() error {
	if c.Sampler == nil {
		return fmt.Errorf("sampler is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "coordinator.Coordinator"})
	if c.Metrics == nil {
		c.Metrics = noopRecorder{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.DefaultBranch == "" {
		c.DefaultBranch = "main"
	}
	if c.DefaultTaskType == "" {
		c.DefaultTaskType = "general"
	}
	if c.Retention.MaxTerminalTasks < 0 || c.Retention.MaxHistory < 0 || c.Retention.MaxAge < 0 {
		return fmt.Errorf("retention bounds must not be negative")
	}

	return nil
}

type noopRecorder struct{}

func (noopRecorder) ObservePlan(models.Mode, models.Strategy, int, int) {}
func (noopRecorder) ObserveTaskFinished(models.TaskStatus, string, *float64) {}
func (noopRecorder) SetRunningTasks(int) {}

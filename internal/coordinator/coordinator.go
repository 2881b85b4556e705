package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/hivemind/internal/ident"
	"github.com/fentz26/hivemind/internal/log"
	"github.com/fentz26/hivemind/internal/models"
)

// Coordinator tracks tasks through their lifecycle and decides how many of a
// batch may start now.
type Coordinator struct {
	cfg    Config
	logger log.Logger

	mu        sync.RWMutex
	tasks     map[string]*models.ParallelTask
	order     []string
	history   []models.HistoryRecord
	lastStamp time.Time
}

// New returns a new Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Coordinator{
		cfg:    cfg,
		logger: cfg.Logger,
		tasks:  make(map[string]*models.ParallelTask),
	}, nil
}

type validatedTask struct {
	desc     models.TaskDescriptor
	taskType string
	priority models.Priority
}

func (c *Coordinator) validate(descs []models.TaskDescriptor) ([]validatedTask, error) {
	out := make([]validatedTask, 0, len(descs))
	for i, d := range descs {
		if strings.TrimSpace(d.Description) == "" {
			return nil, fmt.Errorf("task %d: description is required: %w", i, models.ErrInvalidTask)
		}
		p, err := models.ParsePriority(d.Priority)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		taskType := strings.TrimSpace(d.Type)
		if taskType == "" {
			taskType = c.cfg.DefaultTaskType
		}
		out = append(out, validatedTask{desc: d, taskType: taskType, priority: p})
	}
	return out, nil
}

// CreateExecutionPlan registers a batch of tasks and admits a priority
// ordered prefix of it as RUNNING within the current resource budget. The
// rest stay QUEUED. An invalid descriptor rejects the whole batch.
func (c *Coordinator) CreateExecutionPlan(ctx context.Context, descs []models.TaskDescriptor, branchID string, mode models.Mode) (*models.ExecutionPlan, error) {
	mode, err := models.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	valid, err := c.validate(descs)
	if err != nil {
		return nil, err
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		branchID = c.cfg.DefaultBranch
	}
	logger := c.logger.WithCtxValues(ctx).WithValues(log.Kv{"branch": branchID, "mode": mode})

	// Register.
	c.mu.Lock()
	batch := make([]*models.ParallelTask, 0, len(valid))
	for _, v := range valid {
		t := c.mint(v, branchID)
		batch = append(batch, t)
	}
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Priority < batch[j].Priority })
	running := c.countLocked(models.TaskStatusRunning)
	c.mu.Unlock()

	// Sampling blocks, so it runs without the lock.
	rec := c.cfg.Sampler.RecommendParallelism(ctx, len(batch), running)

	// Admit.
	c.mu.Lock()
	budget := rec.ParallelTasks
	strategy := rec.Strategy
	switch mode {
	case models.ModeSequential:
		budget = min(1, len(batch))
		strategy = models.StrategySequential
	case models.ModeParallel:
		strategy = models.StrategyParallel
	}
	if mode != models.ModeSequential {
		// Other plans may have admitted tasks while sampling.
		free := max(0, rec.ResourceStatus.MaxAgents-c.countLocked(models.TaskStatusRunning))
		budget = min(budget, free)
	}

	plan := &models.ExecutionPlan{
		Strategy:       strategy,
		Mode:           mode,
		Description:    rec.Description,
		ParallelTasks:  []models.ParallelTask{},
		QueuedTasks:    []models.ParallelTask{},
		ResourceStatus: rec.ResourceStatus,
		TotalTasks:     len(batch),
		BranchID:       branchID,
	}
	now := c.cfg.Now().UTC()
	for _, t := range batch {
		if len(plan.ParallelTasks) < budget && t.Status == models.TaskStatusQueued {
			started := now
			t.Status = models.TaskStatusRunning
			t.StartedAt = &started
			plan.ParallelTasks = append(plan.ParallelTasks, t.Clone())
			continue
		}
		plan.QueuedTasks = append(plan.QueuedTasks, t.Clone())
	}
	runningNow := c.countLocked(models.TaskStatusRunning)
	c.mu.Unlock()

	c.cfg.Metrics.ObservePlan(mode, strategy, len(plan.ParallelTasks), len(plan.QueuedTasks))
	c.cfg.Metrics.SetRunningTasks(runningNow)
	c.audit(ctx, "plan.create", map[string]any{
		"branch_id": branchID,
		"mode":      mode,
		"tasks":     descs,
	}, "success", "", fmt.Sprintf("strategy=%s admitted=%d queued=%d zone=%s",
		strategy, len(plan.ParallelTasks), len(plan.QueuedTasks), rec.ResourceStatus.Zone))

	logger.Infof("execution plan created: strategy=%s admitted=%d queued=%d zone=%s",
		strategy, len(plan.ParallelTasks), len(plan.QueuedTasks), rec.ResourceStatus.Zone)

	return plan, nil
}

// mint creates and registers a QUEUED task. Creation stamps are strictly
// increasing so ids derived from them are unique. Callers hold the write lock.
func (c *Coordinator) mint(v validatedTask, branchID string) *models.ParallelTask {
	stamp := c.cfg.Now().UTC()
	if !stamp.After(c.lastStamp) {
		stamp = c.lastStamp.Add(time.Nanosecond)
	}

	id := ident.Derive(v.desc.Description, branchID, stamp.Format(time.RFC3339Nano))
	for {
		if _, ok := c.tasks[id]; !ok {
			break
		}
		stamp = stamp.Add(time.Nanosecond)
		id = ident.Derive(v.desc.Description, branchID, stamp.Format(time.RFC3339Nano))
	}
	c.lastStamp = stamp

	var metadata map[string]any
	if len(v.desc.Metadata) > 0 {
		metadata = make(map[string]any, len(v.desc.Metadata))
		for k, val := range v.desc.Metadata {
			metadata[k] = val
		}
	}

	t := &models.ParallelTask{
		ID:          id,
		Description: v.desc.Description,
		TaskType:    v.taskType,
		Priority:    v.priority,
		BranchID:    branchID,
		Status:      models.TaskStatusQueued,
		CreatedAt:   stamp,
		Metadata:    metadata,
	}
	c.tasks[id] = t
	c.order = append(c.order, id)

	return t
}

// CompleteTask records the outcome of a RUNNING task and appends one history
// record. The result is stored as the task error when success is false.
func (c *Coordinator) CompleteTask(ctx context.Context, id, result string, success bool) (*models.ParallelTask, error) {
	logger := c.logger.WithCtxValues(ctx).WithValues(log.Kv{"task": id})

	next := models.TaskStatusCompleted
	if !success {
		next = models.TaskStatusFailed
	}

	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok {
		c.mu.Unlock()
		logger.Warningf("completion for unknown task ignored")
		return nil, fmt.Errorf("%s: %w", id, models.ErrTaskNotFound)
	}
	if !t.Status.CanTransitionTo(next) {
		status := t.Status
		c.mu.Unlock()
		logger.Warningf("completion for task in status %s ignored", status)
		return nil, fmt.Errorf("%s is %s: %w", id, status, models.ErrInvalidTransition)
	}

	completed := c.cfg.Now().UTC()
	t.Status = next
	t.CompletedAt = &completed
	if success {
		t.Result = result
	} else {
		t.Error = result
	}

	rec := models.HistoryRecord{
		TaskID:          t.ID,
		Description:     t.Description,
		TaskType:        t.TaskType,
		BranchID:        t.BranchID,
		Success:         success,
		CompletedAt:     &completed,
		DurationSeconds: duration(t.StartedAt, t.CompletedAt),
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		rec.StartedAt = &started
	}
	c.history = append(c.history, rec)
	snapshot := t.Clone()
	runningNow := c.countLocked(models.TaskStatusRunning)
	c.mu.Unlock()

	if c.cfg.HistorySink != nil {
		if err := c.cfg.HistorySink.RecordExecution(ctx, rec); err != nil {
			logger.Errorf("could not persist history record: %s", err)
		}
	}
	c.cfg.Metrics.ObserveTaskFinished(next, snapshot.TaskType, rec.DurationSeconds)
	c.cfg.Metrics.SetRunningTasks(runningNow)
	c.audit(ctx, "task.complete", map[string]any{"task_id": id, "success": success}, string(next), id, "")

	logger.Infof("task finished: status=%s type=%s", next, snapshot.TaskType)

	return &snapshot, nil
}

// CancelTask moves a QUEUED or RUNNING task to CANCELLED. Cancelled tasks do
// not produce history records.
func (c *Coordinator) CancelTask(ctx context.Context, id, reason string) (*models.ParallelTask, error) {
	logger := c.logger.WithCtxValues(ctx).WithValues(log.Kv{"task": id})

	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", id, models.ErrTaskNotFound)
	}
	if !t.Status.CanTransitionTo(models.TaskStatusCancelled) {
		status := t.Status
		c.mu.Unlock()
		return nil, fmt.Errorf("%s is %s: %w", id, status, models.ErrInvalidTransition)
	}

	now := c.cfg.Now().UTC()
	t.Status = models.TaskStatusCancelled
	t.CompletedAt = &now
	t.Error = reason
	snapshot := t.Clone()
	runningNow := c.countLocked(models.TaskStatusRunning)
	c.mu.Unlock()

	c.cfg.Metrics.ObserveTaskFinished(models.TaskStatusCancelled, snapshot.TaskType, nil)
	c.cfg.Metrics.SetRunningTasks(runningNow)
	c.audit(ctx, "task.cancel", map[string]any{"task_id": id, "reason": reason}, "success", id, reason)

	logger.Infof("task cancelled")

	return &snapshot, nil
}

// GetTask returns a snapshot of a task.
func (c *Coordinator) GetTask(_ context.Context, id string) (*models.ParallelTask, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, models.ErrTaskNotFound)
	}
	snapshot := t.Clone()
	return &snapshot, nil
}

// ListOptions filters ListTasks. Empty fields match everything.
type ListOptions struct {
	Status   models.TaskStatus
	BranchID string
}

// ListTasks returns task snapshots in creation order.
func (c *Coordinator) ListTasks(_ context.Context, opts ListOptions) []models.ParallelTask {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []models.ParallelTask{}
	for _, id := range c.order {
		t := c.tasks[id]
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if opts.BranchID != "" && t.BranchID != opts.BranchID {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// GetTaskStats counts tasks by status and samples the host with the number
// of running tasks. It does not modify any state.
func (c *Coordinator) GetTaskStats(ctx context.Context) models.TaskStats {
	c.mu.RLock()
	stats := models.TaskStats{
		Total:        len(c.order),
		RunningTasks: []models.ParallelTask{},
		QueuedTasks:  []models.ParallelTask{},
	}
	for _, id := range c.order {
		t := c.tasks[id]
		switch t.Status {
		case models.TaskStatusQueued:
			stats.Queued++
			stats.QueuedTasks = append(stats.QueuedTasks, t.Clone())
		case models.TaskStatusRunning:
			stats.Running++
			stats.RunningTasks = append(stats.RunningTasks, t.Clone())
		case models.TaskStatusCompleted:
			stats.Completed++
		case models.TaskStatusFailed:
			stats.Failed++
		case models.TaskStatusCancelled:
			stats.Cancelled++
		}
	}
	c.mu.RUnlock()

	stats.ResourceStatus = c.cfg.Sampler.GetResourceStatus(ctx, stats.Running)
	return stats
}

// RunningCount returns the number of RUNNING tasks.
func (c *Coordinator) RunningCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.countLocked(models.TaskStatusRunning)
}

// GetParallelizationLearnings summarizes the execution history per task type.
func (c *Coordinator) GetParallelizationLearnings() models.Learnings {
	c.mu.RLock()
	history := make([]models.HistoryRecord, len(c.history))
	copy(history, c.history)
	c.mu.RUnlock()

	return ComputeLearnings(history)
}

// History returns the most recent history records, oldest first. A limit of
// zero or less returns all of them.
func (c *Coordinator) History(limit int) []models.HistoryRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if limit > 0 && len(c.history) > limit {
		start = len(c.history) - limit
	}
	out := make([]models.HistoryRecord, len(c.history)-start)
	copy(out, c.history[start:])
	return out
}

// RestoreHistory prepends previously persisted records, oldest first. It is
// meant to be called once at startup, and restored records are not sent to
// the history sink again.
func (c *Coordinator) RestoreHistory(recs []models.HistoryRecord) {
	if len(recs) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make([]models.HistoryRecord, 0, len(recs)+len(c.history))
	merged = append(merged, recs...)
	merged = append(merged, c.history...)
	c.history = merged
	c.logger.Infof("restored %d history records", len(recs))
}

// countLocked counts tasks in a status. Callers hold the lock.
func (c *Coordinator) countLocked(status models.TaskStatus) int {
	n := 0
	for _, t := range c.tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

func (c *Coordinator) audit(ctx context.Context, action string, inputs any, outcome, taskID, details string) {
	if c.cfg.Auditor == nil {
		return
	}
	if err := c.cfg.Auditor.Record(ctx, action, inputs, outcome, taskID, details); err != nil {
		c.logger.WithCtxValues(ctx).Errorf("could not record %s decision: %s", action, err)
	}
}

// duration returns the seconds between start and end, or nil when either is
// missing.
func duration(start, end *time.Time) *float64 {
	if start == nil || end == nil {
		return nil
	}
	d := end.Sub(*start).Seconds()
	return &d
}

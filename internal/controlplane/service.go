// Package controlplane provides the HTTP API and service layer for hivemind.
package controlplane

import (
	"context"
	"fmt"

	"github.com/fentz26/hivemind/internal/coordinator"
	"github.com/fentz26/hivemind/internal/models"
	"github.com/fentz26/hivemind/internal/resource"
	"github.com/fentz26/hivemind/internal/store"
)

// Service provides the control plane business logic.
type Service struct {
	coord   *coordinator.Coordinator
	sampler *resource.Sampler
	store   *store.Store
}

// NewService creates a new control plane service.
func NewService(coord *coordinator.Coordinator, sampler *resource.Sampler, st *store.Store) *Service {
	return &Service{
		coord:   coord,
		sampler: sampler,
		store:   st,
	}
}

// --- Plan Operations ---

// PlanRequest is a batch of tasks to plan.
type PlanRequest struct {
	Tasks    []models.TaskDescriptor `json:"tasks"`
	BranchID string                  `json:"branch_id"`
	Mode     string                  `json:"mode"`
}

// CreatePlan registers the batch and admits as much as the budget allows.
func (s *Service) CreatePlan(ctx context.Context, req PlanRequest) (*models.ExecutionPlan, error) {
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	return s.coord.CreateExecutionPlan(ctx, req.Tasks, req.BranchID, mode)
}

// --- Task Operations ---

// CompleteTask finishes a running task.
func (s *Service) CompleteTask(ctx context.Context, id, result string, success bool) (*models.ParallelTask, error) {
	return s.coord.CompleteTask(ctx, id, result, success)
}

// CancelTask cancels a queued or running task.
func (s *Service) CancelTask(ctx context.Context, id, reason string) (*models.ParallelTask, error) {
	return s.coord.CancelTask(ctx, id, reason)
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(ctx context.Context, id string) (*models.ParallelTask, error) {
	return s.coord.GetTask(ctx, id)
}

// ListTasks returns tasks filtered by status and branch. Empty filters match
// everything.
func (s *Service) ListTasks(ctx context.Context, status, branchID string) ([]models.ParallelTask, error) {
	opts := coordinator.ListOptions{BranchID: branchID}
	if status != "" {
		st, err := models.ParseTaskStatus(status)
		if err != nil {
			return nil, err
		}
		opts.Status = st
	}
	return s.coord.ListTasks(ctx, opts), nil
}

// --- Reporting ---

// Stats returns task counts and the current resource status.
func (s *Service) Stats(ctx context.Context) models.TaskStats {
	return s.coord.GetTaskStats(ctx)
}

// Learnings returns per task type learnings.
func (s *Service) Learnings() models.Learnings {
	return s.coord.GetParallelizationLearnings()
}

// History returns the most recent in-memory history records.
func (s *Service) History(limit int) []models.HistoryRecord {
	return s.coord.History(limit)
}

// Audit returns decision records, newest first.
func (s *Service) Audit(ctx context.Context, taskID string, limit int) ([]models.PDREntry, error) {
	return s.store.ListPDR(ctx, taskID, limit)
}

// ResourcesResponse is the resource status plus the spawn check.
type ResourcesResponse struct {
	Status   models.ResourceStatus `json:"status"`
	CanSpawn bool                  `json:"can_spawn"`
	Message  string                `json:"message"`
}

// Resources samples the host once for the given number of running agents. A
// negative count uses the coordinator's running tasks.
func (s *Service) Resources(ctx context.Context, current int) ResourcesResponse {
	if current < 0 {
		current = s.coord.RunningCount()
	}
	st := s.sampler.GetResourceStatus(ctx, current)
	ok, msg := resource.AgentLimit(st)
	return ResourcesResponse{Status: st, CanSpawn: ok, Message: msg}
}

// SystemInfo returns host diagnostics.
func (s *Service) SystemInfo(ctx context.Context) (resource.SystemInfo, error) {
	info, err := s.sampler.GetSystemInfo(ctx)
	if err != nil {
		return resource.SystemInfo{}, fmt.Errorf("system info: %w", err)
	}
	return info, nil
}

// Ping checks the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

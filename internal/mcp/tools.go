package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fentz26/hivemind/internal/models"
)

func (s *Server) createExecutionPlanTool() Tool {
	def := mcp.NewTool("create_execution_plan",
		mcp.WithDescription("Register a batch of tasks and start as many as the host resources allow. The rest are queued."),
		mcp.WithArray("tasks",
			mcp.Required(),
			mcp.Description(`Tasks to plan, e.g. [{"description":"search auth code","type":"search","priority":"HIGH"}]`),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("branch_id", mcp.Description("Branch the tasks belong to (default main)")),
		mcp.WithString("mode",
			mcp.Description("Execution mode"),
			mcp.Enum(string(models.ModeAuto), string(models.ModeParallel), string(models.ModeSequential), string(models.ModeAdaptive)),
		),
	)

	handle := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		descs, err := decodeTasks(req.GetArguments()["tasks"])
		if err != nil {
			return s.toolError("create_execution_plan", err), nil
		}
		mode, err := models.ParseMode(req.GetString("mode", ""))
		if err != nil {
			return s.toolError("create_execution_plan", err), nil
		}

		plan, err := s.cfg.Coordinator.CreateExecutionPlan(ctx, descs, req.GetString("branch_id", ""), mode)
		if err != nil {
			return s.toolError("create_execution_plan", err), nil
		}
		return jsonResult(plan)
	}

	return Tool{Definition: def, Handle: handle}
}

// decodeTasks accepts the tasks argument as a JSON array or as a string
// holding one.
func decodeTasks(raw any) ([]models.TaskDescriptor, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("tasks is required: %w", models.ErrInvalidTask)
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("tasks: %w", err)
		}
		data = b
	}

	var descs []models.TaskDescriptor
	if err := json.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("tasks must be an array of task objects: %w", models.ErrInvalidTask)
	}
	return descs, nil
}

func (s *Server) completeTaskTool() Tool {
	def := mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a running task as completed or failed and record it in the execution history."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the running task")),
		mcp.WithString("result", mcp.Description("Result text, or the error when the task failed")),
		mcp.WithBoolean("success", mcp.Description("Whether the task succeeded (default true)")),
	)

	handle := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("task_id")
		if err != nil {
			return s.toolError("complete_task", err), nil
		}

		task, err := s.cfg.Coordinator.CompleteTask(ctx, id, req.GetString("result", ""), req.GetBool("success", true))
		if err != nil {
			return s.toolError("complete_task", err), nil
		}
		return jsonResult(task)
	}

	return Tool{Definition: def, Handle: handle}
}

func (s *Server) cancelTaskTool() Tool {
	def := mcp.NewTool("cancel_task",
		mcp.WithDescription("Cancel a queued or running task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the task")),
		mcp.WithString("reason", mcp.Description("Why the task was cancelled")),
	)

	handle := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("task_id")
		if err != nil {
			return s.toolError("cancel_task", err), nil
		}

		task, err := s.cfg.Coordinator.CancelTask(ctx, id, req.GetString("reason", ""))
		if err != nil {
			return s.toolError("cancel_task", err), nil
		}
		return jsonResult(task)
	}

	return Tool{Definition: def, Handle: handle}
}

func (s *Server) getTaskStatsTool() Tool {
	def := mcp.NewTool("get_task_stats",
		mcp.WithDescription("Task counts by status, the running and queued tasks, and the current resource status."),
	)

	handle := func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.cfg.Coordinator.GetTaskStats(ctx))
	}

	return Tool{Definition: def, Handle: handle}
}

func (s *Server) getLearningsTool() Tool {
	def := mcp.NewTool("get_parallelization_learnings",
		mcp.WithDescription("Per task type success rate, average duration and parallelization recommendation."),
	)

	handle := func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.cfg.Coordinator.GetParallelizationLearnings())
	}

	return Tool{Definition: def, Handle: handle}
}

func (s *Server) getResourceStatusTool() Tool {
	def := mcp.NewTool("get_resource_status",
		mcp.WithDescription("Sample CPU and RAM and report the resource zone and agent budget."),
		mcp.WithNumber("current_agents", mcp.Description("Agents already running (default: the coordinator's running tasks)")),
	)

	handle := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		current := req.GetInt("current_agents", -1)
		if current < 0 {
			current = s.cfg.Coordinator.RunningCount()
		}
		return jsonResult(s.cfg.Sampler.GetResourceStatus(ctx, current))
	}

	return Tool{Definition: def, Handle: handle}
}

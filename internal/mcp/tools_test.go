package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/hivemind/internal/coordinator"
	"github.com/fentz26/hivemind/internal/mcp"
	"github.com/fentz26/hivemind/internal/models"
	"github.com/fentz26/hivemind/internal/resource"
	"github.com/fentz26/hivemind/internal/resource/fake"
)

type testEnv struct {
	server   *mcp.Server
	coord    *coordinator.Coordinator
	provider *fake.Provider
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	provider := fake.NewProvider(0.1, 0.1)
	sampler, err := resource.NewSampler(resource.Config{
		Provider:       provider,
		SampleInterval: time.Millisecond,
		SampleTimeout:  100 * time.Millisecond,
	})
	require.NoError(t, err)

	coord, err := coordinator.New(coordinator.Config{Sampler: sampler})
	require.NoError(t, err)

	srv, err := mcp.New(mcp.Config{Coordinator: coord, Sampler: sampler, Version: "test"})
	require.NoError(t, err)

	return testEnv{server: srv, coord: coord, provider: provider}
}

func (e testEnv) call(t *testing.T, name string, args map[string]any) *mcpgo.CallToolResult {
	t.Helper()

	for _, tool := range e.server.Tools() {
		if tool.Definition.Name != name {
			continue
		}
		req := mcpgo.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args

		res, err := tool.Handle(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, res)
		return res
	}

	t.Fatalf("tool %s is not registered", name)
	return nil
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func decode[T any](t *testing.T, res *mcpgo.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &v))
	return v
}

func TestTools(t *testing.T) {
	env := newTestEnv(t)

	var names []string
	for _, tool := range env.server.Tools() {
		names = append(names, tool.Definition.Name)
	}
	assert.ElementsMatch(t, []string{
		"create_execution_plan",
		"complete_task",
		"cancel_task",
		"get_task_stats",
		"get_parallelization_learnings",
		"get_resource_status",
	}, names)
	assert.NotNil(t, env.server.MCPServer())
}

func TestCreateExecutionPlan(t *testing.T) {
	tests := map[string]struct {
		args        map[string]any
		expErr      bool
		expAdmitted int
		expQueued   int
	}{
		"An array of tasks should be planned.": {
			args: map[string]any{
				"tasks": []any{
					map[string]any{"description": "a", "type": "search"},
					map[string]any{"description": "b", "priority": "HIGH"},
				},
			},
			expAdmitted: 2,
		},

		"A JSON string of tasks should be planned.": {
			args: map[string]any{
				"tasks": `[{"description":"a"},{"description":"b"},{"description":"c"},{"description":"d"},{"description":"e"},{"description":"f"}]`,
			},
			expAdmitted: 5,
			expQueued:   1,
		},

		"Sequential mode should admit one task.": {
			args: map[string]any{
				"tasks": `[{"description":"a"},{"description":"b"}]`,
				"mode":  "sequential",
			},
			expAdmitted: 1,
			expQueued:   1,
		},

		"Missing tasks should be a tool error.": {
			args:   map[string]any{},
			expErr: true,
		},

		"Malformed tasks should be a tool error.": {
			args:   map[string]any{"tasks": "not json"},
			expErr: true,
		},

		"An unknown priority should be a tool error.": {
			args:   map[string]any{"tasks": `[{"description":"a","priority":"URGENT"}]`},
			expErr: true,
		},

		"An unknown mode should be a tool error.": {
			args:   map[string]any{"tasks": `[{"description":"a"}]`, "mode": "turbo"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)

			res := env.call(t, "create_execution_plan", test.args)
			if test.expErr {
				assert.True(t, res.IsError)
				return
			}

			plan := decode[models.ExecutionPlan](t, res)
			assert.Len(t, plan.ParallelTasks, test.expAdmitted)
			assert.Len(t, plan.QueuedTasks, test.expQueued)
			assert.Equal(t, "main", plan.BranchID)
		})
	}
}

func TestCompleteAndCancelTask(t *testing.T) {
	env := newTestEnv(t)
	plan := decode[models.ExecutionPlan](t, env.call(t, "create_execution_plan", map[string]any{
		"tasks":     `[{"description":"a"},{"description":"b"}]`,
		"branch_id": "feature",
	}))
	require.Len(t, plan.ParallelTasks, 2)
	first, second := plan.ParallelTasks[0].ID, plan.ParallelTasks[1].ID

	task := decode[models.ParallelTask](t, env.call(t, "complete_task", map[string]any{"task_id": first, "result": "done"}))
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Equal(t, "done", task.Result)

	task = decode[models.ParallelTask](t, env.call(t, "complete_task", map[string]any{"task_id": second, "result": "boom", "success": false}))
	assert.Equal(t, models.TaskStatusFailed, task.Status)

	res := env.call(t, "complete_task", map[string]any{"task_id": first})
	assert.True(t, res.IsError, "completing twice should fail")

	res = env.call(t, "complete_task", map[string]any{"task_id": "missing"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "task not found")

	res = env.call(t, "complete_task", map[string]any{})
	assert.True(t, res.IsError, "task_id is required")

	queued := decode[models.ExecutionPlan](t, env.call(t, "create_execution_plan", map[string]any{
		"tasks": `[{"description":"c"}]`,
		"mode":  "sequential",
	}))
	require.Len(t, queued.ParallelTasks, 1)
	task = decode[models.ParallelTask](t, env.call(t, "cancel_task", map[string]any{"task_id": queued.ParallelTasks[0].ID, "reason": "stop"}))
	assert.Equal(t, models.TaskStatusCancelled, task.Status)

	res = env.call(t, "cancel_task", map[string]any{"task_id": "missing"})
	assert.True(t, res.IsError)
}

func TestReportingTools(t *testing.T) {
	env := newTestEnv(t)

	learnings := decode[models.Learnings](t, env.call(t, "get_parallelization_learnings", nil))
	assert.Equal(t, coordinator.NoHistoryMessage, learnings.Message)

	plan := decode[models.ExecutionPlan](t, env.call(t, "create_execution_plan", map[string]any{
		"tasks": `[{"description":"a","type":"search"},{"description":"b","type":"search"}]`,
	}))
	env.call(t, "complete_task", map[string]any{"task_id": plan.ParallelTasks[0].ID})

	stats := decode[models.TaskStats](t, env.call(t, "get_task_stats", nil))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 1, stats.Completed)

	learnings = decode[models.Learnings](t, env.call(t, "get_parallelization_learnings", nil))
	require.Contains(t, learnings.ByType, "search")
	assert.Equal(t, 1, learnings.ByType["search"].Executions)

	// Without a count the running tasks are used.
	st := decode[models.ResourceStatus](t, env.call(t, "get_resource_status", nil))
	assert.Equal(t, models.ZoneSafe, st.Zone)
	assert.Equal(t, 1, st.CurrentAgents)

	env.provider.Set(0.95, 0.1)
	st = decode[models.ResourceStatus](t, env.call(t, "get_resource_status", map[string]any{"current_agents": float64(1)}))
	assert.Equal(t, models.ZoneDanger, st.Zone)
	assert.False(t, st.CanSpawn)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := mcp.New(mcp.Config{})
	assert.Error(t, err)
}

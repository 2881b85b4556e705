package controlplane

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fentz26/hivemind/internal/audit"
	"github.com/fentz26/hivemind/internal/coordinator"
	"github.com/fentz26/hivemind/internal/metrics"
	"github.com/fentz26/hivemind/internal/models"
	"github.com/fentz26/hivemind/internal/resource"
	"github.com/fentz26/hivemind/internal/resource/fake"
	"github.com/fentz26/hivemind/internal/store"
)

type testServer struct {
	server   *Server
	handler  http.Handler
	store    *store.Store
	provider *fake.Provider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)

	provider := fake.NewProvider(0.1, 0.1)
	sampler, err := resource.NewSampler(resource.Config{
		Provider:       provider,
		Metrics:        m,
		SampleInterval: time.Millisecond,
		SampleTimeout:  100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create sampler: %v", err)
	}

	coord, err := coordinator.New(coordinator.Config{
		Sampler:     sampler,
		HistorySink: st,
		Auditor:     audit.NewPDRWriter(st),
		Metrics:     m,
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}

	server, err := NewServer(ServerConfig{
		Service:     NewService(coord, sampler, st),
		Addr:        "127.0.0.1:0",
		Version:     "test",
		MetricsPath: "/metrics",
		Gatherer:    reg,
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	return &testServer{server: server, handler: server.Handler(), store: st, provider: provider}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createPlan(t *testing.T, n int) models.ExecutionPlan {
	t.Helper()
	req := PlanRequest{BranchID: "main"}
	for i := 0; i < n; i++ {
		req.Tasks = append(req.Tasks, models.TaskDescriptor{Description: "task " + string(rune('a'+i)), Type: "search"})
	}

	w := ts.do(http.MethodPost, "/plans", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var plan models.ExecutionPlan
	if err := json.NewDecoder(w.Body).Decode(&plan); err != nil {
		t.Fatalf("Failed to decode plan: %v", err)
	}
	return plan
}

func TestHealthEndpoint_OK(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.Version != "test" {
		t.Errorf("Expected version 'test', got '%s'", health.Version)
	}
	if health.Time == "" {
		t.Error("Expected time to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/health", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	ts := newTestServer(t)

	// Close the store to simulate DB error
	ts.store.Close()

	w := ts.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}

	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health.OK {
		t.Error("Expected health.OK to be false when DB is down")
	}
	if health.DB == "ok" {
		t.Error("Expected DB status to indicate error")
	}
}

func TestCreatePlan(t *testing.T) {
	ts := newTestServer(t)

	plan := ts.createPlan(t, 7)
	if plan.TotalTasks != 7 {
		t.Errorf("Expected 7 total tasks, got %d", plan.TotalTasks)
	}
	if len(plan.ParallelTasks) != 5 || len(plan.QueuedTasks) != 2 {
		t.Errorf("Expected 5 admitted and 2 queued, got %d and %d", len(plan.ParallelTasks), len(plan.QueuedTasks))
	}
	if plan.Strategy != models.StrategyParallel {
		t.Errorf("Expected parallel strategy, got %s", plan.Strategy)
	}
	for _, task := range plan.ParallelTasks {
		if task.Status != models.TaskStatusRunning {
			t.Errorf("Expected admitted task to be running, got %s", task.Status)
		}
	}
}

func TestCreatePlan_BadRequests(t *testing.T) {
	tests := map[string]struct {
		body string
		exp  int
	}{
		"invalid json":        {body: `{`, exp: http.StatusBadRequest},
		"unknown priority":    {body: `{"tasks":[{"description":"a","priority":"URGENT"}]}`, exp: http.StatusBadRequest},
		"unknown mode":        {body: `{"tasks":[{"description":"a"}],"mode":"turbo"}`, exp: http.StatusBadRequest},
		"missing description": {body: `{"tasks":[{"type":"search"}]}`, exp: http.StatusBadRequest},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t)
			w := ts.do(http.MethodPost, "/plans", tt.body)
			if w.Code != tt.exp {
				t.Errorf("Expected status %d, got %d: %s", tt.exp, w.Code, w.Body.String())
			}
		})
	}
}

func TestCreatePlan_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.do(http.MethodGet, "/plans", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestCompleteTask(t *testing.T) {
	ts := newTestServer(t)
	plan := ts.createPlan(t, 1)
	id := plan.ParallelTasks[0].ID

	w := ts.do(http.MethodPost, "/tasks/"+id+"/complete", map[string]any{"result": "done", "success": true})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var task models.ParallelTask
	if err := json.NewDecoder(w.Body).Decode(&task); err != nil {
		t.Fatalf("Failed to decode task: %v", err)
	}
	if task.Status != models.TaskStatusCompleted || task.Result != "done" {
		t.Errorf("Expected completed task with result, got %s %q", task.Status, task.Result)
	}

	// Completing twice is a conflict.
	w = ts.do(http.MethodPost, "/tasks/"+id+"/complete", map[string]any{"success": true})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}

	w = ts.do(http.MethodPost, "/tasks/nope/complete", map[string]any{"success": true})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	// The durable sink received the record.
	recs, err := ts.store.ListHistory(t.Context(), 0)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(recs) != 1 || recs[0].TaskID != id {
		t.Errorf("Expected one persisted record for %s, got %+v", id, recs)
	}
}

func TestCancelTask(t *testing.T) {
	ts := newTestServer(t)
	plan := ts.createPlan(t, 6)
	queued := plan.QueuedTasks[0].ID

	w := ts.do(http.MethodPost, "/tasks/"+queued+"/cancel", map[string]string{"reason": "not needed"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	// An empty body is accepted.
	running := plan.ParallelTasks[0].ID
	w = ts.do(http.MethodPost, "/tasks/"+running+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodPost, "/tasks/"+queued+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 on second cancel, got %d", w.Code)
	}
}

func TestGetAndListTasks(t *testing.T) {
	ts := newTestServer(t)
	plan := ts.createPlan(t, 6)

	w := ts.do(http.MethodGet, "/tasks/"+plan.QueuedTasks[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if w := ts.do(http.MethodGet, "/tasks/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/tasks/", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without id, got %d", w.Code)
	}
	if w := ts.do(http.MethodDelete, "/tasks/"+plan.QueuedTasks[0].ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown route, got %d", w.Code)
	}

	tests := map[string]struct {
		query string
		code  int
		count int
	}{
		"all":            {query: "", code: http.StatusOK, count: 6},
		"running":        {query: "?status=running", code: http.StatusOK, count: 5},
		"queued":         {query: "?status=QUEUED", code: http.StatusOK, count: 1},
		"other branch":   {query: "?branch=feature", code: http.StatusOK, count: 0},
		"unknown status": {query: "?status=sleeping", code: http.StatusBadRequest},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := ts.do(http.MethodGet, "/tasks"+tt.query, nil)
			if w.Code != tt.code {
				t.Fatalf("Expected status %d, got %d", tt.code, w.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var tasks []models.ParallelTask
			if err := json.NewDecoder(w.Body).Decode(&tasks); err != nil {
				t.Fatalf("Failed to decode tasks: %v", err)
			}
			if len(tasks) != tt.count {
				t.Errorf("Expected %d tasks, got %d", tt.count, len(tasks))
			}
		})
	}
}

func TestReporting(t *testing.T) {
	ts := newTestServer(t)
	plan := ts.createPlan(t, 2)
	for _, task := range plan.ParallelTasks {
		ts.do(http.MethodPost, "/tasks/"+task.ID+"/complete", map[string]any{"success": true})
	}

	w := ts.do(http.MethodGet, "/stats", nil)
	var stats models.TaskStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Total != 2 || stats.Completed != 2 || stats.Running != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	w = ts.do(http.MethodGet, "/learnings", nil)
	var learnings models.Learnings
	if err := json.NewDecoder(w.Body).Decode(&learnings); err != nil {
		t.Fatalf("Failed to decode learnings: %v", err)
	}
	if l, ok := learnings.ByType["search"]; !ok || l.Executions != 2 {
		t.Errorf("Expected two search executions, got %+v", learnings.ByType)
	}

	w = ts.do(http.MethodGet, "/history?limit=1", nil)
	var history []models.HistoryRecord
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected 1 history record, got %d", len(history))
	}
	if w := ts.do(http.MethodGet, "/history?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad limit, got %d", w.Code)
	}

	w = ts.do(http.MethodGet, "/audit", nil)
	var entries []models.PDREntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode audit: %v", err)
	}
	// One plan and two completions.
	if len(entries) != 3 {
		t.Errorf("Expected 3 audit entries, got %d", len(entries))
	}

	w = ts.do(http.MethodGet, "/audit?task_id="+plan.ParallelTasks[0].ID, nil)
	entries = nil
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "task.complete" {
		t.Errorf("Expected one task.complete entry, got %+v", entries)
	}

	if w := ts.do(http.MethodPost, "/stats", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestResources(t *testing.T) {
	ts := newTestServer(t)

	tests := map[string]struct {
		query    string
		provider func(p *fake.Provider)
		code     int
		canSpawn bool
		zone     models.Zone
	}{
		"Free slots":       {query: "?current=2", code: http.StatusOK, canSpawn: true, zone: models.ZoneSafe},
		"Budget exhausted": {query: "?current=5", code: http.StatusOK, canSpawn: false, zone: models.ZoneSafe},
		"Running count":    {query: "", code: http.StatusOK, canSpawn: true, zone: models.ZoneSafe},
		"High usage":       {query: "?current=1", provider: func(p *fake.Provider) { p.Set(0.9, 0.1) }, code: http.StatusOK, canSpawn: false, zone: models.ZoneDanger},
		"Bad count":        {query: "?current=x", code: http.StatusBadRequest},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ts.provider.Set(0.1, 0.1)
			if tt.provider != nil {
				tt.provider(ts.provider)
			}

			w := ts.do(http.MethodGet, "/resources"+tt.query, nil)
			if w.Code != tt.code {
				t.Fatalf("Expected status %d, got %d", tt.code, w.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var resp ResourcesResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode resources: %v", err)
			}
			if resp.CanSpawn != tt.canSpawn || resp.Status.Zone != tt.zone {
				t.Errorf("Expected can_spawn=%v zone=%s, got %+v", tt.canSpawn, tt.zone, resp)
			}
			if resp.Message == "" {
				t.Error("Expected a spawn message")
			}
		})
	}
}

func TestSystemAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.createPlan(t, 1)

	w := ts.do(http.MethodGet, "/system", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var info resource.SystemInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode system info: %v", err)
	}
	if info.CPU.Count == 0 || info.Thresholds.MaxAgents != 5 {
		t.Errorf("Unexpected system info: %+v", info)
	}

	ts.provider.SetError(errors.New("proc unavailable"))
	if w := ts.do(http.MethodGet, "/system", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500 when sampling fails, got %d", w.Code)
	}

	w = ts.do(http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "hivemind_coordinator_plans_total") {
		t.Error("Expected coordinator metrics to be exposed")
	}
}


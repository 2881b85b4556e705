package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/hivemind/internal/metrics"
	"github.com/fentz26/hivemind/internal/models"
)

func TestMetrics(t *testing.T) {
	require := require.New(t)

	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)

	m.ObservePlan(models.ModeAuto, models.StrategyMixed, 3, 2)
	m.ObservePlan(models.ModeAuto, models.StrategyMixed, 1, 0)
	d := 12.5
	m.ObserveTaskFinished(models.TaskStatusCompleted, "search", &d)
	m.ObserveTaskFinished(models.TaskStatusCancelled, "search", nil)
	m.SetRunningTasks(4)
	m.ObserveResourceStatus(models.ResourceStatus{CPUUtilization: 0.5, RAMUtilization: 0.25, Zone: models.ZoneWarning})

	expected := `
# HELP hivemind_coordinator_plans_total Execution plans created by requested mode and resulting strategy.
# TYPE hivemind_coordinator_plans_total counter
hivemind_coordinator_plans_total{mode="auto",strategy="mixed"} 2
# HELP hivemind_coordinator_tasks_admitted_total Tasks admitted to run immediately.
# TYPE hivemind_coordinator_tasks_admitted_total counter
hivemind_coordinator_tasks_admitted_total 4
# HELP hivemind_coordinator_tasks_queued_total Tasks left queued by a plan.
# TYPE hivemind_coordinator_tasks_queued_total counter
hivemind_coordinator_tasks_queued_total 2
# HELP hivemind_coordinator_tasks_finished_total Tasks that reached a terminal status.
# TYPE hivemind_coordinator_tasks_finished_total counter
hivemind_coordinator_tasks_finished_total{outcome="cancelled"} 1
hivemind_coordinator_tasks_finished_total{outcome="completed"} 1
# HELP hivemind_coordinator_running_tasks Tasks currently running.
# TYPE hivemind_coordinator_running_tasks gauge
hivemind_coordinator_running_tasks 4
# HELP hivemind_resource_cpu_utilization Last sampled CPU utilization in [0,1].
# TYPE hivemind_resource_cpu_utilization gauge
hivemind_resource_cpu_utilization 0.5
# HELP hivemind_resource_zone Last resource zone: 0 safe, 1 warning, 2 danger.
# TYPE hivemind_resource_zone gauge
hivemind_resource_zone 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hivemind_coordinator_plans_total",
		"hivemind_coordinator_tasks_admitted_total",
		"hivemind_coordinator_tasks_queued_total",
		"hivemind_coordinator_tasks_finished_total",
		"hivemind_coordinator_running_tasks",
		"hivemind_resource_cpu_utilization",
		"hivemind_resource_zone",
	)
	require.NoError(err)

	n, err := testutil.GatherAndCount(reg, "hivemind_coordinator_task_duration_seconds")
	require.NoError(err)
	require.Equal(1, n)
}

func TestSampleFailuresSetDangerZone(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)

	m.IncSampleFailures()

	expected := `
# HELP hivemind_resource_sample_failures_total Resource samples that failed or timed out.
# TYPE hivemind_resource_sample_failures_total counter
hivemind_resource_sample_failures_total 1
# HELP hivemind_resource_zone Last resource zone: 0 safe, 1 warning, 2 danger.
# TYPE hivemind_resource_zone gauge
hivemind_resource_zone 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hivemind_resource_sample_failures_total",
		"hivemind_resource_zone",
	)
	assert.NoError(t, err)
}

func TestMustNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := metrics.MustNewMetrics(reg)
	b := metrics.MustNewMetrics(reg)

	a.SetRunningTasks(2)
	b.SetRunningTasks(3)

	expected := `
# HELP hivemind_coordinator_running_tasks Tasks currently running.
# TYPE hivemind_coordinator_running_tasks gauge
hivemind_coordinator_running_tasks 3
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "hivemind_coordinator_running_tasks")
	assert.NoError(t, err)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObservePlan(models.ModeAuto, models.StrategyParallel, 1, 1)
		m.ObserveTaskFinished(models.TaskStatusFailed, "x", nil)
		m.SetRunningTasks(1)
		m.ObserveResourceStatus(models.ResourceStatus{})
		m.IncSampleFailures()
	})
}

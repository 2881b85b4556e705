// Package metrics exposes Prometheus collectors for coordinator and resource
// activity.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fentz26/hivemind/internal/models"
)

const namespace = "hivemind"

// Metrics reports coordinator and resource activity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	plans          *prometheus.CounterVec
	tasksAdmitted  prometheus.Counter
	tasksQueued    prometheus.Counter
	tasksFinished  *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	runningTasks   prometheus.Gauge
	cpu            prometheus.Gauge
	ram            prometheus.Gauge
	zone           prometheus.Gauge
	sampleFailures prometheus.Counter
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		plans: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "plans_total",
			Help:      "Execution plans created by requested mode and resulting strategy.",
		}, []string{"mode", "strategy"})),
		tasksAdmitted: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "tasks_admitted_total",
			Help:      "Tasks admitted to run immediately.",
		})),
		tasksQueued: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "tasks_queued_total",
			Help:      "Tasks left queued by a plan.",
		})),
		tasksFinished: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status.",
		}, []string{"outcome"})),
		taskDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "task_duration_seconds",
			Help:      "Duration of finished tasks by task type.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"task_type"})),
		runningTasks: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "running_tasks",
			Help:      "Tasks currently running.",
		})),
		cpu: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "cpu_utilization",
			Help:      "Last sampled CPU utilization in [0,1].",
		})),
		ram: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "ram_utilization",
			Help:      "Last sampled RAM utilization in [0,1].",
		})),
		zone: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "zone",
			Help:      "Last resource zone: 0 safe, 1 warning, 2 danger.",
		})),
		sampleFailures: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "sample_failures_total",
			Help:      "Resource samples that failed or timed out.",
		})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObservePlan records a created plan.
func (m *Metrics) ObservePlan(mode models.Mode, strategy models.Strategy, admitted, queued int) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(string(mode), string(strategy)).Inc()
	m.tasksAdmitted.Add(float64(admitted))
	m.tasksQueued.Add(float64(queued))
}

// ObserveTaskFinished records a task reaching a terminal status.
func (m *Metrics) ObserveTaskFinished(status models.TaskStatus, taskType string, durationSeconds *float64) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(string(status)).Inc()
	if durationSeconds != nil && status != models.TaskStatusCancelled {
		m.taskDuration.WithLabelValues(taskType).Observe(*durationSeconds)
	}
}

// SetRunningTasks sets the running task gauge.
func (m *Metrics) SetRunningTasks(n int) {
	if m == nil {
		return
	}
	m.runningTasks.Set(float64(n))
}

// ObserveResourceStatus records a successful resource sample.
func (m *Metrics) ObserveResourceStatus(st models.ResourceStatus) {
	if m == nil {
		return
	}
	m.cpu.Set(st.CPUUtilization)
	m.ram.Set(st.RAMUtilization)
	m.zone.Set(zoneValue(st.Zone))
}

// IncSampleFailures counts a failed resource sample.
func (m *Metrics) IncSampleFailures() {
	if m == nil {
		return
	}
	m.sampleFailures.Inc()
	m.zone.Set(zoneValue(models.ZoneDanger))
}

func zoneValue(z models.Zone) float64 {
	switch z {
	case models.ZoneSafe:
		return 0
	case models.ZoneWarning:
		return 1
	default:
		return 2
	}
}

package resource

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/fentz26/hivemind/internal/log"
	"github.com/fentz26/hivemind/internal/models"
)

// Sampler classifies host resource pressure into zones with an agent budget.
type Sampler struct {
	cfg    Config
	logger log.Logger
}

// NewSampler returns a new Sampler.
func NewSampler(cfg Config) (*Sampler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Sampler{cfg: cfg, logger: cfg.Logger}, nil
}

// MaxAgents returns the session ceiling.
func (s *Sampler) MaxAgents() int { return s.cfg.MaxAgents }

// Classify maps CPU and RAM utilization to a zone and its agent budget.
// DANGER is checked before WARNING.
func (s *Sampler) Classify(cpu, ram float64) (models.Zone, int, string) {
	usage := fmt.Sprintf("CPU %.1f%%, RAM %.1f%%", cpu*100, ram*100)
	switch {
	case cpu >= s.cfg.CPUDanger || ram >= s.cfg.RAMDanger:
		return models.ZoneDanger, s.cfg.DangerAgents, "High resource usage: " + usage
	case cpu >= s.cfg.CPUWarning || ram >= s.cfg.RAMWarning:
		return models.ZoneWarning, s.cfg.WarningAgents, "Moderate resource usage: " + usage
	default:
		return models.ZoneSafe, s.cfg.MaxAgents, "Low resource usage: " + usage
	}
}

// GetResourceStatus samples the host and returns the zone for the given
// number of running agents. It never fails: an unavailable sample is
// reported as DANGER with Sampled set to false.
func (s *Sampler) GetResourceStatus(ctx context.Context, currentAgents int) models.ResourceStatus {
	currentAgents = max(0, currentAgents)

	cpu, mem, err := s.sample(ctx)
	if err != nil {
		s.cfg.Metrics.IncSampleFailures()
		s.logger.WithCtxValues(ctx).Warningf("resource sample unavailable, assuming danger zone: %s", err)
		return models.ResourceStatus{
			Zone:          models.ZoneDanger,
			MaxAgents:     s.cfg.DangerAgents,
			CurrentAgents: currentAgents,
			CanSpawn:      currentAgents < s.cfg.DangerAgents,
			Reason:        fmt.Sprintf("Resource sample unavailable (%s), assuming high usage", err),
			Sampled:       false,
			Timestamp:     s.cfg.Now(),
		}
	}

	ram := mem.UsedFraction()
	zone, maxAgents, reason := s.Classify(cpu.Total, ram)
	st := models.ResourceStatus{
		CPUUtilization: cpu.Total,
		RAMUtilization: ram,
		Zone:           zone,
		MaxAgents:      maxAgents,
		CurrentAgents:  currentAgents,
		CanSpawn:       currentAgents < maxAgents,
		Reason:         reason,
		Sampled:        true,
		Timestamp:      s.cfg.Now(),
	}
	s.cfg.Metrics.ObserveResourceStatus(st)
	s.logger.Debugf("resource status: zone=%s max_agents=%d current=%d", zone, maxAgents, currentAgents)

	return st
}

func (s *Sampler) sample(ctx context.Context) (CPUSample, MemorySample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SampleTimeout)
	defer cancel()

	cpu, err := s.cfg.Provider.SampleCPU(ctx, s.cfg.SampleInterval)
	if err != nil {
		return CPUSample{}, MemorySample{}, fmt.Errorf("cpu: %w: %w", models.ErrResourceUnavailable, err)
	}
	mem, err := s.cfg.Provider.Memory(ctx)
	if err != nil {
		return CPUSample{}, MemorySample{}, fmt.Errorf("memory: %w: %w", models.ErrResourceUnavailable, err)
	}

	return cpu, mem, nil
}

// Recommendation is the parallelism advice for a batch of tasks.
type Recommendation struct {
	Strategy       models.Strategy       `json:"strategy"`
	ParallelTasks  int                   `json:"parallel_tasks"`
	QueuedTasks    int                   `json:"queued_tasks"`
	Description    string                `json:"description"`
	Reason         string                `json:"reason"`
	ResourceStatus models.ResourceStatus `json:"resource_status"`
}

// RecommendParallelism splits taskCount between tasks that can start now and
// tasks that should wait, given the agents already running.
func (s *Sampler) RecommendParallelism(ctx context.Context, taskCount, currentAgents int) Recommendation {
	st := s.GetResourceStatus(ctx, currentAgents)
	return Recommend(st, taskCount)
}

// Recommend derives a recommendation from an existing status.
func Recommend(st models.ResourceStatus, taskCount int) Recommendation {
	taskCount = max(0, taskCount)
	available := max(0, st.MaxAgents-st.CurrentAgents)
	parallel := min(taskCount, available)

	rec := Recommendation{
		ParallelTasks:  parallel,
		QueuedTasks:    taskCount - parallel,
		Reason:         st.Reason,
		ResourceStatus: st,
	}
	switch st.Zone {
	case models.ZoneSafe:
		rec.Strategy = models.StrategyParallel
		rec.Description = "Resources available for full parallelization"
	case models.ZoneWarning:
		rec.Strategy = models.StrategyMixed
		rec.Description = "Limited parallelization with queuing"
	default:
		rec.Strategy = models.StrategySequential
		rec.Description = "High resource usage - sequential execution recommended"
	}

	return rec
}

// CheckAgentLimit reports whether one more agent may be spawned.
func (s *Sampler) CheckAgentLimit(ctx context.Context, currentAgents int) (bool, string) {
	return AgentLimit(s.GetResourceStatus(ctx, currentAgents))
}

// AgentLimit is CheckAgentLimit for an existing status.
func AgentLimit(st models.ResourceStatus) (bool, string) {
	if !st.CanSpawn {
		return false, "Cannot spawn agent: " + st.Reason
	}
	return true, fmt.Sprintf("Can spawn agent: %d slots available", st.MaxAgents-st.CurrentAgents)
}

// SystemInfo is a diagnostic view of the host.
type SystemInfo struct {
	CPU        CPUInfo    `json:"cpu"`
	RAM        RAMInfo    `json:"ram"`
	Thresholds Thresholds `json:"thresholds"`
}

type CPUInfo struct {
	Count   int       `json:"count"`
	Percent float64   `json:"percent"`
	PerCPU  []float64 `json:"per_cpu"`
}

type RAMInfo struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	TotalGB        float64 `json:"total_gb"`
	AvailableGB    float64 `json:"available_gb"`
	Percent        float64 `json:"percent"`
}

type Thresholds struct {
	CPUWarning float64 `json:"cpu_warning"`
	CPUDanger  float64 `json:"cpu_danger"`
	RAMWarning float64 `json:"ram_warning"`
	RAMDanger  float64 `json:"ram_danger"`
	MaxAgents  int     `json:"max_agents"`
}

// GetSystemInfo returns host diagnostics. Unlike GetResourceStatus it
// returns sampling errors to the caller.
func (s *Sampler) GetSystemInfo(ctx context.Context) (SystemInfo, error) {
	var (
		cpu CPUSample
		mem MemorySample
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.cfg.Provider.SampleCPU(gctx, s.cfg.SampleInterval)
		if err != nil {
			return fmt.Errorf("cpu: %w", err)
		}
		cpu = c
		return nil
	})
	g.Go(func() error {
		m, err := s.cfg.Provider.Memory(gctx)
		if err != nil {
			return fmt.Errorf("memory: %w", err)
		}
		mem = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return SystemInfo{}, fmt.Errorf("could not sample system: %w", err)
	}

	count := len(cpu.PerCore)
	if count == 0 {
		count = runtime.NumCPU()
	}
	perCPU := make([]float64, 0, len(cpu.PerCore))
	for _, c := range cpu.PerCore {
		perCPU = append(perCPU, round(c*100, 1))
	}

	const gib = 1 << 30
	return SystemInfo{
		CPU: CPUInfo{
			Count:   count,
			Percent: round(cpu.Total*100, 1),
			PerCPU:  perCPU,
		},
		RAM: RAMInfo{
			TotalBytes:     mem.TotalBytes,
			AvailableBytes: mem.AvailableBytes,
			TotalGB:        round(float64(mem.TotalBytes)/gib, 2),
			AvailableGB:    round(float64(mem.AvailableBytes)/gib, 2),
			Percent:        round(mem.UsedFraction()*100, 1),
		},
		Thresholds: Thresholds{
			CPUWarning: s.cfg.CPUWarning,
			CPUDanger:  s.cfg.CPUDanger,
			RAMWarning: s.cfg.RAMWarning,
			RAMDanger:  s.cfg.RAMDanger,
			MaxAgents:  s.cfg.MaxAgents,
		},
	}, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}


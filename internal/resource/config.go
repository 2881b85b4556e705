// Package resource samples host CPU and memory pressure and turns it into a
// concurrency budget for agents.
package resource

import (
	"fmt"
	"time"

	"github.com/fentz26/hivemind/internal/log"
	"github.com/fentz26/hivemind/internal/models"
)

// Recorder receives resource observations.
type Recorder interface {
	ObserveResourceStatus(st models.ResourceStatus)
	IncSampleFailures()
}

// Config is the sampler configuration.
type Config struct {
	Provider Provider
	Logger   log.Logger
	Metrics  Recorder
	Now      func() time.Time

	CPUWarning float64
	CPUDanger  float64
	RAMWarning float64
	RAMDanger  float64

	// MaxAgents is the session ceiling, the SAFE zone budget.
	MaxAgents     int
	WarningAgents int
	DangerAgents  int

	SampleInterval time.Duration
	SampleTimeout  time.Duration
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		CPUWarning:     0.60,
		CPUDanger:      0.80,
		RAMWarning:     0.70,
		RAMDanger:      0.85,
		MaxAgents:      5,
		WarningAgents:  3,
		DangerAgents:   1,
		SampleInterval: 500 * time.Millisecond,
		SampleTimeout:  2 * time.Second,
	}
}

func (c *Config) defaults() error {
	d := DefaultConfig()

	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "resource.Sampler"})
	if c.Metrics == nil {
		c.Metrics = noopRecorder{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	if c.CPUWarning == 0 {
		c.CPUWarning = d.CPUWarning
	}
	if c.CPUDanger == 0 {
		c.CPUDanger = d.CPUDanger
	}
	if c.RAMWarning == 0 {
		c.RAMWarning = d.RAMWarning
	}
	if c.RAMDanger == 0 {
		c.RAMDanger = d.RAMDanger
	}
	if c.CPUWarning < 0 || c.CPUWarning >= c.CPUDanger || c.CPUDanger > 1 {
		return fmt.Errorf("cpu thresholds must satisfy 0 <= warning < danger <= 1, got %v/%v", c.CPUWarning, c.CPUDanger)
	}
	if c.RAMWarning < 0 || c.RAMWarning >= c.RAMDanger || c.RAMDanger > 1 {
		return fmt.Errorf("ram thresholds must satisfy 0 <= warning < danger <= 1, got %v/%v", c.RAMWarning, c.RAMDanger)
	}

	if c.MaxAgents == 0 {
		c.MaxAgents = d.MaxAgents
	}
	if c.MaxAgents < 1 {
		return fmt.Errorf("max agents must be at least 1, got %d", c.MaxAgents)
	}
	if c.WarningAgents == 0 {
		c.WarningAgents = d.WarningAgents
	}
	if c.DangerAgents == 0 {
		c.DangerAgents = d.DangerAgents
	}
	if c.WarningAgents < 1 || c.DangerAgents < 1 {
		return fmt.Errorf("zone budgets must be at least 1")
	}
	// Zone budgets never exceed the session ceiling.
	c.WarningAgents = min(c.WarningAgents, c.MaxAgents)
	c.DangerAgents = min(c.DangerAgents, c.WarningAgents)

	if c.SampleInterval == 0 {
		c.SampleInterval = d.SampleInterval
	}
	if c.SampleTimeout == 0 {
		c.SampleTimeout = d.SampleTimeout
	}
	if c.SampleInterval < 0 || c.SampleTimeout <= 0 {
		return fmt.Errorf("sample interval and timeout must be positive")
	}

	return nil
}

type noopRecorder struct{}

func (noopRecorder) ObserveResourceStatus(models.ResourceStatus) {}
func (noopRecorder) IncSampleFailures() {}

// Package sweeper runs periodic housekeeping: retention pruning and resource
// gauge refreshes.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/hivemind/internal/coordinator"
	"github.com/fentz26/hivemind/internal/log"
	"github.com/fentz26/hivemind/internal/models"
)

// Coordinator is the in-memory state to prune.
type Coordinator interface {
	Prune(ctx context.Context) coordinator.PruneResult
	RunningCount() int
}

// HistoryPruner removes persisted history older than a point in time.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

// StatusSampler refreshes resource observations.
type StatusSampler interface {
	GetResourceStatus(ctx context.Context, currentAgents int) models.ResourceStatus
}

// Config defines the sweeper configuration.
type Config struct {
	Coordinator Coordinator

	// History is optional, nil skips persisted history pruning.
	History HistoryPruner

	// Sampler is optional, nil skips resource refreshes.
	Sampler StatusSampler

	Logger log.Logger
	Now    func() time.Time

	// Interval between sweeps.
	Interval time.Duration

	// MaxAge of persisted history. Zero keeps everything.
	MaxAge time.Duration
}

// DefaultConfig returns the default sweeper timings.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
	}
}

func (c *Config) defaults() error {
	if c.Coordinator == nil {
		return fmt.Errorf("coordinator is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sweeper.Sweeper"})
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Interval == 0 {
		c.Interval = DefaultConfig().Interval
	}
	if c.Interval < 0 || c.MaxAge < 0 {
		return fmt.Errorf("interval and max age must not be negative")
	}
	return nil
}

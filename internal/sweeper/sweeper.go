package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/hivemind/internal/log"
)

// Sweeper periodically prunes finished state and refreshes resource gauges.
type Sweeper struct {
	cfg    Config
	logger log.Logger

	// Control
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a new sweeper.
func New(cfg Config) (*Sweeper, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Sweeper{cfg: cfg, logger: cfg.Logger}, nil
}

// Start begins the sweep loop in the background.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	s.logger.Infof("Sweeper started, interval %s", s.cfg.Interval)
}

// Stop gracefully stops the sweep loop.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Infof("Sweeper stopped")
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.loop(ctx)
	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Result reports what one sweep did.
type Result struct {
	Tasks          int
	History        int
	PersistedRows  int64
	ResourceSample bool
}

// Sweep runs one housekeeping pass.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	res := Result{}

	pruned := s.cfg.Coordinator.Prune(ctx)
	res.Tasks, res.History = pruned.Tasks, pruned.History

	if s.cfg.History != nil && s.cfg.MaxAge > 0 {
		n, err := s.cfg.History.PruneHistory(ctx, s.cfg.Now().Add(-s.cfg.MaxAge))
		if err != nil {
			s.logger.Errorf("Error pruning persisted history: %s", err)
		}
		res.PersistedRows = n
	}

	if s.cfg.Sampler != nil {
		s.cfg.Sampler.GetResourceStatus(ctx, s.cfg.Coordinator.RunningCount())
		res.ResourceSample = true
	}

	if res.Tasks > 0 || res.History > 0 || res.PersistedRows > 0 {
		s.logger.Debugf("Sweep evicted %d tasks, %d history records and %d persisted rows", res.Tasks, res.History, res.PersistedRows)
	}
	return res
}

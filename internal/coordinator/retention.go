package coordinator

import (
	"context"
	"time"

	"github.com/fentz26/hivemind/internal/models"
)

// PruneResult reports what Prune evicted.
type PruneResult struct {
	Tasks   int `json:"tasks"`
	History int `json:"history"`
}

// Prune applies the retention policy. Terminal tasks older than MaxAge or
// beyond the newest MaxTerminalTasks are evicted, and history is trimmed the
// same way using MaxAge and MaxHistory.
func (c *Coordinator) Prune(ctx context.Context) PruneResult {
	r := c.cfg.Retention
	if r.MaxAge == 0 && r.MaxTerminalTasks == 0 && r.MaxHistory == 0 {
		return PruneResult{}
	}

	now := c.cfg.Now().UTC()
	var cutoff time.Time
	if r.MaxAge > 0 {
		cutoff = now.Add(-r.MaxAge)
	}
	expired := func(ts *time.Time) bool {
		return !cutoff.IsZero() && ts != nil && ts.Before(cutoff)
	}

	c.mu.Lock()
	var res PruneResult

	// Tasks: walk newest first so the newest terminal tasks are kept.
	keep := make([]bool, len(c.order))
	terminalKept := 0
	for i := len(c.order) - 1; i >= 0; i-- {
		t := c.tasks[c.order[i]]
		if !t.Status.IsTerminal() {
			keep[i] = true
			continue
		}
		if expired(t.CompletedAt) || (r.MaxTerminalTasks > 0 && terminalKept >= r.MaxTerminalTasks) {
			continue
		}
		terminalKept++
		keep[i] = true
	}
	order := make([]string, 0, len(c.order))
	for i, id := range c.order {
		if keep[i] {
			order = append(order, id)
			continue
		}
		delete(c.tasks, id)
		res.Tasks++
	}
	c.order = order

	// History is append ordered.
	history := make([]models.HistoryRecord, 0, len(c.history))
	for _, h := range c.history {
		if expired(h.CompletedAt) {
			res.History++
			continue
		}
		history = append(history, h)
	}
	if r.MaxHistory > 0 && len(history) > r.MaxHistory {
		res.History += len(history) - r.MaxHistory
		history = history[len(history)-r.MaxHistory:]
	}
	c.history = history
	c.mu.Unlock()

	if res.Tasks > 0 || res.History > 0 {
		c.logger.WithCtxValues(ctx).Infof("retention evicted %d tasks and %d history records", res.Tasks, res.History)
	}

	return res
}

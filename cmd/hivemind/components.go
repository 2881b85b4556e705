package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fentz26/hivemind/internal/audit"
	"github.com/fentz26/hivemind/internal/config"
	"github.com/fentz26/hivemind/internal/coordinator"
	"github.com/fentz26/hivemind/internal/log"
	"github.com/fentz26/hivemind/internal/metrics"
	"github.com/fentz26/hivemind/internal/resource"
	"github.com/fentz26/hivemind/internal/store"
)

// components are the in-process parts shared by the daemon and the
// stdio MCP server.
type components struct {
	store    *store.Store
	sampler  *resource.Sampler
	coord    *coordinator.Coordinator
	registry *prometheus.Registry
}

// newSampler builds a /proc backed sampler from the resources section.
func newSampler(c config.ResourcesConfig, m resource.Recorder, l log.Logger) (*resource.Sampler, error) {
	provider, err := resource.NewProcProvider()
	if err != nil {
		return nil, err
	}

	return resource.NewSampler(resource.Config{
		Provider:       provider,
		Logger:         l,
		Metrics:        m,
		CPUWarning:     c.CPUWarning,
		CPUDanger:      c.CPUDanger,
		RAMWarning:     c.RAMWarning,
		RAMDanger:      c.RAMDanger,
		MaxAgents:      c.MaxAgents,
		WarningAgents:  c.WarningAgents,
		DangerAgents:   c.DangerAgents,
		SampleInterval: c.SampleInterval,
		SampleTimeout:  c.SampleTimeout,
	})
}

// newComponents opens the store, builds the sampler and coordinator and warm
// starts the coordinator history from the store.
func newComponents(ctx context.Context, c *config.Config, l log.Logger) (*components, error) {
	st, err := store.New(c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNewMetrics(registry)

	sampler, err := newSampler(c.Resources, m, l)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create sampler: %w", err)
	}

	coordCfg := coordinator.Config{
		Sampler: sampler,
		Auditor: audit.NewPDRWriter(st),
		Metrics: m,
		Logger:  l,
		Retention: coordinator.Retention{
			MaxTerminalTasks: c.Retention.MaxTerminalTasks,
			MaxHistory:       c.Retention.MaxHistory,
			MaxAge:           c.Retention.MaxAge,
		},
	}
	if c.History.Persist {
		coordCfg.HistorySink = st
	}

	coord, err := coordinator.New(coordCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	if c.History.WarmStartLimit > 0 {
		recs, err := st.ListHistory(ctx, c.History.WarmStartLimit)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("warm start: %w", err)
		}
		coord.RestoreHistory(recs)
		l.Infof("restored %d history records", len(recs))
	}

	return &components{
		store:    st,
		sampler:  sampler,
		coord:    coord,
		registry: registry,
	}, nil
}

func (c *components) Close() error {
	return c.store.Close()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/fentz26/hivemind/internal/controlplane"
	"github.com/fentz26/hivemind/internal/sweeper"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the hivemind daemon",
	Long:  `Starts the hivemind daemon which serves the HTTP API for task coordination and runs retention sweeps.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().String("listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().String("db", "", "Path to SQLite database (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}

	logger.Infof("starting hivemind daemon")

	rt, err := newComponents(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Infof("closing database connection")
		if err := rt.Close(); err != nil {
			logger.Errorf("database close error: %s", err)
		}
	}()

	srvCfg := controlplane.ServerConfig{
		Service: controlplane.NewService(rt.coord, rt.sampler, rt.store),
		Addr:    cfg.Listen,
		Version: Version,
		Logger:  logger,
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsPath = cfg.Metrics.Path
		srvCfg.Gatherer = rt.registry
	}
	server, err := controlplane.NewServer(srvCfg)
	if err != nil {
		return err
	}

	sweep, err := sweeper.New(sweeper.Config{
		Coordinator: rt.coord,
		History:     rt.store,
		Sampler:     rt.sampler,
		Logger:      logger,
		Interval:    cfg.Retention.SweepInterval,
		MaxAge:      cfg.Retention.MaxAge,
	})
	if err != nil {
		return err
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				logger.Infof("termination signal received, initiating graceful shutdown")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// HTTP API.
	{
		g.Add(
			func() error {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				logger.Infof("shutting down HTTP server")
				if err := server.Shutdown(ctx); err != nil {
					logger.Errorf("http server shutdown error: %s", err)
				}
			},
		)
	}

	// Retention sweeps.
	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		g.Add(
			func() error {
				return sweep.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	if err := g.Run(); err != nil {
		return err
	}

	logger.Infof("shutdown complete")
	return nil
}

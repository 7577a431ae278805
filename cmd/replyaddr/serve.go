package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/busybox42/replyaddr/internal/api"
	"github.com/busybox42/replyaddr/internal/logging"
)

func (c *cli) newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Run the HTTP API until SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if !cfg.API.Enabled {
				return errors.New("API is disabled in configuration ([api] enabled = false)")
			}

			logger, closeLog, err := logging.Initialize(logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cfg.Logging.Output,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer func() { _ = closeLog() }()

			rt, err := c.newRuntime(cmd, logger)
			if err != nil {
				return err
			}
			rt.registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			apiCfg := &api.Config{
				ListenAddr:   cfg.API.ListenAddr,
				APIKeyHashes: cfg.API.APIKeyHashes,
				RateLimit: api.RateLimitConfig{
					Enabled:           cfg.API.RateLimit.Enabled,
					RequestsPerSecond: cfg.API.RateLimit.RequestsPerSecond,
					Burst:             cfg.API.RateLimit.Burst,
					TrustedProxies:    cfg.API.RateLimit.TrustedProxies,
				},
				MetricsEnabled: cfg.Metrics.Enabled,
				MetricsPath:    cfg.Metrics.Path,
				Version:        version,
			}
			if listen != "" {
				apiCfg.ListenAddr = listen
			}

			server, err := api.NewServer(apiCfg, rt.service, logger, rt.metrics, rt.registry)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Start(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutdown requested")
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override [api] listen_addr")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wellbore/internal/adapters/dashboard"
	"wellbore/internal/audit"
	"wellbore/internal/blob"
	"wellbore/internal/config"
	"wellbore/internal/core"
	"wellbore/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard, its API and the export worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context(), nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// serve runs the HTTP server and export worker until ctx is cancelled or
// either fails. ready, when set, receives the bound address.
func (a *app) serve(ctx context.Context, ready func(net.Addr)) (err error) {
	cfg := a.cfg
	logger := a.logger

	routerOpts := server.RouterOptions{Logger: logger}
	var recorder core.MetricsRecorder
	switch cfg.Server.Metrics {
	case config.MetricsExpvar:
		recorder = core.NewExpvarMetricsRecorder("")
		routerOpts.Expvar = true
	default:
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return fmt.Errorf("register pipeline metrics: %w", err)
		}
		recorder = prom
		routerOpts.Gatherer = reg
		routerOpts.Registerer = reg
	}
	pipeline := core.NewPipeline(
		core.WithSeed(cfg.Dataset.Seed),
		core.WithMetricsRecorder(recorder),
		core.WithLogger(logger),
	)

	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	auditStore, err := audit.Open(ctx, cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer func() {
		if cerr := auditStore.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close audit log: %w", cerr))
		}
	}()

	worker := dashboard.NewWorker(pipeline, store, auditStore, dashboard.WorkerConfig{
		Workers:       cfg.Exports.Workers,
		QueueSize:     cfg.Exports.QueueSize,
		Retain:        cfg.Exports.Retain,
		PresignExpiry: cfg.Exports.PresignExpiry,
		Logger:        logger,
	})
	handler := &dashboard.Handler{
		Pipeline:       pipeline,
		Exports:        worker,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	}
	router, err := server.NewRouter(handler, routerOpts)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	logger.Info("starting wellbore",
		"addr", cfg.Server.Addr,
		"blob_driver", string(store.Driver()),
		"audit_driver", string(cfg.Audit.Driver),
		"metrics", cfg.Server.Metrics,
		"seed", cfg.Dataset.Seed,
	)

	worker.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, router, server.Options{
			Addr:              cfg.Server.Addr,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			ShutdownTimeout:   cfg.Server.ShutdownTimeout,
			Logger:            logger,
		}, ready)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := worker.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop export worker: %w", err)
		}
		logger.Info("export worker stopped")
		return nil
	})
	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hostconsole/internal/config"
	"github.com/dshills/hostconsole/internal/host"
	"github.com/dshills/hostconsole/internal/logging"
	"github.com/dshills/hostconsole/internal/plugin"
)

func newRunCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the Lua host and read console commands from stdin",
		Long: `Start the Lua host, attach the console and read commands from stdin.

Lines are executed as Lua. Lines starting with ':' are console commands;
type ':help' for the list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConsole(ctx, cfg, cmd)
		},
	}
}

func runConsole(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: logging.ParseFormat(cfg.Log.Format),
		Output: cmd.ErrOrStderr(),
		Name:   "hostconsole",
	})
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	p, err := plugin.New(cfg, plugin.WithLogger(logger), plugin.WithRegisterer(reg))
	if err != nil {
		return err
	}

	engine := host.New(
		host.WithLogger(logger.Named("host")),
		host.WithFrameInterval(cfg.Host.FrameInterval),
		host.WithStartPhase(cfg.Host.StartPhase))
	defer func() { _ = engine.Close() }()

	p.Attach(engine)
	if err := p.InstallBindings(engine); err != nil {
		return fmt.Errorf("install bindings: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	if err := p.Start(gctx); err != nil {
		return err
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, reg, logger)
		})
	}

	out := &syncWriter{w: cmd.OutOrStdout()}
	sh := newShell(p, engine, out)
	g.Go(func() error {
		defer cancel()
		return sh.run(gctx, cmd.InOrStdin())
	})

	err = g.Wait()
	if stopErr := p.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("serving metrics", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/comedyhour/internal/app"
	"github.com/MrWong99/comedyhour/internal/config"
	"github.com/MrWong99/comedyhour/internal/health"
	"github.com/MrWong99/comedyhour/internal/observe"
	"github.com/MrWong99/comedyhour/internal/web"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	listen       string
	secureCookie bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the show as a web page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, o)
		},
	}
	cmd.Flags().StringVarP(&o.listen, "listen", "l", "", "override server.listen_addr")
	cmd.Flags().BoolVar(&o.secureCookie, "secure-cookie", false, "mark the session cookie Secure (serve behind TLS)")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, o *serveOptions) error {
	cfg := root.cfg
	if o.listen != "" {
		cfg.Server.ListenAddr = o.listen
	}

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		SampleRatio:    cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	application, err := app.New(cfg, reg, app.WithMetrics(metrics), app.WithLevelVar(root.level))
	if err != nil {
		return err
	}

	var watcher *config.Watcher
	if root.configPath != "" {
		watcher, err = config.NewWatcher(root.configPath, application.Reload)
		if err != nil {
			return err
		}
		slog.Info("watching config for changes", "path", root.configPath)
	}

	handler := web.New(application.Sessions(), application.Presentation,
		web.WithHealth(health.New(health.FromHealthy("providers", application))),
		web.WithMetrics(metrics),
		web.WithMetricsHandler(promhttp.Handler()),
		web.WithSecureCookie(o.secureCookie),
	)
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(os.Stdout, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return application.Run(gctx)
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

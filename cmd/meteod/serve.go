package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/meteolab/meteod/internal/collector"
	"github.com/meteolab/meteod/internal/config"
	"github.com/meteolab/meteod/internal/geocode"
	"github.com/meteolab/meteod/internal/history"
	historyfactory "github.com/meteolab/meteod/internal/history/factory"
	"github.com/meteolab/meteod/internal/meteo"
	"github.com/meteolab/meteod/internal/metrics"
	"github.com/meteolab/meteod/internal/resolver"
	"github.com/meteolab/meteod/internal/scheduler"
	"github.com/meteolab/meteod/internal/server"
	"github.com/meteolab/meteod/internal/store"
	storefactory "github.com/meteolab/meteod/internal/store/factory"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

// startScheduler boots the collection task. A failed settings read is not
// fatal: the daemon keeps serving without a task and a later settings update
// or resume bootstraps one.
func startScheduler(ctx context.Context, sched *scheduler.Scheduler) {
	if err := sched.Start(ctx); err != nil {
		slog.Warn("Scheduler start failed, serving without a task", "error", err)
	}
}

func runServe(flags *ServeFlags) error {
	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	// Optional .env next to the working directory; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger, logCloser := cfg.Log.Setup("meteod")
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	st, err := storefactory.NewFromDSN(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	seed := store.DefaultSettings()
	seed.IntervalMinutes = cfg.Collect.IntervalMinutes
	ctx := context.Background()
	if err := st.EnsureSchema(ctx, seed); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	gateway := meteo.New(meteo.Config{
		ForecastBase:   cfg.Upstream.ForecastBase,
		AirQualityBase: cfg.Upstream.AirQualityBase,
		Timeout:        time.Duration(cfg.Collect.TimeoutSeconds) * time.Second,
	})
	geocoder := geocode.New(geocode.Config{
		GeocodingBase: cfg.Upstream.GeocodingBase,
		NominatimBase: cfg.Upstream.NominatimBase,
	})

	opts := []collector.Option{
		collector.WithTimeout(time.Duration(cfg.Collect.TimeoutSeconds) * time.Second),
		collector.WithRetention(cfg.Collect.RetentionDays),
	}
	if cfg.Export.DSN != "" {
		sink, err := historyfactory.NewSinkFromDSN(cfg.Export.DSN)
		if err != nil {
			return fmt.Errorf("open export sink: %w", err)
		}
		defer func() { _ = history.Shutdown(sink) }()
		opts = append(opts, collector.WithSink(sink))
		slog.Info("Measurement export enabled", "dsn", cfg.Export.DSN)
	}
	runner := collector.New(st, gateway, opts...)

	sched := scheduler.New(st, runner.Run)
	startScheduler(ctx, sched)

	if cfg.Server.Metrics {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			slog.Warn("Metrics registration failed", "error", err)
		}
	}

	srv := server.NewServer(cfg.Server.Listen, server.Config{
		Store:     st,
		Scheduler: sched,
		Resolver:  resolver.New(st, gateway),
		Geocoder:  geocoder,
		BasePath:  cfg.Server.BasePath,
		APIToken:  cfg.Server.APIToken,
		Metrics:   cfg.Server.Metrics,
	})
	slog.Info("meteod started", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down", "signal", sig.String())

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if flags.PidFile != "" {
		_ = removePidFile(flags.PidFile)
	}
	return nil
}

// Package main is the entry point for the jobwatch responder.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jobwatch/internal/bus/redisbus"
	"jobwatch/internal/config"
	"jobwatch/internal/logger"
	"jobwatch/internal/observability"
	"jobwatch/internal/responder"
	"jobwatch/internal/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: jobwatch.yaml in current directory)")
	flag.Parse()

	if err := run(*configPath, *migrateFlag); err != nil {
		fmt.Fprintf(os.Stderr, "responder: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New()
	if cfg.LogFile != "" {
		var closeLog func() error
		log, closeLog = logger.NewWithFile(cfg.LogFile, slog.LevelInfo)
		defer closeLog()
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	if migrate {
		log.Info("running database migrations")
		version, err := postgres.Migrate(store.DB())
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations completed", "version", version)
	}

	shutdownTracer, err := observability.InitTracer(ctx, "jobwatch-responder", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Observed on scrape only.
	meter := otel.Meter("jobwatch-responder")
	_, err = meter.Int64ObservableGauge("jobwatch.jobs",
		metric.WithDescription("Stored jobs by status"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			counts, err := store.CountByStatus(ctx)
			if err != nil {
				log.Warn("failed to count jobs", "error", err)
				return nil
			}
			for status, n := range counts {
				obs.Observe(n, metric.WithAttributes(attribute.String("status", string(status))))
			}
			return nil
		}),
	)
	if err != nil {
		log.Warn("failed to register job gauge", "error", err)
	}

	responderMetrics, err := observability.NewResponderMetrics(meter)
	if err != nil {
		return fmt.Errorf("init responder metrics: %w", err)
	}

	b, err := redisbus.Dial(cfg.RedisAddr, redisbus.WithPrefix(cfg.RedisPrefix), redisbus.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer b.Close()

	r := responder.New(b, store, responder.Options{
		PageSize: cfg.LogPageSize,
		Limiter:  responder.NewLimiter(cfg.RateLimit, cfg.RateLimitBurst),
		Metrics:  responderMetrics,
		Logger:   log,
	})

	srv := responder.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), r, metricsHandler)
	log.Info("jobwatch responder starting", "addr", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("responder stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/deusflow/aurore/internal/app"
	"github.com/deusflow/aurore/internal/config"
	"github.com/deusflow/aurore/internal/logger"
	"github.com/deusflow/aurore/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; CI passes real environment variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.New(logger.FromEnv()).Warn("failed to read .env", "err", err)
	}

	configPath := flag.String("config", "config.json", "path to the sites configuration (json or yaml)")
	vertical := flag.String("vertical", "", "vertical to publish (defaults to TARGET, VERTICAL or the CI job name)")
	metricsFile := flag.String("metrics-file", os.Getenv("METRICS_FILE"), "write run metrics as JSON to this file")
	flag.Parse()

	log := logger.New(logger.FromEnv()).With("run_id", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath, config.DetectVertical(*vertical))
	if err != nil {
		log.Error("invalid configuration", "err", err)
		return 1
	}
	log = log.With("vertical", cfg.Vertical)

	deps, cleanup, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err, "config_error", app.IsConfigError(err))
		return 1
	}
	defer cleanup()

	m := metrics.New(time.Now())
	deps.Metrics = m

	outcome, err := app.Run(ctx, cfg, deps)
	m.Finish(outcome.String(), err, time.Now())
	m.Log(log)
	if *metricsFile != "" {
		if werr := m.WriteFile(*metricsFile); werr != nil {
			log.Warn("failed to write metrics file", "path", *metricsFile, "err", werr)
		}
	}

	if err != nil {
		log.Error("run failed", "err", err)
		return 1
	}
	log.Info("run finished", "outcome", outcome.String())
	return 0
}

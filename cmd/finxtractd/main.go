// finxtractd watches inbox directories and runs the extraction pipeline over
// every PDF dropped into them.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finxtract/internal/async"
	"finxtract/internal/common"
	"finxtract/internal/document"
	"finxtract/internal/export"
	"finxtract/internal/ingest"
	"finxtract/internal/llm/openai"
	"finxtract/internal/pipeline"
	"finxtract/internal/rate"
	"finxtract/internal/repository"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Ingest.Roots) == 0 {
		logger.Error("INGEST_ROOTS env var is required (comma-separated directories)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive, err := openArchive(ctx, cfg.Archive, logger)
	if err != nil {
		logger.Error("failed to open run archive", "error", err)
		os.Exit(1)
	}
	if archive != nil {
		defer archive.Close()
		if err := archive.HealthCheck(ctx, 5*time.Second); err != nil {
			logger.Error("run archive health check failed", "error", err)
			os.Exit(1)
		}
		logger.Info("run archive healthy")
	}

	renderer := document.NewPDFRenderer(cfg.Engine.RenderParallelism, logger)
	inferencer := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	}, logger)
	limiter := rate.NewLimiter(cfg.Engine.RequestsPerMinute, time.Minute, nil)
	exporter := export.NewService(logger)
	proc := pipeline.NewProcessor(logger, cfg.Engine, renderer, inferencer, limiter, exporter, archive, cfg.Export.OutDir)

	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Ingest.Workers),
		async.WithQueueSize(256),
		async.WithProcessTimeout(cfg.Engine.RunDeadline+5*time.Minute),
	)

	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Ingest.Roots,
		InitialScan: true,
		Debounce:    cfg.Ingest.Debounce,
	}, logger)
	if err != nil {
		logger.Error("failed to start inbox watcher", "error", err)
		os.Exit(1)
	}
	logger.Info("watching inbox", "roots", strings.Join(cfg.Ingest.Roots, ","))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			queue.Shutdown(shutdownCtx)
			cancel()
			return
		case path, ok := <-events:
			if !ok {
				continue
			}
			_ = queue.Enqueue(ctx, async.Job{Path: path, SubmittedAt: time.Now()})
		case err, ok := <-watchErrs:
			if ok && err != nil {
				logger.Error("watcher error", "error", err)
			}
		}
	}
}

func openArchive(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (repository.RunArchive, error) {
	switch {
	case cfg.DSN == "":
		return nil, nil
	case strings.HasPrefix(cfg.DSN, "postgres://"), strings.HasPrefix(cfg.DSN, "postgresql://"):
		return repository.OpenPostgres(ctx, cfg, logger)
	default:
		return repository.OpenSQLite(cfg.DSN, logger)
	}
}

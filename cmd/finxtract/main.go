// finxtract runs the extraction engine over one or more PDF statements and
// writes the consolidated workbook next to a JSON run report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finxtract/internal/common"
	"finxtract/internal/document"
	"finxtract/internal/export"
	"finxtract/internal/llm/openai"
	"finxtract/internal/pipeline"
	"finxtract/internal/rate"
	"finxtract/internal/repository"
)

func main() {
	var (
		outDir     = flag.String("out", "", "output directory for workbooks (overrides EXPORT_OUT_DIR)")
		jsonReport = flag.Bool("report", false, "print the run report as JSON to stdout")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: finxtract [flags] <statement.pdf> [more.pdf ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Export.OutDir = *outDir
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
	}

	proc := buildProcessor(cfg, archive, logger)

	exitCode := 0
	for _, path := range flag.Args() {
		record, report, err := proc.ProcessFile(ctx, path)
		if err != nil {
			logger.Error("extraction failed", "path", path, "error", err)
			exitCode = 1
		}
		if report == nil {
			continue
		}
		if *jsonReport {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			populated := 0
			if record != nil {
				populated = len(record.Fields())
			}
			fmt.Printf("%s: state=%s pages=%d selected=%d fields=%d cost=$%.4f degraded=%t\n",
				path, report.State, report.PagesTotal, len(report.Selected),
				populated, report.CostSpentUSD, report.Degraded)
		}
	}
	os.Exit(exitCode)
}

func buildProcessor(cfg *common.Config, archive repository.RunArchive, logger *slog.Logger) *pipeline.Processor {
	renderer := document.NewPDFRenderer(cfg.Engine.RenderParallelism, logger)
	inferencer := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	}, logger)
	limiter := rate.NewLimiter(cfg.Engine.RequestsPerMinute, time.Minute, nil)
	exporter := export.NewService(logger)
	return pipeline.NewProcessor(logger, cfg.Engine, renderer, inferencer, limiter, exporter, archive, cfg.Export.OutDir)
}

// openArchive picks the backend by DSN shape. No DSN means no archiving,
// which is fine for one-off CLI runs.
func openArchive(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (repository.RunArchive, error) {
	switch {
	case cfg.DSN == "":
		return nil, nil
	case isPostgresDSN(cfg.DSN):
		return repository.OpenPostgres(ctx, cfg, logger)
	default:
		return repository.OpenSQLite(cfg.DSN, logger)
	}
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Package pipeline wires rendering, the extraction engine, export, and the
// run archive into a single per-document entry point. The engine and its
// budget controller are built fresh for every document; the rate limiter and
// the provider client are shared across runs because they guard provider
// quota, not run state.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finxtract/internal/budget"
	"finxtract/internal/classifier"
	"finxtract/internal/common"
	"finxtract/internal/consolidate"
	"finxtract/internal/document"
	"finxtract/internal/export"
	"finxtract/internal/inference"
	"finxtract/internal/llm"
	"finxtract/internal/orchestrator"
	"finxtract/internal/rate"
	"finxtract/internal/repository"
)

type Processor struct {
	logger     *slog.Logger
	cfg        common.EngineConfig
	renderer   document.Renderer
	inferencer llm.VisionInferencer
	limiter    *rate.Limiter
	exporter   *export.Service
	archive    repository.RunArchive
	exportDir  string
}

func NewProcessor(
	logger *slog.Logger,
	cfg common.EngineConfig,
	renderer document.Renderer,
	inferencer llm.VisionInferencer,
	limiter *rate.Limiter,
	exporter *export.Service,
	archive repository.RunArchive,
	exportDir string,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:     logger,
		cfg:        cfg,
		renderer:   renderer,
		inferencer: inferencer,
		limiter:    limiter,
		exporter:   exporter,
		archive:    archive,
		exportDir:  exportDir,
	}
}

// ProcessFile renders a document, runs the extraction engine over its pages,
// exports the workbook, and archives the run. The record and report are
// returned even when a later stage (export, archive) fails; those failures
// are logged and reflected in the error, never by discarding results.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*consolidate.Record, *orchestrator.RunReport, error) {
	start := time.Now()
	p.logger.Info("pipeline.process.start", "path", path)

	pages, err := p.renderer.Render(ctx, path)
	if err != nil {
		p.logger.Error("pipeline.render.failed", "path", path, "err", err)
		return nil, nil, err
	}
	p.logger.Debug("pipeline.render.done", "path", path, "pages", len(pages))

	bud := budget.NewController(p.cfg.BudgetUSD)
	infClient := inference.NewClient(inference.Config{
		MaxAttempts:     p.cfg.MaxAttempts,
		ClassifyTimeout: p.cfg.ClassifyTimeout,
		ExtractTimeout:  p.cfg.ExtractTimeout,
	}, p.inferencer, p.limiter, bud, p.logger)
	cls := classifier.NewClassifier(infClient, classifier.Config{
		MaxPages:      p.cfg.MaxPages,
		MinConfidence: p.cfg.MinConfidence,
	}, p.logger)
	engine := orchestrator.NewEngine(orchestrator.Config{
		MaxPages:    p.cfg.MaxPages,
		PoolSize:    p.cfg.PoolSize,
		RunDeadline: p.cfg.RunDeadline,
	}, cls, infClient, bud, nil, p.logger)

	record, report, err := engine.Process(ctx, pages)
	if err != nil {
		p.logger.Error("pipeline.engine.failed", "path", path, "err", err)
		if report != nil {
			p.archiveRun(ctx, path, record, report)
		}
		return record, report, err
	}
	report.DocumentPath = path

	var exportErr error
	if p.exporter != nil {
		outPath, err := p.exporter.WriteRecordXLSX(p.exportDir, record, report)
		if err != nil {
			p.logger.Error("pipeline.export.failed", "run_id", report.RunID, "err", err)
			exportErr = err
		} else {
			p.logger.Info("pipeline.export.done", "run_id", report.RunID, "path", outPath)
		}
	}

	p.archiveRun(ctx, path, record, report)

	p.logger.Info("pipeline.process.done",
		"run_id", report.RunID,
		"path", path,
		"state", report.State,
		"cost_usd", report.CostSpentUSD,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return record, report, exportErr
}

func (p *Processor) archiveRun(ctx context.Context, path string, record *consolidate.Record, report *orchestrator.RunReport) {
	if p.archive == nil || report == nil {
		return
	}
	row, err := buildRunRow(path, record, report)
	if err != nil {
		p.logger.Error("pipeline.archive.encode_failed", "run_id", report.RunID, "err", err)
		return
	}
	// Archive on a short independent deadline so a dead database cannot
	// hold a finished run hostage.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.archive.SaveRun(saveCtx, row); err != nil {
		p.logger.Error("pipeline.archive.failed", "run_id", report.RunID, "err", err)
		return
	}
	p.logger.Debug("pipeline.archive.done", "run_id", report.RunID)
}

func buildRunRow(path string, record *consolidate.Record, report *orchestrator.RunReport) (*repository.RunRow, error) {
	id, err := uuid.Parse(report.RunID)
	if err != nil {
		return nil, err
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	var recordJSON []byte
	if record != nil {
		if recordJSON, err = json.Marshal(record); err != nil {
			return nil, err
		}
	}
	return &repository.RunRow{
		ID:            id,
		DocumentPath:  path,
		State:         string(report.State),
		Degraded:      report.Degraded,
		LowConfidence: report.LowConfidence,
		PagesTotal:    report.PagesTotal,
		PagesSelected: len(report.Selected),
		CallCount:     report.CallCount,
		CostUSD:       report.CostSpentUSD,
		RecordJSON:    recordJSON,
		ReportJSON:    reportJSON,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}, nil
}

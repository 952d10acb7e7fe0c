// Package orchestrator drives one document run end to end: pooled
// classification, page selection, pooled extraction with sequential fallback,
// and consolidation of whatever terminal results exist.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"finxtract/constants"
	"finxtract/internal/budget"
	"finxtract/internal/classifier"
	"finxtract/internal/common"
	"finxtract/internal/consolidate"
	"finxtract/internal/document"
	"finxtract/internal/extract"
)

// Extractor is the extraction side of the inference client.
type Extractor interface {
	Extract(ctx context.Context, sel extract.SelectedPage) (extract.Result, error)
}

type Config struct {
	MaxPages    int
	PoolSize    int           // 0 = derive from page count
	RunDeadline time.Duration // 0 = none
}

// Engine owns the per-run state machine. Construct one per run alongside a
// fresh budget controller; nothing here is shared across runs.
type Engine struct {
	cfg        Config
	classifier *classifier.Classifier
	extractor  Extractor
	budget     *budget.Controller
	pool       *pool
	logger     *slog.Logger

	state constants.RunState

	// budgetStop flips once any call reports budget exhaustion; dispatch
	// stops but already-obtained results are kept.
	budgetStop atomic.Bool
}

func NewEngine(cfg Config, cls *classifier.Classifier, ext Extractor, bud *budget.Controller, spawner Spawner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		classifier: cls,
		extractor:  ext,
		budget:     bud,
		pool:       newPool(spawner, logger),
		logger:     logger,
		state:      constants.RunIdle,
	}
}

// State reports the engine's current run state.
func (e *Engine) State() constants.RunState { return e.state }

// Process runs the full pipeline over rendered pages and returns the
// canonical record with its diagnostic report. The error return carries only
// fatal conditions (empty input); partial runs return a record plus a report
// that says what is missing.
func (e *Engine) Process(ctx context.Context, pages []document.Page) (*consolidate.Record, *RunReport, error) {
	report := &RunReport{
		RunID:      uuid.New().String(),
		State:      constants.RunIdle,
		PagesTotal: len(pages),
		StartedAt:  time.Now().UTC(),
	}
	if len(pages) == 0 {
		report.State = constants.RunFailed
		return nil, report, fmt.Errorf("%w: document has no pages", common.ErrInvalidInput)
	}

	ctx = common.WithRunID(ctx, report.RunID)
	if e.cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RunDeadline)
		defer cancel()
	}
	log := e.logger.With("run_id", report.RunID)

	// Classifying
	e.transition(report, constants.RunClassifying)
	scores, classifyFailures := e.classifyAll(ctx, log, pages, report)
	report.FailedPages = append(report.FailedPages, classifyFailures...)

	// Selecting
	e.transition(report, constants.RunSelecting)
	selection := e.classifier.Select(pages, scores)
	// The classifier carries its own bound; clamp again so a misconfigured
	// classifier can never push more pages into extraction than the engine
	// was sized for.
	if e.cfg.MaxPages > 0 && len(selection.Pages) > e.cfg.MaxPages {
		selection.Pages = selection.Pages[:e.cfg.MaxPages]
	}
	report.recordSelection(selection)
	log.Info("run.selected",
		"pages", len(selection.Pages),
		"low_confidence", selection.LowConfidence,
	)

	// Extracting
	e.transition(report, constants.RunExtracting)
	results := e.extractAll(ctx, log, selection.Pages, report)

	// Consolidating
	e.transition(report, constants.RunConsolidating)
	record := consolidate.Consolidate(results, constants.MaxYearSlots)

	e.transition(report, constants.RunDone)
	report.CallCount = e.budget.Calls()
	report.CostSpentUSD = e.budget.Spent()
	report.FinishedAt = time.Now().UTC()
	log.Info("run.done",
		"years", record.Years,
		"calls", report.CallCount,
		"cost_usd", report.CostSpentUSD,
		"degraded", report.Degraded,
		"failed_pages", len(report.FailedPages),
		"skipped_pages", len(report.SkippedPages),
	)
	return record, report, nil
}

func (e *Engine) transition(report *RunReport, next constants.RunState) {
	e.state = next
	// The degraded branch is sticky in the report even after the run moves on.
	if next == constants.RunDegraded {
		report.Degraded = true
	}
	report.State = next
}

// classifyAll scores every page through the bounded pool, falling back to a
// strictly sequential sweep on a pool fault.
func (e *Engine) classifyAll(ctx context.Context, log *slog.Logger, pages []document.Page, report *RunReport) ([]extract.PageScore, []extract.PageFailure) {
	scores := make([]extract.PageScore, len(pages))
	done := make([]bool, len(pages))
	var (
		mu       sync.Mutex
		failures []extract.PageFailure
	)

	fn := func(ctx context.Context, i int) {
		score, failure, err := e.classifier.ClassifyPage(ctx, pages[i])
		if err != nil && errors.Is(err, common.ErrBudgetExhausted) {
			e.budgetStop.Store(true)
		}
		mu.Lock()
		scores[i] = score
		done[i] = true
		if failure != nil {
			failures = append(failures, *failure)
		}
		mu.Unlock()
	}

	workers := poolSizeFor(len(pages), e.cfg.PoolSize)
	err := e.pool.run(ctx, workers, len(pages), e.budgetStop.Load, fn)
	if err != nil {
		e.transition(report, constants.RunDegraded)
		log.Warn("run.degraded", "phase", "classifying", "error", err)
	}

	// Sequential fallback (degraded) plus catch-up for pages the pool never
	// dispatched before the deadline or budget stop. Every page must leave
	// with a score.
	for i := range pages {
		if done[i] {
			continue
		}
		if ctx.Err() != nil || e.budgetStop.Load() {
			scores[i] = extract.ZeroScore(pages[i].Index)
			continue
		}
		fn(ctx, i)
	}

	sort.Slice(failures, func(a, b int) bool { return failures[a].PageIndex < failures[b].PageIndex })
	return scores, failures
}

// extractAll runs extraction over the selected pages, publishing results
// keyed by page index. One result per selected page, always: success,
// terminal failure, or an explicit skip entry in the report.
func (e *Engine) extractAll(ctx context.Context, log *slog.Logger, selected []extract.SelectedPage, report *RunReport) []extract.Result {
	results := make([]extract.Result, len(selected))
	done := make([]bool, len(selected))
	var mu sync.Mutex

	fn := func(ctx context.Context, i int) {
		res, err := e.extractor.Extract(ctx, selected[i])
		if err != nil {
			// Run-level condition: the page never really ran. Leave it
			// undone so it lands in the skip accounting below.
			if errors.Is(err, common.ErrBudgetExhausted) {
				e.budgetStop.Store(true)
			}
			return
		}
		mu.Lock()
		results[i] = res
		done[i] = true
		mu.Unlock()
	}

	workers := poolSizeFor(len(selected), e.cfg.PoolSize)
	err := e.pool.run(ctx, workers, len(selected), e.budgetStop.Load, fn)
	if err != nil {
		e.transition(report, constants.RunDegraded)
		log.Warn("run.degraded", "phase", "extracting", "error", err)
		for i := range selected {
			if done[i] || ctx.Err() != nil || e.budgetStop.Load() {
				continue
			}
			fn(ctx, i)
		}
	}

	// Account for everything that never ran: budget stops and run-deadline
	// expiry both leave a tail of undispatched pages.
	terminal := make([]extract.Result, 0, len(selected))
	for i, sp := range selected {
		if done[i] {
			terminal = append(terminal, results[i])
			if !results[i].Success && results[i].Err != "" && !isSkipReason(results[i].Err) {
				report.FailedPages = append(report.FailedPages, extract.PageFailure{
					PageIndex: sp.Page.Index,
					Reason:    results[i].Err,
				})
			}
			continue
		}
		reason := constants.SkipReasonDeadline
		if e.budgetStop.Load() {
			reason = constants.SkipReasonBudget
		}
		report.SkippedPages = append(report.SkippedPages, extract.PageFailure{
			PageIndex: sp.Page.Index,
			Reason:    reason,
		})
	}
	sort.Slice(report.FailedPages, func(a, b int) bool {
		return report.FailedPages[a].PageIndex < report.FailedPages[b].PageIndex
	})
	return terminal
}

func isSkipReason(reason string) bool {
	return reason == constants.SkipReasonBudget || reason == constants.SkipReasonDeadline
}

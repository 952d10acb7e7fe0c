// Package inference wraps the vision provider with the admission, spend, and
// retry discipline every outbound call must follow: reserve budget, take a
// rate slot, call with a bounded deadline, classify the failure, back off.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finxtract/constants"
	"finxtract/internal/budget"
	"finxtract/internal/common"
	"finxtract/internal/document"
	"finxtract/internal/extract"
	"finxtract/internal/llm"
	"finxtract/internal/rate"
)

// Config holds per-call limits and cost accounting rates.
type Config struct {
	MaxAttempts     int
	ClassifyTimeout time.Duration // classification prompts are small
	ExtractTimeout  time.Duration // extraction attaches the full page image
	BackoffBase     time.Duration
	BackoffCap      time.Duration

	// Pre-call estimates, used for Reserve and as the fallback when the
	// provider reports no usage.
	EstClassifyCostUSD float64
	EstExtractCostUSD  float64
	// Token prices per 1K, for settling actual spend from reported usage.
	PromptTokenUSDPer1K     float64
	CompletionTokenUSDPer1K float64
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 25 * time.Second
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 75 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 8 * time.Second
	}
	if c.EstClassifyCostUSD <= 0 {
		c.EstClassifyCostUSD = 0.004
	}
	if c.EstExtractCostUSD <= 0 {
		c.EstExtractCostUSD = 0.02
	}
	if c.PromptTokenUSDPer1K <= 0 {
		c.PromptTokenUSDPer1K = 0.00015
	}
	if c.CompletionTokenUSDPer1K <= 0 {
		c.CompletionTokenUSDPer1K = 0.0006
	}
}

// Client issues classification and extraction calls for single pages.
// Safe for concurrent use by pool workers.
type Client struct {
	cfg        Config
	inferencer llm.VisionInferencer
	limiter    *rate.Limiter
	budget     *budget.Controller
	logger     *slog.Logger

	mu        sync.Mutex
	malformed map[string]int // op:pageIndex -> malformed responses seen
}

func NewClient(cfg Config, inf llm.VisionInferencer, limiter *rate.Limiter, bud *budget.Controller, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		inferencer: inf,
		limiter:    limiter,
		budget:     bud,
		logger:     logger,
		malformed:  make(map[string]int),
	}
}

// Classify scores one page against the fixed statement-type label set.
// The returned error is run-level (budget exhausted, cancellation) or the
// page's terminal failure; callers decide whether to zero-score it.
func (c *Client) Classify(ctx context.Context, page document.Page) (extract.PageScore, error) {
	req := llm.InferRequest{
		System:    llm.BuildClassificationSystemPrompt(),
		User:      llm.BuildClassificationUserPrompt(page.Index, page.Hint),
		Image:     page.Image,
		ImageMIME: page.MIME,
		Schema:    llm.BuildClassificationJSONSchema(),
		MaxTokens: 200,
	}
	var score extract.PageScore
	err := c.callWithRetry(ctx, "classify", page.Index, req, c.cfg.ClassifyTimeout, c.cfg.EstClassifyCostUSD,
		func(content []byte) error {
			s, err := decodeClassification(page.Index, content)
			if err != nil {
				return err
			}
			score = s
			return nil
		})
	if err != nil {
		return extract.PageScore{}, err
	}
	return score, nil
}

// Extract pulls template values off one selected page. Terminal per-page
// failures come back inside the Result with Success=false; the error return
// carries only run-level conditions the orchestrator must react to.
func (c *Client) Extract(ctx context.Context, sel extract.SelectedPage) (extract.Result, error) {
	req := llm.InferRequest{
		System:    llm.BuildExtractionSystemPrompt(),
		User:      llm.BuildExtractionUserPrompt(sel.Page.Index, likelyTypes(sel.Score)),
		Image:     sel.Page.Image,
		ImageMIME: sel.Page.MIME,
		Schema:    llm.BuildExtractionJSONSchema(),
	}
	var result extract.Result
	err := c.callWithRetry(ctx, "extract", sel.Page.Index, req, c.cfg.ExtractTimeout, c.cfg.EstExtractCostUSD,
		func(content []byte) error {
			r, dropped, err := decodeExtraction(sel.Page.Index, content)
			if err != nil {
				return err
			}
			if len(dropped) > 0 {
				c.logger.Warn("extract.page.sanitized", "page", sel.Page.Index, "dropped", dropped)
			}
			result = r
			return nil
		})
	if err != nil {
		if isRunLevel(ctx, err) {
			return extract.Failed(sel.Page.Index, err), err
		}
		return extract.Failed(sel.Page.Index, err), nil
	}
	return result, nil
}

// callWithRetry runs the reserve → admit → call → decode loop with capped
// exponential backoff. decode must consume the content or return an error
// that counts as a malformed response.
func (c *Client) callWithRetry(ctx context.Context, op string, pageIndex int, req llm.InferRequest, timeout time.Duration, estCost float64, decode func([]byte) error) error {
	log := c.logger
	if rid := common.RunIDFromContext(ctx); rid != "" {
		log = log.With("run_id", rid)
	}
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Budget first: a denied reservation is terminal, never retried,
		// so retry storms cannot silently burn the remaining budget.
		allowed, reason := c.budget.Reserve(estCost)
		if !allowed {
			log.Warn("inference.budget_denied", "op", op, "page", pageIndex, "reason", reason)
			return fmt.Errorf("%w: %s", common.ErrBudgetExhausted, reason)
		}

		if err := c.limiter.Admit(ctx); err != nil {
			c.budget.Release(estCost)
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.inferencer.Infer(callCtx, req)
		cancel()

		if err != nil {
			// The provider was reached (or timed out trying); the attempt
			// consumed inference cost either way.
			c.budget.Commit(estCost, estCost)
			lastErr = err
			switch classifyFailure(err) {
			case failTerminal:
				log.Error("inference.terminal", "op", op, "page", pageIndex, "attempt", attempt, "error", err)
				return fmt.Errorf("%s page %d: %w", op, pageIndex, err)
			default:
				log.Warn("inference.transient", "op", op, "page", pageIndex, "attempt", attempt, "error", err)
			}
		} else {
			c.budget.Commit(estCost, c.actualCost(resp, estCost))
			if decodeErr := decode(resp.Content); decodeErr != nil {
				lastErr = decodeErr
				// Tolerate one malformed response per page and operation;
				// the second is terminal.
				if c.malformedCount(op, pageIndex) >= 1 {
					log.Error("inference.malformed_twice", "op", op, "page", pageIndex, "error", decodeErr)
					return fmt.Errorf("%s page %d: %w: %v", op, pageIndex, common.ErrMalformedResponse, decodeErr)
				}
				c.recordMalformed(op, pageIndex)
				log.Warn("inference.malformed_once", "op", op, "page", pageIndex, "attempt", attempt, "error", decodeErr)
			} else {
				return nil
			}
		}

		if attempt < c.cfg.MaxAttempts {
			if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%s page %d: attempts exhausted: %w", op, pageIndex, lastErr)
}

// backoff computes the capped exponential delay for the given attempt count.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.BackoffCap {
			return c.cfg.BackoffCap
		}
	}
	if d > c.cfg.BackoffCap {
		d = c.cfg.BackoffCap
	}
	return d
}

func (c *Client) actualCost(resp *llm.InferResponse, fallback float64) float64 {
	if resp.PromptTokens == 0 && resp.CompletionTokens == 0 {
		return fallback
	}
	return float64(resp.PromptTokens)/1000*c.cfg.PromptTokenUSDPer1K +
		float64(resp.CompletionTokens)/1000*c.cfg.CompletionTokenUSDPer1K
}

func (c *Client) malformedCount(op string, pageIndex int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.malformed[fmt.Sprintf("%s:%d", op, pageIndex)]
}

func (c *Client) recordMalformed(op string, pageIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.malformed[fmt.Sprintf("%s:%d", op, pageIndex)]++
}

// isRunLevel reports whether err must stop the whole run's dispatching
// rather than just this page. A deadline or cancellation counts only when
// the run context itself is done; a per-call timeout that exhausted its
// attempts is this page's failure, not the run's.
func isRunLevel(ctx context.Context, err error) bool {
	if errors.Is(err, common.ErrBudgetExhausted) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err() != nil
	}
	return false
}

func likelyTypes(score extract.PageScore) []constants.StatementType {
	var out []constants.StatementType
	for _, st := range constants.StatementTypes() {
		if score.Scores[st] >= 0.5 {
			out = append(out, st)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package classifier ranks document pages by likelihood of carrying target
// financial statements and picks the bounded extraction batch.
package classifier

import (
	"context"
	"log/slog"

	"finxtract/internal/document"
	"finxtract/internal/extract"
)

// Scorer is the classification side of the inference client.
type Scorer interface {
	Classify(ctx context.Context, page document.Page) (extract.PageScore, error)
}

type Config struct {
	MaxPages      int     // hard bound on the selection size
	MinConfidence float64 // aggregate threshold a page must clear
}

type Classifier struct {
	scorer Scorer
	cfg    Config
	logger *slog.Logger
}

func NewClassifier(scorer Scorer, cfg Config, logger *slog.Logger) *Classifier {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{scorer: scorer, cfg: cfg, logger: logger}
}

// ClassifyPage scores one page. A terminal classification failure zeroes the
// page's score instead of failing: one bad call must never drop a page from
// ranking or abort the remaining pages. The failure is reported for run
// diagnostics; the raw error rides along so the orchestrator can recognize
// run-level conditions (budget exhaustion, cancellation).
func (c *Classifier) ClassifyPage(ctx context.Context, page document.Page) (extract.PageScore, *extract.PageFailure, error) {
	score, err := c.scorer.Classify(ctx, page)
	if err != nil {
		c.logger.Warn("classify.page.failed", "page", page.Index, "error", err)
		return extract.ZeroScore(page.Index), &extract.PageFailure{PageIndex: page.Index, Reason: err.Error()}, err
	}
	c.logger.Debug("classify.page.ok", "page", page.Index, "aggregate", score.Aggregate())
	return score, nil, nil
}

// Select builds the ordered extraction batch from the full score list:
// descending aggregate score, page index as tie-break, truncated to
// MaxPages. When no page clears the threshold the first page is selected
// alone, flagged low-confidence, so a non-empty document never produces an
// empty selection.
func (c *Classifier) Select(pages []document.Page, scores []extract.PageScore) extract.Selection {
	byIndex := make(map[int]extract.PageScore, len(scores))
	for _, s := range scores {
		byIndex[s.PageIndex] = s
	}

	candidates := make([]extract.SelectedPage, 0, len(pages))
	for _, p := range pages {
		score, ok := byIndex[p.Index]
		if !ok {
			score = extract.ZeroScore(p.Index)
		}
		if score.Aggregate() >= c.cfg.MinConfidence {
			candidates = append(candidates, extract.SelectedPage{Page: p, Score: score})
		}
	}

	if len(candidates) == 0 {
		if len(pages) == 0 {
			return extract.Selection{}
		}
		first := pages[0]
		score, ok := byIndex[first.Index]
		if !ok {
			score = extract.ZeroScore(first.Index)
		}
		c.logger.Warn("classify.no_pages_over_threshold", "threshold", c.cfg.MinConfidence)
		return extract.Selection{
			Pages:         []extract.SelectedPage{{Page: first, Score: score}},
			LowConfidence: true,
		}
	}

	extract.SortPages(candidates)
	if len(candidates) > c.cfg.MaxPages {
		candidates = candidates[:c.cfg.MaxPages]
	}
	c.logger.Info("classify.selection", "candidates", len(candidates), "max_pages", c.cfg.MaxPages)
	return extract.Selection{Pages: candidates}
}

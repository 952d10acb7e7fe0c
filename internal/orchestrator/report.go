package orchestrator

import (
	"time"

	"finxtract/constants"
	"finxtract/internal/extract"
)

// SelectedPageInfo is one selected page's entry in run diagnostics.
type SelectedPageInfo struct {
	PageIndex int                                 `json:"page_index"`
	Aggregate float64                             `json:"aggregate"`
	Scores    map[constants.StatementType]float64 `json:"scores"`
}

// RunReport is the diagnostic envelope accompanying every run result. The
// caller always learns which pages failed or were skipped; a record must
// never look complete while silently omitting pages.
type RunReport struct {
	RunID         string                `json:"run_id"`
	DocumentPath  string                `json:"document_path,omitempty"`
	State         constants.RunState    `json:"state"`
	PagesTotal    int                   `json:"pages_total"`
	Selected      []SelectedPageInfo    `json:"selected"`
	LowConfidence bool                  `json:"low_confidence"`
	Degraded      bool                  `json:"degraded"`
	FailedPages   []extract.PageFailure `json:"failed_pages,omitempty"`
	SkippedPages  []extract.PageFailure `json:"skipped_pages,omitempty"`
	CallCount     int                   `json:"call_count"`
	CostSpentUSD  float64               `json:"cost_spent_usd"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
}

func (r *RunReport) recordSelection(sel extract.Selection) {
	r.LowConfidence = sel.LowConfidence
	r.Selected = make([]SelectedPageInfo, 0, len(sel.Pages))
	for _, sp := range sel.Pages {
		r.Selected = append(r.Selected, SelectedPageInfo{
			PageIndex: sp.Page.Index,
			Aggregate: sp.Score.Aggregate(),
			Scores:    sp.Score.Scores,
		})
	}
}

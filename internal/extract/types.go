package extract

import (
	"sort"

	"finxtract/constants"
	"finxtract/internal/document"
)

// PageScore is the per-page classification outcome. Every label in the fixed
// statement-type set has an entry; a failed classification call scores 0 so
// the page is never silently dropped from ranking.
type PageScore struct {
	PageIndex int
	Scores    map[constants.StatementType]float64
	Failed    bool // classification call failed after retries; scores are zeroed
}

// Aggregate is the financial-likelihood of the page: the maximum statement
// score. A page that is clearly one statement type should outrank a page
// that is vaguely several.
func (s PageScore) Aggregate() float64 {
	max := 0.0
	for _, v := range s.Scores {
		if v > max {
			max = v
		}
	}
	return max
}

// ZeroScore builds the score a page receives when its classification call
// fails terminally.
func ZeroScore(pageIndex int) PageScore {
	scores := make(map[constants.StatementType]float64, len(constants.StatementTypes()))
	for _, st := range constants.StatementTypes() {
		scores[st] = 0
	}
	return PageScore{PageIndex: pageIndex, Scores: scores, Failed: true}
}

// SelectedPage is a page included in the extraction batch, with the score
// that earned it the slot.
type SelectedPage struct {
	Page  document.Page
	Score PageScore
}

// Selection is the ordered extraction batch: descending aggregate score,
// ties broken by ascending page index.
type Selection struct {
	Pages         []SelectedPage
	LowConfidence bool // no page cleared the threshold; page 0 fallback applied
}

// SortPages orders pages by descending aggregate score with the page index
// as a stable, deterministic tie-break.
func SortPages(pages []SelectedPage) {
	sort.SliceStable(pages, func(i, j int) bool {
		ai, aj := pages[i].Score.Aggregate(), pages[j].Score.Aggregate()
		if ai != aj {
			return ai > aj
		}
		return pages[i].Page.Index < pages[j].Page.Index
	})
}

// FieldValue is one template field as reported by a single page: the value
// per fiscal year, the page's reported year order, and the model confidence.
type FieldValue struct {
	Years      []int          // ordered as the page reports them
	Values     map[int]string // year -> reported value (verbatim)
	Confidence float64
}

// Result is the terminal outcome of extracting one selected page. Created
// once per extraction attempt that terminates (success or exhausted retries)
// and never mutated afterwards; consolidation only reads.
type Result struct {
	PageIndex int
	Success   bool
	Years     []int // fiscal years the page reports, as reported
	Fields    map[constants.TemplateField]FieldValue
	Err       string // populated when Success is false
}

// PageFailure records one page whose call failed terminally, for run
// diagnostics. Reason is either the terminal error or one of the skip
// reasons in constants.
type PageFailure struct {
	PageIndex int
	Reason    string
}

// Failed builds the Result recorded for a page whose extraction failed
// terminally.
func Failed(pageIndex int, err error) Result {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Result{PageIndex: pageIndex, Success: false, Err: msg}
}

// Package consolidate merges per-page extraction results into one canonical
// record. The merge is a pure function of its input: deterministic under any
// permutation of the result list, and idempotent.
package consolidate

import (
	"sort"

	"finxtract/constants"
	"finxtract/internal/extract"
)

// Consolidate builds the canonical record from terminal extraction results.
// Failed results contribute nothing; years appearing on several pages appear
// exactly once; conflicting values for the same field/year resolve to the
// higher confidence, then to the lower page index.
func Consolidate(results []extract.Result, maxSlots int) *Record {
	if maxSlots <= 0 || maxSlots > constants.MaxYearSlots {
		maxSlots = constants.MaxYearSlots
	}

	// Work on a sorted copy so the outcome cannot depend on worker
	// completion order.
	ok := make([]extract.Result, 0, len(results))
	for _, r := range results {
		if r.Success {
			ok = append(ok, r)
		}
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].PageIndex < ok[j].PageIndex })

	reported := make([][]int, 0, len(ok))
	for _, r := range ok {
		reported = append(reported, r.Years)
	}
	years := BuildYearSet(reported, maxSlots)

	rec := &Record{
		Years: years.Years(),
		Cells: make(map[constants.TemplateField]map[int]Cell),
	}

	for _, f := range constants.Template() {
		for _, year := range years.Years() {
			winner, found := pickValue(ok, f, year)
			if !found {
				continue
			}
			slot := years.Slot(year)
			if rec.Cells[f] == nil {
				rec.Cells[f] = make(map[int]Cell, years.Len())
			}
			rec.Cells[f][slot] = winner
		}
	}
	return rec
}

// pickValue resolves which page's value populates a field/year pair.
// Results are already ordered by ascending page index, so a strict
// confidence comparison makes the earliest page win ties.
func pickValue(ordered []extract.Result, f constants.TemplateField, year int) (Cell, bool) {
	var best Cell
	found := false
	for _, r := range ordered {
		fv, ok := r.Fields[f]
		if !ok {
			continue
		}
		v, ok := fv.Values[year]
		if !ok {
			continue
		}
		if !found || fv.Confidence > best.Confidence {
			best = Cell{Value: v, Year: year, PageIndex: r.PageIndex, Confidence: fv.Confidence}
			found = true
		}
	}
	return best, found
}

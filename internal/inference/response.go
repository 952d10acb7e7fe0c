package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"finxtract/constants"
	"finxtract/internal/extract"
	"finxtract/internal/llm"
)

// failureKind is the tagged classification of a failed attempt. Downstream
// code never sees raw provider payloads or untyped errors; everything is
// decided here at the client boundary.
type failureKind int

const (
	failTransient failureKind = iota // timeout, throttle, 5xx, network
	failMalformed                    // 2xx but undecodable/invalid content
	failTerminal                     // 4xx request defect, budget, cancellation
)

// classifyFailure maps a transport error onto the retry taxonomy.
func classifyFailure(err error) failureKind {
	var se *llm.StatusError
	if errors.As(err, &se) {
		if se.Retryable() {
			return failTransient
		}
		return failTerminal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// Per-call deadline expiry cancels only that call.
		return failTransient
	}
	if errors.Is(err, context.Canceled) {
		return failTerminal
	}
	return failTransient
}

// decodeClassification parses and validates a classification payload into a
// fully-populated PageScore.
func decodeClassification(pageIndex int, content []byte) (extract.PageScore, error) {
	if err := llm.ValidateJSONAgainstSchema(llm.BuildClassificationJSONSchema(), content); err != nil {
		return extract.PageScore{}, fmt.Errorf("classification schema: %w", err)
	}
	var m map[string]float64
	if err := json.Unmarshal(content, &m); err != nil {
		return extract.PageScore{}, fmt.Errorf("classification decode: %w", err)
	}
	scores := make(map[constants.StatementType]float64, len(constants.StatementTypes()))
	for _, st := range constants.StatementTypes() {
		scores[st] = m[string(st)] // schema guarantees presence and [0,1]
	}
	return extract.PageScore{PageIndex: pageIndex, Scores: scores}, nil
}

// extractionPayload mirrors the extraction JSON schema.
type extractionPayload struct {
	Years  []int `json:"years"`
	Fields []struct {
		Category    string            `json:"category"`
		Subcategory string            `json:"subcategory"`
		Field       string            `json:"field"`
		Values      map[string]string `json:"values"`
		Confidence  float64           `json:"confidence"`
	} `json:"fields"`
}

// decodeExtraction sanitizes, validates, and parses an extraction payload.
// Field entries outside the template and values for years the page does not
// report are dropped rather than failing the page.
func decodeExtraction(pageIndex int, content []byte) (extract.Result, []string, error) {
	cleaned, dropped, err := llm.NormalizeExtractionJSON(content, nil)
	if err != nil {
		return extract.Result{}, nil, fmt.Errorf("extraction sanitize: %w", err)
	}
	if err := llm.ValidateJSONAgainstSchema(llm.BuildExtractionJSONSchema(), cleaned); err != nil {
		return extract.Result{}, dropped, fmt.Errorf("extraction schema: %w", err)
	}
	var p extractionPayload
	if err := json.Unmarshal(cleaned, &p); err != nil {
		return extract.Result{}, dropped, fmt.Errorf("extraction decode: %w", err)
	}

	years := dedupeYears(p.Years)
	yearSet := make(map[int]struct{}, len(years))
	for _, y := range years {
		yearSet[y] = struct{}{}
	}

	fields := make(map[constants.TemplateField]extract.FieldValue, len(p.Fields))
	for _, f := range p.Fields {
		key := constants.TemplateField{Category: f.Category, Subcategory: f.Subcategory, Field: f.Field}
		if !constants.IsTemplateField(key) {
			dropped = append(dropped, "off-template:"+f.Category+"/"+f.Field)
			continue
		}
		values := make(map[int]string, len(f.Values))
		for ys, v := range f.Values {
			y := atoiOrZero(ys)
			if _, ok := yearSet[y]; !ok || v == "" {
				dropped = append(dropped, fmt.Sprintf("unreported-year:%s/%s", f.Field, ys))
				continue
			}
			values[y] = v
		}
		if len(values) == 0 {
			continue
		}
		fv := extract.FieldValue{
			Values:     values,
			Confidence: f.Confidence,
		}
		for _, y := range years {
			if _, ok := values[y]; ok {
				fv.Years = append(fv.Years, y)
			}
		}
		// Later duplicate entries for the same triple do not overwrite
		// earlier ones; first mention wins within a page.
		if _, exists := fields[key]; !exists {
			fields[key] = fv
		}
	}

	return extract.Result{
		PageIndex: pageIndex,
		Success:   true,
		Years:     years,
		Fields:    fields,
	}, dropped, nil
}

// dedupeYears keeps the page's reported order while dropping repeats and
// implausible entries.
func dedupeYears(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, y := range in {
		if y < 1900 || y > 2100 {
			continue
		}
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	// Pages print most-recent-first; enforce it so consolidation does not
	// depend on model ordering quirks.
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

package llm

import (
	"fmt"
	"strings"

	"finxtract/constants"
)

// BuildClassificationSystemPrompt composes the system message for the cheap
// per-page scoring call.
func BuildClassificationSystemPrompt() string {
	parts := []string{
		"You are a financial document page classifier. You receive one scanned page image from an annual report or financial filing.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"For each statement type, report your confidence in [0,1] that this page contains that statement's primary table:",
		strings.Join(constants.StatementTypeStrings(), ", ") + ".",
		"Narrative text, audit opinions, notes, and appendices score near 0 on every label.",
		"A page showing the actual tabulated statement scores high only on its own label.",
		"Never output null. Every label must be present.",
	}
	return strings.Join(parts, " ")
}

// BuildClassificationUserPrompt names the page so the model's answer can be
// traced in transcripts; the image rides along as a separate content part.
func BuildClassificationUserPrompt(pageIndex int, hint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page index: %d\n", pageIndex)
	if h := strings.TrimSpace(hint); h != "" {
		b.WriteString("Unreliable text hint (may be garbage, do not trust):\n")
		if len(h) > 500 {
			h = h[:500]
		}
		b.WriteString(h)
		b.WriteString("\n")
	}
	b.WriteString("Score this page.")
	return b.String()
}

// BuildExtractionSystemPrompt composes the system message for the detailed
// extraction call, embedding the template the values must map onto.
func BuildExtractionSystemPrompt() string {
	var lines []string
	for _, f := range constants.Template() {
		lines = append(lines, f.Category+" | "+f.Subcategory+" | "+f.Field)
	}
	parts := []string{
		"You are a financial statement extractor. You receive one scanned statement page from an annual report.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"List every fiscal year whose column appears on the page under 'years', most recent first.",
		"For each template line you can read off the page, emit one entry under 'fields' using EXACTLY the category, subcategory and field spelling from this template:",
		strings.Join(lines, " ; "),
		"Report values verbatim as strings, keeping signs and thousand separators as printed; use a leading '-' for bracketed negatives.",
		"Keys of 'values' are four-digit years.",
		"Omit template lines the page does not show. Never invent values. Never output null.",
		"Include a 'confidence' in [0,1] per entry reflecting how legible the figures were.",
	}
	return strings.Join(parts, " ")
}

// BuildExtractionUserPrompt carries page identity plus the statement types
// the classifier believes are on the page, which narrows the model's search.
func BuildExtractionUserPrompt(pageIndex int, likely []constants.StatementType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page index: %d\n", pageIndex)
	if len(likely) > 0 {
		labels := make([]string, len(likely))
		for i, st := range likely {
			labels[i] = string(st)
		}
		b.WriteString("Classifier suggests this page holds: " + strings.Join(labels, ", ") + "\n")
	}
	b.WriteString("Extract all template values visible on this page.")
	return b.String()
}

package llm

import "finxtract/constants"

// BuildClassificationJSONSchema returns a JSON-Schema (draft 2020-12 subset)
// for the per-page classification response. Every statement-type label is
// required so a page can never come back partially scored.
func BuildClassificationJSONSchema() map[string]any {
	props := map[string]any{}
	required := make([]string, 0, len(constants.StatementTypes()))
	for _, st := range constants.StatementTypes() {
		props[string(st)] = confidenceProp()
		required = append(required, string(st))
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// BuildExtractionJSONSchema returns the schema for the per-page extraction
// response: the fiscal years the page reports plus one entry per template
// field the page can read, with a value per year.
func BuildExtractionJSONSchema() map[string]any {
	fieldEntry := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"category":    map[string]any{"type": "string", "minLength": 1},
			"subcategory": map[string]any{"type": "string", "minLength": 1},
			"field":       map[string]any{"type": "string", "minLength": 1},
			"values": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{"type": "string"},
				"propertyNames":        map[string]any{"pattern": `^\d{4}$`},
			},
			"confidence": confidenceProp(),
		},
		"required": []string{"category", "subcategory", "field", "values"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"years": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "integer", "minimum": 1900, "maximum": 2100},
			},
			"fields": map[string]any{
				"type":  "array",
				"items": fieldEntry,
			},
		},
		"required": []string{"years", "fields"},
	}
}

func confidenceProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}
}

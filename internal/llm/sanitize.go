package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// NormalizeExtractionJSON
// - Renames known synonyms (year_labels -> years, items -> fields)
// - Drops null entries and entries with no values
// - Coerces numeric values and year keys to the string forms the schema wants
// - Clamps confidence into [0,1]
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeExtractionJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to our schema
	renamed("year_labels", "years")
	renamed("fiscal_years", "years")
	renamed("items", "fields")
	renamed("line_items", "fields")

	// 2) years: coerce "2023" -> 2023, drop anything unparseable
	if ys, ok := m["years"].([]any); ok {
		clean := make([]any, 0, len(ys))
		for _, y := range ys {
			switch t := y.(type) {
			case float64:
				clean = append(clean, int(t))
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
					clean = append(clean, n)
				} else {
					dropped = append(dropped, "years:"+t)
				}
			default:
				dropped = append(dropped, "years:?")
			}
		}
		m["years"] = clean
	}

	// 3) fields: normalize each entry
	if fs, ok := m["fields"].([]any); ok {
		clean := make([]any, 0, len(fs))
		for _, f := range fs {
			entry, ok := f.(map[string]any)
			if !ok {
				dropped = append(dropped, "fields:non-object")
				continue
			}
			normalizeFieldEntry(entry, &dropped)
			if vals, ok := entry["values"].(map[string]any); !ok || len(vals) == 0 {
				dropped = append(dropped, "fields:empty-values")
				continue
			}
			clean = append(clean, entry)
		}
		m["fields"] = clean
	}

	// 4) strip unknown top-level keys
	for k := range m {
		if k != "years" && k != "fields" {
			delete(m, k)
			dropped = append(dropped, k)
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Debug("llm.sanitize.applied", "dropped", dropped)
	}
	return out, dropped, nil
}

func normalizeFieldEntry(entry map[string]any, dropped *[]string) {
	known := map[string]struct{}{
		"category": {}, "subcategory": {}, "field": {}, "values": {}, "confidence": {},
	}
	for k := range entry {
		if _, ok := known[k]; !ok {
			delete(entry, k)
			*dropped = append(*dropped, "field:"+k)
		}
	}

	if v, ok := entry["confidence"]; ok {
		if c, ok := v.(float64); ok {
			if c < 0 {
				entry["confidence"] = 0.0
			} else if c > 1 {
				entry["confidence"] = 1.0
			}
		} else {
			delete(entry, "confidence")
			*dropped = append(*dropped, "field:confidence")
		}
	}

	vals, ok := entry["values"].(map[string]any)
	if !ok {
		return
	}
	for year, v := range vals {
		y := strings.TrimSpace(year)
		switch t := v.(type) {
		case nil:
			delete(vals, year)
			*dropped = append(*dropped, "value:"+year)
			continue
		case float64:
			vals[year] = strconv.FormatFloat(t, 'f', -1, 64)
		case string:
			vals[year] = strings.TrimSpace(t)
		default:
			delete(vals, year)
			*dropped = append(*dropped, "value:"+year)
			continue
		}
		if y != year {
			vals[y] = vals[year]
			delete(vals, year)
		}
	}
}

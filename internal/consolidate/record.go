package consolidate

import (
	"finxtract/constants"
)

// Cell is one populated value of the canonical record. Absence of a Cell is
// meaningful: a field nobody reported stays unpopulated rather than being
// defaulted to zero.
type Cell struct {
	Value      string  `json:"value"`
	Year       int     `json:"year"`
	PageIndex  int     `json:"page_index"`
	Confidence float64 `json:"confidence"`
}

// Record is the canonical output of a document run: template triple -> slot
// (1 = most recent year) -> cell. Owned by the consolidator until handed to
// the serialization layer; not mutated after that hand-off.
type Record struct {
	Years []int                                    `json:"years"` // slot order
	Cells map[constants.TemplateField]map[int]Cell `json:"cells"`
}

// Cell looks up a populated cell; ok is false for absent values.
func (r *Record) Cell(f constants.TemplateField, slot int) (Cell, bool) {
	slots, ok := r.Cells[f]
	if !ok {
		return Cell{}, false
	}
	c, ok := slots[slot]
	return c, ok
}

// Fields returns the template triples with at least one populated slot, in
// template report order.
func (r *Record) Fields() []constants.TemplateField {
	var out []constants.TemplateField
	for _, f := range constants.Template() {
		if len(r.Cells[f]) > 0 {
			out = append(out, f)
		}
	}
	return out
}

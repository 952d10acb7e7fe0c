package consolidate

import "sort"

// YearSet is the ordered, deduplicated set of fiscal years known to the
// document: unique, descending (most recent first), capped to the slot count.
type YearSet struct {
	years []int
}

// BuildYearSet unions the years reported by all successful results, sorts
// them descending and caps them to maxSlots.
func BuildYearSet(reported [][]int, maxSlots int) YearSet {
	seen := make(map[int]struct{})
	for _, ys := range reported {
		for _, y := range ys {
			seen[y] = struct{}{}
		}
	}
	all := make([]int, 0, len(seen))
	for y := range seen {
		all = append(all, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(all)))
	if maxSlots > 0 && len(all) > maxSlots {
		all = all[:maxSlots]
	}
	return YearSet{years: all}
}

// Years returns the set in slot order (slot 1 first).
func (s YearSet) Years() []int {
	out := make([]int, len(s.years))
	copy(out, s.years)
	return out
}

// Slot returns the 1-based slot for a year, or 0 when the year is outside
// the set.
func (s YearSet) Slot(year int) int {
	for i, y := range s.years {
		if y == year {
			return i + 1
		}
	}
	return 0
}

func (s YearSet) Len() int { return len(s.years) }

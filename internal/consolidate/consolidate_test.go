package consolidate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"finxtract/constants"
	"finxtract/internal/extract"
)

var (
	totalAssets = constants.TemplateField{Category: "BalanceSheet", Subcategory: "Assets", Field: "Total assets"}
	revenue     = constants.TemplateField{Category: "IncomeStatement", Subcategory: "Revenue", Field: "Revenue"}
)

func result(pageIndex int, years []int, fields map[constants.TemplateField]extract.FieldValue) extract.Result {
	return extract.Result{PageIndex: pageIndex, Success: true, Years: years, Fields: fields}
}

func fv(conf float64, values map[int]string) extract.FieldValue {
	years := make([]int, 0, len(values))
	for y := range values {
		years = append(years, y)
	}
	return extract.FieldValue{Years: years, Values: values, Confidence: conf}
}

func TestYearUnionDescendingCapped(t *testing.T) {
	results := []extract.Result{
		result(0, []int{2023, 2022}, nil),
		result(1, []int{2021, 2020, 2019}, nil),
		result(2, []int{2022, 2021}, nil),
	}
	rec := Consolidate(results, constants.MaxYearSlots)
	require.Equal(t, []int{2023, 2022, 2021, 2020}, rec.Years, "union, newest first, capped at the slot count")
}

func TestHigherConfidenceWinsConflict(t *testing.T) {
	results := []extract.Result{
		result(3, []int{2023}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.7, map[int]string{2023: "100"}),
		}),
		result(8, []int{2023}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.9, map[int]string{2023: "105"}),
		}),
	}
	rec := Consolidate(results, constants.MaxYearSlots)

	cell, ok := rec.Cell(totalAssets, 1)
	require.True(t, ok)
	require.Equal(t, "105", cell.Value)
	require.Equal(t, 8, cell.PageIndex)
	require.InDelta(t, 0.9, cell.Confidence, 1e-9)
}

func TestEqualConfidenceEarlierPageWins(t *testing.T) {
	results := []extract.Result{
		result(12, []int{2023}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.8, map[int]string{2023: "late"}),
		}),
		result(4, []int{2023}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.8, map[int]string{2023: "early"}),
		}),
	}
	rec := Consolidate(results, constants.MaxYearSlots)

	cell, ok := rec.Cell(totalAssets, 1)
	require.True(t, ok)
	require.Equal(t, "early", cell.Value)
	require.Equal(t, 4, cell.PageIndex)
}

func TestDeterministicUnderPermutation(t *testing.T) {
	base := []extract.Result{
		result(0, []int{2023, 2022}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.9, map[int]string{2023: "100", 2022: "95"}),
		}),
		result(5, []int{2023}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.9, map[int]string{2023: "999"}),
			revenue:     fv(0.6, map[int]string{2023: "50"}),
		}),
		result(9, []int{2021}, map[constants.TemplateField]extract.FieldValue{
			revenue: fv(0.8, map[int]string{2021: "40"}),
		}),
	}
	want := Consolidate(base, constants.MaxYearSlots)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]extract.Result, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.Equal(t, want, Consolidate(shuffled, constants.MaxYearSlots))
	}
}

func TestFailedResultsContributeNothing(t *testing.T) {
	results := []extract.Result{
		{PageIndex: 0, Success: false, Err: "extract page 0: boom"},
		result(1, []int{2023}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.5, map[int]string{2023: "77"}),
		}),
	}
	rec := Consolidate(results, constants.MaxYearSlots)

	require.Equal(t, []int{2023}, rec.Years)
	cell, ok := rec.Cell(totalAssets, 1)
	require.True(t, ok)
	require.Equal(t, "77", cell.Value)
}

func TestAbsenceIsNotZero(t *testing.T) {
	results := []extract.Result{
		result(0, []int{2023, 2022}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.9, map[int]string{2023: "100"}), // nothing for 2022
		}),
	}
	rec := Consolidate(results, constants.MaxYearSlots)

	_, ok := rec.Cell(totalAssets, 2)
	require.False(t, ok, "a year nobody reported must stay unpopulated")
	require.Empty(t, rec.Cells[revenue])
}

func TestEmptyInput(t *testing.T) {
	rec := Consolidate(nil, constants.MaxYearSlots)
	require.Empty(t, rec.Years)
	require.Empty(t, rec.Fields())
}

func TestSlotNumberingIsOrdinal(t *testing.T) {
	results := []extract.Result{
		result(0, []int{2020, 2018}, map[constants.TemplateField]extract.FieldValue{
			totalAssets: fv(0.9, map[int]string{2020: "a", 2018: "b"}),
		}),
	}
	rec := Consolidate(results, constants.MaxYearSlots)

	// Slots are positional in the year set, not anchored to calendar years.
	c1, ok := rec.Cell(totalAssets, 1)
	require.True(t, ok)
	require.Equal(t, 2020, c1.Year)
	c2, ok := rec.Cell(totalAssets, 2)
	require.True(t, ok)
	require.Equal(t, 2018, c2.Year)
}

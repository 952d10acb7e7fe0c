package constants

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplateOrderIsStable(t *testing.T) {
	fields := Template()
	require.NotEmpty(t, fields)
	for i, f := range fields {
		require.Equal(t, i, TemplateOrder(f))
		require.True(t, IsTemplateField(f))
	}
	require.Equal(t, -1, TemplateOrder(TemplateField{Category: "Nope"}))
	require.False(t, IsTemplateField(TemplateField{Category: "Nope"}))
}

func TestTemplateFieldKeysJSON(t *testing.T) {
	f := TemplateField{Category: "BalanceSheet", Subcategory: "Assets", Field: "Total assets"}
	m := map[TemplateField]int{f: 7}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.JSONEq(t, `{"BalanceSheet/Assets/Total assets": 7}`, string(data))

	var back map[TemplateField]int
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 7, back[f])
}

func TestCanonicalizeStatementType(t *testing.T) {
	cases := map[string]StatementType{
		"balance_sheet":                   BalanceSheet,
		"Balance Sheet":                   BalanceSheet,
		"statement of financial position": BalanceSheet,
		"income_statement":                IncomeStatement,
		"profit and loss":                 IncomeStatement,
		"cash_flow":                       CashFlow,
		"statement of cash flows":         CashFlow,
		"equity":                          Equity,
	}
	for in, want := range cases {
		got, ok := CanonicalizeStatementType(in)
		require.True(t, ok, "input %q", in)
		require.Equal(t, want, got, "input %q", in)
	}

	_, ok := CanonicalizeStatementType("shopping list")
	require.False(t, ok)
}

package constants

import "strings"

// StatementType labels the financial statements we look for on a page.
type StatementType string

// Stable values (used as JSON keys in classification responses).
const (
	BalanceSheet    StatementType = "balance_sheet"
	IncomeStatement StatementType = "income_statement"
	CashFlow        StatementType = "cash_flow"
	Equity          StatementType = "equity"
)

var allStatementTypes = []StatementType{
	BalanceSheet,
	IncomeStatement,
	CashFlow,
	Equity,
}

// StatementTypes returns the fixed label set in stable order.
func StatementTypes() []StatementType {
	out := make([]StatementType, len(allStatementTypes))
	copy(out, allStatementTypes)
	return out
}

func StatementTypeStrings() []string {
	result := make([]string, len(allStatementTypes))
	for i, st := range allStatementTypes {
		result[i] = string(st)
	}
	return result
}

// CanonicalizeStatementType maps free-form model output onto the fixed label set.
func CanonicalizeStatementType(input string) (StatementType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	synonyms := map[string]StatementType{
		"balance_sheet":                   BalanceSheet,
		"statement_of_financial_position": BalanceSheet,
		"income_statement":                IncomeStatement,
		"profit_and_loss":                 IncomeStatement,
		"p&l":                             IncomeStatement,
		"statement_of_operations":         IncomeStatement,
		"cash_flow":                       CashFlow,
		"cash_flow_statement":             CashFlow,
		"statement_of_cash_flows":         CashFlow,
		"equity":                          Equity,
		"statement_of_changes_in_equity":  Equity,
		"shareholders_equity":             Equity,
	}
	if st, ok := synonyms[normalized]; ok {
		return st, true
	}
	return "", false
}

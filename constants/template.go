package constants

import (
	"fmt"
	"strings"
)

// MaxYearSlots is the number of year-ordinal columns the canonical record
// supports. Slot 1 is the most recent fiscal year.
const MaxYearSlots = 4

// TemplateField identifies one line of the extraction template.
type TemplateField struct {
	Category    string
	Subcategory string
	Field       string
}

// templateFields is the static template schema, in report order. The engine
// never interprets these labels; it only iterates them and keys results by
// the full triple.
var templateFields = []TemplateField{
	// Balance sheet assets
	{"BalanceSheet", "CurrentAssets", "Cash and cash equivalents"},
	{"BalanceSheet", "CurrentAssets", "Short-term investments"},
	{"BalanceSheet", "CurrentAssets", "Accounts receivable"},
	{"BalanceSheet", "CurrentAssets", "Inventories"},
	{"BalanceSheet", "CurrentAssets", "Prepaid expenses"},
	{"BalanceSheet", "CurrentAssets", "Total current assets"},
	{"BalanceSheet", "NonCurrentAssets", "Property, plant and equipment"},
	{"BalanceSheet", "NonCurrentAssets", "Intangible assets"},
	{"BalanceSheet", "NonCurrentAssets", "Goodwill"},
	{"BalanceSheet", "NonCurrentAssets", "Long-term investments"},
	{"BalanceSheet", "NonCurrentAssets", "Deferred tax assets"},
	{"BalanceSheet", "NonCurrentAssets", "Total non-current assets"},
	{"BalanceSheet", "Assets", "Total assets"},
	// Balance sheet liabilities
	{"BalanceSheet", "CurrentLiabilities", "Accounts payable"},
	{"BalanceSheet", "CurrentLiabilities", "Short-term borrowings"},
	{"BalanceSheet", "CurrentLiabilities", "Accrued liabilities"},
	{"BalanceSheet", "CurrentLiabilities", "Current portion of long-term debt"},
	{"BalanceSheet", "CurrentLiabilities", "Total current liabilities"},
	{"BalanceSheet", "NonCurrentLiabilities", "Long-term debt"},
	{"BalanceSheet", "NonCurrentLiabilities", "Deferred tax liabilities"},
	{"BalanceSheet", "NonCurrentLiabilities", "Provisions"},
	{"BalanceSheet", "NonCurrentLiabilities", "Total non-current liabilities"},
	{"BalanceSheet", "Liabilities", "Total liabilities"},
	// Balance sheet equity
	{"BalanceSheet", "Equity", "Share capital"},
	{"BalanceSheet", "Equity", "Retained earnings"},
	{"BalanceSheet", "Equity", "Treasury shares"},
	{"BalanceSheet", "Equity", "Total equity"},
	// Income statement
	{"IncomeStatement", "Revenue", "Revenue"},
	{"IncomeStatement", "Revenue", "Cost of sales"},
	{"IncomeStatement", "Revenue", "Gross profit"},
	{"IncomeStatement", "OperatingExpenses", "Selling, general and administrative"},
	{"IncomeStatement", "OperatingExpenses", "Research and development"},
	{"IncomeStatement", "OperatingExpenses", "Depreciation and amortization"},
	{"IncomeStatement", "OperatingResult", "Operating income"},
	{"IncomeStatement", "NonOperating", "Interest expense"},
	{"IncomeStatement", "NonOperating", "Interest income"},
	{"IncomeStatement", "Result", "Income before tax"},
	{"IncomeStatement", "Result", "Income tax expense"},
	{"IncomeStatement", "Result", "Net income"},
	// Cash flow
	{"CashFlow", "Operating", "Net cash from operating activities"},
	{"CashFlow", "Investing", "Capital expenditures"},
	{"CashFlow", "Investing", "Net cash used in investing activities"},
	{"CashFlow", "Financing", "Dividends paid"},
	{"CashFlow", "Financing", "Net cash from financing activities"},
	{"CashFlow", "Net", "Net change in cash"},
	// Equity statement
	{"Equity", "Movements", "Opening balance"},
	{"Equity", "Movements", "Net income for the year"},
	{"Equity", "Movements", "Dividends declared"},
	{"Equity", "Movements", "Closing balance"},
}

var templateIndex = func() map[TemplateField]int {
	m := make(map[TemplateField]int, len(templateFields))
	for i, f := range templateFields {
		m[f] = i
	}
	return m
}()

// Template returns the static template schema in report order.
func Template() []TemplateField {
	out := make([]TemplateField, len(templateFields))
	copy(out, templateFields)
	return out
}

// TemplateOrder returns the report-order position of f, or -1 when f is not
// part of the template.
func TemplateOrder(f TemplateField) int {
	if i, ok := templateIndex[f]; ok {
		return i
	}
	return -1
}

func IsTemplateField(f TemplateField) bool {
	_, ok := templateIndex[f]
	return ok
}

// MarshalText encodes the triple as "Category/Subcategory/Field" so the
// field can key a JSON object. Template labels contain no '/'.
func (f TemplateField) MarshalText() ([]byte, error) {
	return []byte(f.Category + "/" + f.Subcategory + "/" + f.Field), nil
}

func (f *TemplateField) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), "/", 3)
	if len(parts) != 3 {
		return fmt.Errorf("malformed template field key %q", text)
	}
	f.Category, f.Subcategory, f.Field = parts[0], parts[1], parts[2]
	return nil
}

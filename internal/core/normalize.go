package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeRecords turns a row store snapshot into ledger entries, in order.
func NormalizeRecords(records []RawRecord) []BudgetEntry {
	out := make([]BudgetEntry, 0, len(records))
	for _, r := range records {
		out = append(out, NormalizeRecord(r))
	}
	return out
}

// NormalizeRecord cleans a single raw row. Column names are trimmed before
// lookup; only the flow, amount and item columns are transformed.
func NormalizeRecord(r RawRecord) BudgetEntry {
	cols := trimColumns(r.Values)
	return BudgetEntry{
		ID:          r.ID,
		Item:        NormalizeItem(cols[ColumnItem]),
		Flow:        NormalizeFlow(cols[ColumnFlow]),
		Amount:      NormalizeAmount(cols[ColumnAmount]),
		Category:    stringify(cols[ColumnCategory]),
		ExpenseType: stringify(cols[ColumnExpenseType]),
	}
}

// NormalizeFlow stringifies, trims and lowercases a flow cell.
func NormalizeFlow(v any) Flow {
	return Flow(strings.ToLower(strings.TrimSpace(stringify(v))))
}

// NormalizeAmount parses a money cell such as "$1,234.50". Every "," and "$"
// is dropped before parsing. It never fails: unparseable or negative input
// yields zero.
func NormalizeAmount(v any) decimal.Decimal {
	s := stringify(v)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// NormalizeItem substitutes UnknownItem for a missing or blank item name.
func NormalizeItem(v any) string {
	s := stringify(v)
	if strings.TrimSpace(s) == "" {
		return UnknownItem
	}
	return s
}

func trimColumns(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		tk := strings.TrimSpace(k)
		// an exact header wins over a padded duplicate
		if _, dup := out[tk]; dup && tk != k {
			continue
		}
		out[tk] = v
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case decimal.Decimal:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

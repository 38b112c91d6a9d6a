package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	FlowIncome  Flow = "income"
	FlowExpense Flow = "expense"
)

// Ledger column headers, in the order rows are written.
const (
	ColumnItem        = "Item"
	ColumnFlow        = "Income/Expense"
	ColumnAmount      = "Amount"
	ColumnCategory    = "Category"
	ColumnExpenseType = "Expense Type"
	ColumnID          = "ID"
)

// UnknownItem replaces a missing item name.
const UnknownItem = "Unknown"

// LedgerColumns lists the ledger columns in their fixed write order.
var LedgerColumns = []string{ColumnItem, ColumnFlow, ColumnAmount, ColumnCategory, ColumnExpenseType, ColumnID}

type (
	// Flow tells whether a ledger row is income or an expense. Normalized
	// values other than FlowIncome and FlowExpense are kept as they are.
	Flow string

	// RawRecord is one row as handed over by a row store: column header
	// (possibly padded with whitespace) to raw cell value, plus the row's
	// stable identifier.
	RawRecord struct {
		ID     string
		Values map[string]any
	}

	BudgetEntry struct {
		ID          string
		Item        string
		Flow        Flow
		Amount      decimal.Decimal
		Category    string
		ExpenseType string
	}
)

var (
	ErrEntryNotFound  = errors.New("entry not found")
	ErrDuplicateEntry = errors.New("entry id already exists")
	ErrInvalidFlow    = errors.New("invalid flow: must be income or expense")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidPercent = errors.New("invalid percentage: must be between 0 and 100")
	ErrItemTooLong    = errors.New("item too long (max 200 characters)")
)

// IsKnown reports whether f is one of the two partitioned flows.
func (f Flow) IsKnown() bool {
	return f == FlowIncome || f == FlowExpense
}

// ParseFlow normalizes user input and rejects anything but income/expense.
func ParseFlow(s string) (Flow, error) {
	f := NormalizeFlow(s)
	if !f.IsKnown() {
		return "", ErrInvalidFlow
	}
	return f, nil
}

// Validate checks an entry before it is written to a row store.
func (e BudgetEntry) Validate() error {
	if !e.Flow.IsKnown() {
		return ErrInvalidFlow
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if len(e.Item) > 200 {
		return ErrItemTooLong
	}
	return nil
}

// Row returns the six cell values in LedgerColumns order.
func (e BudgetEntry) Row() []any {
	return []any{
		e.Item,
		string(e.Flow),
		e.Amount.StringFixed(2),
		e.Category,
		e.ExpenseType,
		e.ID,
	}
}

// Record converts the entry back into a raw record keyed by column header.
func (e BudgetEntry) Record() RawRecord {
	row := e.Row()
	values := make(map[string]any, len(LedgerColumns))
	for i, col := range LedgerColumns {
		values[col] = row[i]
	}
	return RawRecord{ID: e.ID, Values: values}
}

// Label is a short human description used in selectors and log lines.
func (e BudgetEntry) Label() string {
	var b strings.Builder
	b.WriteString(e.Item)
	b.WriteString(" (")
	b.WriteString(string(e.Flow))
	b.WriteString(", ")
	b.WriteString(FormatMoney(e.Amount))
	b.WriteString(")")
	return b.String()
}

package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// MonthsPerYear annualizes monthly totals.
const MonthsPerYear = 12

// GroupTotal is an amount aggregated under a category or expense type.
type GroupTotal struct {
	Name   string
	Amount decimal.Decimal
}

// Summary holds every aggregate the dashboard shows for one ledger snapshot.
type Summary struct {
	Income   []BudgetEntry
	Expenses []BudgetEntry

	TotalIncome        decimal.Decimal
	AnnualizedIncome   decimal.Decimal
	TotalExpenses      decimal.Decimal
	AnnualizedExpenses decimal.Decimal

	// Sorted by name; only groups with at least one expense row appear.
	ExpenseByType     []GroupTotal
	ExpenseByCategory []GroupTotal
}

// Aggregate computes totals over a normalized ledger.
func Aggregate(entries []BudgetEntry) Summary {
	income, expenses := Partition(entries)
	months := decimal.NewFromInt(MonthsPerYear)

	s := Summary{
		Income:        income,
		Expenses:      expenses,
		TotalIncome:   Sum(income),
		TotalExpenses: Sum(expenses),
	}
	s.AnnualizedIncome = s.TotalIncome.Mul(months)
	s.AnnualizedExpenses = s.TotalExpenses.Mul(months)
	s.ExpenseByType = GroupBy(expenses, func(e BudgetEntry) string { return e.ExpenseType })
	s.ExpenseByCategory = GroupBy(expenses, func(e BudgetEntry) string { return e.Category })
	return s
}

// Partition splits entries by exact equality on the normalized flow.
// Entries with any other flow land in neither slice.
func Partition(entries []BudgetEntry) (income, expenses []BudgetEntry) {
	for _, e := range entries {
		switch e.Flow {
		case FlowIncome:
			income = append(income, e)
		case FlowExpense:
			expenses = append(expenses, e)
		}
	}
	return income, expenses
}

// Sum adds amounts in entry order.
func Sum(entries []BudgetEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// GroupBy sums amounts per key, returning groups sorted by name.
func GroupBy(entries []BudgetEntry, key func(BudgetEntry) string) []GroupTotal {
	sums := map[string]decimal.Decimal{}
	for _, e := range entries {
		k := key(e)
		sums[k] = sums[k].Add(e.Amount)
	}
	out := make([]GroupTotal, 0, len(sums))
	for name, amt := range sums {
		out = append(out, GroupTotal{Name: name, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindGroup looks up a group by exact name.
func FindGroup(groups []GroupTotal, name string) (decimal.Decimal, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g.Amount, true
		}
	}
	return decimal.Zero, false
}

// BucketComparison pairs the income distributed to a bucket with what was
// actually spent under the expense type of the same name.
type BucketComparison struct {
	Bucket      Bucket
	Distributed decimal.Decimal
	Actual      decimal.Decimal
}

// CompareBuckets matches each bucket to expense types case-insensitively
// (surrounding whitespace ignored). Buckets without spending compare to zero.
func CompareBuckets(d Distribution, s Summary) []BucketComparison {
	out := make([]BucketComparison, 0, len(Buckets))
	for _, b := range Buckets {
		actual := decimal.Zero
		for _, g := range s.ExpenseByType {
			if strings.EqualFold(strings.TrimSpace(g.Name), string(b)) {
				actual = actual.Add(g.Amount)
			}
		}
		out = append(out, BucketComparison{Bucket: b, Distributed: d.Amount(b), Actual: actual})
	}
	return out
}

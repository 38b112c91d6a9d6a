package google

import (
	"errors"
	"strings"
	"testing"

	"budget/internal/core"
)

func TestParseLedger_IDColumnAnywhere(t *testing.T) {
	values := [][]any{
		{"id", " Item", "Amount", "Income/Expense"},
		{"abc", "Salary", "100", "income"},
		{"", "Tip", "5", "income"},
	}
	rows := parseLedger(values)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Record.ID != "abc" || rows[0].Number != 2 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if _, ok := rows[0].Record.Values["id"]; ok {
		t.Fatal("id column must not be part of the record values")
	}
	if !strings.HasPrefix(rows[1].Record.ID, fingerprintPrefix) || rows[1].Number != 3 {
		t.Fatalf("expected fingerprint id for row 3, got %+v", rows[1])
	}
	if got := rows[0].Record.Values["Item"]; got != "Salary" {
		t.Fatalf("expected trimmed header lookup, got %v", got)
	}
}

func TestParseLedger_EmptyAndHeaderOnly(t *testing.T) {
	if rows := parseLedger(nil); rows != nil {
		t.Fatalf("expected nil, got %v", rows)
	}
	if rows := parseLedger([][]any{{"Item", "Amount"}}); len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}
}

func TestParseLedger_RowNumbersSkipBlankRows(t *testing.T) {
	values := [][]any{
		{"Item"},
		{},
		{"  "},
		{"Rent"},
	}
	rows := parseLedger(values)
	if len(rows) != 1 || rows[0].Number != 4 {
		t.Fatalf("expected a single row at sheet row 4, got %+v", rows)
	}
}

func TestFingerprintIgnoresID(t *testing.T) {
	a := map[string]any{core.ColumnItem: "Tea", core.ColumnAmount: "2"}
	b := map[string]any{core.ColumnItem: " Tea ", core.ColumnAmount: "2", core.ColumnID: "x"}
	if fingerprint(a) != fingerprint(b) {
		t.Fatal("fingerprint must ignore padding and the ID column")
	}
	c := map[string]any{core.ColumnItem: "Tea", core.ColumnAmount: "3"}
	if fingerprint(a) == fingerprint(c) {
		t.Fatal("different amounts must give different fingerprints")
	}
}

func TestParseSplit(t *testing.T) {
	tests := []struct {
		name    string
		values  [][]any
		want    core.DistributionSplit
		wantErr bool
	}{
		{"strings", [][]any{{"20", "60", "20"}}, core.DistributionSplit{ProfitPct: 20, OpexPct: 60, SlushPct: 20}, false},
		{"numbers", [][]any{{float64(0), float64(100), float64(0)}}, core.DistributionSplit{OpexPct: 100}, false},
		{"sum above 100", [][]any{{"90", "90", "90"}}, core.DistributionSplit{ProfitPct: 90, OpexPct: 90, SlushPct: 90}, false},
		{"empty", nil, core.DistributionSplit{}, true},
		{"two rows", [][]any{{"1", "2", "3"}, {"1", "2", "3"}}, core.DistributionSplit{}, true},
		{"short", [][]any{{"1", "2"}}, core.DistributionSplit{}, true},
		{"text", [][]any{{"1", "x", "3"}}, core.DistributionSplit{}, true},
		{"negative", [][]any{{"-1", "2", "3"}}, core.DistributionSplit{}, true},
		{"percent sign", [][]any{{"20%", "60", "20"}}, core.DistributionSplit{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSplit(tt.values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	_, err := parseSplit([][]any{{"1", "2", "300"}})
	if !errors.Is(err, core.ErrInvalidPercent) {
		t.Fatalf("expected ErrInvalidPercent, got %v", err)
	}
}

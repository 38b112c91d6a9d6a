package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budget/internal/core"
)

var ledgerHeader = []any{"Item", "Income/Expense", "Amount", "Category", "Expense Type", "ID"}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), "spreadsheet id") {
		t.Fatalf("expected missing spreadsheet id error, got %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Options{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNew_InvalidOAuthClient(t *testing.T) {
	_, err := New(context.Background(), Options{
		SpreadsheetID: "x",
		Credentials:   Credentials{OAuthClientJSON: []byte("invalid-json"), OAuthTokenJSON: []byte(`{"access_token":"t"}`)},
	})
	if err == nil || !strings.Contains(err.Error(), "oauth client") {
		t.Fatalf("expected oauth client error, got %v", err)
	}
}

func TestListRows(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 7,
		[]any{" Item ", "Income/Expense", "Amount ", "Category", "Expense Type"},
		[]any{"Salary", " Income ", "$3,000.00", "Work", ""},
		[]any{"", "", "", "", ""},
		[]any{"Coffee", "expense", "4.50", "Food", "Slush"},
		[]any{"Coffee", "expense", "4.50", "Food", "Slush"},
		[]any{"Rent", "Expense", 1200.0},
	)
	c := f.client(t)

	recs, err := c.ListRows(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("expected 4 records (blank row skipped), got %d", len(recs))
	}

	entries := core.NormalizeRecords(recs)
	if entries[0].Flow != core.FlowIncome || !entries[0].Amount.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if !entries[3].Amount.Equal(decimal.NewFromInt(1200)) || entries[3].Category != "" {
		t.Fatalf("unexpected short row: %+v", entries[3])
	}

	if !strings.HasSuffix(recs[1].ID, "-1-2") || !strings.HasSuffix(recs[2].ID, "-2-2") {
		t.Fatalf("identical rows must get distinct occurrence ids: %q %q", recs[1].ID, recs[2].ID)
	}
	if strings.TrimSuffix(recs[1].ID, "-1-2") != strings.TrimSuffix(recs[2].ID, "-2-2") {
		t.Fatalf("identical rows must share a fingerprint: %q %q", recs[1].ID, recs[2].ID)
	}
}

func TestListRows_MissingSheet(t *testing.T) {
	f := newFakeSheets()
	c := f.client(t)
	if _, err := c.ListRows(context.Background()); err == nil {
		t.Fatal("expected error for missing ledger sheet")
	}
}

func TestAppendAddsIDHeader(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 7,
		[]any{"Item", "Income/Expense", "Amount", "Category", "Expense Type"},
		[]any{"Salary", "income", "3000", "Work", ""},
	)
	c := f.client(t)
	ctx := context.Background()

	id, err := c.Append(ctx, core.BudgetEntry{Item: "Gym", Flow: core.FlowExpense, Amount: decimal.NewFromInt(45), Category: "Health", ExpenseType: "Slush"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected uuid id, got %q", id)
	}

	rows := f.rows(DefaultLedgerSheet)
	if got := rows[0][5]; got != "ID" {
		t.Fatalf("expected ID header in F1, got %v", got)
	}
	if len(rows) != 3 || rows[2][0] != "Gym" || rows[2][2] != "45.00" || rows[2][5] != id {
		t.Fatalf("unexpected appended row: %v", rows)
	}

	if _, err := c.Append(ctx, core.BudgetEntry{Item: "Food", Flow: core.FlowExpense, Amount: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("second append: %v", err)
	}
	if _, puts := f.counts(); len(puts) != 1 {
		t.Fatalf("header must be written once, got puts %v", puts)
	}

	recs, _ := c.ListRows(ctx)
	if recs[1].ID != id {
		t.Fatalf("expected stable id %q on read back, got %q", id, recs[1].ID)
	}
}

func TestAppendRejectsInvalidEntry(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 7, ledgerHeader)
	c := f.client(t)
	_, err := c.Append(context.Background(), core.BudgetEntry{Item: "x", Flow: core.Flow("transfer")})
	if !errors.Is(err, core.ErrInvalidFlow) {
		t.Fatalf("expected ErrInvalidFlow, got %v", err)
	}
	if len(f.rows(DefaultLedgerSheet)) != 1 {
		t.Fatal("invalid entry must not be written")
	}
}

func TestDeleteByStableID(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 0,
		ledgerHeader,
		[]any{"A", "income", "1", "", "", "id-a"},
		[]any{"B", "expense", "2", "", "", "id-b"},
		[]any{"C", "expense", "3", "", "", "id-c"},
	)
	c := f.client(t)
	ctx := context.Background()

	if err := c.Delete(ctx, "id-b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet), "A", "C")

	// stale delete: the row is already gone
	if err := c.Delete(ctx, "id-b"); !errors.Is(err, core.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet), "A", "C")

	// another client removed A: C shifted up and must still be the row deleted
	f.removeRow(DefaultLedgerSheet, 1)
	if err := c.Delete(ctx, "id-c"); err != nil {
		t.Fatalf("delete shifted row: %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet))

	if metaGets, _ := f.counts(); metaGets != 1 {
		t.Fatalf("sheet id lookup must be cached, got %d metadata reads", metaGets)
	}
}

func TestDeleteFingerprintRow(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 3,
		[]any{"Item", "Income/Expense", "Amount", "Category", "Expense Type"},
		[]any{"Tea", "expense", "2", "Food", ""},
		[]any{"Bread", "expense", "3", "Food", ""},
	)
	c := f.client(t)
	ctx := context.Background()

	recs, _ := c.ListRows(ctx)
	if err := c.Delete(ctx, recs[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet), "Tea")

	if err := c.Delete(ctx, recs[1].ID); !errors.Is(err, core.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for vanished fingerprint row, got %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet), "Tea")
}

func TestDeleteIdenticalFingerprintRows(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 3,
		[]any{"Item", "Income/Expense", "Amount", "Category", "Expense Type"},
		[]any{"Tea", "expense", "2", "Food", ""},
		[]any{"Tea", "expense", "2", "Food", ""},
	)
	c := f.client(t)
	ctx := context.Background()

	recs, err := c.ListRows(ctx)
	if err != nil || len(recs) != 2 {
		t.Fatalf("list: %v %v", recs, err)
	}
	if err := c.Delete(ctx, recs[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet), "Tea")

	// a repeated delete from the same listing must not take the surviving copy
	if err := c.Delete(ctx, recs[0].ID); !errors.Is(err, core.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if err := c.Delete(ctx, recs[1].ID); !errors.Is(err, core.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for the old id of the survivor, got %v", err)
	}
	err = c.Update(ctx, recs[0].ID, core.BudgetEntry{Item: "Tea", Flow: core.FlowExpense, Amount: decimal.NewFromInt(3)})
	if !errors.Is(err, core.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound on update, got %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet), "Tea")

	recs, _ = c.ListRows(ctx)
	if err := c.Delete(ctx, recs[0].ID); err != nil {
		t.Fatalf("delete with fresh id: %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet))
}

func TestConcurrentMutationsKeepRowsAligned(t *testing.T) {
	f := newFakeSheets()
	rows := [][]any{ledgerHeader}
	for i := 0; i < 10; i++ {
		rows = append(rows, []any{fmt.Sprintf("item-%d", i), "expense", "1", "", "", fmt.Sprintf("id-%d", i)})
	}
	f.addTab(DefaultLedgerSheet, 0, rows...)
	c := f.client(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("id-%d", i)
			if i%2 == 0 {
				errs <- c.Delete(ctx, id)
				return
			}
			errs <- c.Update(ctx, id, core.BudgetEntry{Item: fmt.Sprintf("item-%d", i), Flow: core.FlowExpense, Amount: decimal.NewFromInt(int64(i))})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("mutation: %v", err)
		}
	}

	got := f.rows(DefaultLedgerSheet)[1:]
	if len(got) != 5 {
		t.Fatalf("expected 5 rows, got %v", got)
	}
	for _, r := range got {
		var n int
		if _, err := fmt.Sscanf(r[5].(string), "id-%d", &n); err != nil {
			t.Fatalf("bad id cell %v", r)
		}
		if n%2 == 0 || r[0] != fmt.Sprintf("item-%d", n) || r[2] != fmt.Sprintf("%d.00", n) {
			t.Fatalf("row content does not match its id: %v", r)
		}
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 0,
		ledgerHeader,
		[]any{"Rent", "expense", "1000", "Housing", "OPEX", "id-rent"},
	)
	c := f.client(t)
	ctx := context.Background()

	_, err := c.Append(ctx, core.BudgetEntry{ID: "id-rent", Item: "Other", Flow: core.FlowExpense, Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, core.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet), "Rent")

	id, err := c.Append(ctx, core.BudgetEntry{ID: "id-gym", Item: "Gym", Flow: core.FlowExpense, Amount: decimal.NewFromInt(45)})
	if err != nil || id != "id-gym" {
		t.Fatalf("append with fresh id: %q %v", id, err)
	}
	assertItems(t, f.rows(DefaultLedgerSheet), "Rent", "Gym")
}

func TestAppendKeepsForeignHeaderInF1(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 0,
		[]any{"Item", "Income/Expense", "Amount", "Category", "Expense Type", "Notes"},
		[]any{"Salary", "income", "3000", "Work", "", "monthly"},
	)
	c := f.client(t)

	_, err := c.Append(context.Background(), core.BudgetEntry{Item: "Gym", Flow: core.FlowExpense, Amount: decimal.NewFromInt(45)})
	if err == nil || !strings.Contains(err.Error(), "Notes") {
		t.Fatalf("expected error naming the F1 header, got %v", err)
	}
	rows := f.rows(DefaultLedgerSheet)
	if rows[0][5] != "Notes" || len(rows) != 2 {
		t.Fatalf("sheet must be left untouched, got %v", rows)
	}
	if _, puts := f.counts(); len(puts) != 0 {
		t.Fatalf("expected no writes, got %v", puts)
	}
}

func TestUpdate(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultLedgerSheet, 0,
		ledgerHeader,
		[]any{"Rent", "expense", "1000", "Housing", "OPEX", "id-rent"},
		[]any{"Legacy", "expense", "5", "", ""},
	)
	c := f.client(t)
	ctx := context.Background()

	err := c.Update(ctx, "id-rent", core.BudgetEntry{Item: "Rent", Flow: core.FlowExpense, Amount: decimal.NewFromInt(1100), Category: "Housing", ExpenseType: "OPEX"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	rows := f.rows(DefaultLedgerSheet)
	if rows[1][2] != "1100.00" || rows[1][5] != "id-rent" {
		t.Fatalf("unexpected updated row: %v", rows[1])
	}

	recs, _ := c.ListRows(ctx)
	legacy := recs[1].ID
	err = c.Update(ctx, legacy, core.BudgetEntry{Item: "Legacy", Flow: core.FlowExpense, Amount: decimal.NewFromInt(6)})
	if err != nil {
		t.Fatalf("update legacy: %v", err)
	}
	rows = f.rows(DefaultLedgerSheet)
	if _, err := uuid.Parse(rows[2][5].(string)); err != nil {
		t.Fatalf("legacy row should receive a uuid, got %v", rows[2][5])
	}

	err = c.Update(ctx, "missing", core.BudgetEntry{Flow: core.FlowIncome})
	if !errors.Is(err, core.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLoadAndSaveSplit(t *testing.T) {
	f := newFakeSheets()
	f.addTab(DefaultSettingsSheet, 9,
		[]any{},
		[]any{"", "Profit", "OPEX", "Slush"},
		[]any{"%", "30", 50.0, " 20 "},
	)
	c := f.client(t)
	ctx := context.Background()

	got, err := c.LoadSplit(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != (core.DistributionSplit{ProfitPct: 30, OpexPct: 50, SlushPct: 20}) {
		t.Fatalf("unexpected split: %+v", got)
	}

	if err := c.SaveSplit(ctx, core.DistributionSplit{ProfitPct: 10, OpexPct: 80, SlushPct: 10}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = c.LoadSplit(ctx)
	if err != nil || got != (core.DistributionSplit{ProfitPct: 10, OpexPct: 80, SlushPct: 10}) {
		t.Fatalf("unexpected split after save: %+v (err=%v)", got, err)
	}

	if err := c.SaveSplit(ctx, core.DistributionSplit{ProfitPct: -1}); !errors.Is(err, core.ErrInvalidPercent) {
		t.Fatalf("expected ErrInvalidPercent, got %v", err)
	}
}

func TestLoadSplit_Failures(t *testing.T) {
	cases := map[string][][]any{
		"empty range":  nil,
		"two cells":    {{}, {}, {"", "20", "60"}},
		"not integer":  {{}, {}, {"", "20", "abc", "20"}},
		"out of range": {{}, {}, {"", "20", "160", "20"}},
		"fraction":     {{}, {}, {"", "20.5", "60", "20"}},
	}
	for name, rows := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFakeSheets()
			f.addTab(DefaultSettingsSheet, 1, rows...)
			c := f.client(t)
			if _, err := c.LoadSplit(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	f := newFakeSheets()
	c := f.client(t)
	if _, err := c.LoadSplit(context.Background()); err == nil {
		t.Fatal("expected error for missing settings sheet")
	}
}

func TestPing(t *testing.T) {
	f := newFakeSheets()
	c := f.client(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func assertItems(t *testing.T, rows [][]any, items ...string) {
	t.Helper()
	data := rows[1:]
	if len(data) != len(items) {
		t.Fatalf("expected items %v, got rows %v", items, data)
	}
	for i, want := range items {
		if data[i][0] != want {
			t.Fatalf("row %d: expected %q, got %v", i, want, data[i][0])
		}
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budget/internal/core"
	"budget/internal/sheets"

	_ "modernc.org/sqlite"
)

// ErrNoSettings is returned by LoadSplit when no split row exists yet.
var ErrNoSettings = errors.New("no distribution split saved")

var (
	_ sheets.Ledger        = (*SQLiteRepository)(nil)
	_ sheets.SettingsStore = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const selectEntries = `SELECT id, item, flow, amount, category, expense_type FROM ledger_entries`

// ListEntries returns every entry in insertion order.
func (r *SQLiteRepository) ListEntries(ctx context.Context) ([]core.BudgetEntry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntries+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// ListRows implements sheets.LedgerReader.
func (r *SQLiteRepository) ListRows(ctx context.Context) ([]core.RawRecord, error) {
	entries, err := r.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.RawRecord, len(entries))
	for i, e := range entries {
		out[i] = e.Record()
	}
	return out, nil
}

// Get returns the entry with the given id or core.ErrEntryNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.BudgetEntry, error) {
	row := r.db.QueryRowContext(ctx, selectEntries+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetEntry{}, core.ErrEntryNotFound
	}
	return e, err
}

// Append implements sheets.LedgerWriter. An entry that already carries an id
// keeps it; an id that is already stored yields core.ErrDuplicateEntry.
func (r *SQLiteRepository) Append(ctx context.Context, e core.BudgetEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, item, flow, amount, category, expense_type) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID, e.Item, string(e.Flow), e.Amount.String(), e.Category, e.ExpenseType)
	if err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}
	if err := affectedOne(res); err != nil {
		if errors.Is(err, core.ErrEntryNotFound) {
			return "", fmt.Errorf("append %s: %w", e.ID, core.ErrDuplicateEntry)
		}
		return "", err
	}

	slog.InfoContext(ctx, "Entry saved to SQLite",
		"entry_id", e.ID,
		"item", e.Item,
		"flow", e.Flow,
		"amount", e.Amount.String())
	return e.ID, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, e core.BudgetEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries
		    SET item = ?, flow = ?, amount = ?, category = ?, expense_type = ?, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`,
		e.Item, string(e.Flow), e.Amount.String(), e.Category, e.ExpenseType, id)
	if err != nil {
		return fmt.Errorf("update entry %s: %w", id, err)
	}
	return affectedOne(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	if err := affectedOne(res); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Entry deleted from SQLite", "entry_id", id)
	return nil
}

func (r *SQLiteRepository) LoadSplit(ctx context.Context) (core.DistributionSplit, error) {
	var s core.DistributionSplit
	err := r.db.QueryRowContext(ctx,
		`SELECT profit_pct, opex_pct, slush_pct FROM distribution_settings WHERE id = 1`).
		Scan(&s.ProfitPct, &s.OpexPct, &s.SlushPct)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DistributionSplit{}, ErrNoSettings
	}
	if err != nil {
		return core.DistributionSplit{}, fmt.Errorf("load split: %w", err)
	}
	if err := s.Validate(); err != nil {
		return core.DistributionSplit{}, err
	}
	return s, nil
}

func (r *SQLiteRepository) SaveSplit(ctx context.Context, s core.DistributionSplit) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO distribution_settings (id, profit_pct, opex_pct, slush_pct) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   profit_pct = excluded.profit_pct,
		   opex_pct = excluded.opex_pct,
		   slush_pct = excluded.slush_pct,
		   updated_at = CURRENT_TIMESTAMP`,
		s.ProfitPct, s.OpexPct, s.SlushPct)
	if err != nil {
		return fmt.Errorf("save split: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (core.BudgetEntry, error) {
	var (
		e      core.BudgetEntry
		flow   string
		amount string
	)
	if err := s.Scan(&e.ID, &e.Item, &flow, &amount, &e.Category, &e.ExpenseType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan entry: %w", err)
	}
	e.Flow = core.Flow(flow)
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return e, fmt.Errorf("entry %s: bad stored amount %q: %w", e.ID, amount, err)
	}
	e.Amount = d
	return e, nil
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrEntryNotFound
	}
	return nil
}

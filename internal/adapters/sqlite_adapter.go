package adapters

import (
	"context"

	"budget/internal/core"
	"budget/internal/services"
	"budget/internal/sheets"
	"budget/internal/storage"
)

var (
	_ sheets.Ledger        = (*SQLiteAdapter)(nil)
	_ sheets.SettingsStore = (*SQLiteAdapter)(nil)
)

// SQLiteAdapter serves reads straight from SQLiteRepository and routes writes
// through LedgerService, so every mutation also emits a change event.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.LedgerService
}

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.LedgerService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// ListRows implements sheets.LedgerReader
func (a *SQLiteAdapter) ListRows(ctx context.Context) ([]core.RawRecord, error) {
	return a.storage.ListRows(ctx)
}

// Append implements sheets.LedgerWriter
func (a *SQLiteAdapter) Append(ctx context.Context, e core.BudgetEntry) (string, error) {
	return a.service.AppendEntry(ctx, e)
}

// Update implements sheets.LedgerUpdater
func (a *SQLiteAdapter) Update(ctx context.Context, id string, e core.BudgetEntry) error {
	return a.service.UpdateEntry(ctx, id, e)
}

// Delete implements sheets.LedgerDeleter
func (a *SQLiteAdapter) Delete(ctx context.Context, id string) error {
	return a.service.DeleteEntry(ctx, id)
}

func (a *SQLiteAdapter) LoadSplit(ctx context.Context) (core.DistributionSplit, error) {
	return a.storage.LoadSplit(ctx)
}

func (a *SQLiteAdapter) SaveSplit(ctx context.Context, s core.DistributionSplit) error {
	return a.service.SaveSplit(ctx, s)
}

// Ping reports whether the database answers.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}

package sheets

import (
	"context"

	"budget/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerReader returns a full snapshot of the ledger, one record per row
	// in sheet order. Records are raw: normalization happens in core.
	LedgerReader interface {
		ListRows(ctx context.Context) ([]core.RawRecord, error)
	}

	// LedgerWriter appends a row and returns the stable identifier assigned to it.
	LedgerWriter interface {
		Append(ctx context.Context, e core.BudgetEntry) (id string, err error)
	}

	// LedgerUpdater rewrites the row identified by id.
	LedgerUpdater interface {
		Update(ctx context.Context, id string, e core.BudgetEntry) error
	}

	// LedgerDeleter removes the row identified by id. It returns
	// core.ErrEntryNotFound when no row carries that identifier.
	LedgerDeleter interface {
		Delete(ctx context.Context, id string) error
	}

	// SettingsStore persists the distribution split.
	SettingsStore interface {
		// LoadSplit fails when the stored cells are missing, malformed or out of range.
		LoadSplit(ctx context.Context) (core.DistributionSplit, error)
		SaveSplit(ctx context.Context, s core.DistributionSplit) error
	}

	Ledger interface {
		LedgerReader
		LedgerWriter
		LedgerUpdater
		LedgerDeleter
	}
)

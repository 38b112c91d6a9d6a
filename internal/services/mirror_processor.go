package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/metrics"
	"budget/internal/sheets"
)

// MirrorSource is the local store events refer to.
type MirrorSource interface {
	Get(ctx context.Context, id string) (core.BudgetEntry, error)
	LoadSplit(ctx context.Context) (core.DistributionSplit, error)
}

// MirrorTarget is the spreadsheet the local store is mirrored into.
type MirrorTarget interface {
	sheets.Ledger
	sheets.SettingsStore
}

// MirrorProcessor replays ledger events against the spreadsheet by stable id.
// Handling is idempotent: replaying an event leaves the sheet unchanged.
// Events and reconcile passes are applied one at a time.
type MirrorProcessor struct {
	source  MirrorSource
	target  MirrorTarget
	metrics *metrics.Metrics

	mu sync.Mutex
}

func NewMirrorProcessor(source MirrorSource, target MirrorTarget, m *metrics.Metrics) *MirrorProcessor {
	return &MirrorProcessor{source: source, target: target, metrics: m}
}

// Handle applies one event. A returned error asks for redelivery.
func (p *MirrorProcessor) Handle(ctx context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	switch ev.Kind {
	case amqp.EventEntryAppended, amqp.EventEntryUpdated:
		err = p.upsert(ctx, ev.EntryID)
	case amqp.EventEntryDeleted:
		err = p.delete(ctx, ev.EntryID)
	case amqp.EventSplitSaved:
		err = p.saveSplit(ctx)
	default:
		err = fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	p.metrics.ObserveMirror(string(ev.Kind), err)
	return err
}

// SyncEntries brings the sheet in line with the given local entries from a
// single read of the ledger: missing entries are appended, entries whose
// cells differ are rewritten and the rest are left alone. Sheet-only rows are
// kept. It returns how many rows were written before the first failure.
func (p *MirrorProcessor) SyncEntries(ctx context.Context, local []core.BudgetEntry) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	written, err := p.syncEntries(ctx, local)
	p.metrics.ObserveMirror(reconcileKind, err)
	return written, err
}

const reconcileKind = "reconcile"

func (p *MirrorProcessor) syncEntries(ctx context.Context, local []core.BudgetEntry) (int, error) {
	rows, err := p.target.ListRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("read mirrored ledger: %w", err)
	}
	mirrored := make(map[string]core.BudgetEntry, len(rows))
	for _, e := range core.NormalizeRecords(rows) {
		mirrored[e.ID] = e
	}

	written := 0
	for _, e := range local {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		current, ok := mirrored[e.ID]
		switch {
		case !ok:
			if _, err := p.target.Append(ctx, e); err != nil {
				return written, fmt.Errorf("append mirrored entry %s: %w", e.ID, err)
			}
		case !sameCells(current, e):
			if err := p.target.Update(ctx, e.ID, e); err != nil {
				return written, fmt.Errorf("update mirrored entry %s: %w", e.ID, err)
			}
		default:
			continue
		}
		written++
	}
	return written, nil
}

// sameCells compares two entries as the sheet would store them.
func sameCells(mirrored, local core.BudgetEntry) bool {
	want := core.NormalizeRecord(local.Record())
	return mirrored.Item == want.Item &&
		mirrored.Flow == want.Flow &&
		mirrored.Amount.Equal(want.Amount) &&
		mirrored.Category == want.Category &&
		mirrored.ExpenseType == want.ExpenseType
}

// upsert copies the current local state of the entry. An entry deleted
// locally after the event was published is skipped; its delete event follows.
func (p *MirrorProcessor) upsert(ctx context.Context, id string) error {
	e, err := p.source.Get(ctx, id)
	if errors.Is(err, core.ErrEntryNotFound) {
		slog.InfoContext(ctx, "Entry no longer stored locally, skipping mirror", "entry_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read local entry %s: %w", id, err)
	}

	err = p.target.Update(ctx, id, e)
	if errors.Is(err, core.ErrEntryNotFound) {
		e.ID = id
		if _, err = p.target.Append(ctx, e); err != nil {
			return fmt.Errorf("append mirrored entry %s: %w", id, err)
		}
		slog.InfoContext(ctx, "Mirrored new entry", "entry_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update mirrored entry %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Mirrored entry update", "entry_id", id)
	return nil
}

func (p *MirrorProcessor) delete(ctx context.Context, id string) error {
	err := p.target.Delete(ctx, id)
	if errors.Is(err, core.ErrEntryNotFound) {
		slog.InfoContext(ctx, "Mirrored entry already gone", "entry_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete mirrored entry %s: %w", id, err)
	}
	return nil
}

func (p *MirrorProcessor) saveSplit(ctx context.Context) error {
	split, err := p.source.LoadSplit(ctx)
	if err != nil {
		return fmt.Errorf("read local split: %w", err)
	}
	if err := p.target.SaveSplit(ctx, split); err != nil {
		return fmt.Errorf("save mirrored split: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored distribution split",
		"profit_pct", split.ProfitPct, "opex_pct", split.OpexPct, "slush_pct", split.SlushPct)
	return nil
}

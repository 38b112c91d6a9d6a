package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/services"
	"budget/internal/storage"
)

// EventSource delivers ledger events until ctx is done.
type EventSource interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error
}

// LocalLedger is the SQLite side of the mirror.
type LocalLedger interface {
	services.MirrorSource
	ListEntries(ctx context.Context) ([]core.BudgetEntry, error)
}

// MirrorWorker keeps the spreadsheet in step with the local store. Events
// are applied as they arrive; a periodic reconcile pass repairs whatever a
// lost event left behind. The processor applies the two one at a time.
type MirrorWorker struct {
	events    EventSource
	local     LocalLedger
	processor *services.MirrorProcessor
	interval  time.Duration

	mu      sync.Mutex
	running bool
}

// NewMirrorWorker creates a worker. A zero interval disables periodic
// reconciliation; the startup pass always runs.
func NewMirrorWorker(events EventSource, local LocalLedger, processor *services.MirrorProcessor, interval time.Duration) *MirrorWorker {
	return &MirrorWorker{
		events:    events,
		local:     local,
		processor: processor,
		interval:  interval,
	}
}

// Run blocks until ctx is done or consumption fails for good.
func (w *MirrorWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("mirror worker is already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	slog.InfoContext(ctx, "Performing startup reconcile...")
	if n, err := w.Reconcile(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup reconcile failed", "error", err, "written", n)
	}

	var wg sync.WaitGroup
	if w.interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.reconcileLoop(ctx)
		}()
	}

	err := w.events.Consume(ctx, w.processor.Handle)
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *MirrorWorker) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.Reconcile(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic reconcile failed", "error", err, "written", n)
			}
		}
	}
}

// Reconcile pushes every local entry and the local split to the sheet. The
// sheet is read once per pass and only rows that differ are written; rows
// that exist only in the sheet are left alone. It returns how many rows were
// written before the first failure.
func (w *MirrorWorker) Reconcile(ctx context.Context) (int, error) {
	entries, err := w.local.ListEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list local entries: %w", err)
	}

	written, err := w.processor.SyncEntries(ctx, entries)
	if err != nil {
		return written, err
	}

	if _, err := w.local.LoadSplit(ctx); err == nil {
		if err := w.processor.Handle(ctx, amqp.NewLedgerEvent(amqp.EventSplitSaved, "")); err != nil {
			return written, err
		}
	} else if !errors.Is(err, storage.ErrNoSettings) {
		return written, fmt.Errorf("read local split: %w", err)
	}

	slog.InfoContext(ctx, "Reconcile complete", "entries", len(entries), "written", written)
	return written, nil
}

package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/storage"
)

// EventPublisher announces ledger changes to the mirror worker.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService stores mutations in SQLite and publishes a change event for
// each of them. A publish failure never fails the mutation.
type LedgerService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
}

// NewLedgerService accepts a nil publisher, in which case events are skipped.
func NewLedgerService(storage *storage.SQLiteRepository, publisher EventPublisher) *LedgerService {
	return &LedgerService{
		storage:   storage,
		publisher: publisher,
	}
}

func (s *LedgerService) AppendEntry(ctx context.Context, e core.BudgetEntry) (string, error) {
	id, err := s.storage.Append(ctx, e)
	if err != nil {
		return "", fmt.Errorf("save entry: %w", err)
	}
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventEntryAppended, id))
	return id, nil
}

func (s *LedgerService) UpdateEntry(ctx context.Context, id string, e core.BudgetEntry) error {
	if err := s.storage.Update(ctx, id, e); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventEntryUpdated, id))
	return nil
}

func (s *LedgerService) DeleteEntry(ctx context.Context, id string) error {
	if err := s.storage.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventEntryDeleted, id))
	return nil
}

func (s *LedgerService) SaveSplit(ctx context.Context, split core.DistributionSplit) error {
	if err := s.storage.SaveSplit(ctx, split); err != nil {
		return fmt.Errorf("save split: %w", err)
	}
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventSplitSaved, ""))
	return nil
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping ledger event", "kind", ev.Kind)
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", ev.Kind, "entry_id", ev.EntryID, "error", err)
	}
}

// Close closes the storage and, when it supports it, the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}

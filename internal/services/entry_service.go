package services

import (
	"context"
	"fmt"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/sheets"
)

// EntryService validates and applies ledger mutations on any row store.
type EntryService struct {
	ledger  sheets.Ledger
	metrics *metrics.Metrics
	logger  *log.StructuredLogger
}

func NewEntryService(ledger sheets.Ledger, m *metrics.Metrics, logger *log.Logger) *EntryService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &EntryService{ledger: ledger, metrics: m, logger: log.NewStructuredLogger(logger)}
}

// List reads and normalizes the whole ledger.
func (s *EntryService) List(ctx context.Context) ([]core.BudgetEntry, error) {
	rows, err := s.ledger.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return core.NormalizeRecords(rows), nil
}

// Add appends the entry. Success is reported without reading the row back.
func (s *EntryService) Add(ctx context.Context, e core.BudgetEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	id, err := s.ledger.Append(ctx, e)
	s.metrics.ObserveMutation(log.OpAppend, err)
	if err != nil {
		return "", fmt.Errorf("append entry: %w", err)
	}
	e.ID = id
	s.logger.LogEntryMutation(ctx, log.OpAppend, e)
	return id, nil
}

func (s *EntryService) Update(ctx context.Context, id string, e core.BudgetEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	err := s.ledger.Update(ctx, id, e)
	s.metrics.ObserveMutation(log.OpUpdate, err)
	if err != nil {
		return fmt.Errorf("update entry %s: %w", id, err)
	}
	e.ID = id
	s.logger.LogEntryMutation(ctx, log.OpUpdate, e)
	return nil
}

// Delete removes the row carrying id. A row that is already gone yields
// core.ErrEntryNotFound.
func (s *EntryService) Delete(ctx context.Context, id string) error {
	err := s.ledger.Delete(ctx, id)
	s.metrics.ObserveMutation(log.OpDelete, err)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	s.logger.LogEntryMutation(ctx, log.OpDelete, core.BudgetEntry{ID: id})
	return nil
}

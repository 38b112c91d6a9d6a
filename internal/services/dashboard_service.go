package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"budget/internal/core"
	"budget/internal/metrics"
	"budget/internal/sheets"
)

// RenderRequest carries the transient UI input of one render.
type RenderRequest struct {
	// Override replaces the saved split for this render only.
	Override *core.DistributionSplit
	// CalculatorIncome feeds the ad-hoc calculator; nil hides it.
	CalculatorIncome *decimal.Decimal
}

// View is everything the dashboard shows for one ledger snapshot.
type View struct {
	Entries []core.BudgetEntry
	Summary core.Summary

	// SavedSplit is what the settings store returned (or the default).
	SavedSplit core.DistributionSplit
	// Split is the split in effect: the override when given, else SavedSplit.
	Split   core.DistributionSplit
	Warning string

	Monthly    core.Distribution
	Calculator *core.Distribution
	Comparison []core.BucketComparison
}

// DashboardService renders the dashboard from a fresh read of the ledger and
// settings on every call.
type DashboardService struct {
	ledger   sheets.LedgerReader
	settings *SettingsService
	metrics  *metrics.Metrics
}

func NewDashboardService(ledger sheets.LedgerReader, settings *SettingsService, m *metrics.Metrics) *DashboardService {
	return &DashboardService{ledger: ledger, settings: settings, metrics: m}
}

// Render loads the ledger and the settings concurrently. A ledger failure
// fails the render; a settings failure degrades to the default split.
func (s *DashboardService) Render(ctx context.Context, req RenderRequest) (*View, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRender(time.Since(start)) }()

	var (
		rows    []core.RawRecord
		saved   core.DistributionSplit
		warning string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.ledger.ListRows(gctx)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		return nil
	})
	// Settings never fail the render, so they must not see the ledger
	// failure's cancellation either.
	g.Go(func() error {
		saved, warning = s.settings.Load(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := core.NormalizeRecords(rows)
	v := &View{
		Entries:    entries,
		Summary:    core.Aggregate(entries),
		SavedSplit: saved,
		Split:      saved,
		Warning:    warning,
	}
	if req.Override != nil {
		v.Split = *req.Override
	}
	v.Monthly = core.Distribute(v.Split, v.Summary.TotalIncome)
	v.Comparison = core.CompareBuckets(v.Monthly, v.Summary)
	if req.CalculatorIncome != nil {
		d := core.Distribute(v.Split, *req.CalculatorIncome)
		v.Calculator = &d
	}
	return v, nil
}

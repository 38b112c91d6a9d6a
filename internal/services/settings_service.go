package services

import (
	"context"
	"fmt"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/sheets"
)

// SettingsService reads and writes the distribution split.
type SettingsService struct {
	store   sheets.SettingsStore
	metrics *metrics.Metrics
	logger  *log.StructuredLogger
}

func NewSettingsService(store sheets.SettingsStore, m *metrics.Metrics, logger *log.Logger) *SettingsService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SettingsService{store: store, metrics: m, logger: log.NewStructuredLogger(logger)}
}

// Load never fails: on any store error it returns core.DefaultSplit and a
// warning meant for the user. The warning is empty on success.
func (s *SettingsService) Load(ctx context.Context) (core.DistributionSplit, string) {
	split, err := s.store.LoadSplit(ctx)
	if err == nil {
		err = split.Validate()
	}
	if err != nil {
		s.metrics.SettingsFallback()
		s.logger.LogSettingsFallback(ctx, err)
		return core.DefaultSplit, fmt.Sprintf("Error fetching saved settings: %v", err)
	}
	return split, ""
}

// Save overwrites the stored split after range-checking it.
func (s *SettingsService) Save(ctx context.Context, split core.DistributionSplit) error {
	if err := split.Validate(); err != nil {
		return err
	}
	err := s.store.SaveSplit(ctx, split)
	s.metrics.ObserveMutation(log.OpSave, err)
	if err != nil {
		return fmt.Errorf("save split: %w", err)
	}
	return nil
}

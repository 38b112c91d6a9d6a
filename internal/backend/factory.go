package backend

import (
	"context"
	"fmt"
	"log/slog"

	"budget/internal/adapters"
	"budget/internal/amqp"
	"budget/internal/config"
	"budget/internal/services"
	gsheet "budget/internal/sheets/google"
	"budget/internal/sheets/memory"
	"budget/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg *config.Config) (*BackendResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is nil")
	}
	backendType := BackendType(cfg.DataBackend)
	if !backendType.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	switch backendType {
	case SQLiteBackend:
		return f.createSQLiteBackend(cfg)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, cfg)
	case MemoryBackend:
		return f.createMemoryBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", backendType)
	}
}

func (f *DefaultFactory) createSQLiteBackend(cfg *config.Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// The publisher stays a nil interface when AMQP is off.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without mirroring", "error", err)
		} else {
			publisher = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	ledgerService := services.NewLedgerService(sqliteRepo, publisher)
	adapter := adapters.NewSQLiteAdapter(sqliteRepo, ledgerService)

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Backend: adapter,
		Cleanup: ledgerService.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, cfg *config.Config) (*BackendResult, error) {
	cli, err := NewSheetsClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return &BackendResult{Backend: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend(cfg *config.Config) (*BackendResult, error) {
	store, err := memory.NewFromFile(cfg.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", cfg.SeedFile)
	return &BackendResult{Backend: store}, nil
}

// NewSheetsClient builds a Google Sheets client from the application config.
// The mirror worker uses it directly, whatever DATA_BACKEND says.
func NewSheetsClient(ctx context.Context, cfg *config.Config) (*gsheet.Client, error) {
	opts, err := SheetsOptions(cfg)
	if err != nil {
		return nil, err
	}
	cli, err := gsheet.New(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return cli, nil
}

package backend

import (
	"context"
	"errors"
	"fmt"

	"billetera/internal/amqp"
	"billetera/internal/log"
	"billetera/internal/storage"
	"billetera/internal/storage/memory"
	"billetera/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend. A broker that cannot
// be reached is logged and the backend runs without publishing.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteStore(ctx, config)
	case PostgresBackend:
		store, err = f.createPostgresStore(ctx, config)
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Store: store, Cleanup: store.Close}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events",
				log.FieldError, err)
			return result, nil
		}
		f.logger.InfoContext(ctx, "Initialized AMQP client",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		result.Publisher = client
		result.Cleanup = func() error {
			return errors.Join(client.Close(), store.Close())
		}
	}
	return result, nil
}

func (f *DefaultFactory) createSQLiteStore(ctx context.Context, config Config) (Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createPostgresStore(ctx context.Context, config Config) (Store, error) {
	store, err := postgres.Connect(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Postgres backend")
	return store, nil
}

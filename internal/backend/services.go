package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billetera/internal/cache"
	"billetera/internal/catalog"
	"billetera/internal/config"
	"billetera/internal/core"
	"billetera/internal/ledger"
	"billetera/internal/log"
)

// Services is the assembled application core shared by the server, the
// worker and the admin CLI.
type Services struct {
	Store   Store
	Catalog *catalog.Catalog
	Ledger  *ledger.Ledger

	cacheManager *cache.Manager
	cleanup      CleanupFunc
}

// Build creates the configured backend, seeds the category catalog and
// wires the ledger to the event publisher when one is available.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Services, error) {
	if logger == nil {
		logger = log.Default()
	}
	bcfg, err := FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	categoryCache := cache.NewLRUCache[core.Category](cfg.CategoryCacheSize, cfg.CategoryCacheTTL)
	manager := cache.NewManager()
	manager.Register(categoryCache)
	manager.StartCleanup(cacheCleanupInterval(cfg.CategoryCacheTTL))

	cat := catalog.New(result.Store,
		catalog.WithCache(categoryCache),
		catalog.WithLogger(logger))

	svc := &Services{
		Store:        result.Store,
		Catalog:      cat,
		cacheManager: manager,
		cleanup:      result.Cleanup,
	}

	seeds, err := catalog.LoadSeeds(cfg.CategorySeedFile)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("load category seeds: %w", err)
	}
	if _, err := cat.EnsureSeeded(ctx, seeds); err != nil {
		svc.Close()
		return nil, fmt.Errorf("seed categories: %w", err)
	}

	opts := []ledger.Option{ledger.WithLogger(logger)}
	if result.Publisher != nil {
		opts = append(opts, ledger.WithPublisher(result.Publisher))
	}
	svc.Ledger = ledger.New(result.Store, cat, opts...)
	return svc, nil
}

func cacheCleanupInterval(ttl time.Duration) time.Duration {
	if d := ttl / 2; d > time.Second {
		return d
	}
	return time.Second
}

// Close stops the cache sweeper and releases the backend.
func (s *Services) Close() error {
	if s.cacheManager != nil {
		s.cacheManager.Stop()
	}
	if s.cleanup != nil {
		return s.cleanup()
	}
	return nil
}

// Ping reports whether the backend answers.
func (s *Services) Ping(ctx context.Context) error {
	if s.Store == nil {
		return errors.New("backend not initialized")
	}
	return s.Store.Ping(ctx)
}

// Package catalog owns the fixed set of income and expense categories:
// seeding, ordered listing, id resolution and display decoration.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"billetera/internal/cache"
	"billetera/internal/core"
	"billetera/internal/log"
)

// Store is the persistence side of the catalog.
type Store interface {
	// InsertCategories inserts the batch, silently skipping rows whose
	// (type, name) already exists, and returns how many were inserted.
	InsertCategories(ctx context.Context, batch []core.Category) (int, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
}

type Catalog struct {
	store  Store
	cache  *cache.LRUCache[core.Category]
	logger *log.Logger
	lang   language.Tag
}

type Option func(*Catalog)

// WithCache replaces the default resolve cache.
func WithCache(c *cache.LRUCache[core.Category]) Option {
	return func(cat *Catalog) { cat.cache = c }
}

func WithLogger(l *log.Logger) Option {
	return func(cat *Catalog) { cat.logger = l.WithComponent(log.ComponentCatalog) }
}

// WithLanguage sets the collation used by ListByType.
func WithLanguage(tag language.Tag) Option {
	return func(cat *Catalog) { cat.lang = tag }
}

func New(store Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:  store,
		cache:  cache.NewLRUCache[core.Category](256, time.Hour),
		logger: log.Default().WithComponent(log.ComponentCatalog),
		lang:   language.Spanish,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache exposes the resolve cache so it can be registered for cleanup.
func (c *Catalog) Cache() *cache.LRUCache[core.Category] {
	return c.cache
}

// EnsureSeeded inserts defaults in one batch when the catalog is empty.
// Calling it on a populated catalog is a no-op.
func (c *Catalog) EnsureSeeded(ctx context.Context, defaults []core.CategorySeed) (int, error) {
	existing, err := c.store.ListCategories(ctx)
	if err != nil {
		return 0, core.NewPersistenceError("list categories", err)
	}
	if len(existing) > 0 {
		c.logger.DebugContext(ctx, "Catalog already seeded", "count", len(existing))
		return 0, nil
	}

	batch := make([]core.Category, 0, len(defaults))
	for i, seed := range defaults {
		if err := seed.Validate(); err != nil {
			return 0, fmt.Errorf("seed %d (%q): %w", i, seed.Name, err)
		}
		d, _ := DecorateName(seed.Type, seed.Name)
		batch = append(batch, core.Category{
			ID:          uuid.NewString(),
			Name:        strings.TrimSpace(seed.Name),
			Type:        seed.Type,
			Color:       d.Color,
			Description: d.Description,
		})
	}

	n, err := c.store.InsertCategories(ctx, batch)
	if err != nil {
		return 0, core.NewPersistenceError("insert categories", err)
	}
	c.logger.InfoContext(ctx, "Catalog seeded", log.FieldOperation, log.OpSeed, "inserted", n)
	return n, nil
}

// ListByType returns the categories of type t ordered by name.
func (c *Catalog) ListByType(ctx context.Context, t core.TxType) ([]core.Category, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	all, err := c.store.ListCategories(ctx)
	if err != nil {
		return nil, core.NewPersistenceError("list categories", err)
	}

	out := make([]core.Category, 0, len(all))
	for _, cat := range all {
		if cat.Type == t {
			out = append(out, cat)
		}
	}

	// Collators keep internal buffers and are not safe for concurrent use.
	col := collate.New(c.lang, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		return col.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out, nil
}

// Resolve returns the category with the given id.
func (c *Catalog) Resolve(ctx context.Context, id string) (core.Category, error) {
	if strings.TrimSpace(id) == "" {
		return core.Category{}, core.ErrEmptyCategory
	}
	return c.cache.GetOrLoad(ctx, id, func(ctx context.Context) (core.Category, error) {
		all, err := c.store.ListCategories(ctx)
		if err != nil {
			return core.Category{}, core.NewPersistenceError("list categories", err)
		}
		var found *core.Category
		for i := range all {
			c.cache.Set(all[i].ID, all[i])
			if all[i].ID == id {
				found = &all[i]
			}
		}
		if found == nil {
			return core.Category{}, fmt.Errorf("resolve %s: %w", id, core.ErrCategoryNotFound)
		}
		return *found, nil
	})
}

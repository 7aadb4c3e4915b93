// Package search serves paged recipe searches through a result cache.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/savory/internal/model"
	"github.com/dukerupert/savory/internal/store"
)

// DefaultTTL is how long a cached page stays valid.
const DefaultTTL = 5 * time.Minute

const categoriesKey = keyPrefix + "facets:categories"

// Recipes is the query side of the recipe store.
type Recipes interface {
	SearchRecipes(ctx context.Context, q store.RecipeQuery) ([]model.RecipeSummary, int, error)
	Categories(ctx context.Context) ([]model.CategoryCount, error)
}

type PagedResult struct {
	Results    []model.RecipeSummary `json:"results"`
	Total      int                   `json:"total"`
	TotalPages int                   `json:"total_pages"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	Sort       string                `json:"sort"`
	Direction  string                `json:"direction"`
}

// Engine runs searches and caches their encoded results. A nil cache or a
// non-positive ttl disables caching.
type Engine struct {
	recipes Recipes
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

func NewEngine(recipes Recipes, cache Cache, ttl time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		recipes: recipes,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With("component", "search"),
	}
}

func (e *Engine) caching() bool {
	return e.cache != nil && e.ttl > 0
}

// Search returns the JSON encoding of a PagedResult. A cache hit returns the
// bytes stored by the computation that filled it.
func (e *Engine) Search(ctx context.Context, p Params) ([]byte, error) {
	p = p.Normalize()
	key := p.Key()
	return e.cached(ctx, key, func(ctx context.Context) (any, error) {
		return e.compute(ctx, p)
	})
}

// Run is Search without the cache, decoded.
func (e *Engine) Run(ctx context.Context, p Params) (*PagedResult, error) {
	return e.compute(ctx, p.Normalize())
}

func (e *Engine) compute(ctx context.Context, p Params) (*PagedResult, error) {
	results, total, err := e.recipes.SearchRecipes(ctx, p.query())
	if err != nil {
		return nil, err
	}
	return &PagedResult{
		Results:    results,
		Total:      total,
		TotalPages: (total + p.PageSize - 1) / p.PageSize,
		Page:       p.Page,
		PageSize:   p.PageSize,
		Sort:       p.Sort,
		Direction:  p.Direction,
	}, nil
}

// Categories returns the JSON encoding of the category facet.
func (e *Engine) Categories(ctx context.Context) ([]byte, error) {
	return e.cached(ctx, categoriesKey, func(ctx context.Context) (any, error) {
		return e.recipes.Categories(ctx)
	})
}

func (e *Engine) cached(ctx context.Context, key string, fn func(context.Context) (any, error)) ([]byte, error) {
	if e.caching() {
		val, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("search cache read failed", "key", key, "error", err)
		} else if ok {
			return val, nil
		}
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		result, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode search result: %w", err)
		}
		if e.caching() {
			if err := e.cache.Set(ctx, key, data, e.ttl); err != nil {
				e.logger.Warn("search cache write failed", "key", key, "error", err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// InvalidateUser drops cached searches that depend on one user's pantry.
func (e *Engine) InvalidateUser(ctx context.Context, userID int64) {
	if e.cache == nil || userID <= 0 {
		return
	}
	if err := e.cache.DeletePrefix(ctx, UserPrefix(userID)); err != nil {
		e.logger.Warn("search cache invalidation failed", "user_id", userID, "error", err)
	}
}

// InvalidateAll drops every cached search, used after recipe or ingredient
// data changes.
func (e *Engine) InvalidateAll(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	if err := e.cache.DeletePrefix(ctx, keyPrefix); err != nil {
		return fmt.Errorf("invalidate search cache: %w", err)
	}
	e.logger.Info("search cache cleared")
	return nil
}

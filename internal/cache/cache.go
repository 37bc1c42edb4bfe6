package cache

import (
	"context"
	"time"

	"millbook/backend/internal/domain"
)

// StockCache holds the inventory list between reads. Any write path that
// changes stock must call Invalidate so listings never show stale quantities.
type StockCache interface {
	Get(ctx context.Context, key string) ([]domain.InventoryItem, bool, error)
	Set(ctx context.Context, key string, items []domain.InventoryItem, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context, _ string) ([]domain.InventoryItem, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) Set(_ context.Context, _ string, _ []domain.InventoryItem, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

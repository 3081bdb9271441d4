package service

import (
	"context"
	"database/sql"
	"time"

	"storefront-service/internal/apperrors"
	"storefront-service/internal/models"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Cache is the read-through cache surface shared by the catalog, order, and
// rating services. Implemented by redisclient.Client.
type Cache interface {
	GetCached(ctx context.Context, key string, dest interface{}) (bool, error)
	SetCached(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateProduct(ctx context.Context, productID string) error
	SetIdempotentOrder(ctx context.Context, key, orderID string, ttl time.Duration) error
	GetIdempotentOrder(ctx context.Context, key string) (string, error)
}

// CatalogStore is the storage surface the catalog service needs.
type CatalogStore interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
}

// CatalogService serves customer-facing product reads through the cache.
// Inactive products are never returned.
type CatalogService struct {
	store  CatalogStore
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(st CatalogStore, cache Cache, ttl time.Duration) *CatalogService {
	return &CatalogService{store: st, cache: cache, ttl: ttl, logger: util.GetLogger()}
}

// GetProduct returns an active product by id, read-through cached.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	key := redisclient.ProductKey(id)

	var cached models.Product
	hit, err := s.cache.GetCached(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("Catalog cache read failed", zap.Error(err))
	}
	if hit {
		util.CatalogCacheHitsTotal.Inc()
		return &cached, nil
	}
	util.CatalogCacheMissesTotal.Inc()

	product, err := s.store.GetProduct(ctx, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.KindNotFound, "product %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to load product", err)
	}
	if !product.IsActive {
		return nil, apperrors.Newf(apperrors.KindNotFound, "product %s not found", id)
	}

	if err := s.cache.SetCached(ctx, key, product, s.ttl); err != nil {
		s.logger.Warn("Catalog cache write failed", zap.Error(err))
	}
	return product, nil
}

// ListProducts returns all active products, read-through cached.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	key := redisclient.ProductListKey()

	var cached []models.Product
	hit, err := s.cache.GetCached(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("Catalog cache read failed", zap.Error(err))
	}
	if hit {
		util.CatalogCacheHitsTotal.Inc()
		return cached, nil
	}
	util.CatalogCacheMissesTotal.Inc()

	products, err := s.store.ListActiveProducts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to list products", err)
	}

	if err := s.cache.SetCached(ctx, key, products, s.ttl); err != nil {
		s.logger.Warn("Catalog cache write failed", zap.Error(err))
	}
	return products, nil
}

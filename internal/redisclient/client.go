package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	productKeyPrefix = "catalog:product:"
	productListKey   = "catalog:products"
	idempotencyKey   = "idempotency:order:"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetCached reads a cached JSON value into dest. Returns false on a miss.
func (c *Client) GetCached(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return true, nil
}

// SetCached stores a JSON value with a bounded TTL. Entries expire on their
// own even if invalidation is missed.
func (c *Client) SetCached(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cached value: %w", err)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// ProductKey builds the cache key for a single product.
func ProductKey(productID string) string {
	return productKeyPrefix + productID
}

// ProductListKey is the cache key for the active-product listing.
func ProductListKey() string {
	return productListKey
}

// InvalidateProduct drops a product's cache entry and the listing entry.
// Called synchronously after every catalog write.
func (c *Client) InvalidateProduct(ctx context.Context, productID string) error {
	return c.rdb.Del(ctx, ProductKey(productID), productListKey).Err()
}

// SetIdempotentOrder maps an idempotency key to the order it created.
func (c *Client) SetIdempotentOrder(ctx context.Context, key, orderID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey+key, orderID, ttl).Err()
}

// GetIdempotentOrder returns the order id previously stored for key, or ""
// when the key is unknown.
func (c *Client) GetIdempotentOrder(ctx context.Context, key string) (string, error) {
	orderID, err := c.rdb.Get(ctx, idempotencyKey+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return orderID, nil
}

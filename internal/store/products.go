package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetProduct retrieves a product and its size variants, active or not.
// Callers serving customer traffic must check IsActive themselves.
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT id, name, category, image, rating, review_count, is_out_of_stock, is_active, created_at, updated_at FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	sizes, err := s.getProductSizes(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	product.Sizes = sizes
	return &product, nil
}

// ListActiveProducts retrieves all customer-visible products with sizes.
func (s *Store) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT id, name, category, image, rating, review_count, is_out_of_stock, is_active, created_at, updated_at FROM products WHERE is_active ORDER BY id")
	if err != nil {
		return nil, err
	}

	for i := range products {
		sizes, err := s.getProductSizes(ctx, s.db, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Sizes = sizes
	}
	return products, nil
}

func (s *Store) getProductSizes(ctx context.Context, q sqlx.QueryerContext, productID string) ([]models.ProductSize, error) {
	var sizes []models.ProductSize
	err := sqlx.SelectContext(ctx, q, &sizes,
		"SELECT product_id, position, size, volume, original_price, discounted_price, stock_count FROM product_sizes WHERE product_id = $1 ORDER BY position", productID)
	return sizes, err
}

// decrementStock performs the conditional decrement for one line item inside
// the order transaction. The availability check and the write are a single
// statement, so two concurrent orders cannot both take the last unit.
func (s *Store) decrementStock(ctx context.Context, tx *sqlx.Tx, productID, size string, quantity int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE product_sizes
		 SET stock_count = stock_count - $1
		 WHERE product_id = $2 AND size = $3
		   AND stock_count IS NOT NULL AND stock_count >= $1`,
		quantity, productID, size)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// The guarded update matched nothing: the size is gone, became
	// untracked, or has insufficient stock. Find out which.
	var stock *int
	err = tx.GetContext(ctx, &stock,
		"SELECT stock_count FROM product_sizes WHERE product_id = $1 AND size = $2",
		productID, size)
	if err == sql.ErrNoRows {
		return &SizeNotFoundError{ProductID: productID, Size: size}
	}
	if err != nil {
		return err
	}
	if stock == nil {
		// Tracking was turned off mid-flight; nothing to decrement.
		return nil
	}
	return &InsufficientStockError{
		ProductID: productID,
		Size:      size,
		Available: *stock,
		Requested: quantity,
	}
}

// RecomputeOutOfStock refreshes a product's derived out-of-stock flag:
// true iff every size has a tracked stock count that reached zero.
func (s *Store) RecomputeOutOfStock(ctx context.Context, productID string) (bool, error) {
	var out bool
	err := s.db.GetContext(ctx, &out,
		`UPDATE products p
		 SET is_out_of_stock = NOT EXISTS (
		     SELECT 1 FROM product_sizes ps
		     WHERE ps.product_id = p.id
		       AND (ps.stock_count IS NULL OR ps.stock_count > 0)
		 ), updated_at = NOW()
		 WHERE p.id = $1
		 RETURNING is_out_of_stock`,
		productID)
	if err == sql.ErrNoRows {
		return false, sql.ErrNoRows
	}
	return out, err
}

// UpdateProductRating writes back the aggregated rating and review count.
func (s *Store) UpdateProductRating(ctx context.Context, productID string, rating float64, reviewCount int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET rating = $1, review_count = $2, updated_at = NOW() WHERE id = $3",
		rating, reviewCount, productID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

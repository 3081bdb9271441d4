package store

import (
	"context"

	"storefront-service/internal/models"
)

// ListReviews retrieves every review. The matching rule for attributing
// variant reviews to a base product lives in the rating service, so the
// store stays a plain reader here.
func (s *Store) ListReviews(ctx context.Context) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.SelectContext(ctx, &reviews,
		"SELECT id, product_id, COALESCE(original_product_id, '') AS original_product_id, order_id, rating, comment, created_at FROM reviews ORDER BY created_at DESC")
	return reviews, err
}

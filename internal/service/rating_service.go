package service

import (
	"context"
	"database/sql"
	"math"
	"strings"

	"storefront-service/internal/apperrors"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// RatingStore is the storage surface the rating service needs.
type RatingStore interface {
	ListReviews(ctx context.Context) ([]models.Review, error)
	UpdateProductRating(ctx context.Context, productID string, rating float64, reviewCount int) error
}

// RatingService recomputes a product's displayed rating and review count
// from the reviews attributed to it, including variant and lineage records.
type RatingService struct {
	store  RatingStore
	cache  Cache
	logger *zap.Logger
}

// NewRatingService creates a new rating service
func NewRatingService(st RatingStore, cache Cache) *RatingService {
	return &RatingService{store: st, cache: cache, logger: util.GetLogger()}
}

// Recalculate aggregates the reviews matching productID and writes the
// result back. Zero matches reset both fields to zero, clearing stale
// ratings. Idempotent and safe to call after any review mutation.
func (s *RatingService) Recalculate(ctx context.Context, productID string) (float64, int, error) {
	ctx, span := util.StartSpan(ctx, "RatingService.Recalculate")
	defer span.End()

	reviews, err := s.store.ListReviews(ctx)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.KindInfrastructure, "failed to load reviews", err)
	}

	rating, count := Aggregate(reviews, productID)

	err = s.store.UpdateProductRating(ctx, productID, rating, count)
	if err == sql.ErrNoRows {
		return 0, 0, apperrors.Newf(apperrors.KindNotFound, "product %s not found", productID)
	}
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.KindInfrastructure, "failed to update product rating", err)
	}

	if err := s.cache.InvalidateProduct(ctx, productID); err != nil {
		s.logger.Error("Failed to invalidate catalog cache",
			zap.String("product_id", productID), zap.Error(err))
	}

	util.RatingRecalculationsTotal.Inc()
	s.logger.Info("Product rating recalculated",
		zap.String("product_id", productID),
		zap.Float64("rating", rating),
		zap.Int("review_count", count))
	return rating, count, nil
}

// Aggregate filters reviews to those attributed to productID, deduplicates
// by review identity, and returns the two-decimal mean rating and the count
// of unique matches.
func Aggregate(reviews []models.Review, productID string) (float64, int) {
	seen := map[string]bool{}
	sum, count := 0, 0
	for _, r := range reviews {
		if !MatchesProduct(r, productID) || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		sum += r.Rating
		count++
	}
	if count == 0 {
		return 0, 0
	}
	mean := float64(sum) / float64(count)
	return math.Round(mean*100) / 100, count
}

// MatchesProduct reports whether a review belongs to the base product:
// exact id, variant-suffixed id (P-...), or lineage pointer prefix.
func MatchesProduct(r models.Review, productID string) bool {
	if r.ProductID == productID {
		return true
	}
	if strings.HasPrefix(r.ProductID, productID+"-") {
		return true
	}
	return r.OriginalProductID != "" && strings.HasPrefix(r.OriginalProductID, productID)
}

package service

import (
	"context"
	"database/sql"
	"testing"

	"storefront-service/internal/apperrors"
	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRatingStore struct {
	mock.Mock
}

func (m *MockRatingStore) ListReviews(ctx context.Context) ([]models.Review, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Review), args.Error(1)
}

func (m *MockRatingStore) UpdateProductRating(ctx context.Context, productID string, rating float64, reviewCount int) error {
	args := m.Called(ctx, productID, rating, reviewCount)
	return args.Error(0)
}

func TestMatchesProduct(t *testing.T) {
	cases := []struct {
		name   string
		review models.Review
		want   bool
	}{
		{"exact id", models.Review{ProductID: "gown-1"}, true},
		{"variant suffix", models.Review{ProductID: "gown-1-red"}, true},
		{"lineage pointer", models.Review{ProductID: "legacy-9", OriginalProductID: "gown-1-old"}, true},
		{"different product", models.Review{ProductID: "gown-2"}, false},
		{"shared prefix without separator", models.Review{ProductID: "gown-10"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchesProduct(tc.review, "gown-1"))
		})
	}
}

func TestAggregate(t *testing.T) {
	reviews := []models.Review{
		{ID: "r1", ProductID: "gown-1", Rating: 5},
		{ID: "r2", ProductID: "gown-1-red", Rating: 4},
		{ID: "r2", ProductID: "gown-1-red", Rating: 4}, // duplicate row, counted once
		{ID: "r3", ProductID: "gown-2", Rating: 1},
		{ID: "r4", ProductID: "gown-1", Rating: 4},
	}

	rating, count := Aggregate(reviews, "gown-1")
	assert.Equal(t, 3, count)
	// (5+4+4)/3 = 4.333..., rounded to two decimals.
	assert.Equal(t, 4.33, rating)
}

func TestAggregate_NoMatchesResetsToZero(t *testing.T) {
	reviews := []models.Review{
		{ID: "r1", ProductID: "gown-2", Rating: 5},
	}

	rating, count := Aggregate(reviews, "gown-1")
	assert.Equal(t, 0, count)
	assert.Equal(t, 0.0, rating)
}

func TestRecalculate(t *testing.T) {
	st := new(MockRatingStore)
	cache := new(MockCache)

	st.On("ListReviews", mock.Anything).Return([]models.Review{
		{ID: "r1", ProductID: "gown-1", Rating: 5},
		{ID: "r2", ProductID: "gown-1", Rating: 3},
	}, nil)
	st.On("UpdateProductRating", mock.Anything, "gown-1", 4.0, 2).Return(nil)
	cache.On("InvalidateProduct", mock.Anything, "gown-1").Return(nil)

	svc := NewRatingService(st, cache)

	rating, count, err := svc.Recalculate(context.Background(), "gown-1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, rating)
	assert.Equal(t, 2, count)

	st.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestRecalculate_UnknownProduct(t *testing.T) {
	st := new(MockRatingStore)
	cache := new(MockCache)

	st.On("ListReviews", mock.Anything).Return([]models.Review{}, nil)
	st.On("UpdateProductRating", mock.Anything, "ghost", 0.0, 0).Return(sql.ErrNoRows)

	svc := NewRatingService(st, cache)

	_, _, err := svc.Recalculate(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

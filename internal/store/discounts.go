package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const discountColumns = "code, discount_type, discount_value, min_purchase, max_discount, valid_until, usage_limit, usage_count, is_active, created_at, updated_at"

// GetDiscountByCode retrieves a discount code. Lookup is case-insensitive;
// codes are stored upper-cased.
func (s *Store) GetDiscountByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := s.db.GetContext(ctx, &dc,
		"SELECT "+discountColumns+" FROM discount_codes WHERE code = $1",
		strings.ToUpper(code))
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// ListDiscounts retrieves all discount codes, newest first.
func (s *Store) ListDiscounts(ctx context.Context) ([]models.DiscountCode, error) {
	var codes []models.DiscountCode
	err := s.db.SelectContext(ctx, &codes,
		"SELECT "+discountColumns+" FROM discount_codes ORDER BY created_at DESC")
	return codes, err
}

// CreateDiscount inserts a new discount code and returns the persisted record.
func (s *Store) CreateDiscount(ctx context.Context, dc *models.DiscountCode) error {
	dc.Code = strings.ToUpper(dc.Code)
	return s.db.GetContext(ctx, dc,
		`INSERT INTO discount_codes (code, discount_type, discount_value, min_purchase, max_discount, valid_until, usage_limit, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+discountColumns,
		dc.Code, dc.DiscountType, dc.DiscountValue, dc.MinPurchase,
		dc.MaxDiscount, dc.ValidUntil, dc.UsageLimit, dc.IsActive)
}

// UpdateDiscount overwrites the editable fields of a code and returns the
// canonical persisted record.
func (s *Store) UpdateDiscount(ctx context.Context, dc *models.DiscountCode) error {
	err := s.db.GetContext(ctx, dc,
		`UPDATE discount_codes
		 SET discount_type = $2, discount_value = $3, min_purchase = $4,
		     max_discount = $5, valid_until = $6, usage_limit = $7,
		     is_active = $8, updated_at = NOW()
		 WHERE code = $1
		 RETURNING `+discountColumns,
		strings.ToUpper(dc.Code), dc.DiscountType, dc.DiscountValue,
		dc.MinPurchase, dc.MaxDiscount, dc.ValidUntil, dc.UsageLimit, dc.IsActive)
	if err == sql.ErrNoRows {
		return sql.ErrNoRows
	}
	return err
}

// SetDiscountActive toggles a code's active flag and returns the persisted
// record.
func (s *Store) SetDiscountActive(ctx context.Context, code string, active bool) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := s.db.GetContext(ctx, &dc,
		`UPDATE discount_codes SET is_active = $2, updated_at = NOW()
		 WHERE code = $1
		 RETURNING `+discountColumns,
		strings.ToUpper(code), active)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// DeleteDiscount removes a discount code.
func (s *Store) DeleteDiscount(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM discount_codes WHERE code = $1", strings.ToUpper(code))
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

// redeemDiscount increments usage_count inside the order transaction, but
// only while the limit allows it. An order referencing a code that no longer
// exists is committed without an increment; an exhausted code aborts the
// order.
func (s *Store) redeemDiscount(ctx context.Context, tx *sqlx.Tx, code string) error {
	code = strings.ToUpper(code)
	res, err := tx.ExecContext(ctx,
		`UPDATE discount_codes
		 SET usage_count = usage_count + 1, updated_at = NOW()
		 WHERE code = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		code)
	if err != nil {
		return fmt.Errorf("failed to redeem discount: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM discount_codes WHERE code = $1)", code); err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return &DiscountExhaustedError{Code: code}
}

package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"storefront-service/internal/apperrors"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DiscountStore is the storage surface the discount service needs.
type DiscountStore interface {
	GetDiscountByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	ListDiscounts(ctx context.Context) ([]models.DiscountCode, error)
	CreateDiscount(ctx context.Context, dc *models.DiscountCode) error
	UpdateDiscount(ctx context.Context, dc *models.DiscountCode) error
	SetDiscountActive(ctx context.Context, code string, active bool) (*models.DiscountCode, error)
	DeleteDiscount(ctx context.Context, code string) error
}

// DiscountService validates discount codes for checkout and backs the admin
// CRUD surface. Validation is a pure read: usage is only counted when an
// order using the code commits.
type DiscountService struct {
	store  DiscountStore
	logger *zap.Logger
}

// NewDiscountService creates a new discount service
func NewDiscountService(st DiscountStore) *DiscountService {
	return &DiscountService{store: st, logger: util.GetLogger()}
}

// DiscountResult is the outcome of a successful validation.
type DiscountResult struct {
	Valid          bool            `json:"valid"`
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountType   string          `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
}

// Validate checks a code against the order subtotal. Checks run in a fixed
// order and the first failure wins, so the caller always learns the specific
// unmet condition.
func (s *DiscountService) Validate(ctx context.Context, code string, orderAmount decimal.Decimal) (*DiscountResult, error) {
	ctx, span := util.StartSpan(ctx, "DiscountService.Validate")
	defer span.End()

	dc, err := s.store.GetDiscountByCode(ctx, code)
	if err == sql.ErrNoRows {
		util.DiscountValidationsTotal.WithLabelValues("invalid_code").Inc()
		return nil, apperrors.New(apperrors.KindNotFound, "invalid discount code")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to load discount code", err)
	}

	if !dc.IsActive {
		util.DiscountValidationsTotal.WithLabelValues("invalid_code").Inc()
		return nil, apperrors.New(apperrors.KindConflict, "invalid discount code")
	}
	if dc.ValidUntil != nil && !dc.ValidUntil.After(time.Now()) {
		util.DiscountValidationsTotal.WithLabelValues("expired").Inc()
		return nil, apperrors.New(apperrors.KindConflict, "discount code has expired")
	}
	if dc.UsageLimit != nil && dc.UsageCount >= *dc.UsageLimit {
		util.DiscountValidationsTotal.WithLabelValues("exhausted").Inc()
		return nil, apperrors.New(apperrors.KindConflict, "discount code usage limit reached")
	}
	if dc.MinPurchase != nil && orderAmount.LessThan(*dc.MinPurchase) {
		util.DiscountValidationsTotal.WithLabelValues("min_purchase").Inc()
		shortfall := dc.MinPurchase.Sub(orderAmount)
		return nil, apperrors.Newf(apperrors.KindConflict,
			"add %s more to use this code (minimum order: %s)",
			shortfall.String(), dc.MinPurchase.String())
	}

	amount, err := ComputeDiscount(dc, orderAmount)
	if err != nil {
		util.DiscountValidationsTotal.WithLabelValues("misconfigured").Inc()
		return nil, err
	}

	util.DiscountValidationsTotal.WithLabelValues("valid").Inc()
	return &DiscountResult{
		Valid:          true,
		Code:           dc.Code,
		DiscountAmount: amount,
		DiscountType:   dc.DiscountType,
		DiscountValue:  dc.DiscountValue,
	}, nil
}

// ComputeDiscount computes the discount amount for a usable code.
// Percentage discounts are capped at MaxDiscount when set; fixed discounts
// never exceed the subtotal.
func ComputeDiscount(dc *models.DiscountCode, orderAmount decimal.Decimal) (decimal.Decimal, error) {
	switch dc.DiscountType {
	case models.DiscountTypePercentage:
		amount := orderAmount.Mul(dc.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
		if dc.MaxDiscount != nil && amount.GreaterThan(*dc.MaxDiscount) {
			amount = *dc.MaxDiscount
		}
		return amount, nil
	case models.DiscountTypeFixed:
		if dc.DiscountValue.GreaterThan(orderAmount) {
			return orderAmount, nil
		}
		return dc.DiscountValue, nil
	default:
		return decimal.Zero, apperrors.Newf(apperrors.KindInfrastructure,
			"discount code %s has unsupported type %q", dc.Code, dc.DiscountType)
	}
}

// Create validates and persists a new discount code.
func (s *DiscountService) Create(ctx context.Context, dc *models.DiscountCode) (*models.DiscountCode, error) {
	if err := validateDiscountInput(dc); err != nil {
		return nil, err
	}
	if err := s.store.CreateDiscount(ctx, dc); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to create discount code", err)
	}
	s.logger.Info("Discount code created", zap.String("code", dc.Code))
	return dc, nil
}

// List returns every discount code, newest first.
func (s *DiscountService) List(ctx context.Context) ([]models.DiscountCode, error) {
	codes, err := s.store.ListDiscounts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to list discount codes", err)
	}
	return codes, nil
}

// Update overwrites a code's editable fields and returns the canonical
// persisted record.
func (s *DiscountService) Update(ctx context.Context, dc *models.DiscountCode) (*models.DiscountCode, error) {
	if err := validateDiscountInput(dc); err != nil {
		return nil, err
	}
	err := s.store.UpdateDiscount(ctx, dc)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.KindNotFound, "discount code not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to update discount code", err)
	}
	return dc, nil
}

// SetActive flips only the active flag and returns the persisted record.
func (s *DiscountService) SetActive(ctx context.Context, code string, active bool) (*models.DiscountCode, error) {
	dc, err := s.store.SetDiscountActive(ctx, code, active)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.KindNotFound, "discount code not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to update discount code", err)
	}
	return dc, nil
}

// Delete removes a discount code.
func (s *DiscountService) Delete(ctx context.Context, code string) error {
	err := s.store.DeleteDiscount(ctx, code)
	if err == sql.ErrNoRows {
		return apperrors.New(apperrors.KindNotFound, "discount code not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.KindInfrastructure, "failed to delete discount code", err)
	}
	s.logger.Info("Discount code deleted", zap.String("code", strings.ToUpper(code)))
	return nil
}

func validateDiscountInput(dc *models.DiscountCode) error {
	if strings.TrimSpace(dc.Code) == "" {
		return apperrors.New(apperrors.KindValidation, "code is required")
	}
	switch dc.DiscountType {
	case models.DiscountTypePercentage:
		if dc.DiscountValue.LessThanOrEqual(decimal.Zero) || dc.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return apperrors.New(apperrors.KindValidation, "percentage value must be between 0 and 100")
		}
	case models.DiscountTypeFixed:
		if dc.DiscountValue.LessThanOrEqual(decimal.Zero) {
			return apperrors.New(apperrors.KindValidation, "fixed value must be positive")
		}
		if dc.MaxDiscount != nil {
			return apperrors.New(apperrors.KindValidation, "max discount only applies to percentage codes")
		}
	default:
		return apperrors.Newf(apperrors.KindValidation, "unknown discount type %q", dc.DiscountType)
	}
	return nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/apperrors"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderStore is the storage surface the order service needs.
type OrderStore interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	CreateOrderTx(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error)
	GetAllOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	RecomputeOutOfStock(ctx context.Context, productID string) (bool, error)
}

// Publisher is the event surface the order service needs.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishStockDepleted(ctx context.Context, event *models.StockDepletedEvent) error
}

// DiscountValidator re-validates a code server-side for the trust-boundary
// total check.
type DiscountValidator interface {
	Validate(ctx context.Context, code string, orderAmount decimal.Decimal) (*DiscountResult, error)
}

// OrderService orchestrates order intake: validation, stock preflight,
// the atomic persist-and-decrement transaction, and post-commit bookkeeping.
type OrderService struct {
	store          OrderStore
	cache          Cache
	publisher      Publisher
	discounts      DiscountValidator
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st OrderStore, cache Cache, publisher Publisher, discounts DiscountValidator, idempotencyTTL time.Duration) *OrderService {
	return &OrderService{
		store:          st,
		cache:          cache,
		publisher:      publisher,
		discounts:      discounts,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// SubmitOrderRequest is the checkout submission payload. Item snapshots
// (name, price, image) are copied verbatim from the request; the server
// recomputes an expected total only to detect mismatches.
type SubmitOrderRequest struct {
	Items           []models.OrderItem `json:"items" binding:"required,min=1"`
	ShippingAddress models.Address     `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method"`
	DiscountCode    string             `json:"discount_code,omitempty"`
	DiscountAmount  decimal.Decimal    `json:"discount_amount,omitempty"`
	Total           decimal.Decimal    `json:"total"`
	IdempotencyKey  string             `json:"-"`
}

func (r *SubmitOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return apperrors.New(apperrors.KindValidation, "order must contain at least one item")
	}
	for _, item := range r.Items {
		if err := item.Validate(); err != nil {
			return apperrors.Wrap(apperrors.KindValidation, "invalid line item", err)
		}
	}
	addr := r.ShippingAddress
	switch {
	case addr.Name == "":
		return apperrors.New(apperrors.KindValidation, "shipping address: name is required")
	case addr.Email == "":
		return apperrors.New(apperrors.KindValidation, "shipping address: email is required")
	case addr.Street == "":
		return apperrors.New(apperrors.KindValidation, "shipping address: street is required")
	case addr.City == "":
		return apperrors.New(apperrors.KindValidation, "shipping address: city is required")
	case addr.Country == "":
		return apperrors.New(apperrors.KindValidation, "shipping address: country is required")
	}
	if r.PaymentMethod == "" {
		return apperrors.New(apperrors.KindValidation, "payment_method is required")
	}
	return nil
}

// SubmitOrder places an order for userID (or the guest sentinel). The order
// is rejected whole on any validation, not-found, or conflict error; once the
// transaction commits, bookkeeping failures are logged and the order is still
// returned.
func (s *OrderService) SubmitOrder(ctx context.Context, req *SubmitOrderRequest, userID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SubmitOrder")
	defer span.End()

	if userID == "" {
		userID = models.GuestUserID
	}

	if err := req.validate(); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.replayIdempotent(ctx, req.IdempotencyKey); err == nil && existing != nil {
			s.logger.Info("Duplicate order submission detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return existing, nil
		}
	}

	if err := s.preflightStock(ctx, req.Items); err != nil {
		return nil, err
	}

	s.checkClientTotal(ctx, req)

	order := &models.Order{
		ID:              generateOrderID(),
		UserID:          userID,
		Status:          models.OrderStatusPending,
		Total:           req.Total,
		DiscountCode:    strings.ToUpper(req.DiscountCode),
		DiscountAmount:  req.DiscountAmount,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
	}

	start := time.Now()
	err := s.store.CreateOrderTx(ctx, order)
	util.OrderCommitLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.mapCommitError(err)
	}

	util.OrdersPlacedTotal.Inc()
	if order.DiscountCode != "" {
		util.DiscountRedemptionsTotal.Inc()
	}
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.Total.String()))

	s.afterCommit(ctx, order, req.IdempotencyKey)

	return order, nil
}

// preflightStock checks availability for every tracked line item before
// anything is written, so most rejections happen with a friendly error and
// zero side effects. The authoritative check is the conditional decrement
// inside the commit transaction.
func (s *OrderService) preflightStock(ctx context.Context, items []models.OrderItem) error {
	for _, item := range items {
		if !item.StockTracked() {
			continue
		}

		product, err := s.store.GetProduct(ctx, item.ProductID)
		if err == sql.ErrNoRows {
			util.OrdersRejectedTotal.WithLabelValues("product_not_found").Inc()
			return apperrors.Newf(apperrors.KindNotFound, "product %s not found", item.ProductID)
		}
		if err != nil {
			return apperrors.Wrap(apperrors.KindInfrastructure, "failed to load product", err)
		}
		if !product.IsActive {
			util.OrdersRejectedTotal.WithLabelValues("product_not_found").Inc()
			return apperrors.Newf(apperrors.KindNotFound, "product %s not found", item.ProductID)
		}

		size := findSize(product, item.Size)
		if size == nil {
			util.OrdersRejectedTotal.WithLabelValues("size_not_found").Inc()
			return apperrors.Newf(apperrors.KindNotFound, "size %q not found for product %s", item.Size, item.ProductID)
		}

		if size.StockCount != nil && item.Quantity > *size.StockCount {
			util.OrdersRejectedTotal.WithLabelValues("insufficient_stock").Inc()
			util.StockConflictsTotal.Inc()
			return apperrors.Newf(apperrors.KindConflict,
				"insufficient stock for %s (size %s): available %d, requested %d",
				item.ProductID, item.Size, *size.StockCount, item.Quantity)
		}
	}
	return nil
}

// checkClientTotal recomputes the expected total from line items and a
// server-side discount re-validation, and logs when the client-supplied total
// undercuts it. The client value is still persisted; rejecting is pending a
// product decision.
func (s *OrderService) checkClientTotal(ctx context.Context, req *SubmitOrderRequest) {
	subtotal := decimal.Zero
	for _, item := range req.Items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	expected := subtotal
	if req.DiscountCode != "" {
		result, err := s.discounts.Validate(ctx, req.DiscountCode, subtotal)
		if err != nil {
			s.logger.Warn("Order carries a discount code that fails validation",
				zap.String("code", req.DiscountCode), zap.Error(err))
		} else {
			expected = subtotal.Sub(result.DiscountAmount)
		}
	}

	if req.Total.LessThan(expected) {
		util.OrderTotalMismatchTotal.Inc()
		s.logger.Warn("Client total below server expectation",
			zap.String("client_total", req.Total.String()),
			zap.String("expected_minimum", expected.String()),
			zap.String("discount_code", req.DiscountCode))
	}
}

// mapCommitError converts typed store errors from the commit transaction
// into the caller-facing taxonomy.
func (s *OrderService) mapCommitError(err error) error {
	var insufficient *store.InsufficientStockError
	if errors.As(err, &insufficient) {
		util.OrdersRejectedTotal.WithLabelValues("insufficient_stock").Inc()
		util.StockConflictsTotal.Inc()
		return apperrors.Newf(apperrors.KindConflict,
			"insufficient stock for %s (size %s): available %d, requested %d",
			insufficient.ProductID, insufficient.Size, insufficient.Available, insufficient.Requested)
	}

	var missing *store.SizeNotFoundError
	if errors.As(err, &missing) {
		util.OrdersRejectedTotal.WithLabelValues("size_not_found").Inc()
		return apperrors.Newf(apperrors.KindNotFound, "size %q not found for product %s", missing.Size, missing.ProductID)
	}

	var exhausted *store.DiscountExhaustedError
	if errors.As(err, &exhausted) {
		util.OrdersRejectedTotal.WithLabelValues("discount_exhausted").Inc()
		return apperrors.New(apperrors.KindConflict, "discount code usage limit reached")
	}

	util.OrdersRejectedTotal.WithLabelValues("storage").Inc()
	return apperrors.Wrap(apperrors.KindInfrastructure, "failed to persist order", err)
}

// afterCommit runs the best-effort bookkeeping once the order is durable:
// out-of-stock recompute, cache invalidation, idempotency record, event
// publication. Failures here are logged and never surfaced to the customer.
func (s *OrderService) afterCommit(ctx context.Context, order *models.Order, idempotencyKey string) {
	touched := map[string]bool{}
	for _, item := range order.Items {
		if item.StockTracked() {
			touched[item.ProductID] = true
		}
	}

	for productID := range touched {
		depleted, err := s.store.RecomputeOutOfStock(ctx, productID)
		if err != nil {
			s.logger.Error("Failed to recompute out-of-stock flag",
				zap.String("product_id", productID), zap.Error(err))
		} else if depleted {
			util.StockDepletedTotal.Inc()
			event := &models.StockDepletedEvent{
				BaseEvent: newBaseEvent(models.EventTypeStockDepleted),
				ProductID: productID,
			}
			if err := s.publisher.PublishStockDepleted(ctx, event); err != nil {
				s.logger.Error("Failed to publish StockDepleted event", zap.Error(err))
			}
		}

		if err := s.cache.InvalidateProduct(ctx, productID); err != nil {
			s.logger.Error("Failed to invalidate catalog cache",
				zap.String("product_id", productID), zap.Error(err))
		}
	}

	if idempotencyKey != "" {
		if err := s.cache.SetIdempotentOrder(ctx, idempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Error("Failed to record idempotency key", zap.Error(err))
		}
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderPlaced),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Email:     order.ShippingAddress.Email,
		Total:     order.Total,
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func (s *OrderService) replayIdempotent(ctx context.Context, key string) (*models.Order, error) {
	orderID, err := s.cache.GetIdempotentOrder(ctx, key)
	if err != nil || orderID == "" {
		return nil, err
	}
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves an order for its owner or an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string, isAdmin bool) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.KindNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to load order", err)
	}
	if !isAdmin && order.UserID != userID {
		return nil, apperrors.New(apperrors.KindAuthorization, "not allowed to view this order")
	}
	return order, nil
}

// ListOrders returns the caller's orders, or every order for admins,
// most recent first.
func (s *OrderService) ListOrders(ctx context.Context, userID string, isAdmin bool) ([]models.Order, error) {
	var (
		orders []models.Order
		err    error
	)
	if isAdmin {
		orders, err = s.store.GetAllOrders(ctx)
	} else {
		orders, err = s.store.GetOrdersByUserID(ctx, userID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to list orders", err)
	}
	return orders, nil
}

// UpdateStatus transitions an order's status and publishes the change.
// Returns the order and its previous status.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, newStatus string) (*models.Order, string, error) {
	if !models.ValidOrderStatus(newStatus) {
		return nil, "", apperrors.Newf(apperrors.KindValidation, "unknown order status %q", newStatus)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err == sql.ErrNoRows {
		return nil, "", apperrors.Newf(apperrors.KindNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindInfrastructure, "failed to load order", err)
	}

	previous := order.Status
	if err := s.store.UpdateOrderStatus(ctx, orderID, newStatus); err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindInfrastructure, "failed to update order status", err)
	}
	order.Status = newStatus

	event := &models.OrderStatusChangedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:        order.ID,
		PreviousStatus: previous,
		NewStatus:      newStatus,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", previous),
		zap.String("to", newStatus))
	return order, previous, nil
}

func findSize(product *models.Product, size string) *models.ProductSize {
	for i := range product.Sizes {
		if product.Sizes[i].Size == size {
			return &product.Sizes[i]
		}
	}
	return nil
}

// generateOrderID builds a time-prefixed id with a random suffix, unique and
// roughly sortable by creation time.
func generateOrderID() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

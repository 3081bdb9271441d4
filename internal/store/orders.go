package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"storefront-service/internal/models"
)

// SizeNotFoundError is returned when a line item references a size variant
// that no longer exists at commit time.
type SizeNotFoundError struct {
	ProductID string
	Size      string
}

func (e *SizeNotFoundError) Error() string {
	return fmt.Sprintf("size %q not found for product %s", e.Size, e.ProductID)
}

// InsufficientStockError is returned when the atomic decrement finds less
// stock than requested.
type InsufficientStockError struct {
	ProductID string
	Size      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s size %q: available=%d, requested=%d",
		e.ProductID, e.Size, e.Available, e.Requested)
}

// DiscountExhaustedError is returned when the code's usage limit is reached
// at commit time.
type DiscountExhaustedError struct {
	Code string
}

func (e *DiscountExhaustedError) Error() string {
	return fmt.Sprintf("discount code %s usage limit reached", e.Code)
}

// CreateOrderTx persists the order, its line items, the stock decrements for
// every tracked item, and the discount usage increment, all in one
// transaction. If any tracked item cannot be decremented or the discount code
// is exhausted, nothing is persisted and the typed error describes why.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, order,
		`INSERT INTO orders (id, user_id, status, total, discount_code, discount_amount, payment_method, shipping_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, user_id, status, total, discount_code, discount_amount, payment_method, shipping_address, created_at, updated_at`,
		order.ID, order.UserID, order.Status, order.Total, order.DiscountCode,
		order.DiscountAmount, order.PaymentMethod, order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if item.Kind == "" {
			item.Kind = models.ItemKindRegular
		}

		var gift, meas []byte
		if item.GiftDetails != nil {
			if gift, err = json.Marshal(item.GiftDetails); err != nil {
				return fmt.Errorf("failed to encode gift details: %w", err)
			}
		}
		if item.Measurements != nil {
			if meas, err = json.Marshal(item.Measurements); err != nil {
				return fmt.Errorf("failed to encode measurements: %w", err)
			}
		}

		err = tx.GetContext(ctx, &item.ID,
			`INSERT INTO order_items (order_id, kind, product_id, name, unit_price, size, volume, image, category, quantity, gift_details, measurements)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING id`,
			item.OrderID, item.Kind, item.ProductID, item.Name, item.UnitPrice,
			item.Size, item.Volume, item.Image, item.Category, item.Quantity,
			gift, meas)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}

		if item.StockTracked() {
			if err := s.decrementStock(ctx, tx, item.ProductID, item.Size, item.Quantity); err != nil {
				return err
			}
		}
	}

	if order.DiscountCode != "" {
		if err := s.redeemDiscount(ctx, tx, order.DiscountCode); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// orderItemRow mirrors OrderItem with raw JSONB payload columns.
type orderItemRow struct {
	models.OrderItem
	GiftDetailsRaw  []byte `db:"gift_details"`
	MeasurementsRaw []byte `db:"measurements"`
}

// GetOrderByID retrieves an order with its line items.
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT id, user_id, status, total, discount_code, discount_amount, payment_method, shipping_address, created_at, updated_at FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	items, err := s.getOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (s *Store) getOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var rows []orderItemRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, order_id, kind, product_id, name, unit_price, size, volume, image, category, quantity, gift_details, measurements FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(rows))
	for _, r := range rows {
		item := r.OrderItem
		if len(r.GiftDetailsRaw) > 0 {
			var gd models.GiftDetails
			if err := json.Unmarshal(r.GiftDetailsRaw, &gd); err != nil {
				return nil, fmt.Errorf("failed to decode gift details: %w", err)
			}
			item.GiftDetails = &gd
		}
		if len(r.MeasurementsRaw) > 0 {
			var m models.Measurements
			if err := json.Unmarshal(r.MeasurementsRaw, &m); err != nil {
				return nil, fmt.Errorf("failed to decode measurements: %w", err)
			}
			item.Measurements = &m
		}
		items = append(items, item)
	}
	return items, nil
}

// GetOrdersByUserID retrieves a user's orders, most recent first.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT id, user_id, status, total, discount_code, discount_amount, payment_method, shipping_address, created_at, updated_at FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetAllOrders retrieves every order, most recent first. Admin only.
func (s *Store) GetAllOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT id, user_id, status, total, discount_code, discount_amount, payment_method, shipping_address, created_at, updated_at FROM orders ORDER BY created_at DESC")
	return orders, err
}

// UpdateOrderStatus transitions an order's status. Items and total are never
// touched after creation.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
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

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

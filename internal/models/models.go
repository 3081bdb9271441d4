package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GuestUserID is the sentinel bound to orders submitted without a valid token.
const GuestUserID = "guest"

// SizeCustom marks a bespoke tailoring line item, exempt from stock tracking.
const SizeCustom = "custom"

// Line item kinds
const (
	ItemKindRegular     = "regular"
	ItemKindGiftPackage = "gift_package"
	ItemKindCustom      = "custom"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Discount types
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// Product represents a catalog product with its size variants.
type Product struct {
	ID           string        `db:"id" json:"id"`
	Name         string        `db:"name" json:"name"`
	Category     string        `db:"category" json:"category"`
	Image        string        `db:"image" json:"image,omitempty"`
	Rating       float64       `db:"rating" json:"rating"`
	ReviewCount  int           `db:"review_count" json:"review_count"`
	IsOutOfStock bool          `db:"is_out_of_stock" json:"is_out_of_stock"`
	IsActive     bool          `db:"is_active" json:"is_active"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
	Sizes        []ProductSize `json:"sizes"`
}

// ProductSize is one purchasable variant of a product. A nil StockCount means
// stock is not tracked for the variant.
type ProductSize struct {
	ProductID       string           `db:"product_id" json:"-"`
	Position        int              `db:"position" json:"-"`
	Size            string           `db:"size" json:"size"`
	Volume          string           `db:"volume" json:"volume,omitempty"`
	OriginalPrice   *decimal.Decimal `db:"original_price" json:"original_price,omitempty"`
	DiscountedPrice *decimal.Decimal `db:"discounted_price" json:"discounted_price,omitempty"`
	StockCount      *int             `db:"stock_count" json:"stock_count,omitempty"`
}

// EffectivePrice is the price actually charged for the variant:
// discounted price when present, otherwise original price, otherwise zero.
func (s ProductSize) EffectivePrice() decimal.Decimal {
	if s.DiscountedPrice != nil {
		return *s.DiscountedPrice
	}
	if s.OriginalPrice != nil {
		return *s.OriginalPrice
	}
	return decimal.Zero
}

// DiscountCode represents a redeemable discount code. Codes are stored
// upper-cased; lookups are case-insensitive.
type DiscountCode struct {
	Code          string           `db:"code" json:"code"`
	DiscountType  string           `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal  `db:"discount_value" json:"discount_value"`
	MinPurchase   *decimal.Decimal `db:"min_purchase" json:"min_purchase,omitempty"`
	MaxDiscount   *decimal.Decimal `db:"max_discount" json:"max_discount,omitempty"`
	ValidUntil    *time.Time       `db:"valid_until" json:"valid_until,omitempty"`
	UsageLimit    *int             `db:"usage_limit" json:"usage_limit,omitempty"`
	UsageCount    int              `db:"usage_count" json:"usage_count"`
	IsActive      bool             `db:"is_active" json:"is_active"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// Address is the contact/address snapshot captured at checkout.
type Address struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country"`
}

// Value implements driver.Valuer so the snapshot is stored as JSONB.
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported address scan type %T", src)
	}
}

// GiftItem is one customer-chosen product inside a gift package.
type GiftItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// GiftDetails carries the contents of a gift-package line item.
type GiftDetails struct {
	Items   []GiftItem `json:"items"`
	Message string     `json:"message,omitempty"`
}

// Measurements carries the tailoring measurements of a custom-size line item.
type Measurements struct {
	Bust   string `json:"bust,omitempty"`
	Waist  string `json:"waist,omitempty"`
	Hips   string `json:"hips,omitempty"`
	Height string `json:"height,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// Order represents a placed order. Items and total are immutable once the
// order is created; only Status transitions afterwards.
type Order struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Status          string          `db:"status" json:"status"`
	Total           decimal.Decimal `db:"total" json:"total"`
	DiscountCode    string          `db:"discount_code" json:"discount_code,omitempty"`
	DiscountAmount  decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	ShippingAddress Address         `db:"shipping_address" json:"shipping_address"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	Items           []OrderItem     `json:"items"`
}

// OrderItem is one line of an order. It is a tagged variant: Kind selects
// which of the optional payloads applies.
type OrderItem struct {
	ID           int64           `db:"id" json:"-"`
	OrderID      string          `db:"order_id" json:"-"`
	Kind         string          `db:"kind" json:"kind"`
	ProductID    string          `db:"product_id" json:"product_id"`
	Name         string          `db:"name" json:"name"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Size         string          `db:"size" json:"size,omitempty"`
	Volume       string          `db:"volume" json:"volume,omitempty"`
	Image        string          `db:"image" json:"image,omitempty"`
	Category     string          `db:"category" json:"category,omitempty"`
	Quantity     int             `db:"quantity" json:"quantity"`
	GiftDetails  *GiftDetails    `json:"gift_details,omitempty"`
	Measurements *Measurements   `json:"measurements,omitempty"`
}

// Validate checks the per-kind shape of a line item.
func (it OrderItem) Validate() error {
	if it.ProductID == "" {
		return errors.New("line item missing product_id")
	}
	if it.Quantity < 1 {
		return fmt.Errorf("line item %s: quantity must be positive", it.ProductID)
	}
	switch it.Kind {
	case ItemKindRegular, "":
		if it.Size == "" {
			return fmt.Errorf("line item %s: size is required", it.ProductID)
		}
	case ItemKindGiftPackage:
		if it.GiftDetails == nil || len(it.GiftDetails.Items) == 0 {
			return fmt.Errorf("line item %s: gift package requires selections", it.ProductID)
		}
	case ItemKindCustom:
		if it.Measurements == nil {
			return fmt.Errorf("line item %s: custom size requires measurements", it.ProductID)
		}
	default:
		return fmt.Errorf("line item %s: unknown kind %q", it.ProductID, it.Kind)
	}
	return nil
}

// StockTracked reports whether the line item participates in stock preflight
// and decrement. Gift packages and custom tailoring are fulfilled manually.
func (it OrderItem) StockTracked() bool {
	if it.Kind == ItemKindGiftPackage || it.Kind == ItemKindCustom {
		return false
	}
	return it.Size != SizeCustom
}

// Review is a customer review, read-only from this service's perspective.
// ProductID may carry a variant suffix; OriginalProductID points at the base
// product the review is ultimately attributed to.
type Review struct {
	ID                string    `db:"id" json:"id"`
	ProductID         string    `db:"product_id" json:"product_id"`
	OriginalProductID string    `db:"original_product_id" json:"original_product_id,omitempty"`
	OrderID           string    `db:"order_id" json:"order_id"`
	Rating            int       `db:"rating" json:"rating"`
	Comment           string    `db:"comment" json:"comment,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

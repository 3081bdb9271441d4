package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestOrderItemValidate(t *testing.T) {
	cases := []struct {
		name    string
		item    OrderItem
		wantErr string
	}{
		{
			name: "regular ok",
			item: OrderItem{ProductID: "p1", Size: "M", Quantity: 1},
		},
		{
			name:    "regular missing size",
			item:    OrderItem{ProductID: "p1", Quantity: 1},
			wantErr: "size is required",
		},
		{
			name:    "missing product id",
			item:    OrderItem{Size: "M", Quantity: 1},
			wantErr: "missing product_id",
		},
		{
			name:    "zero quantity",
			item:    OrderItem{ProductID: "p1", Size: "M"},
			wantErr: "quantity must be positive",
		},
		{
			name: "gift package ok",
			item: OrderItem{
				Kind: ItemKindGiftPackage, ProductID: "gift-1", Quantity: 1,
				GiftDetails: &GiftDetails{Items: []GiftItem{{ProductID: "p1", Quantity: 1}}},
			},
		},
		{
			name:    "gift package without selections",
			item:    OrderItem{Kind: ItemKindGiftPackage, ProductID: "gift-1", Quantity: 1},
			wantErr: "gift package requires selections",
		},
		{
			name: "custom ok",
			item: OrderItem{
				Kind: ItemKindCustom, ProductID: "p1", Quantity: 1,
				Measurements: &Measurements{Bust: "86"},
			},
		},
		{
			name:    "custom without measurements",
			item:    OrderItem{Kind: ItemKindCustom, ProductID: "p1", Quantity: 1},
			wantErr: "custom size requires measurements",
		},
		{
			name:    "unknown kind",
			item:    OrderItem{Kind: "mystery", ProductID: "p1", Quantity: 1},
			wantErr: "unknown kind",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.item.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestOrderItemStockTracked(t *testing.T) {
	assert.True(t, OrderItem{ProductID: "p1", Size: "M"}.StockTracked())
	assert.True(t, OrderItem{Kind: ItemKindRegular, ProductID: "p1", Size: "M"}.StockTracked())
	assert.False(t, OrderItem{Kind: ItemKindGiftPackage, ProductID: "gift-1"}.StockTracked())
	assert.False(t, OrderItem{Kind: ItemKindCustom, ProductID: "p1", Size: SizeCustom}.StockTracked())
	// A regular item sold in the custom size is still exempt.
	assert.False(t, OrderItem{ProductID: "p1", Size: SizeCustom}.StockTracked())
}

func TestEffectivePrice(t *testing.T) {
	both := ProductSize{OriginalPrice: dec("120"), DiscountedPrice: dec("99")}
	assert.Equal(t, "99", both.EffectivePrice().String())

	originalOnly := ProductSize{OriginalPrice: dec("120")}
	assert.Equal(t, "120", originalOnly.EffectivePrice().String())

	neither := ProductSize{}
	assert.True(t, neither.EffectivePrice().IsZero())
}

func TestValidOrderStatus(t *testing.T) {
	for _, s := range []string{OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled} {
		assert.True(t, ValidOrderStatus(s), s)
	}
	assert.False(t, ValidOrderStatus("PENDING"))
	assert.False(t, ValidOrderStatus("teleported"))
}

func TestAddressRoundTrip(t *testing.T) {
	addr := Address{Name: "Ada Lovelace", Email: "ada@example.com", Street: "12 Analytical Way", City: "London", Country: "United Kingdom"}

	v, err := addr.Value()
	assert.NoError(t, err)

	var decoded Address
	assert.NoError(t, decoded.Scan(v))
	assert.Equal(t, addr, decoded)
}

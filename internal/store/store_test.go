package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, smock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), smock
}

func orderColumns() []string {
	return []string{"id", "user_id", "status", "total", "discount_code", "discount_amount", "payment_method", "shipping_address", "created_at", "updated_at"}
}

func orderRow(smock sqlmock.Sqlmock, id string) *sqlmock.Rows {
	return smock.NewRows(orderColumns()).AddRow(
		id, "user-7", models.OrderStatusPending, "240", "", "0", "card",
		[]byte(`{"name":"Ada Lovelace","email":"ada@example.com","street":"12 Analytical Way","city":"London","country":"United Kingdom"}`),
		time.Now(), time.Now())
}

func trackedItem(qty int) models.OrderItem {
	return models.OrderItem{
		ProductID: "gown-1",
		Name:      "Evening Gown",
		Size:      "M",
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("120"),
	}
}

func TestCreateOrderTx_Commits(t *testing.T) {
	st, smock := newTestStore(t)

	order := &models.Order{
		ID:     "ORD-1-AAAA",
		UserID: "user-7",
		Status: models.OrderStatusPending,
		Total:  decimal.RequireFromString("240"),
		Items:  []models.OrderItem{trackedItem(2)},
	}

	smock.ExpectBegin()
	smock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(orderRow(smock, "ORD-1-AAAA"))
	smock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(smock.NewRows([]string{"id"}).AddRow(int64(1)))
	smock.ExpectExec("UPDATE product_sizes").
		WithArgs(2, "gown-1", "M").
		WillReturnResult(sqlmock.NewResult(0, 1))
	smock.ExpectCommit()

	err := st.CreateOrderTx(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.ItemKindRegular, order.Items[0].Kind)
	assert.Equal(t, int64(1), order.Items[0].ID)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestCreateOrderTx_InsufficientStockRollsBack(t *testing.T) {
	st, smock := newTestStore(t)

	order := &models.Order{
		ID:     "ORD-1-AAAA",
		UserID: "user-7",
		Status: models.OrderStatusPending,
		Total:  decimal.RequireFromString("240"),
		Items:  []models.OrderItem{trackedItem(2)},
	}

	smock.ExpectBegin()
	smock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(orderRow(smock, "ORD-1-AAAA"))
	smock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(smock.NewRows([]string{"id"}).AddRow(int64(1)))
	// The guarded decrement matches nothing; the follow-up read finds one unit.
	smock.ExpectExec("UPDATE product_sizes").
		WithArgs(2, "gown-1", "M").
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery("SELECT stock_count FROM product_sizes").
		WithArgs("gown-1", "M").
		WillReturnRows(smock.NewRows([]string{"stock_count"}).AddRow(1))
	smock.ExpectRollback()

	err := st.CreateOrderTx(context.Background(), order)
	require.Error(t, err)

	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "gown-1", insufficient.ProductID)
	assert.Equal(t, 1, insufficient.Available)
	assert.Equal(t, 2, insufficient.Requested)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestCreateOrderTx_SizeGoneRollsBack(t *testing.T) {
	st, smock := newTestStore(t)

	order := &models.Order{
		ID:     "ORD-1-AAAA",
		UserID: "user-7",
		Status: models.OrderStatusPending,
		Total:  decimal.RequireFromString("240"),
		Items:  []models.OrderItem{trackedItem(1)},
	}

	smock.ExpectBegin()
	smock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(orderRow(smock, "ORD-1-AAAA"))
	smock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(smock.NewRows([]string{"id"}).AddRow(int64(1)))
	smock.ExpectExec("UPDATE product_sizes").
		WithArgs(1, "gown-1", "M").
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery("SELECT stock_count FROM product_sizes").
		WithArgs("gown-1", "M").
		WillReturnRows(smock.NewRows([]string{"stock_count"}))
	smock.ExpectRollback()

	err := st.CreateOrderTx(context.Background(), order)
	require.Error(t, err)

	var missing *SizeNotFoundError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "M", missing.Size)
}

func TestCreateOrderTx_UntrackedMidFlightCommits(t *testing.T) {
	st, smock := newTestStore(t)

	order := &models.Order{
		ID:     "ORD-1-AAAA",
		UserID: "user-7",
		Status: models.OrderStatusPending,
		Total:  decimal.RequireFromString("120"),
		Items:  []models.OrderItem{trackedItem(1)},
	}

	smock.ExpectBegin()
	smock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(orderRow(smock, "ORD-1-AAAA"))
	smock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(smock.NewRows([]string{"id"}).AddRow(int64(1)))
	smock.ExpectExec("UPDATE product_sizes").
		WithArgs(1, "gown-1", "M").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Stock tracking was switched off between preflight and commit.
	smock.ExpectQuery("SELECT stock_count FROM product_sizes").
		WithArgs("gown-1", "M").
		WillReturnRows(smock.NewRows([]string{"stock_count"}).AddRow(nil))
	smock.ExpectCommit()

	err := st.CreateOrderTx(context.Background(), order)
	require.NoError(t, err)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestCreateOrderTx_ExemptItemSkipsDecrement(t *testing.T) {
	st, smock := newTestStore(t)

	order := &models.Order{
		ID:     "ORD-1-AAAA",
		UserID: "user-7",
		Status: models.OrderStatusPending,
		Total:  decimal.RequireFromString("60"),
		Items: []models.OrderItem{
			{
				Kind:      models.ItemKindGiftPackage,
				ProductID: "gift-box",
				Name:      "Gift Box",
				Quantity:  1,
				UnitPrice: decimal.RequireFromString("60"),
				GiftDetails: &models.GiftDetails{
					Items: []models.GiftItem{{ProductID: "scarf-1", Name: "Silk Scarf", Quantity: 1}},
				},
			},
		},
	}

	smock.ExpectBegin()
	smock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(orderRow(smock, "ORD-1-AAAA"))
	smock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(smock.NewRows([]string{"id"}).AddRow(int64(1)))
	smock.ExpectCommit()

	err := st.CreateOrderTx(context.Background(), order)
	require.NoError(t, err)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestRedeemDiscount_Exhausted(t *testing.T) {
	st, smock := newTestStore(t)

	smock.ExpectBegin()
	smock.ExpectExec("UPDATE discount_codes").
		WithArgs("SAVE10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM discount_codes WHERE code = $1)")).
		WithArgs("SAVE10").
		WillReturnRows(smock.NewRows([]string{"exists"}).AddRow(true))

	tx, err := st.db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	err = st.redeemDiscount(context.Background(), tx, "save10")
	require.Error(t, err)

	var exhausted *DiscountExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "SAVE10", exhausted.Code)
}

func TestRedeemDiscount_MissingCodeIsIgnored(t *testing.T) {
	st, smock := newTestStore(t)

	smock.ExpectBegin()
	smock.ExpectExec("UPDATE discount_codes").
		WithArgs("GHOST").
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM discount_codes WHERE code = $1)")).
		WithArgs("GHOST").
		WillReturnRows(smock.NewRows([]string{"exists"}).AddRow(false))

	tx, err := st.db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	assert.NoError(t, st.redeemDiscount(context.Background(), tx, "GHOST"))
}

func TestGetDiscountByCode_UppercasesLookup(t *testing.T) {
	st, smock := newTestStore(t)

	smock.ExpectQuery("SELECT (.+) FROM discount_codes WHERE code").
		WithArgs("SAVE10").
		WillReturnRows(smock.NewRows([]string{"code", "discount_type", "discount_value", "min_purchase", "max_discount", "valid_until", "usage_limit", "usage_count", "is_active", "created_at", "updated_at"}).
			AddRow("SAVE10", models.DiscountTypePercentage, "10", nil, nil, nil, nil, 0, true, time.Now(), time.Now()))

	dc, err := st.GetDiscountByCode(context.Background(), "save10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", dc.Code)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestUpdateOrderStatus(t *testing.T) {
	st, smock := newTestStore(t)

	smock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2")).
		WithArgs(models.OrderStatusShipped, "ORD-1-AAAA").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.UpdateOrderStatus(context.Background(), "ORD-1-AAAA", models.OrderStatusShipped))
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestUpdateOrderStatus_UnknownOrder(t *testing.T) {
	st, smock := newTestStore(t)

	smock.ExpectExec("UPDATE orders SET status").
		WithArgs(models.OrderStatusShipped, "GHOST").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateOrderStatus(context.Background(), "GHOST", models.OrderStatusShipped)
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestRecomputeOutOfStock(t *testing.T) {
	st, smock := newTestStore(t)

	smock.ExpectQuery("UPDATE products p").
		WithArgs("gown-1").
		WillReturnRows(smock.NewRows([]string{"is_out_of_stock"}).AddRow(true))

	out, err := st.RecomputeOutOfStock(context.Background(), "gown-1")
	require.NoError(t, err)
	assert.True(t, out)
}

func TestGetOrderByID_DecodesItemPayloads(t *testing.T) {
	st, smock := newTestStore(t)

	smock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs("ORD-1-AAAA").
		WillReturnRows(orderRow(smock, "ORD-1-AAAA"))
	smock.ExpectQuery("SELECT (.+) FROM order_items WHERE order_id").
		WithArgs("ORD-1-AAAA").
		WillReturnRows(smock.NewRows([]string{"id", "order_id", "kind", "product_id", "name", "unit_price", "size", "volume", "image", "category", "quantity", "gift_details", "measurements"}).
			AddRow(int64(1), "ORD-1-AAAA", models.ItemKindGiftPackage, "gift-box", "Gift Box", "60", "", "", "", "", 1,
				[]byte(`{"items":[{"product_id":"scarf-1","name":"Silk Scarf","quantity":1}]}`), nil).
			AddRow(int64(2), "ORD-1-AAAA", models.ItemKindCustom, "gown-2", "Tailored Gown", "300", "custom", "", "", "", 1,
				nil, []byte(`{"bust":"86","waist":"70"}`)))

	order, err := st.GetOrderByID(context.Background(), "ORD-1-AAAA")
	require.NoError(t, err)
	require.Len(t, order.Items, 2)

	require.NotNil(t, order.Items[0].GiftDetails)
	assert.Equal(t, "scarf-1", order.Items[0].GiftDetails.Items[0].ProductID)

	require.NotNil(t, order.Items[1].Measurements)
	assert.Equal(t, "86", order.Items[1].Measurements.Bust)
}

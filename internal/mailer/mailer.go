package mailer

import (
	"fmt"
	"strings"

	"storefront-service/config"
	"storefront-service/internal/apperrors"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer renders and delivers transactional order emails. Delivery failures
// are reported with a distinct error kind and never affect the order itself,
// which is already persisted when the mailer runs.
type Mailer struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
	logger *zap.Logger
}

// New creates a mailer from SMTP config.
func New(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: util.GetLogger(),
	}
}

func (m *Mailer) configured() bool {
	return m.cfg.Username != "" && m.cfg.Password != ""
}

// SendOrderConfirmation sends the confirmation email for a freshly placed
// order. Fails closed when SMTP credentials are absent.
func (m *Mailer) SendOrderConfirmation(order *models.Order) error {
	if !m.configured() {
		util.EmailsFailedTotal.WithLabelValues("confirmation").Inc()
		return apperrors.New(apperrors.KindInfrastructure, "smtp credentials not configured")
	}

	subject := fmt.Sprintf("Order Confirmation - %s", order.ID)
	body := BuildOrderConfirmationBody(order)

	if err := m.send(order.ShippingAddress.Email, subject, body); err != nil {
		util.EmailsFailedTotal.WithLabelValues("confirmation").Inc()
		return apperrors.Wrap(apperrors.KindEmailSend, "failed to send order confirmation", err)
	}

	util.EmailsSentTotal.WithLabelValues("confirmation").Inc()
	m.logger.Info("Order confirmation sent",
		zap.String("order_id", order.ID),
		zap.String("to", order.ShippingAddress.Email))
	return nil
}

// SendOrderUpdate sends a status-change email.
func (m *Mailer) SendOrderUpdate(order *models.Order, previousStatus, newStatus string) error {
	if !m.configured() {
		util.EmailsFailedTotal.WithLabelValues("update").Inc()
		return apperrors.New(apperrors.KindInfrastructure, "smtp credentials not configured")
	}

	subject := fmt.Sprintf("Order Update - %s", order.ID)
	body := BuildOrderUpdateBody(order, previousStatus, newStatus)

	if err := m.send(order.ShippingAddress.Email, subject, body); err != nil {
		util.EmailsFailedTotal.WithLabelValues("update").Inc()
		return apperrors.Wrap(apperrors.KindEmailSend, "failed to send order update", err)
	}

	util.EmailsSentTotal.WithLabelValues("update").Inc()
	m.logger.Info("Order update sent",
		zap.String("order_id", order.ID),
		zap.String("status", newStatus))
	return nil
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}

// Subtotal is the sum of line-item prices times quantities, in USD.
func Subtotal(order *models.Order) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range order.Items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal
}

// ShippingFee derives the shipping portion of the order total: what remains
// of the total after the discounted subtotal, floored at zero.
func ShippingFee(order *models.Order) decimal.Decimal {
	fee := order.Total.Sub(Subtotal(order)).Add(order.DiscountAmount)
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}

// BuildOrderConfirmationBody assembles the confirmation email text: a
// line-item breakdown plus subtotal, discount (only when positive), shipping,
// and total, all converted to the customer's currency at two decimals.
func BuildOrderConfirmationBody(order *models.Order) string {
	cur := CurrencyForCountry(order.ShippingAddress.Country)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", order.ShippingAddress.Name)
	fmt.Fprintf(&b, "Thank you for your order! Here is your order summary.\n\n")
	fmt.Fprintf(&b, "Order ID: %s\n", order.ID)
	fmt.Fprintf(&b, "Status: %s\n\n", order.Status)

	b.WriteString("Items\n")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "- %s%s x%d: %s\n",
			item.Name, itemVariantLabel(item), item.Quantity,
			cur.Format(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", cur.Format(Subtotal(order)))
	if order.DiscountAmount.IsPositive() {
		fmt.Fprintf(&b, "Discount (%s): -%s\n", order.DiscountCode, cur.Format(order.DiscountAmount))
	}
	fmt.Fprintf(&b, "Shipping: %s\n", cur.Format(ShippingFee(order)))
	fmt.Fprintf(&b, "Total: %s\n\n", cur.Format(order.Total))

	addr := order.ShippingAddress
	b.WriteString("Shipping to\n")
	fmt.Fprintf(&b, "%s\n%s\n%s %s %s\n%s\n", addr.Name, addr.Street, addr.City, addr.State, addr.Zip, addr.Country)

	return b.String()
}

// BuildOrderUpdateBody assembles the status-change email text.
func BuildOrderUpdateBody(order *models.Order, previousStatus, newStatus string) string {
	cur := CurrencyForCountry(order.ShippingAddress.Country)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", order.ShippingAddress.Name)
	fmt.Fprintf(&b, "Your order %s has been updated: %s -> %s.\n\n", order.ID, previousStatus, newStatus)
	fmt.Fprintf(&b, "Order total: %s\n", cur.Format(order.Total))
	return b.String()
}

func itemVariantLabel(item models.OrderItem) string {
	switch item.Kind {
	case models.ItemKindGiftPackage:
		return " (gift package)"
	case models.ItemKindCustom:
		return " (custom size)"
	}
	if item.Size == "" {
		return ""
	}
	if item.Volume != "" {
		return fmt.Sprintf(" (%s / %s)", item.Size, item.Volume)
	}
	return fmt.Sprintf(" (%s)", item.Size)
}

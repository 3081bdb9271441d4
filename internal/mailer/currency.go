package mailer

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency describes how to present USD-denominated amounts to a customer.
// Rates are a fixed lookup table so rendered emails are deterministic.
type Currency struct {
	Code   string
	Symbol string
	Rate   decimal.Decimal
}

var usd = Currency{Code: "USD", Symbol: "$", Rate: decimal.NewFromInt(1)}

var countryCurrencies = map[string]Currency{
	"united states":  usd,
	"usa":            usd,
	"canada":         {Code: "CAD", Symbol: "CA$", Rate: decimal.NewFromFloat(1.36)},
	"united kingdom": {Code: "GBP", Symbol: "£", Rate: decimal.NewFromFloat(0.79)},
	"uk":             {Code: "GBP", Symbol: "£", Rate: decimal.NewFromFloat(0.79)},
	"australia":      {Code: "AUD", Symbol: "A$", Rate: decimal.NewFromFloat(1.52)},
	"germany":        {Code: "EUR", Symbol: "€", Rate: decimal.NewFromFloat(0.92)},
	"france":         {Code: "EUR", Symbol: "€", Rate: decimal.NewFromFloat(0.92)},
	"italy":          {Code: "EUR", Symbol: "€", Rate: decimal.NewFromFloat(0.92)},
	"spain":          {Code: "EUR", Symbol: "€", Rate: decimal.NewFromFloat(0.92)},
	"netherlands":    {Code: "EUR", Symbol: "€", Rate: decimal.NewFromFloat(0.92)},
	"japan":          {Code: "JPY", Symbol: "¥", Rate: decimal.NewFromFloat(149.50)},
	"singapore":      {Code: "SGD", Symbol: "S$", Rate: decimal.NewFromFloat(1.34)},
	"india":          {Code: "INR", Symbol: "₹", Rate: decimal.NewFromFloat(83.20)},
	"united arab emirates": {Code: "AED", Symbol: "AED ", Rate: decimal.NewFromFloat(3.67)},
}

// CurrencyForCountry resolves the presentation currency for a shipping
// country. Unrecognized countries fall back to USD.
func CurrencyForCountry(country string) Currency {
	if cur, ok := countryCurrencies[strings.ToLower(strings.TrimSpace(country))]; ok {
		return cur
	}
	return usd
}

// FromUSD converts a USD amount into the currency, rounded to two decimals.
func (c Currency) FromUSD(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.Rate).Round(2)
}

// Format renders a USD amount as a customer-facing string in the currency.
func (c Currency) Format(amount decimal.Decimal) string {
	return c.Symbol + c.FromUSD(amount).StringFixed(2)
}

package utils

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the display style of the currency code,
// e.g. "$1,150.00" or "€12.50". Unknown codes fall back to plain digits.
func FormatMoney(amount decimal.Decimal, code string) string {
	currency := money.GetCurrency(code)
	if currency == nil {
		return amount.StringFixed(2) + " " + code
	}

	minor := amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
	return money.New(minor, currency.Code).Display()
}

package reports

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// Money formats an amount in shillings with grouping, e.g. "KES 12,500.00".
func Money(d decimal.Decimal) string {
	return "KES " + printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// Quantity formats a stock quantity with grouping and up to three decimals.
func Quantity(d decimal.Decimal) string {
	return printer.Sprint(number.Decimal(d.Round(3).InexactFloat64(), number.MaxFractionDigits(3)))
}

package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"NGN": "₦",
	"GHS": "GH₵",
	"KES": "KSh",
}

// DefaultCurrency is used when a listing does not carry one.
const DefaultCurrency = "NGN"

// FormatPrice renders amount with two decimals, thousands separators and the
// currency symbol, e.g. "₦12,500.00". Unknown currencies use the ISO code
// followed by a space.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	currency = strings.ToUpper(currency)
	prefix, ok := currencySymbols[currency]
	if !ok {
		prefix = currency + " "
	}

	s := amount.Abs().StringFixed(2)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if amount.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(prefix)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}

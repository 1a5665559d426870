package notification

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies whose minor unit equals the major unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// FormatAmount renders an amount in minor units as "35.00 EUR".
func FormatAmount(minor int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[currency]; ok {
		return strings.TrimSpace(decimal.New(minor, 0).StringFixed(0) + " " + currency)
	}
	return strings.TrimSpace(decimal.New(minor, -2).StringFixed(2) + " " + currency)
}

package domain

import "strings"

type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyGBP:
		return true
	}
	return false
}

// NormalizeCurrency upper-cases a wire-level currency code so "eur" and
// "EUR" compare equal everywhere past the boundary.
func NormalizeCurrency(s string) Currency {
	return Currency(strings.ToUpper(s))
}

// Package currency holds the static, compiled-in reference table of fiat
// currencies the Charge state machine (C6) accepts. It never touches the
// store; it's pure reference data, the same shape as the original's
// currency table (name, ISO alpha-3, minor-unit decimals, numeric code,
// optional min/max amount bounds in the currency's smallest unit).
package currency

import "strings"

// Currency describes one accepted fiat currency.
type Currency struct {
	Name      string
	Alpha3    string
	Decimals  uint8 // 0..3
	Numeric   uint16
	MinAmount int64 // 0 means unbounded below
	MaxAmount int64 // 0 means unbounded above
}

// Table lists every currency the ledger's Charge intake accepts.
// https://www.iban.com/currency-codes
var Table = []Currency{
	{Name: "Hong Kong Dollar", Alpha3: "HKD", Decimals: 2, Numeric: 344, MinAmount: 100, MaxAmount: 1_000_000_00},
	{Name: "US Dollar", Alpha3: "USD", Decimals: 2, Numeric: 840, MinAmount: 50, MaxAmount: 1_000_000_00},
	{Name: "Renminbi", Alpha3: "CNY", Decimals: 2, Numeric: 156, MinAmount: 100, MaxAmount: 1_000_000_00},
	{Name: "Euro", Alpha3: "EUR", Decimals: 2, Numeric: 978, MinAmount: 50, MaxAmount: 1_000_000_00},
	{Name: "Japanese Yen", Alpha3: "JPY", Decimals: 0, Numeric: 392, MinAmount: 50, MaxAmount: 1_000_000_00},
	{Name: "Pound Sterling", Alpha3: "GBP", Decimals: 2, Numeric: 826, MinAmount: 50, MaxAmount: 1_000_000_00},
	{Name: "Canadian Dollar", Alpha3: "CAD", Decimals: 2, Numeric: 124, MinAmount: 50, MaxAmount: 1_000_000_00},
	{Name: "Singapore Dollar", Alpha3: "SGD", Decimals: 2, Numeric: 702, MinAmount: 50, MaxAmount: 1_000_000_00},
	{Name: "Australian Dollar", Alpha3: "AUD", Decimals: 2, Numeric: 36, MinAmount: 50, MaxAmount: 1_000_000_00},
	{Name: "UAE Dirham", Alpha3: "AED", Decimals: 2, Numeric: 784, MinAmount: 100, MaxAmount: 1_000_000_00},
	{Name: "South Korean Won", Alpha3: "KRW", Decimals: 0, Numeric: 410, MinAmount: 500, MaxAmount: 1_000_000_000},
	{Name: "Russian Ruble", Alpha3: "RUB", Decimals: 2, Numeric: 643, MinAmount: 100, MaxAmount: 1_000_000_00},
}

var byAlpha3 map[string]Currency

func init() {
	byAlpha3 = make(map[string]Currency, len(Table))
	for _, c := range Table {
		byAlpha3[c.Alpha3] = c
	}
}

// Lookup returns the Currency for an ISO alpha-3 code, case-insensitive.
func Lookup(alpha3 string) (Currency, bool) {
	c, ok := byAlpha3[strings.ToUpper(alpha3)]
	return c, ok
}

// InBounds reports whether amount (in the currency's smallest unit) falls
// within the currency's configured min/max, when those bounds are set.
func (c Currency) InBounds(amount int64) bool {
	if c.MinAmount > 0 && amount < c.MinAmount {
		return false
	}
	if c.MaxAmount > 0 && amount > c.MaxAmount {
		return false
	}
	return true
}

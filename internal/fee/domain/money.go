package domain

import "github.com/Rhymond/go-money"

// FormatNaira renders whole Naira as a display string, e.g. ₦15,000.00.
func FormatNaira(amount int64) string {
	return money.New(amount*100, CurrencyNGN).Display()
}

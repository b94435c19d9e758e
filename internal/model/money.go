package model

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts a decimal string amount to float64.
// Servers send prices either as JSON numbers or as strings; this handles the
// string case. Thousands separators and surrounding whitespace are ignored.
// Examples: "500" → 500, "1,299.50" → 1299.5, "" → 0, "abc" → 0
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// RoundAmount rounds to two decimal places.
// Used when comparing client and server totals so float noise is not reported as drift.
func RoundAmount(f float64) float64 {
	return math.Round(f*100) / 100
}

// FormatPrice renders an amount as the display string stored on wishlist items.
func FormatPrice(currencySymbol string, amount float64) string {
	if amount == math.Trunc(amount) {
		return currencySymbol + strconv.FormatFloat(amount, 'f', 0, 64)
	}
	return currencySymbol + strconv.FormatFloat(amount, 'f', 2, 64)
}

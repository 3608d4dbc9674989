// Package models provides domain models for the option-chain and margin tools.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TransactionType represents the side of a trade sent to the margin service.
type TransactionType string

const (
	TransactionSell TransactionType = "SELL"
)

// OptionSide tags a quote as a put or a call.
type OptionSide string

const (
	SideCall OptionSide = "CE"
	SidePut  OptionSide = "PE"
)

// Valid reports whether s is one of the two known tags.
func (s OptionSide) Valid() bool {
	return s == SideCall || s == SidePut
}

// ParseOptionSide parses a side tag, case-insensitively.
func ParseOptionSide(s string) (OptionSide, error) {
	side := OptionSide(strings.ToUpper(strings.TrimSpace(s)))
	if !side.Valid() {
		return "", fmt.Errorf("invalid option side %q (must be CE or PE)", s)
	}
	return side, nil
}

// Instrument key prefixes used by Upstox.
const (
	DefaultIndexPrefix  = "NSE_INDEX"
	DefaultOptionPrefix = "NSE_OPTION"
)

// IndexKey builds the underlying index key, e.g. "NSE_INDEX|Nifty 50".
func IndexKey(prefix, instrument string) string {
	return prefix + "|" + instrument
}

// OptionKey builds the per-contract key passed to the margin service,
// e.g. "NSE_OPTION|NIFTY|22000|PE".
func OptionKey(prefix, instrument string, strike float64, side OptionSide) string {
	return fmt.Sprintf("%s|%s|%s|%s", prefix, instrument, FormatStrike(strike), side)
}

// FormatStrike renders a strike without a trailing ".0" for whole numbers.
func FormatStrike(strike float64) string {
	return strconv.FormatFloat(strike, 'f', -1, 64)
}

// ExpiryLayout is the date format Upstox expects for expiry_date.
const ExpiryLayout = "2006-01-02"

// ParseExpiry parses an expiry in YYYY-MM-DD form.
func ParseExpiry(s string) (time.Time, error) {
	t, err := time.Parse(ExpiryLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q (use YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

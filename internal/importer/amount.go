package importer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("empty amount")

// currencyCode matches an ISO 4217 code before or after the number.
var currencyCode = regexp.MustCompile(`^[A-Z]{3}\s*|\s*[A-Z]{3}$`)

// ParseAmount parses a money string as exported by banks: currency symbols,
// thousands separators, decimal commas, parenthesized or trailing-minus
// negatives are all accepted.
func ParseAmount(s string) (decimal.Decimal, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}

	s = currencyCode.ReplaceAllString(s, "")

	negative := false

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-', r == '(':
			negative = !negative
		case r == '+', r == ')':
		case r == ' ', r == '\u00a0', r == '\u202f', r == '\'':
			// grouping
		case isCurrencySymbol(r):
		default:
			return decimal.Zero, fmt.Errorf("invalid amount %q", orig)
		}
	}

	num := normalizeSeparators(b.String())
	if num == "" || num == "." {
		return decimal.Zero, fmt.Errorf("invalid amount %q", orig)
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", orig)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites digits with ',' and '.' into a plain decimal
// string. The right-most separator is the decimal point when both appear; a
// lone comma followed by one or two digits is a decimal comma.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 && len(s)-lastComma-1 > 0 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

func isCurrencySymbol(r rune) bool {
	switch r {
	case '$', '£', '€', '¥', '₹', '₩', '₽', '₺', '₪':
		return true
	}
	return false
}

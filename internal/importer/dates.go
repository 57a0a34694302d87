package importer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateOrder resolves ambiguous all-numeric dates such as 03/04/2024.
type DateOrder string

const (
	OrderMDY DateOrder = "mdy"
	OrderDMY DateOrder = "dmy"
	OrderYMD DateOrder = "ymd"
)

// ISODate is the canonical date layout.
const ISODate = "2006-01-02"

var errEmptyDate = errors.New("empty date")

// Layouts tried for dates carrying a month name, after commas are removed.
var namedDateLayouts = []string{
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"January 2 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 06",
	"Mon Jan 2 2006",
	"Monday January 2 2006",
}

// ParseDate parses the date formats seen across bank exports. ISO and
// compact YYYYMMDD forms are unambiguous; other numeric forms follow order.
func ParseDate(s string, order DateOrder) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyDate
	}

	// Drop a trailing time component: "2024-01-15T10:00:00", "01/15/2024 10:32 AM".
	if i := strings.IndexAny(s, "T "); i > 0 && looksNumericDate(s[:i]) {
		s = s[:i]
	}

	if isDigits(s) && len(s) == 8 {
		return time.Parse("20060102", s)
	}

	if looksNumericDate(s) {
		return parseNumericDate(s, order)
	}

	cleaned := strings.Join(strings.Fields(strings.NewReplacer(",", " ", ".", " ").Replace(s)), " ")
	for _, layout := range namedDateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.Format(ISODate) }

func parseNumericDate(s string, order DateOrder) (time.Time, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' || r == '.' })
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date %q", s)
		}
		nums[i] = n
	}

	var y, m, d int
	switch {
	case len(parts[0]) == 4:
		y, m, d = nums[0], nums[1], nums[2]
	case order == OrderDMY:
		d, m, y = nums[0], nums[1], nums[2]
	case order == OrderYMD:
		y, m, d = nums[0], nums[1], nums[2]
	default:
		m, d, y = nums[0], nums[1], nums[2]
	}

	// A month above 12 means the export used the other day/month order.
	if m > 12 && d <= 12 {
		m, d = d, m
	}
	y = expandYear(y)
	return makeDate(s, y, m, d)
}

// expandYear pivots two-digit years the same way time.Parse does for "06".
func expandYear(y int) int {
	if y >= 100 {
		return y
	}
	if y >= 69 {
		return 1900 + y
	}
	return 2000 + y
}

func makeDate(src string, y, m, d int) (time.Time, error) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("date %q out of range", src)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, fmt.Errorf("date %q out of range", src)
	}
	return t, nil
}

func looksNumericDate(s string) bool {
	if s == "" {
		return false
	}
	seps := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '/' || r == '-' || r == '.':
			seps++
		default:
			return false
		}
	}
	return seps == 2
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

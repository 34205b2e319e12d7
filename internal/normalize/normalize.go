// Package normalize turns the loosely formatted dates and amounts found in
// bank exports and extracted documents into canonical values.
//
// Every function here is pure and safe for concurrent use. Failures are
// reported as typed errors carrying the offending raw value so callers can
// surface them per row instead of substituting defaults.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical output format for dates.
const DateLayout = "2006-01-02"

var (
	// ErrEmpty is returned when the input is blank after trimming.
	ErrEmpty = errors.New("value is empty")

	// ErrUnparseableDate is wrapped by every DateError.
	ErrUnparseableDate = errors.New("invalid date")

	// ErrInvalidAmount is wrapped by every AmountError.
	ErrInvalidAmount = errors.New("invalid number")
)

// DateError reports a date string that matched no known form.
type DateError struct {
	Raw string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("invalid date %q", e.Raw)
}

func (e *DateError) Unwrap() error { return ErrUnparseableDate }

// AmountError reports an amount string that is not a decimal number.
type AmountError struct {
	Raw string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("invalid number %q", e.Raw)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// generalLayouts are tried in order before the numeric-group heuristic.
// US slash order is the only all-numeric form accepted here; dashed and
// day-first forms fall through to the heuristic.
var generalLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	"Mon, 2 Jan 2006",
	"Mon Jan 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
}

// numericDateRegex finds three 1-4 digit groups separated by '/' or '-'.
var numericDateRegex = regexp.MustCompile(`(\d{1,4})[/-](\d{1,4})[/-](\d{1,4})`)

// numericRegex validates a cleaned amount: integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// maxAmountExponent bounds the decimal exponent of a parsed amount.
// Larger exponents expand to millions of digits when formatted.
const maxAmountExponent = 28

// Date normalizes s to YYYY-MM-DD.
//
// A general calendar parse is attempted first. Failing that, the first
// N[/-]N[/-]N group is read as year-month-day when the first group has four
// digits, or as day-month-year when the last group does. Anything else is
// unparseable. "03-04-2024" therefore becomes 2024-04-03.
func Date(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmpty
	}

	for _, layout := range generalLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}

	m := numericDateRegex.FindStringSubmatch(s)
	if m == nil {
		return "", &DateError{Raw: s}
	}

	var y, mo, d string
	switch {
	case len(m[1]) == 4:
		y, mo, d = m[1], m[2], m[3]
	case len(m[3]) == 4:
		y, mo, d = m[3], m[2], m[1]
	default:
		return "", &DateError{Raw: s}
	}

	t, ok := calendarDate(y, mo, d)
	if !ok {
		return "", &DateError{Raw: s}
	}
	return t.Format(DateLayout), nil
}

// calendarDate builds a date from digit strings, rejecting values that
// time.Date would silently roll over (month 13, February 30).
func calendarDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if y < 1 || m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// IsCanonicalDate reports whether s is already a valid YYYY-MM-DD date.
func IsCanonicalDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Amount parses a signed decimal amount.
// Currency symbols, thousands separators, and inner whitespace are removed;
// accounting parentheses "(12.50)" mean negative. Invalid input is an error,
// never zero.
func Amount(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Zero, ErrEmpty
	}

	v := raw
	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = v[1 : len(v)-1]
	}

	v = strings.NewReplacer(
		"$", "",
		",", "",
		"\u20ac", "", // Euro
		"\u00a3", "", // Pound
		" ", "",
		"\u00a0", "",
	).Replace(v)

	if negative {
		if strings.HasPrefix(v, "-") {
			return decimal.Zero, &AmountError{Raw: raw}
		}
		v = "-" + v
	}

	if !numericRegex.MatchString(v) {
		return decimal.Zero, &AmountError{Raw: raw}
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &AmountError{Raw: raw}
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return decimal.Zero, &AmountError{Raw: raw}
	}
	return d, nil
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, Excel formula wrappers (="..."), and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// Package partialdate implements a calendar date known only to year,
// year-month, or full year-month-day precision.
//
// Values are immutable and comparable with ==. The canonical text form is
// "YYYY", "YYYY-MM" or "YYYY-MM-DD" with fixed-width, zero-padded fields;
// Parse accepts exactly that form and String produces it.
package partialdate

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinYear = 1900
	MaxYear = 9999
)

// FormatError reports text that does not match YYYY, YYYY-MM or YYYY-MM-DD.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("partial date %q: %s", e.Input, e.Reason)
}

// ValidationError reports a structurally valid value that is out of range or
// does not exist on the calendar.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "partial date: " + e.Reason
}

// PartialDate is a year with optional month and day. A zero month or day
// means the field is absent.
type PartialDate struct {
	year  int
	month int
	day   int
}

// New validates and builds a PartialDate. A nil month or day marks the field
// as absent.
func New(year int, month, day *int) (PartialDate, error) {
	m, d := 0, 0
	if month == nil && day != nil {
		return PartialDate{}, &ValidationError{Reason: "day requires month"}
	}
	if month != nil {
		if *month < 1 || *month > 12 {
			return PartialDate{}, &ValidationError{Reason: "invalid month"}
		}
		m = *month
	}
	if day != nil {
		if *day < 1 || *day > 31 {
			return PartialDate{}, &ValidationError{Reason: "invalid day"}
		}
		d = *day
	}
	if year < MinYear || year > MaxYear {
		return PartialDate{}, &ValidationError{Reason: "invalid year"}
	}
	if d != 0 {
		t := time.Date(year, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		if t.Year() != year || int(t.Month()) != m || t.Day() != d {
			return PartialDate{}, &ValidationError{Reason: "invalid date"}
		}
	}
	return PartialDate{year: year, month: m, day: d}, nil
}

// FromTime truncates t to a fully specified PartialDate. It never fails.
func FromTime(t time.Time) PartialDate {
	return PartialDate{year: t.Year(), month: int(t.Month()), day: t.Day()}
}

// Parse reads the canonical text form. Malformed text yields *FormatError;
// well-formed text naming an impossible date yields *ValidationError.
func Parse(text string) (PartialDate, error) {
	parts := strings.Split(text, "-")
	if len(parts) > 3 {
		return PartialDate{}, &FormatError{Input: text, Reason: "invalid date format"}
	}
	widths := [3]int{4, 2, 2}
	var fields [3]*int
	for i, part := range parts {
		v, err := checkInt(part, widths[i])
		if err != nil {
			return PartialDate{}, &FormatError{Input: text, Reason: err.Error()}
		}
		fields[i] = &v
	}
	return New(*fields[0], fields[1], fields[2])
}

// MustParse is Parse for literals known to be valid.
func MustParse(text string) PartialDate {
	p, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return p
}

func checkInt(value string, width int) (int, error) {
	if value == "" {
		return 0, fmt.Errorf("invalid integer")
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return 0, fmt.Errorf("invalid integer")
		}
	}
	if len(value) != width {
		return 0, fmt.Errorf("invalid integer length; expected %d", width)
	}
	return strconv.Atoi(value)
}

func (p PartialDate) Year() int { return p.year }

func (p PartialDate) Month() (int, bool) { return p.month, p.month != 0 }

func (p PartialDate) Day() (int, bool) { return p.day, p.day != 0 }

// IsZero reports whether p is the zero value, which is not a valid date.
func (p PartialDate) IsZero() bool { return p == PartialDate{} }

func (p PartialDate) Equal(other PartialDate) bool { return p == other }

func (p PartialDate) String() string {
	switch {
	case p.month == 0:
		return fmt.Sprintf("%04d", p.year)
	case p.day == 0:
		return fmt.Sprintf("%04d-%02d", p.year, p.month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", p.year, p.month, p.day)
	}
}

func (p PartialDate) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return nil, &ValidationError{Reason: "zero value"}
	}
	return []byte(p.String()), nil
}

func (p *PartialDate) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Value stores the canonical text form.
func (p PartialDate) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, &ValidationError{Reason: "zero value"}
	}
	return p.String(), nil
}

func (p *PartialDate) Scan(src any) error {
	raw, err := scanText(src)
	if err != nil {
		return err
	}
	return p.UnmarshalText([]byte(raw))
}

func scanText(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("partial date: unsupported scan type %T", src)
	}
}

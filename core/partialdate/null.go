package partialdate

import (
	"database/sql/driver"
	"strings"
)

// NullPartialDate is an optional PartialDate. Blank text stands for absent,
// matching how optional columns are persisted.
type NullPartialDate struct {
	Date  PartialDate
	Valid bool
}

func Some(p PartialDate) NullPartialDate {
	return NullPartialDate{Date: p, Valid: true}
}

func ParseNull(text string) (NullPartialDate, error) {
	if strings.TrimSpace(text) == "" {
		return NullPartialDate{}, nil
	}
	p, err := Parse(text)
	if err != nil {
		return NullPartialDate{}, err
	}
	return Some(p), nil
}

func (n NullPartialDate) String() string {
	if !n.Valid {
		return ""
	}
	return n.Date.String()
}

func (n NullPartialDate) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *NullPartialDate) UnmarshalText(text []byte) error {
	v, err := ParseNull(string(text))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

func (n NullPartialDate) Value() (driver.Value, error) {
	return n.String(), nil
}

func (n *NullPartialDate) Scan(src any) error {
	raw, err := scanText(src)
	if err != nil {
		return err
	}
	return n.UnmarshalText([]byte(raw))
}

package models

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// InstantLayout is the persisted form of every instant. It is fixed width so
// that lexical order of the stored text equals chronological order.
const InstantLayout = "2006-01-02T15:04:05.000Z"

// MinInstant and MaxInstant bound open-ended range queries. MaxInstant is the
// last millisecond InstantLayout can hold; ranges are end-exclusive, so
// only an event at exactly that millisecond falls outside an open range.
var (
	MinInstant = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxInstant = time.Date(9999, 12, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC)
)

var inputLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseInstant accepts RFC 3339 text, a zone-less date-time (read as UTC) or a
// bare date, and returns the instant in UTC.
func ParseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty instant")
	}
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 instant", s)
}

// FormatInstant renders t in InstantLayout.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

// instantRule is an ozzo rule that accepts any string ParseInstant accepts.
type instantRule struct{}

func (instantRule) Validate(value any) error {
	v, isNil := validation.Indirect(value)
	s, _ := v.(string)
	if isNil || s == "" {
		return nil
	}
	if _, err := ParseInstant(s); err != nil {
		return errors.New("must be an ISO-8601 date or date-time")
	}
	return nil
}

// IsInstant validates optional ISO-8601 text fields.
var IsInstant = instantRule{}

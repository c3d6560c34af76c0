package domain

import (
	"fmt"
	"time"
)

// DateLayout is the canonical date key format (yyyy-MM-dd).
//
// Date keys come from the client clock in its local zone. There is no
// server-side reconciliation, so travel across time zones or clock skew
// around midnight can shift which key an entry lands on.
const DateLayout = "2006-01-02"

func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, key, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// AddDays shifts a date key by n calendar days.
func AddDays(key string, n int) (string, error) {
	t, err := ParseDate(key)
	if err != nil {
		return "", err
	}
	return DateKey(t.AddDate(0, 0, n)), nil
}

func ValidDate(key string) bool {
	_, err := ParseDate(key)
	return err == nil
}

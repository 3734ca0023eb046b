// Package expiry computes how many days remain before a product expires and
// decides whether that count is a reminder milestone.
package expiry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Day is the length of one day as used by the days-left arithmetic.
const Day = 24 * time.Hour

// DateLayout is the calendar-date form stored on products and used for run
// state keys.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate is returned for expiry strings that are not a date.
	ErrInvalidDate = errors.New("invalid expiry date")

	// ErrInvalidThreshold is returned when a remind-before value has no digits.
	ErrInvalidThreshold = errors.New("invalid remind-before threshold")
)

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDate parses an expiry string. Date-only values are midnight UTC;
// timestamps keep their own offset, or UTC when they carry none.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// DaysLeft returns ceil((expiry - now) / 1 day). A product expiring later
// today yields a small positive count; a past date yields zero or less.
func DaysLeft(expiry string, now time.Time) (int, error) {
	t, err := ParseDate(expiry)
	if err != nil {
		return 0, err
	}
	return DaysUntil(t, now), nil
}

// DaysUntil is DaysLeft for an already parsed expiry instant.
func DaysUntil(expiry, now time.Time) int {
	diff := expiry.Sub(now)
	return int(math.Ceil(float64(diff) / float64(Day)))
}

// ParseRemindBefore extracts the day count from values like "7days" or
// "30 days". Every non-digit character is discarded before parsing.
func ParseRemindBefore(s string) (int, error) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, s)
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidThreshold, s, err)
	}
	return n, nil
}

// DateKey formats t as the calendar day in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

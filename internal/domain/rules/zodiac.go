package rules

import (
	"strings"
	"time"
)

// signStart is the first day of a sign within its starting month.
type signStart struct {
	month time.Month
	day   int
	sign  string
}

// Tropical zodiac boundaries in calendar order. A date belongs to the last
// entry whose start it has reached; dates before Jan 20 wrap to capricorn.
var signStarts = []signStart{
	{time.January, 20, "aquarius"},
	{time.February, 19, "pisces"},
	{time.March, 21, "aries"},
	{time.April, 20, "taurus"},
	{time.May, 21, "gemini"},
	{time.June, 21, "cancer"},
	{time.July, 23, "leo"},
	{time.August, 23, "virgo"},
	{time.September, 23, "libra"},
	{time.October, 23, "scorpio"},
	{time.November, 22, "sagittarius"},
	{time.December, 22, "capricorn"},
}

var birthDateLayouts = []string{"2006-01-02", time.RFC3339, "02.01.2006"}

// ZodiacSign returns the lower-case western sign for a birth date, or "" for
// the zero time.
func ZodiacSign(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	d = d.UTC()

	sign := "capricorn"
	for _, start := range signStarts {
		if d.Month() > start.month || (d.Month() == start.month && d.Day() >= start.day) {
			sign = start.sign
		}
	}
	return sign
}

// ZodiacFromBirthDate derives the sign from a stored birth date string.
// Unparseable input yields "".
func ZodiacFromBirthDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return ZodiacSign(t)
		}
	}
	return ""
}

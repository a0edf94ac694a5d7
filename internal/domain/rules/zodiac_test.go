package rules

import (
	"testing"
	"time"
)

func TestZodiacSignBoundaries(t *testing.T) {
	cases := []struct {
		name string
		date time.Time
		want string
	}{
		{name: "aries_start", date: time.Date(1990, time.March, 21, 0, 0, 0, 0, time.UTC), want: "aries"},
		{name: "aries_end", date: time.Date(1990, time.April, 19, 0, 0, 0, 0, time.UTC), want: "aries"},
		{name: "taurus_start", date: time.Date(1990, time.April, 20, 0, 0, 0, 0, time.UTC), want: "taurus"},
		{name: "leo_start", date: time.Date(1990, time.July, 23, 0, 0, 0, 0, time.UTC), want: "leo"},
		{name: "sagittarius_end", date: time.Date(1990, time.December, 21, 0, 0, 0, 0, time.UTC), want: "sagittarius"},
		{name: "capricorn_december", date: time.Date(1990, time.December, 31, 0, 0, 0, 0, time.UTC), want: "capricorn"},
		{name: "capricorn_january", date: time.Date(1991, time.January, 19, 0, 0, 0, 0, time.UTC), want: "capricorn"},
		{name: "aquarius_start", date: time.Date(1991, time.January, 20, 0, 0, 0, 0, time.UTC), want: "aquarius"},
		{name: "pisces_end", date: time.Date(1990, time.March, 20, 0, 0, 0, 0, time.UTC), want: "pisces"},
		{name: "zero", date: time.Time{}, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ZodiacSign(tc.date)
			if got != tc.want {
				t.Fatalf("unexpected zodiac: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestZodiacFromBirthDateLayouts(t *testing.T) {
	cases := map[string]string{
		"1994-08-01":           "leo",
		"1994-08-01T10:00:00Z": "leo",
		"01.08.1994":           "leo",
		"":                     "",
		"someday":              "",
	}
	for raw, want := range cases {
		if got := ZodiacFromBirthDate(raw); got != want {
			t.Fatalf("unexpected zodiac for %q: got %q want %q", raw, got, want)
		}
	}
}

package query

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DateTimeLayout is the output format of DateTimeFromValue, understood by
// PostgreSQL as a timestamp literal.
const DateTimeLayout = "2006-01-02 15:04:05"

var partialDateTime = regexp.MustCompile(
	`^(-?\d{1,4})(?:-(\d{1,2}))?(?:-(\d{1,2}))?(?:[ T](\d{1,2})(?::(\d{1,2}))?(?::(\d{1,2}))?)?(?:Z|[+-]\d{2}:?\d{2})?$`,
)

var fallbackLayouts = []struct {
	layout  string
	hasTime bool
}{
	{time.RFC3339, true},
	{time.RFC1123, true},
	{"2006-01-02T15:04:05.999999999", true},
	{"2006-01-02 15:04:05.999999999", true},
	{"02/01/2006 15:04", true},
	{"02/01/2006", false},
	{"January 2, 2006", false},
	{"Jan 2, 2006", false},
	{"2 January 2006", false},
	{"2 Jan 2006", false},
}

// DateTimeFromValue parses a full or partial date ("2020", "2020-05",
// "2020-05-03 10:00") into a complete timestamp. Missing parts default to
// the first valid value when first is true, else to the last one: month 1
// or 12, day 1 or the last day of the month, 00:00:00 or 23:59:59.
func DateTimeFromValue(value string, first bool) (string, bool) {
	if m := partialDateTime.FindStringSubmatch(value); m != nil {
		if s, ok := fromParts(m, first); ok {
			return s, true
		}
	}

	for _, l := range fallbackLayouts {
		t, err := time.Parse(l.layout, value)
		if err != nil || t.Year() == 0 {
			continue
		}
		if !l.hasTime && !first {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t.Format(DateTimeLayout), true
	}
	return "", false
}

// DateTimeRange returns the first and the last timestamp covered by value.
func DateTimeRange(value string) (from, to string, ok bool) {
	from, ok = DateTimeFromValue(value, true)
	if !ok {
		return "", "", false
	}
	to, ok = DateTimeFromValue(value, false)
	return from, to, ok
}

func fromParts(m []string, first bool) (string, bool) {
	// There is no year zero: 1 BC is followed by AD 1.
	year, err := strconv.Atoi(m[1])
	if err != nil || year == 0 {
		return "", false
	}

	part := func(s string, min, max, def int) (int, bool) {
		if s == "" {
			return def, true
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < min || n > max {
			return 0, false
		}
		return n, true
	}

	month, ok := part(m[2], 1, 12, pick(first, 1, 12))
	if !ok {
		return "", false
	}
	last := lastDayOfMonth(year, month)
	day, ok := part(m[3], 1, last, pick(first, 1, last))
	if !ok {
		return "", false
	}
	hour, ok := part(m[4], 0, 23, pick(first, 0, 23))
	if !ok {
		return "", false
	}
	minute, ok := part(m[5], 0, 59, pick(first, 0, 59))
	if !ok {
		return "", false
	}
	second, ok := part(m[6], 0, 59, pick(first, 0, 59))
	if !ok {
		return "", false
	}

	if year < 0 {
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d BC", -year, month, day, hour, minute, second), true
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second), true
}

func pick(first bool, a, b int) int {
	if first {
		return a
	}
	return b
}

// IsLeapYear applies the Gregorian rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func lastDayOfMonth(year, month int) int {
	switch month {
	case 2:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}

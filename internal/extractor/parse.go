package extractor

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"Monday, January 2, 2006",
	"Monday, 2 January 2006",
	time.RFC1123,
	time.RFC1123Z,
}

var (
	ordinalSuffix = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)\b`)
	multiSpace    = regexp.MustCompile(`\s+`)
	numericDate   = regexp.MustCompile(`^(\d{1,2})[/.](\d{1,2})[/.]((?:19|20)\d{2})$`)
	hasDigit      = regexp.MustCompile(`\d`)
)

// parseDate interprets a single date string. Well-known layouts are tried
// first; dateparse handles the long tail.
func parseDate(raw string) (time.Time, bool) {
	s := cleanDateString(raw)
	if s == "" || !hasDigit.MatchString(s) {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if m := numericDate.FindStringSubmatch(s); m != nil {
		return parseNumericDate(m[1], m[2], m[3])
	}
	if len(s) < 8 || len(s) > 64 {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseNumericDate resolves a/b/yyyy. A component above 12 fixes the order;
// otherwise month-first is assumed.
func parseNumericDate(a, b, year string) (time.Time, bool) {
	first, err1 := strconv.Atoi(a)
	second, err2 := strconv.Atoi(b)
	y, err3 := strconv.Atoi(year)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	month, day := first, second
	if first > 12 {
		month, day = second, first
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func cleanDateString(raw string) string {
	s := strings.TrimSpace(raw)
	s = multiSpace.ReplaceAllString(s, " ")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "Sept ", "Sep ")
	s = strings.ReplaceAll(s, ". ", " ")
	return strings.TrimSuffix(s, ".")
}

// parseHeaderDate reads an HTTP date such as a Last-Modified value.
func parseHeaderDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := http.ParseTime(value); err == nil {
		return t, true
	}
	return parseDate(value)
}

// calendarDay keeps the date as written and drops the time of day.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

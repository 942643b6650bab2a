package encoding

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthWord = `(Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?`

type datePattern struct {
	re    *regexp.Regexp
	parse func(m []string) (time.Time, bool)
}

// Patterns are tried in order; each is matched once against the whole text.
var datePatterns = []datePattern{
	{
		// Jan 10, 2025 / January 10 2025
		re: regexp.MustCompile(`\b` + monthWord + `\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`),
		parse: func(m []string) (time.Time, bool) {
			return civilDate(m[3], monthNumber(m[1]), m[2])
		},
	},
	{
		// 2025-01-10
		re: regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`),
		parse: func(m []string) (time.Time, bool) {
			return civilDate(m[1], atoi(m[2]), m[3])
		},
	},
	{
		// 10/1/2025, day first
		re: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`),
		parse: func(m []string) (time.Time, bool) {
			return civilDate(m[3], atoi(m[2]), m[1])
		},
	},
	{
		// 10 Jan 2025
		re: regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+` + monthWord + `,?\s+(\d{4})\b`),
		parse: func(m []string) (time.Time, bool) {
			return civilDate(m[3], monthNumber(m[2]), m[1])
		},
	},
}

var monthNames = map[string]time.Month{}

func init() {
	for m := time.January; m <= time.December; m++ {
		monthNames[strings.ToLower(m.String())] = m
		monthNames[strings.ToLower(m.String()[:3])] = m
	}
	monthNames["sept"] = time.September
}

// monthNumber resolves a month name or abbreviation, or 0 when the word is
// not one.
func monthNumber(word string) int {
	return int(monthNames[strings.ToLower(word)])
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// civilDate builds a UTC midnight date and rejects out-of-range values such
// as February 30.
func civilDate(year string, month int, day string) (time.Time, bool) {
	y, d := atoi(year), atoi(day)
	if month < 1 || month > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(month), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != month || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// ParseDate returns the first valid date found in src. Each pattern is
// tried against its first match only; an invalid match falls through to the
// next pattern.
func ParseDate(src string) (time.Time, bool) {
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(src)
		if m == nil {
			continue
		}
		if t, ok := p.parse(m); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

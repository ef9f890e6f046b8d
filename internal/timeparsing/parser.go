// Package timeparsing turns the date expressions users type on the command
// line into calendar days.
//
// Expressions are tried in order:
//  1. Calendar date (2026-11-02)
//  2. Compact offset (+3d, -1w, 2m)
//  3. Natural language (tomorrow, next monday)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date form accepted and produced.
const DateLayout = "2006-01-02"

// compactOffsetRe matches [+-]?(\d+)([dwmy]). Hours are meaningless for a
// due day so they are not accepted.
var compactOffsetRe = regexp.MustCompile(`^([+-]?)(\d+)([dwmy])$`)

// ParseDay resolves s relative to now and returns the calendar day it names,
// at midnight in now's location.
func ParseDay(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation(DateLayout, s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := ParseCompactOffset(s, now); err == nil {
		return startOfDay(t), nil
	}
	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return startOfDay(t), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseCompactOffset parses +3d style offsets: d days, w weeks, m months,
// y years. No sign means forward.
func ParseCompactOffset(s string, now time.Time) (time.Time, error) {
	m := compactOffsetRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact offset: %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid offset amount %q: %w", m[2], err)
	}
	if m[1] == "-" {
		n = -n
	}
	switch m[3] {
	case "w":
		return now.AddDate(0, 0, 7*n), nil
	case "m":
		return now.AddDate(0, n, 0), nil
	case "y":
		return now.AddDate(n, 0, 0), nil
	default:
		return now.AddDate(0, 0, n), nil
	}
}

// IsCompactOffset reports whether s uses the compact offset syntax.
func IsCompactOffset(s string) bool {
	return compactOffsetRe.MatchString(s)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

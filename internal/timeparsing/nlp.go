package timeparsing

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	return w
}

// ParseNaturalLanguage understands English phrases such as "tomorrow",
// "next monday" or "in 3 days". The phrase must make up the whole input so
// that a stray word inside a typo is not mistaken for a date.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil || !strings.EqualFold(strings.TrimSpace(r.Text), s) {
		return time.Time{}, fmt.Errorf("no date in %q", s)
	}
	return r.Time, nil
}

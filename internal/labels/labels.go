// Package labels maps Planner's user-facing label names (Label1..Label25)
// to the appliedCategories keys Graph stores (category1..category25).
package labels

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Max is the number of label slots Planner offers per plan.
const Max = 25

// ErrUnknownLabel is returned for names outside Label1..Label25.
var ErrUnknownLabel = errors.New("unknown label")

// Label is a label slot, 1..Max.
type Label int

// Name returns the operator-facing name, e.g. "Label3".
func (l Label) Name() string { return "Label" + strconv.Itoa(int(l)) }

// Category returns the Graph key, e.g. "category3".
func (l Label) Category() string { return "category" + strconv.Itoa(int(l)) }

func (l Label) String() string { return l.Name() }

// Valid reports whether l is within 1..Max.
func (l Label) Valid() bool { return l >= 1 && l <= Max }

// All returns every label in order.
func All() []Label {
	out := make([]Label, 0, Max)
	for i := 1; i <= Max; i++ {
		out = append(out, Label(i))
	}
	return out
}

// ParseLabel accepts "LabelN" or "categoryN", case-insensitively.
func ParseLabel(s string) (Label, error) {
	raw := strings.TrimSpace(s)
	lower := strings.ToLower(raw)
	var num string
	switch {
	case strings.HasPrefix(lower, "label"):
		num = lower[len("label"):]
	case strings.HasPrefix(lower, "category"):
		num = lower[len("category"):]
	default:
		return 0, fmt.Errorf("%w: %q (use Label1..Label%d)", ErrUnknownLabel, raw, Max)
	}
	n, err := strconv.Atoi(num)
	if err != nil || !Label(n).Valid() {
		return 0, fmt.Errorf("%w: %q (use Label1..Label%d)", ErrUnknownLabel, raw, Max)
	}
	return Label(n), nil
}

// Parse reads a comma-separated list. Duplicates collapse; order of first
// appearance is kept. An empty list is valid and means "no labels".
func Parse(csv string) ([]Label, error) {
	var out []Label
	seen := map[Label]bool{}
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, err := ParseLabel(part)
		if err != nil {
			return nil, err
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out, nil
}

// Categories builds an appliedCategories payload setting every label to true.
func Categories(ls []Label) map[string]bool {
	out := make(map[string]bool, len(ls))
	for _, l := range ls {
		out[l.Category()] = true
	}
	return out
}

// FromCategories returns the labels switched on in an appliedCategories map,
// sorted. Unknown keys are ignored.
func FromCategories(applied map[string]bool) []Label {
	var out []Label
	for key, on := range applied {
		if !on {
			continue
		}
		if l, err := ParseLabel(key); err == nil {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Names renders labels as their operator-facing names.
func Names(ls []Label) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Name())
	}
	return out
}

// Diff returns the appliedCategories patch that turns current into exactly
// want. Graph merges this map per key, so labels being removed are sent as
// false. A nil result means nothing changes.
func Diff(current map[string]bool, want []Label) map[string]any {
	patch := map[string]any{}
	wanted := Categories(want)
	for key, on := range current {
		if on && !wanted[key] {
			patch[key] = false
		}
	}
	for key := range wanted {
		if !current[key] {
			patch[key] = true
		}
	}
	if len(patch) == 0 {
		return nil
	}
	return patch
}

package monitoring

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"
)

// FilterCriteria selects alerts or incidents. Treat it as a value: build a
// new one with NewFilterCriteria or the With helpers instead of editing the
// slices in place.
type FilterCriteria struct {
	Severities []Severity `json:"severities,omitempty"`
	Statuses   []string   `json:"statuses,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Sources    []string   `json:"sources,omitempty"`
	Search     string     `json:"search,omitempty"`
	From       *time.Time `json:"dateFrom,omitempty"`
	To         *time.Time `json:"dateTo,omitempty"`
}

// NewFilterCriteria returns a normalized copy of c: lists sorted and
// deduplicated, search trimmed.
func NewFilterCriteria(c FilterCriteria) FilterCriteria {
	return FilterCriteria{
		Severities: sortedUnique(c.Severities),
		Statuses:   sortedUnique(c.Statuses),
		Categories: sortedUnique(c.Categories),
		Sources:    sortedUnique(c.Sources),
		Search:     strings.TrimSpace(c.Search),
		From:       clonePtr(c.From),
		To:         clonePtr(c.To),
	}
}

// WithSearch returns a copy of c with the search text replaced.
func (c FilterCriteria) WithSearch(q string) FilterCriteria {
	n := NewFilterCriteria(c)
	n.Search = strings.TrimSpace(q)
	return n
}

// WithSeverities returns a copy of c with the severity set replaced.
func (c FilterCriteria) WithSeverities(s ...Severity) FilterCriteria {
	n := NewFilterCriteria(c)
	n.Severities = sortedUnique(s)
	return n
}

// WithStatuses returns a copy of c with the status set replaced.
func (c FilterCriteria) WithStatuses(s ...string) FilterCriteria {
	n := NewFilterCriteria(c)
	n.Statuses = sortedUnique(s)
	return n
}

// IsZero reports whether c selects everything.
func (c FilterCriteria) IsZero() bool {
	return len(c.Severities) == 0 && len(c.Statuses) == 0 && len(c.Categories) == 0 &&
		len(c.Sources) == 0 && strings.TrimSpace(c.Search) == "" && c.From == nil && c.To == nil
}

// Key returns a canonical string for c. Criteria that select the same set
// produce the same key regardless of list order or duplicates. The key can
// be turned back into criteria with ParseFilterKey.
func (c FilterCriteria) Key() string {
	if c.IsZero() {
		return ""
	}
	n := NewFilterCriteria(c)
	var parts []string
	add := func(name string, vals ...string) {
		if len(vals) == 0 {
			return
		}
		esc := make([]string, len(vals))
		for i, v := range vals {
			esc[i] = url.QueryEscape(v)
		}
		parts = append(parts, name+"="+strings.Join(esc, ","))
	}
	sev := make([]string, len(n.Severities))
	for i, s := range n.Severities {
		sev[i] = string(s)
	}
	add("sev", sev...)
	add("st", n.Statuses...)
	add("cat", n.Categories...)
	add("src", n.Sources...)
	if n.Search != "" {
		add("q", strings.ToLower(n.Search))
	}
	if n.From != nil {
		add("from", n.From.UTC().Format(time.RFC3339Nano))
	}
	if n.To != nil {
		add("to", n.To.UTC().Format(time.RFC3339Nano))
	}
	return strings.Join(parts, ";")
}

// ParseFilterKey is the inverse of FilterCriteria.Key.
func ParseFilterKey(key string) (FilterCriteria, error) {
	var c FilterCriteria
	if key == "" {
		return c, nil
	}
	for part := range strings.SplitSeq(key, ";") {
		name, raw, ok := strings.Cut(part, "=")
		if !ok {
			return FilterCriteria{}, fmt.Errorf("filter key segment %q: %w", part, ErrInvalidInput)
		}
		var vals []string
		for v := range strings.SplitSeq(raw, ",") {
			u, err := url.QueryUnescape(v)
			if err != nil {
				return FilterCriteria{}, fmt.Errorf("filter key segment %q: %w", part, ErrInvalidInput)
			}
			vals = append(vals, u)
		}
		switch name {
		case "sev":
			for _, v := range vals {
				c.Severities = append(c.Severities, Severity(v))
			}
		case "st":
			c.Statuses = vals
		case "cat":
			c.Categories = vals
		case "src":
			c.Sources = vals
		case "q":
			c.Search = vals[0]
		case "from", "to":
			t, err := time.Parse(time.RFC3339Nano, vals[0])
			if err != nil {
				return FilterCriteria{}, fmt.Errorf("filter key %s: %w", name, ErrInvalidInput)
			}
			if name == "from" {
				c.From = &t
			} else {
				c.To = &t
			}
		default:
			return FilterCriteria{}, fmt.Errorf("unknown filter key field %q: %w", name, ErrInvalidInput)
		}
	}
	return NewFilterCriteria(c), nil
}

// Thresholds maps metric names to alert thresholds.
type Thresholds map[string]float64

// Clone returns a copy of t.
func (t Thresholds) Clone() Thresholds {
	return maps.Clone(t)
}

func sortedUnique[T ~string](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	out := make([]T, 0, len(in))
	for _, v := range in {
		if s := strings.TrimSpace(string(v)); s != "" {
			out = append(out, T(s))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

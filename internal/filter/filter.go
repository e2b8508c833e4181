// Package filter computes filtered, sorted views of alerts and incidents.
//
// All functions are pure: the input slice is never modified and the same
// arguments always yield the same output in the same order.
package filter

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/hospitalops/livemon/internal/monitoring"
)

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Sort keys.
const (
	SortTriggeredAt     = "triggeredAt"
	SortCreatedAt       = "createdAt"
	SortSeverity        = "severity"
	SortName            = "name"
	SortTitle           = "title"
	SortStatus          = "status"
	SortEscalationLevel = "escalationLevel"
)

// ParseOrder maps "asc" to Asc and anything else to Desc, the dashboard default.
func ParseOrder(s string) Order {
	if strings.EqualFold(s, string(Asc)) {
		return Asc
	}
	return Desc
}

// Apply returns the alerts matching c, sorted by sortBy. Unknown sort keys
// keep the input order. Ties keep the input order.
func Apply(alerts []monitoring.Alert, c monitoring.FilterCriteria, sortBy string, order Order) []monitoring.Alert {
	m := newMatcher(c)
	out := make([]monitoring.Alert, 0, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		if m.severity(a.Severity) && m.status(string(a.Status)) &&
			m.in(m.categories, a.Category) && m.in(m.sources, a.Source) &&
			m.text(a.Name, a.Description) && m.date(a.TriggeredAt) {
			out = append(out, a.Clone())
		}
	}

	var less func(a, b monitoring.Alert) int
	switch sortBy {
	case SortTriggeredAt:
		less = func(a, b monitoring.Alert) int { return a.TriggeredAt.Compare(b.TriggeredAt) }
	case SortSeverity:
		less = func(a, b monitoring.Alert) int { return cmp.Compare(a.Severity.Rank(), b.Severity.Rank()) }
	case SortName:
		less = func(a, b monitoring.Alert) int { return strings.Compare(a.Name, b.Name) }
	case SortStatus:
		less = func(a, b monitoring.Alert) int { return strings.Compare(string(a.Status), string(b.Status)) }
	case SortEscalationLevel:
		less = func(a, b monitoring.Alert) int { return cmp.Compare(a.EscalationLevel, b.EscalationLevel) }
	default:
		return out
	}
	slices.SortStableFunc(out, directed(less, order))
	return out
}

// ApplyIncidents is Apply for incidents. Categories and sources do not apply
// to incidents and are ignored; the date range bounds createdAt.
func ApplyIncidents(incidents []monitoring.Incident, c monitoring.FilterCriteria, sortBy string, order Order) []monitoring.Incident {
	m := newMatcher(c)
	out := make([]monitoring.Incident, 0, len(incidents))
	for i := range incidents {
		inc := &incidents[i]
		if m.severity(inc.Severity) && m.status(string(inc.Status)) &&
			m.text(inc.Title, inc.Description) && m.date(inc.CreatedAt) {
			out = append(out, inc.Clone())
		}
	}

	var less func(a, b monitoring.Incident) int
	switch sortBy {
	case SortCreatedAt:
		less = func(a, b monitoring.Incident) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortSeverity:
		less = func(a, b monitoring.Incident) int { return cmp.Compare(a.Severity.Rank(), b.Severity.Rank()) }
	case SortTitle, SortName:
		less = func(a, b monitoring.Incident) int { return strings.Compare(a.Title, b.Title) }
	case SortStatus:
		less = func(a, b monitoring.Incident) int { return strings.Compare(string(a.Status), string(b.Status)) }
	default:
		return out
	}
	slices.SortStableFunc(out, directed(less, order))
	return out
}

func directed[T any](cmpFn func(a, b T) int, order Order) func(a, b T) int {
	if order == Desc {
		return func(a, b T) int { return cmpFn(b, a) }
	}
	return cmpFn
}

type matcher struct {
	severities map[monitoring.Severity]struct{}
	statuses   map[string]struct{}
	categories map[string]struct{}
	sources    map[string]struct{}
	search     string
	from, to   *time.Time
}

func newMatcher(c monitoring.FilterCriteria) *matcher {
	return &matcher{
		severities: set(c.Severities),
		statuses:   set(c.Statuses),
		categories: set(c.Categories),
		sources:    set(c.Sources),
		search:     strings.ToLower(strings.TrimSpace(c.Search)),
		from:       c.From,
		to:         c.To,
	}
}

func (m *matcher) severity(s monitoring.Severity) bool {
	if len(m.severities) == 0 {
		return true
	}
	_, ok := m.severities[s]
	return ok
}

func (m *matcher) status(s string) bool { return m.in(m.statuses, s) }

func (m *matcher) in(allowed map[string]struct{}, v string) bool {
	if len(allowed) == 0 {
		return true
	}
	_, ok := allowed[v]
	return ok
}

func (m *matcher) text(fields ...string) bool {
	if m.search == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), m.search) {
			return true
		}
	}
	return false
}

// date bounds are inclusive.
func (m *matcher) date(t time.Time) bool {
	if m.from != nil && t.Before(*m.from) {
		return false
	}
	if m.to != nil && t.After(*m.to) {
		return false
	}
	return true
}

func set[T comparable](vals []T) map[T]struct{} {
	if len(vals) == 0 {
		return nil
	}
	out := make(map[T]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}

package api

import (
	"net/url"
	"strings"
	"time"

	"github.com/hospitalops/livemon/internal/monitoring"
)

// parseCriteria reads filter criteria from query parameters. List
// parameters may repeat or hold comma separated values. Dates are RFC3339.
func parseCriteria(q url.Values) (monitoring.FilterCriteria, error) {
	var c monitoring.FilterCriteria
	for _, s := range listParam(q, "severity") {
		sev := monitoring.Severity(strings.ToLower(s))
		if !sev.Valid() {
			return c, invalidInput("unknown severity %q", s)
		}
		c.Severities = append(c.Severities, sev)
	}
	c.Statuses = listParam(q, "status")
	c.Categories = listParam(q, "category")
	c.Sources = listParam(q, "source")
	c.Search = q.Get("search")

	var err error
	if c.From, err = timeParam(q, "dateFrom"); err != nil {
		return c, err
	}
	if c.To, err = timeParam(q, "dateTo"); err != nil {
		return c, err
	}
	if c.From != nil && c.To != nil && c.To.Before(*c.From) {
		return c, invalidInput("dateTo is before dateFrom")
	}
	return monitoring.NewFilterCriteria(c), nil
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for part := range strings.SplitSeq(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func timeParam(q url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, invalidInput("%s must be RFC3339, got %q", name, raw)
	}
	return &t, nil
}

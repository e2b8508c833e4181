package filter

import "github.com/hospitalops/livemon/internal/monitoring"

// Summary counts alerts for the dashboard header.
type Summary struct {
	Total      int                            `json:"total"`
	Active     int                            `json:"active"`
	BySeverity map[monitoring.Severity]int    `json:"bySeverity"`
	ByStatus   map[monitoring.AlertStatus]int `json:"byStatus"`
	ByCategory map[string]int                 `json:"byCategory"`
}

// Summarize counts alerts by severity, status and category.
func Summarize(alerts []monitoring.Alert) Summary {
	s := Summary{
		Total:      len(alerts),
		BySeverity: make(map[monitoring.Severity]int),
		ByStatus:   make(map[monitoring.AlertStatus]int),
		ByCategory: make(map[string]int),
	}
	for i := range alerts {
		a := &alerts[i]
		s.BySeverity[a.Severity]++
		s.ByStatus[a.Status]++
		if a.Category != "" {
			s.ByCategory[a.Category]++
		}
		if a.Status == monitoring.AlertActive {
			s.Active++
		}
	}
	return s
}

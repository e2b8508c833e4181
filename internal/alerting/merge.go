package alerting

import (
	"time"

	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

// mergeAlert keeps the counters of an alert monotone across accepted
// writes. The incoming status is taken only when the state machine can reach
// it from the stored one; otherwise the stored lifecycle fields are kept.
// Suppressed returns to active only once its window has elapsed at now.
func mergeAlert(prev, next monitoring.Alert, now time.Time) monitoring.Alert {
	if prev.ID != next.ID {
		return next
	}
	if prev.Status == monitoring.AlertResolved {
		if next.Status != monitoring.AlertResolved {
			return prev
		}
		next.EscalationLevel = prev.EscalationLevel
	}
	if !statusReachable(&prev, next.Status, now) {
		next.Status = prev.Status
		next.AcknowledgedBy = prev.AcknowledgedBy
		next.AcknowledgedAt = prev.AcknowledgedAt
		next.SuppressedUntil = prev.SuppressedUntil
	}
	next.EscalationLevel = max(next.EscalationLevel, prev.EscalationLevel)
	next.NotificationsSent = max(next.NotificationsSent, prev.NotificationsSent)
	return next
}

// statusReachable reports whether to can follow prev's status through zero
// or more transitions. Expiry is only followed out of prev itself and only
// when its suppression has elapsed.
func statusReachable(prev *monitoring.Alert, to monitoring.AlertStatus, now time.Time) bool {
	if prev.Status == to {
		return true
	}
	seen := map[monitoring.AlertStatus]bool{prev.Status: true}
	queue := []monitoring.AlertStatus{prev.Status}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for cmd, next := range alertTransitions[s] {
			if cmd == CmdExpire && (s != prev.Status || !prev.SuppressionElapsed(now)) {
				continue
			}
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// NewAlertMerger returns the merger for single alert records stored under
// per-entity keys. now decides suppression expiry.
func NewAlertMerger(now func() time.Time) querycache.Merger {
	return func(old, incoming any) any {
		prev, ok := old.(monitoring.Alert)
		next, ok2 := incoming.(monitoring.Alert)
		if !ok || !ok2 {
			return incoming
		}
		return mergeAlert(prev, next, now())
	}
}

// NewAlertListMerger returns the merger for alert collections, applied item
// by item. The incoming list defines membership and order.
func NewAlertListMerger(now func() time.Time) querycache.Merger {
	return func(old, incoming any) any {
		prev, ok := old.([]monitoring.Alert)
		next, ok2 := incoming.([]monitoring.Alert)
		if !ok || !ok2 {
			return incoming
		}
		byID := make(map[string]monitoring.Alert, len(prev))
		for _, a := range prev {
			byID[a.ID] = a
		}
		at := now()
		out := make([]monitoring.Alert, len(next))
		for i, a := range next {
			if p, found := byID[a.ID]; found {
				a = mergeAlert(p, a, at)
			}
			out[i] = a
		}
		return out
	}
}

// mergeIncident makes incident resolution terminal.
func mergeIncident(prev, next monitoring.Incident) monitoring.Incident {
	if prev.ID == next.ID && prev.Status == monitoring.IncidentResolved && next.Status != monitoring.IncidentResolved {
		return prev
	}
	return next
}

// IncidentMerger merges single incident records.
func IncidentMerger(old, incoming any) any {
	prev, ok := old.(monitoring.Incident)
	next, ok2 := incoming.(monitoring.Incident)
	if !ok || !ok2 {
		return incoming
	}
	return mergeIncident(prev, next)
}

// IncidentListMerger merges incident collections item by item.
func IncidentListMerger(old, incoming any) any {
	prev, ok := old.([]monitoring.Incident)
	next, ok2 := incoming.([]monitoring.Incident)
	if !ok || !ok2 {
		return incoming
	}
	byID := make(map[string]monitoring.Incident, len(prev))
	for _, inc := range prev {
		byID[inc.ID] = inc
	}
	out := make([]monitoring.Incident, len(next))
	for i, inc := range next {
		if p, found := byID[inc.ID]; found {
			inc = mergeIncident(p, inc)
		}
		out[i] = inc
	}
	return out
}

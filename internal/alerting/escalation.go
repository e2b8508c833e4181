package alerting

import (
	"time"

	"github.com/hospitalops/livemon/internal/monitoring"
)

const (
	DefaultEscalationRepeats = 3
	DefaultEscalationWindow  = 15 * time.Minute
)

// EscalationPolicy decides when repeated triggers of the same alert warrant
// an escalation. An alert qualifies while it is an active critical alert
// whose condition is still breached; its trigger times are counted over a
// sliding window and the policy fires once the count reaches Repeats.
type EscalationPolicy struct {
	Repeats int
	Window  time.Duration
	tracker *RepeatTracker
}

// NewEscalationPolicy returns a policy. Non-positive arguments fall back to
// the defaults.
func NewEscalationPolicy(repeats int, window time.Duration) *EscalationPolicy {
	if repeats <= 0 {
		repeats = DefaultEscalationRepeats
	}
	if window <= 0 {
		window = DefaultEscalationWindow
	}
	return &EscalationPolicy{Repeats: repeats, Window: window, tracker: NewRepeatTracker()}
}

// Observe records a trigger of a at time at and reports whether the alert
// should be escalated now. A positive answer resets the count so the next
// escalation needs another full set of repeats.
func (p *EscalationPolicy) Observe(a *monitoring.Alert, at time.Time) bool {
	if !qualifiesForEscalation(a) {
		p.tracker.Reset(a.ID)
		return false
	}
	p.tracker.Record(a.ID, at)
	if p.tracker.CountWithin(a.ID, p.Window, at) < p.Repeats {
		return false
	}
	p.tracker.Reset(a.ID)
	return true
}

// Prune forgets alerts that have not triggered recently.
func (p *EscalationPolicy) Prune(now time.Time) {
	p.tracker.Prune(now)
}

func qualifiesForEscalation(a *monitoring.Alert) bool {
	return a.Severity == monitoring.SeverityCritical &&
		a.Status == monitoring.AlertActive &&
		a.AcknowledgedBy == "" &&
		StillBreached(a)
}

package monitoring

import (
	"slices"
	"time"
)

// Condition operators. Symbolic and word forms are both accepted on the wire.
const (
	OperatorGreaterThan    = "gt"
	OperatorLessThan       = "lt"
	OperatorGreaterOrEqual = "gte"
	OperatorLessOrEqual    = "lte"
	OperatorEqual          = "eq"
	OperatorNotEqual       = "neq"
)

// Condition is the metric comparison that triggered an alert.
type Condition struct {
	Metric    string  `json:"metric"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
	Unit      string  `json:"unit,omitempty"`
}

// AutomatedAction is a side effect attached to an alert by the remote system.
type AutomatedAction struct {
	Type       ActionType `json:"type"`
	Target     string     `json:"target"`
	Executed   bool       `json:"executed"`
	ExecutedAt *time.Time `json:"executedAt,omitempty"`
}

// Alert is a condition breach record with a four-state lifecycle.
type Alert struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Severity          Severity          `json:"severity"`
	Status            AlertStatus       `json:"status"`
	Category          string            `json:"category,omitempty"`
	Source            string            `json:"source,omitempty"`
	Condition         Condition         `json:"condition"`
	CurrentValue      *float64          `json:"currentValue,omitempty"`
	TriggeredAt       time.Time         `json:"triggeredAt"`
	EscalationLevel   int               `json:"escalationLevel"`
	NotificationsSent int               `json:"notificationsSent"`
	AcknowledgedBy    string            `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt    *time.Time        `json:"acknowledgedAt,omitempty"`
	ResolvedBy        string            `json:"resolvedBy,omitempty"`
	ResolvedAt        *time.Time        `json:"resolvedAt,omitempty"`
	Resolution        string            `json:"resolution,omitempty"`
	SuppressedUntil   *time.Time        `json:"suppressedUntil,omitempty"`
	Actions           []AutomatedAction `json:"actions,omitempty"`
	IncidentID        string            `json:"incidentId,omitempty"`
}

// Clone returns a deep copy of a.
func (a Alert) Clone() Alert {
	c := a
	c.CurrentValue = clonePtr(a.CurrentValue)
	c.AcknowledgedAt = clonePtr(a.AcknowledgedAt)
	c.ResolvedAt = clonePtr(a.ResolvedAt)
	c.SuppressedUntil = clonePtr(a.SuppressedUntil)
	if a.Actions != nil {
		c.Actions = make([]AutomatedAction, len(a.Actions))
		for i, act := range a.Actions {
			act.ExecutedAt = clonePtr(act.ExecutedAt)
			c.Actions[i] = act
		}
	}
	return c
}

// SuppressionElapsed reports whether a suppressed alert's window has ended.
func (a *Alert) SuppressionElapsed(now time.Time) bool {
	if a.Status != AlertSuppressed {
		return false
	}
	return a.SuppressedUntil == nil || !now.Before(*a.SuppressedUntil)
}

// Incident is a higher-level record of an operational problem.
type Incident struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Severity        Severity       `json:"severity"`
	Status          IncidentStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	InvestigatingAt *time.Time     `json:"investigatingAt,omitempty"`
	ResolvedAt      *time.Time     `json:"resolvedAt,omitempty"`
	Resolution      string         `json:"resolution,omitempty"`
	Assignee        string         `json:"assignee,omitempty"`
	AlertIDs        []string       `json:"alertIds,omitempty"`
}

// Clone returns a deep copy of i.
func (i Incident) Clone() Incident {
	c := i
	c.InvestigatingAt = clonePtr(i.InvestigatingAt)
	c.ResolvedAt = clonePtr(i.ResolvedAt)
	c.AlertIDs = slices.Clone(i.AlertIDs)
	return c
}

// IncidentInput carries the fields of a new incident.
type IncidentInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Assignee    string   `json:"assignee,omitempty"`
	AlertIDs    []string `json:"alertIds,omitempty"`
}

// IncidentUpdate carries a partial incident update. Nil fields are left
// unchanged. Status is only set by the lifecycle engine.
type IncidentUpdate struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Severity    *Severity       `json:"severity,omitempty"`
	Assignee    *string         `json:"assignee,omitempty"`
	AlertIDs    []string        `json:"alertIds,omitempty"`
	Status      *IncidentStatus `json:"status,omitempty"`
}

// ApplyTo copies the set fields of u onto inc.
func (u IncidentUpdate) ApplyTo(inc *Incident) {
	if u.Title != nil {
		inc.Title = *u.Title
	}
	if u.Description != nil {
		inc.Description = *u.Description
	}
	if u.Severity != nil {
		inc.Severity = *u.Severity
	}
	if u.Assignee != nil {
		inc.Assignee = *u.Assignee
	}
	if u.AlertIDs != nil {
		inc.AlertIDs = slices.Clone(u.AlertIDs)
	}
	if u.Status != nil {
		inc.Status = *u.Status
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

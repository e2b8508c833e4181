// Package monitoring defines the data model shared by the sync engine, the
// lifecycle engine and the local API, plus the push protocol codec.
package monitoring

// Severity ranks alerts and incidents.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Rank returns the ordinal of s (low=1 .. critical=4), or 0 if unknown.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool { return s.Rank() >= min.Rank() && s.Valid() }

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertSuppressed   AlertStatus = "suppressed"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertActive, AlertAcknowledged, AlertResolved, AlertSuppressed:
		return true
	}
	return false
}

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentOpen, IncidentInvestigating, IncidentResolved:
		return true
	}
	return false
}

// HealthStatus is the state of a health check or of the system as a whole.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

func (s HealthStatus) Valid() bool {
	switch s {
	case HealthHealthy, HealthDegraded, HealthUnhealthy, HealthUnknown:
		return true
	}
	return false
}

// ServiceStatus is the state of a monitored service.
type ServiceStatus string

const (
	ServiceRunning  ServiceStatus = "running"
	ServiceStopped  ServiceStatus = "stopped"
	ServiceDegraded ServiceStatus = "degraded"
	ServiceUnknown  ServiceStatus = "unknown"
)

func (s ServiceStatus) Valid() bool {
	switch s {
	case ServiceRunning, ServiceStopped, ServiceDegraded, ServiceUnknown:
		return true
	}
	return false
}

// EndpointStatus is the state of a monitored endpoint.
type EndpointStatus string

const (
	EndpointUp       EndpointStatus = "up"
	EndpointDown     EndpointStatus = "down"
	EndpointDegraded EndpointStatus = "degraded"
)

func (s EndpointStatus) Valid() bool {
	switch s {
	case EndpointUp, EndpointDown, EndpointDegraded:
		return true
	}
	return false
}

// DependencyStatus is the state of an external dependency.
type DependencyStatus string

const (
	DependencyAvailable   DependencyStatus = "available"
	DependencyUnavailable DependencyStatus = "unavailable"
	DependencyDegraded    DependencyStatus = "degraded"
)

func (s DependencyStatus) Valid() bool {
	switch s {
	case DependencyAvailable, DependencyUnavailable, DependencyDegraded:
		return true
	}
	return false
}

// MaintenanceStatus is the state of a maintenance window.
type MaintenanceStatus string

const (
	MaintenanceScheduled MaintenanceStatus = "scheduled"
	MaintenanceActive    MaintenanceStatus = "active"
	MaintenanceCompleted MaintenanceStatus = "completed"
	MaintenanceCancelled MaintenanceStatus = "cancelled"
)

func (s MaintenanceStatus) Valid() bool {
	switch s {
	case MaintenanceScheduled, MaintenanceActive, MaintenanceCompleted, MaintenanceCancelled:
		return true
	}
	return false
}

// ActionType is the channel of an automated alert action.
type ActionType string

const (
	ActionWebhook ActionType = "webhook"
	ActionEmail   ActionType = "email"
	ActionSMS     ActionType = "sms"
)

func (t ActionType) Valid() bool {
	return t == ActionWebhook || t == ActionEmail || t == ActionSMS
}

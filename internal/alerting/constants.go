// Package alerting drives the alert and incident lifecycle: the transition
// tables, the mutation commands with optimistic cache writes, escalation and
// the lifecycle event bus.
package alerting

// Commands name the lifecycle mutations. They key the transition tables and
// label metrics.
type Command string

const (
	CmdAcknowledge Command = "acknowledge"
	CmdResolve     Command = "resolve"
	CmdSuppress    Command = "suppress"
	CmdEscalate    Command = "escalate"
	CmdExpire      Command = "expire"

	CmdCreateIncident      Command = "create-incident"
	CmdUpdateIncident      Command = "update-incident"
	CmdInvestigateIncident Command = "investigate"
	CmdResolveIncident     Command = "resolve-incident"
)

// Inventory commands for the sibling CRUD surface.
const (
	CmdRun    Command = "run"
	CmdCreate Command = "create"
	CmdUpdate Command = "update"
	CmdDelete Command = "delete"
	CmdCancel Command = "cancel"
)

// Event types published on the lifecycle event bus.
const (
	EventAlertTriggered    EventType = "alert.triggered"
	EventAlertAcknowledged EventType = "alert.acknowledged"
	EventAlertResolved     EventType = "alert.resolved"
	EventAlertSuppressed   EventType = "alert.suppressed"
	EventAlertEscalated    EventType = "alert.escalated"

	EventIncidentCreated       EventType = "incident.created"
	EventIncidentUpdated       EventType = "incident.updated"
	EventIncidentInvestigating EventType = "incident.investigating"
	EventIncidentResolved      EventType = "incident.resolved"
)

// Metric names used in thresholds and alert conditions.
const (
	MetricCPUUsage        = "cpuUsage"
	MetricMemoryUsage     = "memoryUsage"
	MetricDiskUsage       = "diskUsage"
	MetricErrorRate       = "errorRate"
	MetricAvgResponseTime = "avgResponseTimeMs"
	MetricP95ResponseTime = "p95ResponseTimeMs"
	MetricUptimePercent   = "uptimePercent"
)

// MaxSuppressMinutes bounds a suppression window to thirty days.
const MaxSuppressMinutes = 30 * 24 * 60

const component = "alerting"

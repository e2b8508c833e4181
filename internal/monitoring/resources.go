package monitoring

import "time"

// HealthCheck is a periodic probe against a target.
type HealthCheck struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Type           string       `json:"type,omitempty"` // http, tcp, database, ...
	Target         string       `json:"target"`
	Status         HealthStatus `json:"status"`
	IntervalSec    int          `json:"intervalSec,omitempty"`
	ResponseTimeMs float64      `json:"responseTimeMs,omitempty"`
	Message        string       `json:"message,omitempty"`
	LastCheckedAt  *time.Time   `json:"lastCheckedAt,omitempty"`
}

// Service is a monitored application service.
type Service struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Version       string        `json:"version,omitempty"`
	URL           string        `json:"url,omitempty"`
	Status        ServiceStatus `json:"status"`
	UptimePercent float64       `json:"uptimePercent,omitempty"`
	LastCheckedAt *time.Time    `json:"lastCheckedAt,omitempty"`
}

// Endpoint is a monitored HTTP endpoint of a service.
type Endpoint struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	ServiceID      string         `json:"serviceId,omitempty"`
	URL            string         `json:"url"`
	Method         string         `json:"method"`
	Status         EndpointStatus `json:"status"`
	ResponseTimeMs float64        `json:"responseTimeMs,omitempty"`
	LastCheckedAt  *time.Time     `json:"lastCheckedAt,omitempty"`
}

// Dependency is an external system the hospital platform relies on.
type Dependency struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Type          string           `json:"type"` // database, cache, queue, external-api, ...
	Status        DependencyStatus `json:"status"`
	Critical      bool             `json:"critical"`
	LastCheckedAt *time.Time       `json:"lastCheckedAt,omitempty"`
}

// ComponentHealth is one component line of the system health report.
type ComponentHealth struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// SystemHealth is the aggregate health report.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Components []ComponentHealth `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// PerformanceMetrics are request-level performance figures.
type PerformanceMetrics struct {
	AvgResponseTimeMs float64   `json:"avgResponseTimeMs"`
	P95ResponseTimeMs float64   `json:"p95ResponseTimeMs"`
	P99ResponseTimeMs float64   `json:"p99ResponseTimeMs"`
	RequestsPerSecond float64   `json:"requestsPerSecond"`
	ErrorRate         float64   `json:"errorRate"`
	Timestamp         time.Time `json:"timestamp"`
}

// ResourceMetrics are host resource utilization figures, in percent except
// network counters, which are bytes per second.
type ResourceMetrics struct {
	CPUUsage    float64   `json:"cpuUsage"`
	MemoryUsage float64   `json:"memoryUsage"`
	DiskUsage   float64   `json:"diskUsage"`
	NetworkIn   float64   `json:"networkIn"`
	NetworkOut  float64   `json:"networkOut"`
	Timestamp   time.Time `json:"timestamp"`
}

// UptimeMetrics describe availability over the reporting period.
type UptimeMetrics struct {
	UptimePercent float64    `json:"uptimePercent"`
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Incidents     int        `json:"incidents"`
	LastDowntime  *time.Time `json:"lastDowntime,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// MonitoringSnapshot is the aggregate read model of the system.
type MonitoringSnapshot struct {
	Status       HealthStatus       `json:"status"`
	Uptime       UptimeMetrics      `json:"uptime"`
	Resources    ResourceMetrics    `json:"resources"`
	Performance  PerformanceMetrics `json:"performance"`
	ActiveAlerts int                `json:"activeAlerts"`
	Timestamp    time.Time          `json:"timestamp"`
}

// MaintenanceWindow is a planned period of reduced service.
type MaintenanceWindow struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Status           MaintenanceStatus `json:"status"`
	StartsAt         time.Time         `json:"startsAt"`
	EndsAt           time.Time         `json:"endsAt"`
	AffectedServices []string          `json:"affectedServices,omitempty"`
}

// ServiceSLA is the SLA figure of one service.
type ServiceSLA struct {
	ServiceID    string  `json:"serviceId"`
	Target       float64 `json:"target"`
	Availability float64 `json:"availability"`
	Breached     bool    `json:"breached"`
}

// SLAMetrics summarize SLA compliance for a reporting period.
type SLAMetrics struct {
	Period               string       `json:"period"`
	Target               float64      `json:"target"`
	Availability         float64      `json:"availability"`
	ErrorBudgetRemaining float64      `json:"errorBudgetRemaining"`
	Breaches             int          `json:"breaches"`
	Services             []ServiceSLA `json:"services,omitempty"`
	Timestamp            time.Time    `json:"timestamp"`
}

// Configuration is the versioned key/value settings of the remote monitor.
type Configuration struct {
	Version   int            `json:"version"`
	Settings  map[string]any `json:"settings"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// MonitoringUpdate is the payload of a monitoring-update push message. Each
// part carries its own server timestamp; absent parts are nil.
type MonitoringUpdate struct {
	Monitoring  *MonitoringSnapshot `json:"monitoring,omitempty"`
	Health      *SystemHealth       `json:"health,omitempty"`
	Performance *PerformanceMetrics `json:"performance,omitempty"`
	Resources   *ResourceMetrics    `json:"resources,omitempty"`
}

// Empty reports whether u carries no parts.
func (u *MonitoringUpdate) Empty() bool {
	return u.Monitoring == nil && u.Health == nil && u.Performance == nil && u.Resources == nil
}

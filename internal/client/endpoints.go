package client

import (
	"context"
	"net/http"
	"time"

	"github.com/hospitalops/livemon/internal/monitoring"
)

func (c *HTTPClient) GetMonitoring(ctx context.Context, f monitoring.FilterCriteria) (monitoring.MonitoringSnapshot, time.Time, error) {
	return get[monitoring.MonitoringSnapshot](ctx, c, "/monitoring", Query(f))
}

func (c *HTTPClient) GetSystemHealth(ctx context.Context) (monitoring.SystemHealth, time.Time, error) {
	return get[monitoring.SystemHealth](ctx, c, "/monitoring/health", nil)
}

func (c *HTTPClient) GetHealthChecks(ctx context.Context) ([]monitoring.HealthCheck, time.Time, error) {
	return get[[]monitoring.HealthCheck](ctx, c, "/monitoring/health-checks", nil)
}

func (c *HTTPClient) GetUptimeMetrics(ctx context.Context, f monitoring.FilterCriteria) (monitoring.UptimeMetrics, time.Time, error) {
	return get[monitoring.UptimeMetrics](ctx, c, "/monitoring/uptime", Query(f))
}

func (c *HTTPClient) GetPerformanceMonitoring(ctx context.Context, f monitoring.FilterCriteria) (monitoring.PerformanceMetrics, time.Time, error) {
	return get[monitoring.PerformanceMetrics](ctx, c, "/monitoring/performance", Query(f))
}

func (c *HTTPClient) GetResourceMonitoring(ctx context.Context, f monitoring.FilterCriteria) (monitoring.ResourceMetrics, time.Time, error) {
	return get[monitoring.ResourceMetrics](ctx, c, "/monitoring/resources", Query(f))
}

func (c *HTTPClient) GetServices(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Service, time.Time, error) {
	return get[[]monitoring.Service](ctx, c, "/monitoring/services", Query(f))
}

func (c *HTTPClient) GetEndpoints(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Endpoint, time.Time, error) {
	return get[[]monitoring.Endpoint](ctx, c, "/monitoring/endpoints", Query(f))
}

func (c *HTTPClient) GetDependencies(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Dependency, time.Time, error) {
	return get[[]monitoring.Dependency](ctx, c, "/monitoring/dependencies", Query(f))
}

func (c *HTTPClient) GetAlerts(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Alert, time.Time, error) {
	return get[[]monitoring.Alert](ctx, c, "/monitoring/alerts", Query(f))
}

func (c *HTTPClient) GetIncidents(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Incident, time.Time, error) {
	return get[[]monitoring.Incident](ctx, c, "/monitoring/incidents", Query(f))
}

func (c *HTTPClient) GetMaintenanceWindows(ctx context.Context) ([]monitoring.MaintenanceWindow, time.Time, error) {
	return get[[]monitoring.MaintenanceWindow](ctx, c, "/monitoring/maintenance", nil)
}

func (c *HTTPClient) GetSLAMetrics(ctx context.Context, f monitoring.FilterCriteria) (monitoring.SLAMetrics, time.Time, error) {
	return get[monitoring.SLAMetrics](ctx, c, "/monitoring/sla", Query(f))
}

func (c *HTTPClient) GetConfiguration(ctx context.Context) (monitoring.Configuration, time.Time, error) {
	return get[monitoring.Configuration](ctx, c, "/monitoring/configuration", nil)
}

// Health checks

func (c *HTTPClient) RunHealthCheck(ctx context.Context, id string) (monitoring.HealthCheck, time.Time, error) {
	return mutate[monitoring.HealthCheck](ctx, c, http.MethodPost, "/monitoring/health-checks/"+escape(id)+"/run", nil)
}

func (c *HTTPClient) CreateHealthCheck(ctx context.Context, hc monitoring.HealthCheck) (monitoring.HealthCheck, time.Time, error) {
	return mutate[monitoring.HealthCheck](ctx, c, http.MethodPost, "/monitoring/health-checks", hc)
}

func (c *HTTPClient) UpdateHealthCheck(ctx context.Context, id string, hc monitoring.HealthCheck) (monitoring.HealthCheck, time.Time, error) {
	return mutate[monitoring.HealthCheck](ctx, c, http.MethodPut, "/monitoring/health-checks/"+escape(id), hc)
}

func (c *HTTPClient) DeleteHealthCheck(ctx context.Context, id string) error {
	return c.remove(ctx, "/monitoring/health-checks/"+escape(id))
}

// Services

func (c *HTTPClient) CreateService(ctx context.Context, s monitoring.Service) (monitoring.Service, time.Time, error) {
	return mutate[monitoring.Service](ctx, c, http.MethodPost, "/monitoring/services", s)
}

func (c *HTTPClient) UpdateService(ctx context.Context, id string, s monitoring.Service) (monitoring.Service, time.Time, error) {
	return mutate[monitoring.Service](ctx, c, http.MethodPut, "/monitoring/services/"+escape(id), s)
}

func (c *HTTPClient) DeleteService(ctx context.Context, id string) error {
	return c.remove(ctx, "/monitoring/services/"+escape(id))
}

// Endpoints

func (c *HTTPClient) CreateEndpoint(ctx context.Context, e monitoring.Endpoint) (monitoring.Endpoint, time.Time, error) {
	return mutate[monitoring.Endpoint](ctx, c, http.MethodPost, "/monitoring/endpoints", e)
}

func (c *HTTPClient) UpdateEndpoint(ctx context.Context, id string, e monitoring.Endpoint) (monitoring.Endpoint, time.Time, error) {
	return mutate[monitoring.Endpoint](ctx, c, http.MethodPut, "/monitoring/endpoints/"+escape(id), e)
}

func (c *HTTPClient) DeleteEndpoint(ctx context.Context, id string) error {
	return c.remove(ctx, "/monitoring/endpoints/"+escape(id))
}

// Dependencies

func (c *HTTPClient) CreateDependency(ctx context.Context, d monitoring.Dependency) (monitoring.Dependency, time.Time, error) {
	return mutate[monitoring.Dependency](ctx, c, http.MethodPost, "/monitoring/dependencies", d)
}

func (c *HTTPClient) UpdateDependency(ctx context.Context, id string, d monitoring.Dependency) (monitoring.Dependency, time.Time, error) {
	return mutate[monitoring.Dependency](ctx, c, http.MethodPut, "/monitoring/dependencies/"+escape(id), d)
}

func (c *HTTPClient) DeleteDependency(ctx context.Context, id string) error {
	return c.remove(ctx, "/monitoring/dependencies/"+escape(id))
}

// Alerts

func (c *HTTPClient) AcknowledgeAlert(ctx context.Context, id, userID string) (monitoring.Alert, time.Time, error) {
	body := map[string]string{"userId": userID}
	return mutate[monitoring.Alert](ctx, c, http.MethodPost, "/monitoring/alerts/"+escape(id)+"/acknowledge", body)
}

func (c *HTTPClient) ResolveAlert(ctx context.Context, id, userID, resolution string) (monitoring.Alert, time.Time, error) {
	body := map[string]string{"userId": userID, "resolution": resolution}
	return mutate[monitoring.Alert](ctx, c, http.MethodPost, "/monitoring/alerts/"+escape(id)+"/resolve", body)
}

func (c *HTTPClient) SuppressAlert(ctx context.Context, id string, durationMinutes int) (monitoring.Alert, time.Time, error) {
	body := map[string]int{"durationMinutes": durationMinutes}
	return mutate[monitoring.Alert](ctx, c, http.MethodPost, "/monitoring/alerts/"+escape(id)+"/suppress", body)
}

// Incidents

func (c *HTTPClient) CreateIncident(ctx context.Context, in monitoring.IncidentInput) (monitoring.Incident, time.Time, error) {
	return mutate[monitoring.Incident](ctx, c, http.MethodPost, "/monitoring/incidents", in)
}

func (c *HTTPClient) UpdateIncident(ctx context.Context, id string, u monitoring.IncidentUpdate) (monitoring.Incident, time.Time, error) {
	return mutate[monitoring.Incident](ctx, c, http.MethodPatch, "/monitoring/incidents/"+escape(id), u)
}

func (c *HTTPClient) ResolveIncident(ctx context.Context, id, resolution string) (monitoring.Incident, time.Time, error) {
	body := map[string]string{"resolution": resolution}
	return mutate[monitoring.Incident](ctx, c, http.MethodPost, "/monitoring/incidents/"+escape(id)+"/resolve", body)
}

// Maintenance windows

func (c *HTTPClient) CreateMaintenanceWindow(ctx context.Context, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, time.Time, error) {
	return mutate[monitoring.MaintenanceWindow](ctx, c, http.MethodPost, "/monitoring/maintenance", w)
}

func (c *HTTPClient) UpdateMaintenanceWindow(ctx context.Context, id string, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, time.Time, error) {
	return mutate[monitoring.MaintenanceWindow](ctx, c, http.MethodPut, "/monitoring/maintenance/"+escape(id), w)
}

func (c *HTTPClient) CancelMaintenanceWindow(ctx context.Context, id string) (monitoring.MaintenanceWindow, time.Time, error) {
	return mutate[monitoring.MaintenanceWindow](ctx, c, http.MethodPost, "/monitoring/maintenance/"+escape(id)+"/cancel", nil)
}

// Configuration

func (c *HTTPClient) UpdateConfiguration(ctx context.Context, partial map[string]any) (monitoring.Configuration, time.Time, error) {
	return mutate[monitoring.Configuration](ctx, c, http.MethodPatch, "/monitoring/configuration", partial)
}

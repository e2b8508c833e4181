// Package client implements the data-access interface of the remote
// monitoring system over its REST API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
)

const (
	defaultTimeout = 10 * time.Second
	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10
	userAgent    = "livemon"
)

// Reader is the read half of the data-access interface. Every read returns
// the server timestamp of the data alongside the value.
type Reader interface {
	GetMonitoring(ctx context.Context, f monitoring.FilterCriteria) (monitoring.MonitoringSnapshot, time.Time, error)
	GetSystemHealth(ctx context.Context) (monitoring.SystemHealth, time.Time, error)
	GetHealthChecks(ctx context.Context) ([]monitoring.HealthCheck, time.Time, error)
	GetUptimeMetrics(ctx context.Context, f monitoring.FilterCriteria) (monitoring.UptimeMetrics, time.Time, error)
	GetPerformanceMonitoring(ctx context.Context, f monitoring.FilterCriteria) (monitoring.PerformanceMetrics, time.Time, error)
	GetResourceMonitoring(ctx context.Context, f monitoring.FilterCriteria) (monitoring.ResourceMetrics, time.Time, error)
	GetServices(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Service, time.Time, error)
	GetEndpoints(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Endpoint, time.Time, error)
	GetDependencies(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Dependency, time.Time, error)
	GetAlerts(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Alert, time.Time, error)
	GetIncidents(ctx context.Context, f monitoring.FilterCriteria) ([]monitoring.Incident, time.Time, error)
	GetMaintenanceWindows(ctx context.Context) ([]monitoring.MaintenanceWindow, time.Time, error)
	GetSLAMetrics(ctx context.Context, f monitoring.FilterCriteria) (monitoring.SLAMetrics, time.Time, error)
	GetConfiguration(ctx context.Context) (monitoring.Configuration, time.Time, error)
}

// Mutator is the write half of the data-access interface. Mutations return
// the authoritative entity and its server timestamp.
type Mutator interface {
	RunHealthCheck(ctx context.Context, id string) (monitoring.HealthCheck, time.Time, error)
	CreateHealthCheck(ctx context.Context, hc monitoring.HealthCheck) (monitoring.HealthCheck, time.Time, error)
	UpdateHealthCheck(ctx context.Context, id string, hc monitoring.HealthCheck) (monitoring.HealthCheck, time.Time, error)
	DeleteHealthCheck(ctx context.Context, id string) error

	CreateService(ctx context.Context, s monitoring.Service) (monitoring.Service, time.Time, error)
	UpdateService(ctx context.Context, id string, s monitoring.Service) (monitoring.Service, time.Time, error)
	DeleteService(ctx context.Context, id string) error

	CreateEndpoint(ctx context.Context, e monitoring.Endpoint) (monitoring.Endpoint, time.Time, error)
	UpdateEndpoint(ctx context.Context, id string, e monitoring.Endpoint) (monitoring.Endpoint, time.Time, error)
	DeleteEndpoint(ctx context.Context, id string) error

	CreateDependency(ctx context.Context, d monitoring.Dependency) (monitoring.Dependency, time.Time, error)
	UpdateDependency(ctx context.Context, id string, d monitoring.Dependency) (monitoring.Dependency, time.Time, error)
	DeleteDependency(ctx context.Context, id string) error

	AcknowledgeAlert(ctx context.Context, id, userID string) (monitoring.Alert, time.Time, error)
	ResolveAlert(ctx context.Context, id, userID, resolution string) (monitoring.Alert, time.Time, error)
	SuppressAlert(ctx context.Context, id string, durationMinutes int) (monitoring.Alert, time.Time, error)

	CreateIncident(ctx context.Context, in monitoring.IncidentInput) (monitoring.Incident, time.Time, error)
	UpdateIncident(ctx context.Context, id string, u monitoring.IncidentUpdate) (monitoring.Incident, time.Time, error)
	ResolveIncident(ctx context.Context, id, resolution string) (monitoring.Incident, time.Time, error)

	CreateMaintenanceWindow(ctx context.Context, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, time.Time, error)
	UpdateMaintenanceWindow(ctx context.Context, id string, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, time.Time, error)
	CancelMaintenanceWindow(ctx context.Context, id string) (monitoring.MaintenanceWindow, time.Time, error)

	UpdateConfiguration(ctx context.Context, partial map[string]any) (monitoring.Configuration, time.Time, error)
}

// DataSource is the full data-access interface.
type DataSource interface {
	Reader
	Mutator
}

// HTTPClient talks to the monitoring REST API.
type HTTPClient struct {
	base *url.URL
	http *http.Client
	rc   *resty.Client
	log  logger.Logger
	now  func() time.Time
}

var _ DataSource = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *HTTPClient) { c.http = hc } }

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(c *HTTPClient) { c.log = l.Module("client") } }

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid api base url %q: %w", baseURL, monitoring.ErrInvalidInput).
			Component("client").
			Category(errors.CategoryConfiguration).
			Build()
	}
	c := &HTTPClient{
		base: u,
		http: &http.Client{Timeout: defaultTimeout},
		log:  logger.Discard(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rc = resty.NewWithClient(c.http).
		SetLogger(restyLogger{c.log}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	return c, nil
}

// restyLogger routes resty's own diagnostics into the logger facade.
type restyLogger struct{ log logger.Logger }

func (l restyLogger) Errorf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }
func (l restyLogger) Warnf(format string, v ...any)  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l restyLogger) Debugf(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }

// envelope is the response shape of every endpoint.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// call performs one request. sentinel is ErrQuery for reads and ErrMutation
// for writes; it is wrapped into every returned error.
func (c *HTTPClient) call(ctx context.Context, method, path string, query url.Values, body any, out any, sentinel error) (time.Time, error) {
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	if p, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = p
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	requestID := uuid.NewString()
	req := c.rc.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return time.Time{}, c.fail(method, path, 0, sentinel, err, errors.CategoryValidation)
		}
		req.SetHeader("Content-Type", "application/json").SetBody(raw)
	}

	resp, err := req.Execute(method, u.String())
	if err != nil {
		return time.Time{}, c.fail(method, path, 0, sentinel, err, errors.CategoryNetwork)
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return time.Time{}, c.statusError(method, path, resp, sentinel)
	}

	if resp.StatusCode() == http.StatusNoContent || out == nil {
		return c.headerTime(resp.Header()), nil
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return time.Time{}, c.fail(method, path, resp.StatusCode(), sentinel, fmt.Errorf("decoding response: %w", err), errors.CategoryProtocol)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return time.Time{}, c.fail(method, path, resp.StatusCode(), sentinel, fmt.Errorf("decoding data: %w", err), errors.CategoryProtocol)
		}
	}

	serverTime, err := monitoring.ParseTimestamp(env.Timestamp)
	if err != nil {
		serverTime = c.headerTime(resp.Header())
	}
	c.log.Debug("request completed",
		logger.String("method", method),
		logger.String("path", path),
		logger.String("request_id", requestID),
		logger.Int("status", resp.StatusCode()),
		logger.Duration("elapsed", resp.Time()))
	return serverTime, nil
}

// headerTime falls back to the Date header, then to the local clock.
func (c *HTTPClient) headerTime(h http.Header) time.Time {
	if d := h.Get("Date"); d != "" {
		if t, err := http.ParseTime(d); err == nil {
			return t.UTC()
		}
	}
	return c.now().UTC()
}

func (c *HTTPClient) statusError(method, path string, resp *resty.Response, sentinel error) error {
	raw := resp.Body()
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	msg := strings.TrimSpace(string(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Error != "" {
			msg = eb.Error
		} else if eb.Message != "" {
			msg = eb.Message
		}
	}
	status := resp.StatusCode()
	if msg == "" {
		msg = http.StatusText(status)
	}

	cause := fmt.Errorf("status %d: %s", status, msg)
	category := errors.CategoryNetwork
	switch status {
	case http.StatusNotFound:
		cause = fmt.Errorf("%w: %s", monitoring.ErrNotFound, msg)
		category = errors.CategoryNotFound
	case http.StatusConflict:
		cause = fmt.Errorf("%w: %s", monitoring.ErrInvalidTransition, msg)
		category = errors.CategoryState
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		cause = fmt.Errorf("%w: %s", monitoring.ErrInvalidInput, msg)
		category = errors.CategoryValidation
	}
	return c.fail(method, path, status, sentinel, cause, category)
}

func (c *HTTPClient) fail(method, path string, status int, sentinel, cause error, category errors.Category) error {
	if category == errors.CategoryNetwork && sentinel == monitoring.ErrMutation {
		category = errors.CategoryMutation
	}
	b := errors.Newf("%s %s: %w: %w", method, path, sentinel, cause).
		Component("client").
		Category(category).
		Context("method", method).
		Context("path", path)
	if status != 0 {
		b = b.Context("status", status)
	}
	return b.Build()
}

func get[T any](ctx context.Context, c *HTTPClient, path string, q url.Values) (T, time.Time, error) {
	var out T
	ts, err := c.call(ctx, http.MethodGet, path, q, nil, &out, monitoring.ErrQuery)
	return out, ts, err
}

func mutate[T any](ctx context.Context, c *HTTPClient, method, path string, body any) (T, time.Time, error) {
	var out T
	ts, err := c.call(ctx, method, path, nil, body, &out, monitoring.ErrMutation)
	return out, ts, err
}

func (c *HTTPClient) remove(ctx context.Context, path string) error {
	_, err := c.call(ctx, http.MethodDelete, path, nil, nil, nil, monitoring.ErrMutation)
	return err
}

// Query encodes filter criteria as repeated query parameters.
func Query(f monitoring.FilterCriteria) url.Values {
	q := url.Values{}
	for _, s := range f.Severities {
		q.Add("severity", string(s))
	}
	for _, s := range f.Statuses {
		q.Add("status", s)
	}
	for _, s := range f.Categories {
		q.Add("category", s)
	}
	for _, s := range f.Sources {
		q.Add("source", s)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.From != nil {
		q.Set("dateFrom", f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		q.Set("dateTo", f.To.UTC().Format(time.RFC3339))
	}
	return q
}

func escape(id string) string { return url.PathEscape(id) }

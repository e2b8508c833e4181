package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/monitoring"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// fakeConn is a push channel driven by the test.
type fakeConn struct {
	inbox  chan []byte
	sent   chan []byte
	drop   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 16),
		sent:   make(chan []byte, 16),
		drop:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Send(_ context.Context, payload []byte) error {
	select {
	case c.sent <- payload:
		return nil
	case <-c.closed:
		return errors.NewStd("send on closed conn")
	}
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case raw := <-c.inbox:
		return raw, nil
	case err := <-c.drop:
		return nil, connectionError("receive", "fake", err)
	case <-c.closed:
		return nil, connectionError("receive", "fake", errors.NewStd("closed"))
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeTransport hands out fakeConns; the first failures dials fail.
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    chan *fakeConn
}

func newFakeTransport(failures int) *fakeTransport {
	return &fakeTransport{failures: failures, conns: make(chan *fakeConn, 16)}
}

func (t *fakeTransport) Dial(context.Context) (Conn, error) {
	t.mu.Lock()
	t.dials++
	if t.failures > 0 {
		t.failures--
		t.mu.Unlock()
		return nil, connectionError("dial", "fake", errors.NewStd("connection refused"))
	}
	t.mu.Unlock()
	c := newFakeConn()
	t.conns <- c
	return c, nil
}

func (t *fakeTransport) String() string { return "fake" }

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// fakeReader counts reads per kind. A non-nil gate blocks every read until
// it is closed.
type fakeReader struct {
	mu    sync.Mutex
	calls map[monitoring.Kind]int
	ts    time.Time
	err   error
	gate  chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{calls: make(map[monitoring.Kind]int), ts: base}
}

func (r *fakeReader) read(ctx context.Context, kind monitoring.Kind) (time.Time, error) {
	r.mu.Lock()
	r.calls[kind]++
	gate, ts, err := r.gate, r.ts, r.err
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}
	return ts, err
}

func (r *fakeReader) count(kind monitoring.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[kind]
}

func (r *fakeReader) setGate(g chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = g
}

func (r *fakeReader) GetMonitoring(ctx context.Context, _ monitoring.FilterCriteria) (monitoring.MonitoringSnapshot, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindMonitoring)
	return monitoring.MonitoringSnapshot{Timestamp: ts}, ts, err
}

func (r *fakeReader) GetSystemHealth(ctx context.Context) (monitoring.SystemHealth, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindHealth)
	return monitoring.SystemHealth{Status: monitoring.HealthHealthy, Timestamp: ts}, ts, err
}

func (r *fakeReader) GetHealthChecks(ctx context.Context) ([]monitoring.HealthCheck, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindHealthChecks)
	return []monitoring.HealthCheck{}, ts, err
}

func (r *fakeReader) GetUptimeMetrics(ctx context.Context, _ monitoring.FilterCriteria) (monitoring.UptimeMetrics, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindUptime)
	return monitoring.UptimeMetrics{Timestamp: ts}, ts, err
}

func (r *fakeReader) GetPerformanceMonitoring(ctx context.Context, _ monitoring.FilterCriteria) (monitoring.PerformanceMetrics, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindPerformance)
	return monitoring.PerformanceMetrics{Timestamp: ts}, ts, err
}

func (r *fakeReader) GetResourceMonitoring(ctx context.Context, _ monitoring.FilterCriteria) (monitoring.ResourceMetrics, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindResources)
	return monitoring.ResourceMetrics{Timestamp: ts}, ts, err
}

func (r *fakeReader) GetServices(ctx context.Context, _ monitoring.FilterCriteria) ([]monitoring.Service, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindServices)
	return []monitoring.Service{}, ts, err
}

func (r *fakeReader) GetEndpoints(ctx context.Context, _ monitoring.FilterCriteria) ([]monitoring.Endpoint, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindEndpoints)
	return []monitoring.Endpoint{}, ts, err
}

func (r *fakeReader) GetDependencies(ctx context.Context, _ monitoring.FilterCriteria) ([]monitoring.Dependency, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindDependencies)
	return []monitoring.Dependency{}, ts, err
}

func (r *fakeReader) GetAlerts(ctx context.Context, _ monitoring.FilterCriteria) ([]monitoring.Alert, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindAlerts)
	return []monitoring.Alert{}, ts, err
}

func (r *fakeReader) GetIncidents(ctx context.Context, _ monitoring.FilterCriteria) ([]monitoring.Incident, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindIncidents)
	return []monitoring.Incident{}, ts, err
}

func (r *fakeReader) GetMaintenanceWindows(ctx context.Context) ([]monitoring.MaintenanceWindow, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindMaintenance)
	return []monitoring.MaintenanceWindow{}, ts, err
}

func (r *fakeReader) GetSLAMetrics(ctx context.Context, _ monitoring.FilterCriteria) (monitoring.SLAMetrics, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindSLA)
	return monitoring.SLAMetrics{Timestamp: ts}, ts, err
}

func (r *fakeReader) GetConfiguration(ctx context.Context) (monitoring.Configuration, time.Time, error) {
	ts, err := r.read(ctx, monitoring.KindConfiguration)
	return monitoring.Configuration{}, ts, err
}

// fakeTracker records what the controller routes to the lifecycle engine.
type fakeTracker struct {
	mu        sync.Mutex
	alerts    []monitoring.Alert
	incidents []monitoring.Incident
	escalated []string
}

func (f *fakeTracker) TrackAlert(a monitoring.Alert, _ time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return true
}

func (f *fakeTracker) TrackIncident(inc monitoring.Incident, _ time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidents = append(f.incidents, inc)
	return true
}

func (f *fakeTracker) Escalate(_ context.Context, id string) (monitoring.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalated = append(f.escalated, id)
	return monitoring.Alert{ID: id, EscalationLevel: 1}, nil
}

func (f *fakeTracker) snapshot() (alerts, incidents int, escalated []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts), len(f.incidents), append([]string(nil), f.escalated...)
}

package alerting

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/client"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeRemote is an in-memory stand-in for the monitoring API. It applies
// mutations to its own records and answers with them, stamped with the
// clock's time.
type fakeRemote struct {
	mu        sync.Mutex
	clock     *fakeClock
	alerts    map[string]monitoring.Alert
	incidents map[string]monitoring.Incident
	services  map[string]monitoring.Service
	config    monitoring.Configuration
	calls     []string
	nextID    int

	// fail makes every mutation return the error.
	fail error
	// gate, when set, holds every mutation until it is closed or receives.
	gate chan struct{}
	// entered receives the name of every mutation as it starts.
	entered chan string
}

var _ client.Mutator = (*fakeRemote)(nil)

func newFakeRemote(clock *fakeClock) *fakeRemote {
	return &fakeRemote{
		clock:     clock,
		alerts:    make(map[string]monitoring.Alert),
		incidents: make(map[string]monitoring.Incident),
		services:  make(map[string]monitoring.Service),
		config:    monitoring.Configuration{Version: 1, Settings: map[string]any{}},
	}
}

func (f *fakeRemote) enter(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	gate, entered, fail := f.gate, f.entered, f.fail
	f.mu.Unlock()

	if entered != nil {
		entered <- name
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail
	}
	return nil
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeRemote) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeRemote) setGate(gate chan struct{}, entered chan string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate, f.entered = gate, entered
}

func (f *fakeRemote) putAlert(a monitoring.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts[a.ID] = a.Clone()
}

func (f *fakeRemote) alertList() []monitoring.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]monitoring.Alert, 0, len(f.alerts))
	for _, id := range slices.Sorted(maps.Keys(f.alerts)) {
		out = append(out, f.alerts[id].Clone())
	}
	return out
}

func (f *fakeRemote) updateAlert(id string, fn func(a *monitoring.Alert)) (monitoring.Alert, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok {
		return monitoring.Alert{}, time.Time{}, fmt.Errorf("alert %s: %w: %w", id, monitoring.ErrMutation, monitoring.ErrNotFound)
	}
	fn(&a)
	f.alerts[id] = a
	return a.Clone(), f.clock.Now(), nil
}

func (f *fakeRemote) AcknowledgeAlert(ctx context.Context, id, userID string) (monitoring.Alert, time.Time, error) {
	if err := f.enter(ctx, "acknowledge:"+id); err != nil {
		return monitoring.Alert{}, time.Time{}, err
	}
	return f.updateAlert(id, func(a *monitoring.Alert) {
		now := f.clock.Now()
		a.Status = monitoring.AlertAcknowledged
		a.AcknowledgedBy = userID
		a.AcknowledgedAt = &now
	})
}

func (f *fakeRemote) ResolveAlert(ctx context.Context, id, userID, resolution string) (monitoring.Alert, time.Time, error) {
	if err := f.enter(ctx, "resolve:"+id); err != nil {
		return monitoring.Alert{}, time.Time{}, err
	}
	return f.updateAlert(id, func(a *monitoring.Alert) {
		now := f.clock.Now()
		a.Status = monitoring.AlertResolved
		a.ResolvedBy = userID
		a.ResolvedAt = &now
		a.Resolution = resolution
	})
}

func (f *fakeRemote) SuppressAlert(ctx context.Context, id string, durationMinutes int) (monitoring.Alert, time.Time, error) {
	if err := f.enter(ctx, "suppress:"+id); err != nil {
		return monitoring.Alert{}, time.Time{}, err
	}
	return f.updateAlert(id, func(a *monitoring.Alert) {
		until := f.clock.Now().Add(time.Duration(durationMinutes) * time.Minute)
		a.Status = monitoring.AlertSuppressed
		a.SuppressedUntil = &until
	})
}

func (f *fakeRemote) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRemote) CreateIncident(ctx context.Context, in monitoring.IncidentInput) (monitoring.Incident, time.Time, error) {
	if err := f.enter(ctx, "create-incident"); err != nil {
		return monitoring.Incident{}, time.Time{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	inc := monitoring.Incident{
		ID:          f.newID("inc"),
		Title:       in.Title,
		Description: in.Description,
		Severity:    in.Severity,
		Status:      monitoring.IncidentOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		Assignee:    in.Assignee,
		AlertIDs:    slices.Clone(in.AlertIDs),
	}
	f.incidents[inc.ID] = inc
	return inc.Clone(), now, nil
}

func (f *fakeRemote) UpdateIncident(ctx context.Context, id string, u monitoring.IncidentUpdate) (monitoring.Incident, time.Time, error) {
	if err := f.enter(ctx, "update-incident:"+id); err != nil {
		return monitoring.Incident{}, time.Time{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return monitoring.Incident{}, time.Time{}, fmt.Errorf("incident %s: %w: %w", id, monitoring.ErrMutation, monitoring.ErrNotFound)
	}
	now := f.clock.Now()
	u.ApplyTo(&inc)
	if u.Status != nil && *u.Status == monitoring.IncidentInvestigating {
		inc.InvestigatingAt = &now
	}
	inc.UpdatedAt = now
	f.incidents[id] = inc
	return inc.Clone(), now, nil
}

func (f *fakeRemote) ResolveIncident(ctx context.Context, id, resolution string) (monitoring.Incident, time.Time, error) {
	if err := f.enter(ctx, "resolve-incident:"+id); err != nil {
		return monitoring.Incident{}, time.Time{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return monitoring.Incident{}, time.Time{}, fmt.Errorf("incident %s: %w: %w", id, monitoring.ErrMutation, monitoring.ErrNotFound)
	}
	now := f.clock.Now()
	inc.Status = monitoring.IncidentResolved
	inc.ResolvedAt = &now
	inc.Resolution = resolution
	inc.UpdatedAt = now
	f.incidents[id] = inc
	return inc.Clone(), now, nil
}

func (f *fakeRemote) RunHealthCheck(ctx context.Context, id string) (monitoring.HealthCheck, time.Time, error) {
	if err := f.enter(ctx, "run-health-check:"+id); err != nil {
		return monitoring.HealthCheck{}, time.Time{}, err
	}
	now := f.clock.Now()
	return monitoring.HealthCheck{ID: id, Name: "db", Target: "db:5432", Status: monitoring.HealthHealthy, LastCheckedAt: &now}, now, nil
}

func (f *fakeRemote) CreateHealthCheck(ctx context.Context, hc monitoring.HealthCheck) (monitoring.HealthCheck, time.Time, error) {
	if err := f.enter(ctx, "create-health-check"); err != nil {
		return monitoring.HealthCheck{}, time.Time{}, err
	}
	f.mu.Lock()
	hc.ID = f.newID("hc")
	f.mu.Unlock()
	return hc, f.clock.Now(), nil
}

func (f *fakeRemote) UpdateHealthCheck(ctx context.Context, id string, hc monitoring.HealthCheck) (monitoring.HealthCheck, time.Time, error) {
	if err := f.enter(ctx, "update-health-check:"+id); err != nil {
		return monitoring.HealthCheck{}, time.Time{}, err
	}
	hc.ID = id
	return hc, f.clock.Now(), nil
}

func (f *fakeRemote) DeleteHealthCheck(ctx context.Context, id string) error {
	return f.enter(ctx, "delete-health-check:"+id)
}

func (f *fakeRemote) CreateService(ctx context.Context, s monitoring.Service) (monitoring.Service, time.Time, error) {
	if err := f.enter(ctx, "create-service"); err != nil {
		return monitoring.Service{}, time.Time{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = f.newID("svc")
	f.services[s.ID] = s
	return s, f.clock.Now(), nil
}

func (f *fakeRemote) UpdateService(ctx context.Context, id string, s monitoring.Service) (monitoring.Service, time.Time, error) {
	if err := f.enter(ctx, "update-service:"+id); err != nil {
		return monitoring.Service{}, time.Time{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = id
	f.services[id] = s
	return s, f.clock.Now(), nil
}

func (f *fakeRemote) DeleteService(ctx context.Context, id string) error {
	if err := f.enter(ctx, "delete-service:"+id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.services, id)
	return nil
}

func (f *fakeRemote) serviceList() []monitoring.Service {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]monitoring.Service, 0, len(f.services))
	for _, id := range slices.Sorted(maps.Keys(f.services)) {
		out = append(out, f.services[id])
	}
	return out
}

func (f *fakeRemote) CreateEndpoint(ctx context.Context, ep monitoring.Endpoint) (monitoring.Endpoint, time.Time, error) {
	if err := f.enter(ctx, "create-endpoint"); err != nil {
		return monitoring.Endpoint{}, time.Time{}, err
	}
	f.mu.Lock()
	ep.ID = f.newID("ep")
	f.mu.Unlock()
	return ep, f.clock.Now(), nil
}

func (f *fakeRemote) UpdateEndpoint(ctx context.Context, id string, ep monitoring.Endpoint) (monitoring.Endpoint, time.Time, error) {
	if err := f.enter(ctx, "update-endpoint:"+id); err != nil {
		return monitoring.Endpoint{}, time.Time{}, err
	}
	ep.ID = id
	return ep, f.clock.Now(), nil
}

func (f *fakeRemote) DeleteEndpoint(ctx context.Context, id string) error {
	return f.enter(ctx, "delete-endpoint:"+id)
}

func (f *fakeRemote) CreateDependency(ctx context.Context, d monitoring.Dependency) (monitoring.Dependency, time.Time, error) {
	if err := f.enter(ctx, "create-dependency"); err != nil {
		return monitoring.Dependency{}, time.Time{}, err
	}
	f.mu.Lock()
	d.ID = f.newID("dep")
	f.mu.Unlock()
	return d, f.clock.Now(), nil
}

func (f *fakeRemote) UpdateDependency(ctx context.Context, id string, d monitoring.Dependency) (monitoring.Dependency, time.Time, error) {
	if err := f.enter(ctx, "update-dependency:"+id); err != nil {
		return monitoring.Dependency{}, time.Time{}, err
	}
	d.ID = id
	return d, f.clock.Now(), nil
}

func (f *fakeRemote) DeleteDependency(ctx context.Context, id string) error {
	return f.enter(ctx, "delete-dependency:"+id)
}

func (f *fakeRemote) CreateMaintenanceWindow(ctx context.Context, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, time.Time, error) {
	if err := f.enter(ctx, "create-maintenance"); err != nil {
		return monitoring.MaintenanceWindow{}, time.Time{}, err
	}
	f.mu.Lock()
	w.ID = f.newID("mw")
	f.mu.Unlock()
	return w, f.clock.Now(), nil
}

func (f *fakeRemote) UpdateMaintenanceWindow(ctx context.Context, id string, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, time.Time, error) {
	if err := f.enter(ctx, "update-maintenance:"+id); err != nil {
		return monitoring.MaintenanceWindow{}, time.Time{}, err
	}
	w.ID = id
	return w, f.clock.Now(), nil
}

func (f *fakeRemote) CancelMaintenanceWindow(ctx context.Context, id string) (monitoring.MaintenanceWindow, time.Time, error) {
	if err := f.enter(ctx, "cancel-maintenance:"+id); err != nil {
		return monitoring.MaintenanceWindow{}, time.Time{}, err
	}
	return monitoring.MaintenanceWindow{ID: id, Title: "db upgrade", Status: monitoring.MaintenanceCancelled}, f.clock.Now(), nil
}

func (f *fakeRemote) UpdateConfiguration(ctx context.Context, partial map[string]any) (monitoring.Configuration, time.Time, error) {
	if err := f.enter(ctx, "update-configuration"); err != nil {
		return monitoring.Configuration{}, time.Time{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	maps.Copy(f.config.Settings, partial)
	f.config.Version++
	cfg := f.config
	cfg.Settings = maps.Clone(f.config.Settings)
	return cfg, f.clock.Now(), nil
}

type testEnv struct {
	engine *Engine
	cache  *querycache.Cache
	remote *fakeRemote
	clock  *fakeClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	clock := newFakeClock(base)
	cache := querycache.New(testLogger(), querycache.WithClock(clock.Now))
	t.Cleanup(cache.Close)
	remote := newFakeRemote(clock)
	engine := NewEngine(cache, remote, nil, testLogger(), append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(engine.Stop)
	return &testEnv{engine: engine, cache: cache, remote: remote, clock: clock}
}

// seedAlerts loads alerts into both the remote and the unfiltered alert
// collection, as a poll would.
func (env *testEnv) seedAlerts(t *testing.T, alerts ...monitoring.Alert) {
	t.Helper()
	for _, a := range alerts {
		env.remote.putAlert(a)
	}
	require.True(t, env.cache.Store(querycache.CollectionKey(monitoring.KindAlerts, ""), env.remote.alertList(), env.clock.Now()))
}

// serveAlerts registers a fetcher answering from the remote's records.
func (env *testEnv) serveAlerts() {
	env.cache.Register(monitoring.KindAlerts, func(context.Context, querycache.Key) (any, time.Time, error) {
		return env.remote.alertList(), env.clock.Now(), nil
	})
}

func activeAlert(id string, sev monitoring.Severity) monitoring.Alert {
	return monitoring.Alert{
		ID:          id,
		Name:        "CPU usage high on " + id,
		Severity:    sev,
		Status:      monitoring.AlertActive,
		Category:    "infrastructure",
		Source:      "node-exporter",
		Condition:   monitoring.Condition{Metric: MetricCPUUsage, Operator: ">", Threshold: 90, Unit: "%"},
		TriggeredAt: base.Add(-time.Minute),
	}
}

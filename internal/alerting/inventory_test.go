package alerting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

func servicesKey() querycache.Key {
	return querycache.CollectionKey(monitoring.KindServices, "")
}

func cachedServices(t *testing.T, c *querycache.Cache) []monitoring.Service {
	t.Helper()
	entry, ok := c.Peek(servicesKey())
	require.True(t, ok)
	list, ok := entry.Value.([]monitoring.Service)
	require.True(t, ok)
	return list
}

func TestInventory_CreateServiceReplacesPendingEntry(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.True(t, env.cache.Store(servicesKey(), []monitoring.Service{{ID: "svc-0", Name: "billing"}}, base))

	gate := make(chan struct{})
	entered := make(chan string, 1)
	env.remote.setGate(gate, entered)
	done := make(chan error, 1)
	go func() {
		_, err := env.engine.CreateService(t.Context(), monitoring.Service{Name: "radiology-pacs"})
		done <- err
	}()
	<-entered

	list := cachedServices(t, env.cache)
	require.Len(t, list, 2)
	assert.True(t, strings.HasPrefix(list[1].ID, pendingIDPrefix), "optimistic entry under a temporary id")

	close(gate)
	require.NoError(t, <-done)
	list = cachedServices(t, env.cache)
	require.Len(t, list, 2)
	assert.Equal(t, "svc-1", list[1].ID)
	assert.Equal(t, "radiology-pacs", list[1].Name)

	entry, _ := env.cache.Peek(servicesKey())
	assert.True(t, entry.Stale, "collection marked for reconciliation")
}

func TestInventory_FailedUpdateRestoresCollection(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	original := []monitoring.Service{{ID: "svc-1", Name: "billing", Version: "1.0"}}
	require.True(t, env.cache.Store(servicesKey(), original, base))
	env.remote.setFail(monitoring.ErrMutation)

	_, err := env.engine.UpdateService(t.Context(), "svc-1", monitoring.Service{Name: "billing", Version: "2.0"})
	require.ErrorIs(t, err, monitoring.ErrMutation)
	assert.Equal(t, original, cachedServices(t, env.cache))
}

func TestInventory_FailedDeleteRefetches(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.cache.Register(monitoring.KindServices, func(context.Context, querycache.Key) (any, time.Time, error) {
		return env.remote.serviceList(), env.clock.Now(), nil
	})
	_, err := env.engine.CreateService(t.Context(), monitoring.Service{Name: "lab"})
	require.NoError(t, err)
	require.NoError(t, env.cache.Refresh(t.Context(), servicesKey()))
	require.Len(t, cachedServices(t, env.cache), 1)

	env.remote.setFail(monitoring.ErrConnection)
	err = env.engine.DeleteService(t.Context(), "svc-1")
	require.ErrorIs(t, err, monitoring.ErrMutation)
	assert.Len(t, cachedServices(t, env.cache), 1)

	env.remote.setFail(nil)
	require.NoError(t, env.engine.DeleteService(t.Context(), "svc-1"))
	assert.Empty(t, cachedServices(t, env.cache))
}

func TestInventory_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.engine.CreateService(ctx, monitoring.Service{})
	assert.ErrorIs(t, err, monitoring.ErrInvalidInput)
	_, err = env.engine.CreateHealthCheck(ctx, monitoring.HealthCheck{Name: "db"})
	assert.ErrorIs(t, err, monitoring.ErrInvalidInput, "target required")
	_, err = env.engine.CreateEndpoint(ctx, monitoring.Endpoint{Name: "login"})
	assert.ErrorIs(t, err, monitoring.ErrInvalidInput, "url required")
	_, err = env.engine.CreateDependency(ctx, monitoring.Dependency{Type: "database"})
	assert.ErrorIs(t, err, monitoring.ErrInvalidInput)
	_, err = env.engine.CreateMaintenanceWindow(ctx, monitoring.MaintenanceWindow{Title: "x", StartsAt: base, EndsAt: base})
	assert.ErrorIs(t, err, monitoring.ErrInvalidInput, "end after start")
	err = env.engine.DeleteEndpoint(ctx, "")
	assert.ErrorIs(t, err, monitoring.ErrInvalidInput)
	_, err = env.engine.UpdateConfiguration(ctx, nil)
	assert.ErrorIs(t, err, monitoring.ErrInvalidInput)
	_, err = env.engine.RunHealthCheck(ctx, "")
	assert.ErrorIs(t, err, monitoring.ErrInvalidInput)

	assert.Empty(t, env.remote.Calls())
}

func TestInventory_DefaultsApplied(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	hc, err := env.engine.CreateHealthCheck(t.Context(), monitoring.HealthCheck{Name: "db", Target: "db:5432"})
	require.NoError(t, err)
	assert.Equal(t, monitoring.HealthUnknown, hc.Status)
	assert.Equal(t, "hc-1", hc.ID)

	ep, err := env.engine.CreateEndpoint(t.Context(), monitoring.Endpoint{URL: "https://ehr.local/login", Method: "post"})
	require.NoError(t, err)
	assert.Equal(t, "POST", ep.Method)

	w, err := env.engine.CreateMaintenanceWindow(t.Context(), monitoring.MaintenanceWindow{Title: "db upgrade", StartsAt: base, EndsAt: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, monitoring.MaintenanceScheduled, w.Status)
}

func TestInventory_RunHealthCheckUpsertsResult(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	key := querycache.CollectionKey(monitoring.KindHealthChecks, "")
	require.True(t, env.cache.Store(key, []monitoring.HealthCheck{{ID: "hc-9", Name: "db", Target: "db:5432", Status: monitoring.HealthUnhealthy}}, base))

	hc, err := env.engine.RunHealthCheck(t.Context(), "hc-9")
	require.NoError(t, err)
	assert.Equal(t, monitoring.HealthHealthy, hc.Status)

	entry, _ := env.cache.Peek(key)
	list := entry.Value.([]monitoring.HealthCheck)
	require.Len(t, list, 1)
	assert.Equal(t, monitoring.HealthHealthy, list[0].Status)
}

func TestInventory_CancelMaintenanceWindow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	key := querycache.CollectionKey(monitoring.KindMaintenance, "")
	require.True(t, env.cache.Store(key, []monitoring.MaintenanceWindow{
		{ID: "mw-1", Title: "db upgrade", Status: monitoring.MaintenanceScheduled, StartsAt: base, EndsAt: base.Add(time.Hour)},
		{ID: "mw-2", Title: "network", Status: monitoring.MaintenanceCompleted, StartsAt: base, EndsAt: base.Add(time.Hour)},
	}, base))

	w, err := env.engine.CancelMaintenanceWindow(t.Context(), "mw-1")
	require.NoError(t, err)
	assert.Equal(t, monitoring.MaintenanceCancelled, w.Status)

	_, err = env.engine.CancelMaintenanceWindow(t.Context(), "mw-2")
	assert.ErrorIs(t, err, monitoring.ErrInvalidTransition)
	_, err = env.engine.UpdateMaintenanceWindow(t.Context(), "mw-1", monitoring.MaintenanceWindow{Title: "again", StartsAt: base, EndsAt: base.Add(time.Hour)})
	assert.ErrorIs(t, err, monitoring.ErrInvalidTransition, "cancelled windows are final")

	assert.Equal(t, []string{"cancel-maintenance:mw-1"}, env.remote.Calls())
}

func TestInventory_UpdateConfigurationMergesSettings(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	key := querycache.CollectionKey(monitoring.KindConfiguration, "")
	require.True(t, env.cache.Store(key, monitoring.Configuration{Version: 1, Settings: map[string]any{"pollInterval": 30, "theme": "dark"}}, base))

	gate := make(chan struct{})
	entered := make(chan string, 1)
	env.remote.setGate(gate, entered)
	done := make(chan error, 1)
	go func() {
		_, err := env.engine.UpdateConfiguration(t.Context(), map[string]any{"pollInterval": 60})
		done <- err
	}()
	<-entered

	entry, _ := env.cache.Peek(key)
	optimistic := entry.Value.(monitoring.Configuration)
	assert.Equal(t, 60, optimistic.Settings["pollInterval"])
	assert.Equal(t, "dark", optimistic.Settings["theme"])

	close(gate)
	require.NoError(t, <-done)
	entry, _ = env.cache.Peek(key)
	cfg := entry.Value.(monitoring.Configuration)
	assert.Equal(t, 2, cfg.Version)
	assert.True(t, entry.Stale)
}

package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

func TestInitialize_WiresEngineToBus(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(base)
	cache := querycache.New(testLogger(), querycache.WithClock(clock.Now))
	t.Cleanup(cache.Close)
	remote := newFakeRemote(clock)
	bus := NewEventBus(testLogger())
	t.Cleanup(bus.Stop)

	settings := conf.Default().Monitoring
	settings.AutoIncident = true
	settings.Retention = conf.Duration(time.Hour)

	engine := Initialize(cache, remote, bus, &settings, nil, testLogger())
	t.Cleanup(engine.Stop)
	assert.Equal(t, time.Hour, engine.retention)

	require.True(t, engine.TrackAlert(activeAlert("a1", monitoring.SeverityCritical), base))
	require.Eventually(t, func() bool {
		return len(remote.Calls()) == 1
	}, time.Second, 5*time.Millisecond, "the bus delivers the trigger to the engine")
	assert.Equal(t, "create-incident", remote.Calls()[0])
}

func TestEngine_StartPruningRemovesRetired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, WithRetention(time.Minute))
	resolvedAt := base.Add(-time.Hour)
	a := activeAlert("a1", monitoring.SeverityLow)
	a.Status = monitoring.AlertResolved
	a.ResolvedAt = &resolvedAt
	require.True(t, env.engine.TrackAlert(a, base))

	env.engine.StartPruning(5 * time.Millisecond)
	require.Eventually(t, func() bool {
		return len(env.cache.Keys(monitoring.KindAlert)) == 0
	}, time.Second, 5*time.Millisecond)

	env.engine.Stop()
	env.engine.Stop()
}

package alerting

import (
	"time"

	"github.com/hospitalops/livemon/internal/client"
	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/observability/metrics"
	"github.com/hospitalops/livemon/internal/querycache"
)

// pruneInterval is how often retired records are removed from the cache.
const pruneInterval = 10 * time.Minute

// Initialize creates the lifecycle engine from the monitoring settings,
// subscribes it to the event bus and starts the retention loop. Call Stop
// on the returned engine during shutdown.
func Initialize(
	cache *querycache.Cache,
	remote client.Mutator,
	bus *EventBus,
	settings *conf.MonitoringSettings,
	m *metrics.Metrics,
	log logger.Logger,
) *Engine {
	engine := NewEngine(cache, remote, bus, log,
		WithMetrics(m),
		WithRetention(settings.Retention.Std()),
		WithAutoIncident(settings.AutoIncident),
	)
	if bus != nil {
		bus.Subscribe(engine.HandleEvent)
	}
	engine.StartPruning(pruneInterval)

	engine.log.Info("lifecycle engine initialized",
		logger.Duration("retention", engine.retention),
		logger.Bool("auto_incident", engine.autoIncident))
	return engine
}

// StartPruning removes retired records every interval until Stop is called.
// Calling it again replaces the running loop.
func (e *Engine) StartPruning(interval time.Duration) {
	e.stopPruning()

	stop := make(chan struct{})
	done := make(chan struct{})
	e.mu.Lock()
	e.pruneStop, e.pruneDone = stop, done
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := e.Prune(); n > 0 {
					e.log.Debug("pruned retired records", logger.Int("removed", n))
				}
			case <-stop:
				return
			}
		}
	}()
}

func (e *Engine) stopPruning() {
	e.mu.Lock()
	stop, done := e.pruneStop, e.pruneDone
	e.pruneStop, e.pruneDone = nil, nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// Stop ends the retention loop and waits for background incident creation.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.stopPruning()
		e.Wait()
	})
}

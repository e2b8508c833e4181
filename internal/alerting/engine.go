package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/hospitalops/livemon/internal/client"
	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/observability/metrics"
	"github.com/hospitalops/livemon/internal/querycache"
)

const (
	// rollbackTimeout bounds the refetch issued when a command is rolled back.
	rollbackTimeout = 5 * time.Second
	// autoIncidentTimeout bounds the remote call that opens an automatic incident.
	autoIncidentTimeout = 10 * time.Second
	// DefaultRetention is how long resolved records stay visible.
	DefaultRetention = 24 * time.Hour
)

// Engine applies lifecycle commands to alerts, incidents and the inventory
// resources. It never owns data: every change is written to the query cache,
// optimistically first and authoritatively once the remote call returns.
type Engine struct {
	cache   *querycache.Cache
	remote  client.Mutator
	bus     *EventBus
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	locks   *keyedLocks

	retention    time.Duration
	autoIncident bool

	// autoIncidents records alerts an incident was opened for, keyed by
	// alert id.
	autoIncidents map[string]time.Time
	mu            sync.Mutex
	wg            sync.WaitGroup

	pruneStop chan struct{}
	pruneDone chan struct{}
	stopOnce  sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for suppression expiry, retention and
// optimistic timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithMetrics records command outcomes in m.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithRetention sets how long resolved alerts and incidents stay visible.
func WithRetention(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retention = d
		}
	}
}

// WithAutoIncident opens an incident for every new high or critical alert
// that is not linked to one.
func WithAutoIncident(enabled bool) Option { return func(e *Engine) { e.autoIncident = enabled } }

// NewEngine creates an engine writing to cache and committing through
// remote. bus may be nil, in which case no lifecycle events are published.
// The alert and incident mergers are registered on cache.
func NewEngine(cache *querycache.Cache, remote client.Mutator, bus *EventBus, log logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	e := &Engine{
		cache:         cache,
		remote:        remote,
		bus:           bus,
		log:           log.Module(component),
		now:           time.Now,
		locks:         newKeyedLocks(),
		retention:     DefaultRetention,
		autoIncidents: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	cache.SetMerger(monitoring.KindAlert, NewAlertMerger(e.now))
	cache.SetMerger(monitoring.KindAlerts, NewAlertListMerger(e.now))
	cache.SetMerger(monitoring.KindIncident, IncidentMerger)
	cache.SetMerger(monitoring.KindIncidents, IncidentListMerger)
	return e
}

// TrackAlert stores an alert delivered by the push channel with its server
// timestamp. It reports whether the record was accepted; accepted alerts
// are announced on the event bus.
func (e *Engine) TrackAlert(a monitoring.Alert, serverTime time.Time) bool {
	if a.ID == "" {
		return false
	}
	if !e.cache.Patch(querycache.EntityKey(monitoring.KindAlert, a.ID), a.Clone(), serverTime) {
		return false
	}
	e.publish(alertEvent(EventAlertTriggered, a, ""))
	return true
}

// TrackIncident stores an incident delivered by the push channel.
func (e *Engine) TrackIncident(inc monitoring.Incident, serverTime time.Time) bool {
	if inc.ID == "" {
		return false
	}
	if !e.cache.Patch(querycache.EntityKey(monitoring.KindIncident, inc.ID), inc.Clone(), serverTime) {
		return false
	}
	e.publish(incidentEvent(EventIncidentCreated, inc, ""))
	return true
}

// HandleEvent is the engine's own event-bus subscriber. With auto-incident
// enabled it opens an incident for new high or critical alerts.
func (e *Engine) HandleEvent(ev *LifecycleEvent) {
	if !e.autoIncident || ev.Type != EventAlertTriggered || ev.Alert == nil {
		return
	}
	a := ev.Alert
	if a.IncidentID != "" || a.Status != monitoring.AlertActive || !a.Severity.AtLeast(monitoring.SeverityHigh) {
		return
	}
	e.mu.Lock()
	if _, done := e.autoIncidents[a.ID]; done {
		e.mu.Unlock()
		return
	}
	e.autoIncidents[a.ID] = e.now()
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), autoIncidentTimeout)
		defer cancel()
		e.openIncidentFor(ctx, *a)
	}()
}

func (e *Engine) openIncidentFor(ctx context.Context, a monitoring.Alert) {
	inc, err := e.CreateIncident(ctx, monitoring.IncidentInput{
		Title:       a.Name,
		Description: a.Description,
		Severity:    a.Severity,
		AlertIDs:    []string{a.ID},
	})
	if err != nil {
		e.mu.Lock()
		delete(e.autoIncidents, a.ID)
		e.mu.Unlock()
		e.log.Warn("automatic incident creation failed", logger.String("alert_id", a.ID), logger.Error(err))
		return
	}
	e.linkAlert(a.ID, inc.ID)
	e.log.Info("opened incident for alert",
		logger.String("alert_id", a.ID),
		logger.String("incident_id", inc.ID))
}

// linkAlert records the incident id on the cached alert.
func (e *Engine) linkAlert(alertID, incidentID string) {
	release, err := e.locks.acquire(context.Background(), "alert:"+alertID)
	if err != nil {
		return
	}
	defer release()
	a, err := e.Alert(alertID)
	if err != nil {
		return
	}
	a.IncidentID = incidentID
	e.cache.SetFromMutation(querycache.EntityKey(monitoring.KindAlert, a.ID), a)
	replaceInCollections(e.cache, monitoring.KindAlerts, alertView.id, a)
}

// Wait blocks until background work started by HandleEvent has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) publish(ev *LifecycleEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ev)
}

// mutationError wraps a failed commit. The category of the remote error is
// kept when it carries one.
func mutationError(cmd Command, target string, err error) error {
	cat := errors.CategoryOf(err)
	if cat == errors.CategoryGeneric || cat == errors.CategoryNetwork {
		cat = errors.CategoryMutation
	}
	if errors.Is(err, monitoring.ErrMutation) {
		return errors.Newf("%s %s: %w", cmd, target, err).
			Component(component).
			Category(cat).
			Context("command", string(cmd)).
			Context("target", target).
			Build()
	}
	return errors.Newf("%s %s: %w: %w", cmd, target, monitoring.ErrMutation, err).
		Component(component).
		Category(cat).
		Context("command", string(cmd)).
		Context("target", target).
		Build()
}

func invalidInput(format string, args ...any) error {
	return errors.Newf(format+": %w", append(args, monitoring.ErrInvalidInput)...).
		Component(component).
		Category(errors.CategoryValidation).
		Build()
}

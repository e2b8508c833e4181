package notification

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hospitalops/livemon/internal/alerting"
	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/observability/metrics"
	"github.com/hospitalops/livemon/internal/querycache"
)

const (
	DefaultDedupWindow     = 5 * time.Minute
	DefaultAlertDismiss    = 10 * time.Second
	DefaultIncidentDismiss = 15 * time.Second

	historyTimeout  = 5 * time.Second
	cleanupInterval = time.Hour
)

// Results recorded in the notifications metric.
const (
	resultSent         = "sent"
	resultFiltered     = "filtered"
	resultDeduplicated = "deduplicated"
	resultRateLimited  = "rate_limited"
	resultNoPermission = "no_permission"
	resultFailed       = "failed"
)

// Config holds the dispatcher policy.
type Config struct {
	MinSeverity     monitoring.Severity
	DedupWindow     time.Duration
	AlertDismiss    time.Duration
	IncidentDismiss time.Duration
	// RatePerSecond and Burst bound how many notifications are shown. A
	// non-positive rate disables the limit.
	RatePerSecond float64
	Burst         int
}

// ConfigFromSettings converts the notification settings.
func ConfigFromSettings(s *conf.NotificationSettings) Config {
	return Config{
		MinSeverity:     monitoring.Severity(s.MinSeverity),
		DedupWindow:     s.DedupWindow.Std(),
		AlertDismiss:    s.AlertDismiss.Std(),
		IncidentDismiss: s.IncidentDismiss.Std(),
		RatePerSecond:   s.RatePerSecond,
		Burst:           s.Burst,
	}
}

func (c Config) withDefaults() Config {
	if !c.MinSeverity.Valid() {
		c.MinSeverity = monitoring.SeverityHigh
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.AlertDismiss <= 0 {
		c.AlertDismiss = DefaultAlertDismiss
	}
	if c.IncidentDismiss <= 0 {
		c.IncidentDismiss = DefaultIncidentDismiss
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithHistory(h History) Option { return func(d *Dispatcher) { d.history = h } }

func WithMetrics(m *metrics.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

// WithAfterFunc replaces time.AfterFunc for scheduling auto-dismiss. The
// returned function cancels the scheduled call; f must not run before
// the scheduling call returns.
func WithAfterFunc(f func(time.Duration, func()) (cancel func() bool)) Option {
	return func(d *Dispatcher) { d.afterFunc = f }
}

type pendingDismiss struct {
	cancel func() bool
	seq    uint64
}

// Dispatcher decides whether cache updates and lifecycle events become
// notifications. It is safe for concurrent use.
type Dispatcher struct {
	notifier Notifier
	history  History
	cfg      Config
	log      logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	afterFunc func(time.Duration, func()) func() bool
	dedup     *dedupSet
	limiter   *rate.Limiter
	granted   atomic.Bool

	mu         sync.Mutex
	seen       map[querycache.Key]map[string]struct{}
	dismiss    map[string]pendingDismiss
	dismissSeq uint64
	stopped    bool
	stopOnce   sync.Once

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewDispatcher creates a dispatcher. Nothing is shown until
// RequestPermission succeeds.
func NewDispatcher(n Notifier, cfg Config, log logger.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		notifier: n,
		cfg:      cfg,
		log:      log.Module("notification"),
		now:      time.Now,
		afterFunc: func(delay time.Duration, f func()) func() bool {
			return time.AfterFunc(delay, f).Stop
		},
		dedup:   newDedupSet(cfg.DedupWindow),
		limiter: rate.NewLimiter(rate.Inf, cfg.Burst),
		seen:    make(map[querycache.Key]map[string]struct{}),
		dismiss: make(map[string]pendingDismiss),
	}
	if cfg.RatePerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RequestPermission asks the notifier for permission and remembers the
// answer.
func (d *Dispatcher) RequestPermission(ctx context.Context) (bool, error) {
	ok, err := d.notifier.Permission(ctx)
	if err != nil {
		d.granted.Store(false)
		return false, err
	}
	d.granted.Store(ok)
	d.log.Info("notification permission", logger.Bool("granted", ok))
	return ok, nil
}

// Granted reports whether notifications may be shown.
func (d *Dispatcher) Granted() bool { return d.granted.Load() }

// OnAlertTriggered shows a notification for a new alert of at least the
// configured severity. It reports whether the notification was shown.
func (d *Dispatcher) OnAlertTriggered(a monitoring.Alert) bool {
	if a.Status != monitoring.AlertActive || !a.Severity.AtLeast(d.cfg.MinSeverity) {
		d.metrics.Notification(string(KindAlert), resultFiltered)
		return false
	}
	title, body := renderAlert(&a)
	return d.deliver(&Notification{
		Kind:     KindAlert,
		Tag:      alertTag(a.ID),
		Title:    title,
		Body:     body,
		Severity: a.Severity,
		SourceID: a.ID,
	}, d.cfg.AlertDismiss)
}

// OnIncidentCreated shows a notification for a new or newly active
// incident.
func (d *Dispatcher) OnIncidentCreated(inc monitoring.Incident) bool {
	if inc.Status == monitoring.IncidentResolved || alerting.IsPendingID(inc.ID) {
		d.metrics.Notification(string(KindIncident), resultFiltered)
		return false
	}
	title, body := renderIncident(&inc)
	return d.deliver(&Notification{
		Kind:     KindIncident,
		Tag:      incidentTag(inc.ID),
		Title:    title,
		Body:     body,
		Severity: inc.Severity,
		SourceID: inc.ID,
	}, d.cfg.IncidentDismiss)
}

// onAlertEscalated notifies once per escalation level.
func (d *Dispatcher) onAlertEscalated(a monitoring.Alert) bool {
	if !a.Severity.AtLeast(d.cfg.MinSeverity) {
		d.metrics.Notification(string(KindEscalation), resultFiltered)
		return false
	}
	title, body := renderEscalation(&a)
	return d.deliver(&Notification{
		Kind:     KindEscalation,
		Tag:      a.ID + ":escalated:" + strconv.Itoa(a.EscalationLevel),
		Title:    title,
		Body:     body,
		Severity: a.Severity,
		SourceID: a.ID,
	}, d.cfg.AlertDismiss)
}

// HandleEvent is the dispatcher's event-bus subscriber.
func (d *Dispatcher) HandleEvent(ev *alerting.LifecycleEvent) {
	switch ev.Type {
	case alerting.EventAlertTriggered:
		if ev.Alert != nil {
			d.OnAlertTriggered(*ev.Alert)
		}
	case alerting.EventAlertEscalated:
		if ev.Alert != nil {
			d.onAlertEscalated(*ev.Alert)
		}
	case alerting.EventAlertAcknowledged, alerting.EventAlertResolved, alerting.EventAlertSuppressed:
		if ev.Alert != nil {
			d.Dismiss(alertTag(ev.Alert.ID))
		}
	case alerting.EventIncidentCreated:
		if ev.Incident != nil {
			d.OnIncidentCreated(*ev.Incident)
		}
	case alerting.EventIncidentResolved:
		if ev.Incident != nil {
			d.Dismiss(incidentTag(ev.Incident.ID))
		}
	}
}

// OnCacheUpdate is a query cache observer. The first write of a key primes
// the set of known ids silently; later writes notify for ids not seen
// before. Optimistic writes are ignored.
func (d *Dispatcher) OnCacheUpdate(key querycache.Key, entry querycache.Entry) {
	if entry.Source == querycache.SourceMutation {
		return
	}
	switch key.Kind {
	case monitoring.KindAlerts, monitoring.KindAlert:
		for _, a := range freshItems(d, key, alertsOf(entry.Value), func(a *monitoring.Alert) string { return a.ID }) {
			d.OnAlertTriggered(a)
		}
	case monitoring.KindIncidents, monitoring.KindIncident:
		for _, inc := range freshItems(d, key, incidentsOf(entry.Value), func(i *monitoring.Incident) string { return i.ID }) {
			d.OnIncidentCreated(inc)
		}
	}
}

func alertsOf(v any) []monitoring.Alert {
	switch t := v.(type) {
	case []monitoring.Alert:
		return t
	case monitoring.Alert:
		return []monitoring.Alert{t}
	}
	return nil
}

func incidentsOf(v any) []monitoring.Incident {
	switch t := v.(type) {
	case []monitoring.Incident:
		return t
	case monitoring.Incident:
		return []monitoring.Incident{t}
	}
	return nil
}

// freshItems records the ids of items under key and returns the items whose
// id was not known before. Nothing is fresh on the first observation of key.
func freshItems[T any](d *Dispatcher, key querycache.Key, items []T, id func(*T) string) []T {
	d.mu.Lock()
	defer d.mu.Unlock()
	known, primed := d.seen[key]
	if !primed {
		known = make(map[string]struct{}, len(items))
		d.seen[key] = known
	}
	var out []T
	for i := range items {
		itemID := id(&items[i])
		if itemID == "" || alerting.IsPendingID(itemID) {
			continue
		}
		if _, ok := known[itemID]; ok {
			continue
		}
		known[itemID] = struct{}{}
		if primed {
			out = append(out, items[i])
		}
	}
	return out
}

// deliver runs the shared checks and shows n.
func (d *Dispatcher) deliver(n *Notification, dismissAfter time.Duration) bool {
	kind := string(n.Kind)
	if !d.granted.Load() {
		d.metrics.Notification(kind, resultNoPermission)
		return false
	}
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return false
	}
	if !d.dedup.claim(n.Tag) {
		d.metrics.Notification(kind, resultDeduplicated)
		d.log.Debug("duplicate notification suppressed", logger.String("tag", n.Tag))
		return false
	}
	if !d.limiter.Allow() {
		d.dedup.release(n.Tag)
		d.metrics.Notification(kind, resultRateLimited)
		d.log.Warn("notification rate limit reached", logger.String("tag", n.Tag))
		return false
	}

	n.CreatedAt = d.now()
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := d.notifier.Show(ctx, n.Title, n.Body, n.Tag); err != nil {
		d.dedup.release(n.Tag)
		d.metrics.Notification(kind, resultFailed)
		d.log.Error("failed to show notification", logger.String("tag", n.Tag), logger.Error(err))
		return false
	}
	d.metrics.Notification(kind, resultSent)
	d.scheduleDismiss(n.Tag, dismissAfter)

	if d.history != nil {
		if err := d.history.Save(ctx, n); err != nil {
			d.log.Warn("failed to record notification history", logger.String("tag", n.Tag), logger.Error(err))
		}
	}
	return true
}

func (d *Dispatcher) scheduleDismiss(tag string, after time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.dismiss[tag]; ok {
		prev.cancel()
	}
	d.dismissSeq++
	seq := d.dismissSeq
	cancel := d.afterFunc(after, func() {
		d.mu.Lock()
		if cur, ok := d.dismiss[tag]; ok && cur.seq == seq {
			delete(d.dismiss, tag)
		}
		d.mu.Unlock()
		d.notifier.Dismiss(tag)
	})
	d.dismiss[tag] = pendingDismiss{cancel: cancel, seq: seq}
}

// Dismiss removes the notification with tag now and cancels its scheduled
// auto-dismiss.
func (d *Dispatcher) Dismiss(tag string) {
	d.mu.Lock()
	prev, ok := d.dismiss[tag]
	delete(d.dismiss, tag)
	d.mu.Unlock()
	if !ok {
		return
	}
	prev.cancel()
	d.notifier.Dismiss(tag)
}

// StartHistoryCleanup deletes history entries older than days, once now and
// then every hour until Stop. It does nothing without a history store or
// with a non-positive retention.
func (d *Dispatcher) StartHistoryCleanup(days int) {
	if d.history == nil || days <= 0 {
		return
	}
	d.mu.Lock()
	if d.stopped || d.cleanupStop != nil {
		d.mu.Unlock()
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	d.cleanupStop, d.cleanupDone = stop, done
	d.mu.Unlock()

	retention := time.Duration(days) * 24 * time.Hour
	go func() {
		defer close(done)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			d.cleanupHistory(retention)
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()
}

func (d *Dispatcher) cleanupHistory(retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	n, err := d.history.DeleteBefore(ctx, d.now().Add(-retention))
	if err != nil {
		d.log.Warn("notification history cleanup failed", logger.Error(err))
		return
	}
	if n > 0 {
		d.log.Info("notification history cleaned up", logger.Int64("deleted", n))
	}
}

// Stop cancels pending auto-dismiss timers and history cleanup. Later
// notifications are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		pending := d.dismiss
		d.dismiss = make(map[string]pendingDismiss)
		stop, done := d.cleanupStop, d.cleanupDone
		d.cleanupStop, d.cleanupDone = nil, nil
		d.mu.Unlock()

		for _, p := range pending {
			p.cancel()
		}
		if stop != nil {
			close(stop)
			<-done
		}
	})
}

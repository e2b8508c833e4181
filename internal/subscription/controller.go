package subscription

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hospitalops/livemon/internal/alerting"
	"github.com/hospitalops/livemon/internal/client"
	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/observability/metrics"
	"github.com/hospitalops/livemon/internal/querycache"
)

// Mode selects how push-owned resources are kept current.
type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePush, ModePoll:
		return m, nil
	}
	return "", errors.Newf("unknown subscription mode %q: %w", s, monitoring.ErrInvalidInput).
		Component(component).
		Category(errors.CategoryValidation).
		Build()
}

const (
	DefaultPollInterval      = 30 * time.Second
	DefaultSlowInterval      = 5 * time.Minute
	DefaultReconnectDelay    = 5 * time.Second
	DefaultMaxReconnectDelay = 60 * time.Second

	// refreshConcurrency bounds parallel reads during a full refresh.
	refreshConcurrency = 4
	subscribeTimeout   = 10 * time.Second
	escalateTimeout    = 10 * time.Second
)

// Config holds the controller timings.
type Config struct {
	Mode              Mode
	PollInterval      time.Duration
	SlowInterval      time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ClientID          string
}

// ConfigFromSettings maps the monitoring settings to a Config. An unknown
// mode falls back to push.
func ConfigFromSettings(s *conf.MonitoringSettings) Config {
	mode, err := ParseMode(s.Mode)
	if err != nil {
		mode = ModePush
	}
	return Config{
		Mode:              mode,
		PollInterval:      s.PollInterval.Std(),
		SlowInterval:      s.SlowInterval.Std(),
		ReconnectDelay:    s.ReconnectDelay.Std(),
		MaxReconnectDelay: s.MaxReconnectDelay.Std(),
	}
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModePush
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SlowInterval <= 0 {
		c.SlowInterval = DefaultSlowInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = max(c.ReconnectDelay, DefaultMaxReconnectDelay)
	}
	if c.ClientID == "" {
		c.ClientID = NewClientID()
	}
	return c
}

// Tracker receives the entity events of the push channel. The lifecycle
// engine implements it.
type Tracker interface {
	TrackAlert(a monitoring.Alert, serverTime time.Time) bool
	TrackIncident(inc monitoring.Incident, serverTime time.Time) bool
	Escalate(ctx context.Context, id string) (monitoring.Alert, error)
}

// Status is a snapshot of the controller state.
type Status struct {
	Mode           Mode      `json:"mode"`
	Running        bool      `json:"running"`
	Connected      bool      `json:"connected"`
	Polling        bool      `json:"polling"`
	Transport      string    `json:"transport,omitempty"`
	ClientID       string    `json:"clientId"`
	PollIntervalMs int64     `json:"pollIntervalMs"`
	LastUpdate     time.Time `json:"lastUpdate,omitzero"`
	LastError      string    `json:"lastError,omitempty"`
	Messages       int       `json:"messages"`
	ParseErrors    int       `json:"parseErrors"`
	Reconnects     int       `json:"reconnects"`
	Generation     uint64    `json:"generation"`
}

// Controller owns the push connection and the poll timers. Start and Stop
// bracket a session; every Start and Stop advances the generation and any
// result produced under an older generation is dropped.
type Controller struct {
	transport  Transport
	reader     client.Reader
	cache      *querycache.Cache
	tracker    Tracker
	escalation *alerting.EscalationPolicy
	log        logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	// lifecycle serializes Start, Stop and SetMode.
	lifecycle sync.Mutex

	mu         sync.Mutex
	cfg        Config
	gen        uint64
	running    bool
	parent     context.Context
	runCtx     context.Context
	cancel     context.CancelFunc
	filters    monitoring.FilterCriteria
	thresholds monitoring.Thresholds

	connected   bool
	pollCancel  context.CancelFunc
	pollReset   chan struct{}
	lastUpdate  time.Time
	lastErr     error
	messages    int
	parseErrors int
	reconnects  int

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for lastUpdate.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithEscalationPolicy escalates alerts that keep triggering.
func WithEscalationPolicy(p *alerting.EscalationPolicy) Option {
	return func(c *Controller) { c.escalation = p }
}

// NewController creates a stopped controller and registers its fetchers for
// every collection kind on cache. transport may be nil when only poll mode
// is used.
func NewController(transport Transport, reader client.Reader, cache *querycache.Cache, tracker Tracker, cfg Config, log logger.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logger.Discard()
	}
	c := &Controller{
		transport: transport,
		reader:    reader,
		cache:     cache,
		tracker:   tracker,
		cfg:       cfg.withDefaults(),
		log:       log.Module(component),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, kind := range monitoring.CollectionKinds() {
		cache.Register(kind, c.fetch)
	}
	return c
}

// Start begins a session with the given filters and thresholds. A running
// session is stopped first. Start refreshes every collection once before it
// returns; refresh failures are logged and recorded on the cache entries.
func (c *Controller) Start(ctx context.Context, filters monitoring.FilterCriteria, thresholds monitoring.Thresholds) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.start(ctx, filters, thresholds)
}

func (c *Controller) start(ctx context.Context, filters monitoring.FilterCriteria, thresholds monitoring.Thresholds) error {
	c.mu.Lock()
	mode := c.cfg.Mode
	c.mu.Unlock()
	if mode == ModePush && c.transport == nil {
		return configError("push mode needs a transport")
	}

	c.stop()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(ctx)
	c.parent, c.runCtx, c.cancel = ctx, runCtx, cancel
	c.running = true
	c.filters = monitoring.NewFilterCriteria(filters)
	c.thresholds = thresholds.Clone()
	c.connected = false
	c.lastErr = nil
	c.mu.Unlock()

	c.log.Info("subscription starting",
		logger.String("mode", string(mode)),
		logger.String("filters", c.filters.Key()),
		logger.Uint64("generation", gen))

	if err := c.refresh(runCtx, monitoring.CollectionKinds()); err != nil {
		c.log.Warn("initial refresh incomplete", logger.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return nil
	}
	c.wg.Add(1)
	go c.slowLoop(runCtx)
	if mode == ModePush {
		c.wg.Add(1)
		go c.pushLoop(runCtx, gen)
	} else {
		c.startPollingLocked(false)
	}
	return nil
}

// Stop closes the push connection, cancels the timers and a pending
// reconnect and waits for the loops to exit.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stop()
}

func (c *Controller) stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.gen++
	cancel := c.cancel
	c.cancel = nil
	c.pollCancel, c.pollReset = nil, nil
	c.connected = false
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.metrics.SetConnected(false)
	c.log.Info("subscription stopped")
}

// SetMode switches between push and poll. A running session is restarted
// with the same filters. Server times of collection entries are cleared so
// the first read on the new channel is accepted.
func (c *Controller) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	if m == ModePush && c.transport == nil {
		return configError("push mode needs a transport")
	}
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.cfg.Mode == m {
		c.mu.Unlock()
		return nil
	}
	c.cfg.Mode = m
	running, parent, filters, thresholds := c.running, c.parent, c.filters, c.thresholds
	c.mu.Unlock()

	for _, kind := range monitoring.CollectionKinds() {
		for _, key := range c.cache.Keys(kind) {
			c.cache.ResetServerTime(key)
		}
	}
	if !running {
		return nil
	}
	return c.start(parent, filters, thresholds)
}

// SetInterval changes the poll interval. A running poll loop picks it up
// without restarting.
func (c *Controller) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.Newf("poll interval must be positive, got %s: %w", d, monitoring.ErrInvalidInput).
			Component(component).
			Category(errors.CategoryValidation).
			Build()
	}
	c.mu.Lock()
	c.cfg.PollInterval = d
	reset := c.pollReset
	c.mu.Unlock()
	if reset != nil {
		select {
		case reset <- struct{}{}:
		default:
		}
	}
	return nil
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Mode:           c.cfg.Mode,
		Running:        c.running,
		Connected:      c.connected,
		Polling:        c.pollCancel != nil,
		ClientID:       c.cfg.ClientID,
		PollIntervalMs: c.cfg.PollInterval.Milliseconds(),
		LastUpdate:     c.lastUpdate,
		Messages:       c.messages,
		ParseErrors:    c.parseErrors,
		Reconnects:     c.reconnects,
		Generation:     c.gen,
	}
	if c.transport != nil {
		st.Transport = c.transport.String()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Filters returns the criteria of the current session.
func (c *Controller) Filters() monitoring.FilterCriteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

// KeyFor returns the cache key the controller maintains for kind.
func (c *Controller) KeyFor(kind monitoring.Kind) querycache.Key {
	if !kind.Filtered() {
		return querycache.CollectionKey(kind, "")
	}
	return querycache.CollectionKey(kind, c.Filters().Key())
}

// RefreshAll reads every collection kind once.
func (c *Controller) RefreshAll(ctx context.Context) error {
	return c.refresh(ctx, monitoring.CollectionKinds())
}

func (c *Controller) refresh(ctx context.Context, kinds []monitoring.Kind) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(refreshConcurrency)
	for _, kind := range kinds {
		key := c.KeyFor(kind)
		g.Go(func() error {
			if err := c.cache.Refresh(ctx, key); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// fetch is the cache fetcher for every collection kind. A result read while
// the generation changed, or under a cancelled context, is discarded.
func (c *Controller) fetch(ctx context.Context, key querycache.Key) (any, time.Time, error) {
	gen := c.generation()
	f, err := monitoring.ParseFilterKey(key.Filter)
	if err != nil {
		return nil, time.Time{}, err
	}
	value, serverTime, err := client.Fetch(ctx, c.reader, key.Kind, f)
	if c.generation() != gen || errors.Is(ctx.Err(), context.Canceled) {
		return nil, time.Time{}, querycache.ErrDiscarded
	}
	return value, serverTime, err
}

func (c *Controller) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) current(gen uint64) bool {
	return c.generation() == gen
}

// pushLoop keeps a push session open, polling while it is down.
func (c *Controller) pushLoop(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	c.mu.Lock()
	b := newReconnectBackoff(c.cfg.ReconnectDelay, c.cfg.MaxReconnectDelay)
	c.mu.Unlock()

	for {
		err := c.session(ctx, gen, b)
		if ctx.Err() != nil || !c.current(gen) {
			return
		}
		c.disconnected(gen, err)

		delay := b.Next()
		c.log.Warn("push channel unavailable, polling until reconnect",
			logger.Duration("retry_in", delay),
			logger.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		c.metrics.Reconnect()
	}
}

// session opens one push connection, subscribes and reads until the
// connection fails.
func (c *Controller) session(ctx context.Context, gen uint64, b *reconnectBackoff) error {
	conn, err := c.transport.Dial(ctx)
	if err != nil {
		return err
	}
	stopClose := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stopClose()
		_ = conn.Close()
	}()

	c.mu.Lock()
	payload, err := monitoring.EncodeSubscribe(c.filters, c.thresholds, c.cfg.ClientID)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	err = conn.Send(sendCtx, payload)
	cancel()
	if err != nil {
		return err
	}

	b.Reset()
	if !c.markConnected(gen) {
		return nil
	}
	c.log.Info("push channel subscribed", logger.String("transport", c.transport.String()))

	for {
		raw, err := conn.Receive()
		if err != nil {
			return err
		}
		c.handle(ctx, gen, raw)
	}
}

// markConnected records an open push channel and stops fallback polling.
func (c *Controller) markConnected(gen uint64) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	if !c.connected {
		c.connected = true
		c.stopPollingLocked()
	}
	c.mu.Unlock()
	c.metrics.SetConnected(true)
	return true
}

// disconnected records a failed push channel and starts fallback polling
// with an immediate refresh.
func (c *Controller) disconnected(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.connected = false
	c.lastErr = err
	c.metrics.SetConnected(false)
	c.startPollingLocked(true)
}

func (c *Controller) startPollingLocked(immediate bool) {
	if !c.running || c.pollCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.runCtx)
	reset := make(chan struct{}, 1)
	c.pollCancel, c.pollReset = cancel, reset
	c.wg.Add(1)
	go c.pollLoop(ctx, reset, immediate)
}

func (c *Controller) stopPollingLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel, c.pollReset = nil, nil
	}
}

func (c *Controller) pollInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.PollInterval
}

// pollLoop refreshes the push-owned kinds every poll interval.
func (c *Controller) pollLoop(ctx context.Context, reset <-chan struct{}, immediate bool) {
	defer c.wg.Done()
	if immediate {
		c.pollOnce(ctx)
	}
	ticker := time.NewTicker(c.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-reset:
			ticker.Reset(c.pollInterval())
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *Controller) pollOnce(ctx context.Context) {
	if err := c.refresh(ctx, monitoring.PushOwnedKinds()); err != nil && ctx.Err() == nil {
		c.log.Debug("poll refresh incomplete", logger.Error(err))
	}
}

// slowLoop refreshes the kinds that are never pushed, regardless of mode.
func (c *Controller) slowLoop(ctx context.Context) {
	defer c.wg.Done()

	c.mu.Lock()
	interval := c.cfg.SlowInterval
	c.mu.Unlock()
	kinds := append(monitoring.InventoryKinds(), monitoring.SlowKinds()...)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refresh(ctx, kinds); err != nil && ctx.Err() == nil {
				c.log.Debug("slow refresh incomplete", logger.Error(err))
			}
			if c.escalation != nil {
				c.escalation.Prune(c.now())
			}
		}
	}
}

// handle decodes and routes one inbound message. Malformed messages are
// counted and dropped.
func (c *Controller) handle(ctx context.Context, gen uint64, raw []byte) {
	msg, err := monitoring.ParseMessage(raw)
	if err != nil {
		c.mu.Lock()
		c.parseErrors++
		c.mu.Unlock()
		c.metrics.ParseError()
		c.log.Warn("discarding malformed push message", logger.Error(err))
		return
	}
	if !c.current(gen) {
		return
	}

	switch msg.Type {
	case monitoring.MessageMonitoringUpdate:
		c.applyUpdate(msg.Update, msg.Timestamp)
	case monitoring.MessageAlertTriggered:
		c.applyAlert(ctx, gen, msg.Alert, msg.Timestamp)
	case monitoring.MessageIncidentCreated:
		c.tracker.TrackIncident(*msg.Incident, msg.Timestamp)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.messages++
		c.lastUpdate = c.now()
		if !c.connected {
			c.connected = true
			c.stopPollingLocked()
		}
	}
	c.mu.Unlock()
	c.metrics.PushMessage(string(msg.Type))
	c.metrics.SetConnected(true)
}

func (c *Controller) applyUpdate(u *monitoring.MonitoringUpdate, sent time.Time) {
	if u.Monitoring != nil {
		c.cache.Patch(c.KeyFor(monitoring.KindMonitoring), *u.Monitoring, stamp(u.Monitoring.Timestamp, sent))
	}
	if u.Health != nil {
		c.cache.Patch(c.KeyFor(monitoring.KindHealth), *u.Health, stamp(u.Health.Timestamp, sent))
	}
	if u.Performance != nil {
		c.cache.Patch(c.KeyFor(monitoring.KindPerformance), *u.Performance, stamp(u.Performance.Timestamp, sent))
	}
	if u.Resources != nil {
		c.cache.Patch(c.KeyFor(monitoring.KindResources), *u.Resources, stamp(u.Resources.Timestamp, sent))
	}
}

func (c *Controller) applyAlert(ctx context.Context, gen uint64, a *monitoring.Alert, sent time.Time) {
	if !c.tracker.TrackAlert(*a, sent) {
		return
	}
	if c.escalation == nil || !c.escalation.Observe(a, sent) {
		return
	}
	id := a.ID
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, escalateTimeout)
		defer cancel()
		escalated, err := c.tracker.Escalate(ctx, id)
		if !c.current(gen) {
			return
		}
		if err != nil {
			c.log.Warn("automatic escalation failed", logger.String("alert_id", id), logger.Error(err))
			return
		}
		c.log.Info("alert escalated after repeated triggers",
			logger.String("alert_id", id),
			logger.Int("level", escalated.EscalationLevel))
	}()
}

// stamp prefers the part's own timestamp over the envelope's.
func stamp(part, envelope time.Time) time.Time {
	if part.IsZero() {
		return envelope
	}
	return part
}

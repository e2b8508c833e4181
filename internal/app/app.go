// Package app assembles livemon from its settings and runs it.
package app

import (
	"context"
	"io"
	"time"

	"github.com/hospitalops/livemon/internal/alerting"
	"github.com/hospitalops/livemon/internal/api"
	apiv2 "github.com/hospitalops/livemon/internal/api/v2"
	"github.com/hospitalops/livemon/internal/client"
	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/datastore"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/notification"
	"github.com/hospitalops/livemon/internal/observability/metrics"
	"github.com/hospitalops/livemon/internal/observability/telemetry"
	"github.com/hospitalops/livemon/internal/querycache"
	"github.com/hospitalops/livemon/internal/subscription"
)

const component = "app"

// Version is set at build time.
var Version = "dev"

// App owns every long-lived component.
type App struct {
	settings *conf.Settings
	log      logger.Logger
	metrics  *metrics.Metrics

	cache      *querycache.Cache
	bus        *alerting.EventBus
	engine     *alerting.Engine
	dispatcher *notification.Dispatcher
	store      *datastore.Store
	sync       *subscription.Controller

	flush func()
}

// NewLogger builds the root logger from the main settings.
func NewLogger(settings *conf.Settings, out io.Writer) logger.Logger {
	tz := time.UTC
	if settings.Main.Timezone != "" {
		if loc, err := time.LoadLocation(settings.Main.Timezone); err == nil {
			tz = loc
		}
	}
	return logger.NewSlogLogger(out, logger.ParseLevel(settings.Main.LogLevel), tz).
		With(logger.String("service", settings.Main.Name))
}

// New wires the components. Nothing runs until Run.
func New(settings *conf.Settings, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}
	m, err := metrics.New()
	if err != nil {
		return nil, err
	}
	a := &App{settings: settings, log: log.Module(component), metrics: m, flush: func() {}}

	if settings.Telemetry.Enabled {
		flush, err := telemetry.Init(telemetry.Config{
			DSN:         settings.Telemetry.DSN,
			Environment: settings.Telemetry.Environment,
			Release:     Version,
		})
		if err != nil {
			return nil, err
		}
		a.flush = flush
	}

	mon := &settings.Monitoring
	remote, err := client.New(mon.APIBaseURL,
		client.WithTimeout(mon.RequestTimeout.Std()),
		client.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.cache = querycache.New(log,
		querycache.WithMetrics(a.metrics),
		querycache.WithRefreshTimeout(mon.RequestTimeout.Std()))
	a.bus = alerting.NewEventBus(log)
	a.engine = alerting.Initialize(a.cache, remote, a.bus, mon, a.metrics, log)

	if err := a.initNotifications(); err != nil {
		a.Close()
		return nil, err
	}

	clientID := subscription.NewClientID()
	cfg := subscription.ConfigFromSettings(mon)
	cfg.ClientID = clientID
	var transport subscription.Transport
	if cfg.Mode == subscription.ModePush {
		transport, err = subscription.NewTransport(mon, clientID, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.sync = subscription.NewController(transport, remote, a.cache, a.engine, cfg, log,
		subscription.WithMetrics(a.metrics),
		subscription.WithEscalationPolicy(alerting.NewEscalationPolicy(mon.Escalation.Repeats, mon.Escalation.Window.Std())))

	return a, nil
}

func (a *App) initNotifications() error {
	ns := &a.settings.Notification
	if !ns.Enabled {
		a.log.Info("notifications disabled")
		return nil
	}

	opts := []notification.Option{notification.WithMetrics(a.metrics)}
	store, err := datastore.Open(&a.settings.History, a.log)
	if err != nil {
		// History is optional; notifications still work without it.
		a.log.Warn("notification history unavailable", logger.Error(err))
	} else {
		a.store = store
		opts = append(opts, notification.WithHistory(store.NotificationHistory()))
	}

	a.dispatcher = notification.Initialize(ns, a.log, opts...)
	a.cache.OnUpdate(a.dispatcher.OnCacheUpdate)
	a.bus.Subscribe(a.dispatcher.HandleEvent)
	if a.store != nil {
		a.dispatcher.StartHistoryCleanup(a.settings.History.RetentionDays)
	}
	return nil
}

// Run starts synchronization and, when enabled, the local API. It returns
// when ctx is done or the API server fails.
func (a *App) Run(ctx context.Context) error {
	if a.dispatcher != nil {
		if _, err := a.dispatcher.RequestPermission(ctx); err != nil {
			a.log.Warn("notification permission request failed", logger.Error(err))
		}
	}

	thresholds := monitoring.Thresholds(a.settings.Monitoring.Thresholds).Clone()
	if err := a.sync.Start(ctx, monitoring.FilterCriteria{}, thresholds); err != nil {
		return err
	}
	defer a.sync.Stop()
	a.log.Info("livemon started",
		logger.String("mode", string(a.sync.Status().Mode)),
		logger.String("version", Version))

	if !a.settings.WebServer.Enabled {
		<-ctx.Done()
		return nil
	}

	srv := api.New(a.settings.WebServer, a.log)
	deps := apiv2.Deps{
		Lifecycle:    a.engine,
		Inventory:    a.engine,
		Subscription: a.sync,
		Cache:        a.cache,
		Metrics:      a.metrics,
	}
	if a.store != nil {
		deps.History = a.store.History
	}
	apiv2.New(ctx, srv.Echo, deps, a.log)
	return srv.Run(ctx)
}

// Close releases every component. It is safe after a failed New.
func (a *App) Close() {
	if a.sync != nil {
		a.sync.Stop()
	}
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.bus != nil {
		a.bus.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing history store", logger.Error(err))
		}
	}
	a.flush()
}

// Status reports the subscription controller status.
func (a *App) Status() subscription.Status { return a.sync.Status() }

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/datastore/entities"
	"github.com/hospitalops/livemon/internal/datastore/repository"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
	"github.com/hospitalops/livemon/internal/subscription"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// fakeLifecycle keeps alerts and incidents in memory and enforces the
// transitions the handlers rely on.
type fakeLifecycle struct {
	mu        sync.Mutex
	alerts    []monitoring.Alert
	incidents []monitoring.Incident
	failWith  error
	lastUser  string
	lastPatch monitoring.IncidentUpdate
}

func (f *fakeLifecycle) Alerts() []monitoring.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.alerts)
}

func (f *fakeLifecycle) alertIndex(id string) (int, error) {
	for i := range f.alerts {
		if f.alerts[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("alert %s: %w", id, monitoring.ErrNotFound)
}

func (f *fakeLifecycle) Alert(id string) (monitoring.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.alertIndex(id)
	if err != nil {
		return monitoring.Alert{}, err
	}
	return f.alerts[i], nil
}

func (f *fakeLifecycle) mutateAlert(id string, from []monitoring.AlertStatus, fn func(*monitoring.Alert)) (monitoring.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return monitoring.Alert{}, f.failWith
	}
	i, err := f.alertIndex(id)
	if err != nil {
		return monitoring.Alert{}, err
	}
	if from != nil && !slices.Contains(from, f.alerts[i].Status) {
		return monitoring.Alert{}, fmt.Errorf("alert %s is %s: %w", id, f.alerts[i].Status, monitoring.ErrInvalidTransition)
	}
	fn(&f.alerts[i])
	return f.alerts[i], nil
}

func (f *fakeLifecycle) Acknowledge(_ context.Context, id, userID string) (monitoring.Alert, error) {
	if userID == "" {
		return monitoring.Alert{}, invalidInput("empty user id")
	}
	return f.mutateAlert(id, []monitoring.AlertStatus{monitoring.AlertActive}, func(a *monitoring.Alert) {
		a.Status = monitoring.AlertAcknowledged
		a.AcknowledgedBy = userID
		f.lastUser = userID
	})
}

func (f *fakeLifecycle) Resolve(_ context.Context, id, userID, resolution string) (monitoring.Alert, error) {
	return f.mutateAlert(id, []monitoring.AlertStatus{monitoring.AlertActive, monitoring.AlertAcknowledged, monitoring.AlertSuppressed},
		func(a *monitoring.Alert) {
			a.Status = monitoring.AlertResolved
			a.ResolvedBy = userID
			a.Resolution = resolution
		})
}

func (f *fakeLifecycle) Suppress(_ context.Context, id string, minutes int) (monitoring.Alert, error) {
	if minutes <= 0 {
		return monitoring.Alert{}, invalidInput("duration must be positive")
	}
	return f.mutateAlert(id, []monitoring.AlertStatus{monitoring.AlertActive, monitoring.AlertAcknowledged}, func(a *monitoring.Alert) {
		until := base.Add(time.Duration(minutes) * time.Minute)
		a.Status = monitoring.AlertSuppressed
		a.SuppressedUntil = &until
	})
}

func (f *fakeLifecycle) Escalate(_ context.Context, id string) (monitoring.Alert, error) {
	return f.mutateAlert(id, nil, func(a *monitoring.Alert) { a.EscalationLevel++ })
}

func (f *fakeLifecycle) Incidents() []monitoring.Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.incidents)
}

func (f *fakeLifecycle) incidentIndex(id string) (int, error) {
	for i := range f.incidents {
		if f.incidents[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("incident %s: %w", id, monitoring.ErrNotFound)
}

func (f *fakeLifecycle) Incident(id string) (monitoring.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.incidentIndex(id)
	if err != nil {
		return monitoring.Incident{}, err
	}
	return f.incidents[i], nil
}

func (f *fakeLifecycle) CreateIncident(_ context.Context, in monitoring.IncidentInput) (monitoring.Incident, error) {
	if strings.TrimSpace(in.Title) == "" {
		return monitoring.Incident{}, invalidInput("empty title")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return monitoring.Incident{}, f.failWith
	}
	inc := monitoring.Incident{
		ID:        fmt.Sprintf("inc-%d", len(f.incidents)+1),
		Title:     in.Title,
		Severity:  in.Severity,
		Status:    monitoring.IncidentOpen,
		CreatedAt: base,
		UpdatedAt: base,
		AlertIDs:  in.AlertIDs,
	}
	f.incidents = append(f.incidents, inc)
	return inc, nil
}

func (f *fakeLifecycle) mutateIncident(id string, from monitoring.IncidentStatus, fn func(*monitoring.Incident)) (monitoring.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.incidentIndex(id)
	if err != nil {
		return monitoring.Incident{}, err
	}
	if from != "" && f.incidents[i].Status != from {
		return monitoring.Incident{}, fmt.Errorf("incident %s is %s: %w", id, f.incidents[i].Status, monitoring.ErrInvalidTransition)
	}
	fn(&f.incidents[i])
	return f.incidents[i], nil
}

func (f *fakeLifecycle) UpdateIncident(_ context.Context, id string, u monitoring.IncidentUpdate) (monitoring.Incident, error) {
	return f.mutateIncident(id, "", func(inc *monitoring.Incident) {
		f.lastPatch = u
		u.ApplyTo(inc)
	})
}

func (f *fakeLifecycle) InvestigateIncident(_ context.Context, id string) (monitoring.Incident, error) {
	return f.mutateIncident(id, monitoring.IncidentOpen, func(inc *monitoring.Incident) {
		inc.Status = monitoring.IncidentInvestigating
	})
}

func (f *fakeLifecycle) ResolveIncident(_ context.Context, id, resolution string) (monitoring.Incident, error) {
	return f.mutateIncident(id, monitoring.IncidentInvestigating, func(inc *monitoring.Incident) {
		inc.Status = monitoring.IncidentResolved
		inc.Resolution = resolution
	})
}

type fakeSubscription struct {
	mu         sync.Mutex
	status     subscription.Status
	refreshErr error
	refreshes  int
}

func (f *fakeSubscription) Status() subscription.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSubscription) KeyFor(kind monitoring.Kind) querycache.Key {
	if kind.Filtered() {
		return querycache.CollectionKey(kind, monitoring.FilterCriteria{}.Key())
	}
	return querycache.CollectionKey(kind, "")
}

func (f *fakeSubscription) RefreshAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.refreshErr
}

func (f *fakeSubscription) SetMode(m subscription.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Mode = m
	f.status.Generation += 2
	return nil
}

func (f *fakeSubscription) SetInterval(d time.Duration) error {
	if d <= 0 {
		return invalidInput("poll interval must be positive")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.PollIntervalMs = d.Milliseconds()
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	rows    []entities.NotificationHistory
	filters []repository.HistoryFilter
	listErr error
}

func (f *fakeHistory) Save(_ context.Context, e *entities.NotificationHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uint(len(f.rows) + 1)
	f.rows = append(f.rows, *e)
	return nil
}

func (f *fakeHistory) List(_ context.Context, filter repository.HistoryFilter) ([]entities.NotificationHistory, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []entities.NotificationHistory
	for _, r := range f.rows {
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		out = append(out, r)
	}
	total := int64(len(out))
	if filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else {
		out = nil
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (f *fakeHistory) DeleteAll(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.rows))
	f.rows = nil
	return n, nil
}

func (f *fakeHistory) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	var n int64
	for _, r := range f.rows {
		if r.SentAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

type fixture struct {
	e         *echo.Echo
	ctrl      *Controller
	lifecycle *fakeLifecycle
	subs      *fakeSubscription
	cache     *querycache.Cache
	history   *fakeHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		e:         echo.New(),
		lifecycle: &fakeLifecycle{},
		subs:      &fakeSubscription{status: subscription.Status{Mode: subscription.ModePush, Running: true, ClientID: "client-1"}},
		cache:     querycache.New(logger.Discard()),
		history:   &fakeHistory{},
	}
	t.Cleanup(f.cache.Close)
	f.ctrl = New(t.Context(), f.e, Deps{
		Lifecycle:    f.lifecycle,
		Subscription: f.subs,
		Cache:        f.cache,
		History:      f.history,
	}, logger.Discard())
	return f
}

// do serves one request through the router and returns the recorder.
func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	require.NotNil(t, rec)
	return rec
}

func ptr[T any](v T) *T { return &v }

package alerting

import (
	"cmp"
	"slices"
	"time"

	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

type record[T any] struct {
	value T
	ts    time.Time
}

// viewSpec describes how one entity type is assembled from its collection
// entries and per-entity records.
type viewSpec[T any] struct {
	collection monitoring.Kind
	entity     monitoring.Kind
	id         func(*T) string
	terminal   func(*T) bool
	extraOrder func(a, b *T) int
}

var alertView = viewSpec[monitoring.Alert]{
	collection: monitoring.KindAlerts,
	entity:     monitoring.KindAlert,
	id:         func(a *monitoring.Alert) string { return a.ID },
	terminal:   func(a *monitoring.Alert) bool { return a.Status == monitoring.AlertResolved },
	extraOrder: func(a, b *monitoring.Alert) int {
		return cmp.Or(b.TriggeredAt.Compare(a.TriggeredAt), cmp.Compare(a.ID, b.ID))
	},
}

var incidentView = viewSpec[monitoring.Incident]{
	collection: monitoring.KindIncidents,
	entity:     monitoring.KindIncident,
	id:         func(i *monitoring.Incident) string { return i.ID },
	terminal:   func(i *monitoring.Incident) bool { return i.Status == monitoring.IncidentResolved },
	extraOrder: func(a, b *monitoring.Incident) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	},
}

// prefer reports whether candidate should replace current. A terminal
// record always wins over a live one; otherwise the newer server time wins
// and ties go to the candidate when onTie is set.
func (v viewSpec[T]) prefer(current, candidate record[T], onTie bool) bool {
	ct, nt := v.terminal(&current.value), v.terminal(&candidate.value)
	if ct != nt {
		return nt
	}
	if candidate.ts.Equal(current.ts) {
		return onTie
	}
	return candidate.ts.After(current.ts)
}

// assemble merges every collection entry of the view's kind with the
// per-entity records. Collection order is kept; entities only known
// individually follow in extraOrder. Reading collections through Get lets
// stale entries refresh in the background.
func (v viewSpec[T]) assemble(c *querycache.Cache) []T {
	best := make(map[string]record[T])
	var order []string
	for _, key := range c.Keys(v.collection) {
		entry, ok := c.Get(key)
		if !ok {
			continue
		}
		list, _ := entry.Value.([]T)
		for i := range list {
			id := v.id(&list[i])
			r := record[T]{value: list[i], ts: entry.ServerTime}
			cur, seen := best[id]
			if !seen {
				order = append(order, id)
				best[id] = r
				continue
			}
			if v.prefer(cur, r, false) {
				best[id] = r
			}
		}
	}

	var extras []T
	for _, key := range c.Keys(v.entity) {
		entry, ok := c.Peek(key)
		if !ok {
			continue
		}
		val, isT := entry.Value.(T)
		if !isT {
			continue
		}
		r := record[T]{value: val, ts: entry.ServerTime}
		id := v.id(&val)
		if cur, seen := best[id]; seen {
			if v.prefer(cur, r, true) {
				best[id] = r
			}
			continue
		}
		extras = append(extras, val)
	}
	slices.SortFunc(extras, func(a, b T) int { return v.extraOrder(&a, &b) })

	out := make([]T, 0, len(order)+len(extras))
	for _, id := range order {
		out = append(out, best[id].value)
	}
	return append(out, extras...)
}

// find returns the current record of id.
func (v viewSpec[T]) find(c *querycache.Cache, id string) (T, bool) {
	var zero T
	for _, item := range v.assemble(c) {
		if v.id(&item) == id {
			return item, true
		}
	}
	return zero, false
}

// present applies suppression expiry to a read of a.
func (e *Engine) present(a monitoring.Alert) monitoring.Alert {
	a = a.Clone()
	if a.SuppressionElapsed(e.now()) {
		if next, err := NextAlertStatus(a.Status, CmdExpire); err == nil {
			a.Status = next
			a.SuppressedUntil = nil
		}
	}
	return a
}

func (e *Engine) alertRetired(a *monitoring.Alert) bool {
	return a.Status == monitoring.AlertResolved && a.ResolvedAt != nil &&
		e.now().Sub(*a.ResolvedAt) > e.retention
}

func (e *Engine) incidentRetired(i *monitoring.Incident) bool {
	return i.Status == monitoring.IncidentResolved && i.ResolvedAt != nil &&
		e.now().Sub(*i.ResolvedAt) > e.retention
}

// Alerts returns the current alerts, excluding retired ones.
func (e *Engine) Alerts() []monitoring.Alert {
	all := alertView.assemble(e.cache)
	out := make([]monitoring.Alert, 0, len(all))
	for _, a := range all {
		if e.alertRetired(&a) {
			continue
		}
		out = append(out, e.present(a))
	}
	return out
}

// Alert returns the current record of alert id.
func (e *Engine) Alert(id string) (monitoring.Alert, error) {
	a, ok := alertView.find(e.cache, id)
	if !ok || e.alertRetired(&a) {
		return monitoring.Alert{}, notFound("alert", id)
	}
	return e.present(a), nil
}

// Incidents returns the current incidents, excluding retired ones.
func (e *Engine) Incidents() []monitoring.Incident {
	all := incidentView.assemble(e.cache)
	out := make([]monitoring.Incident, 0, len(all))
	for _, inc := range all {
		if e.incidentRetired(&inc) {
			continue
		}
		out = append(out, inc.Clone())
	}
	return out
}

// Incident returns the current record of incident id.
func (e *Engine) Incident(id string) (monitoring.Incident, error) {
	inc, ok := incidentView.find(e.cache, id)
	if !ok || e.incidentRetired(&inc) {
		return monitoring.Incident{}, notFound("incident", id)
	}
	return inc.Clone(), nil
}

// Prune removes per-entity records of retired alerts and incidents and
// expires old auto-incident markers. It returns the number of records
// removed.
func (e *Engine) Prune() int {
	removed := 0
	for _, key := range e.cache.Keys(monitoring.KindAlert) {
		entry, ok := e.cache.Peek(key)
		if !ok {
			continue
		}
		if a, isAlert := entry.Value.(monitoring.Alert); isAlert && e.alertRetired(&a) {
			e.cache.Delete(key)
			removed++
		}
	}
	for _, key := range e.cache.Keys(monitoring.KindIncident) {
		entry, ok := e.cache.Peek(key)
		if !ok {
			continue
		}
		if inc, isInc := entry.Value.(monitoring.Incident); isInc && e.incidentRetired(&inc) {
			e.cache.Delete(key)
			removed++
		}
	}
	e.mu.Lock()
	for id, at := range e.autoIncidents {
		if e.now().Sub(at) > e.retention {
			delete(e.autoIncidents, id)
		}
	}
	e.mu.Unlock()
	return removed
}

func notFound(what, id string) error {
	return errors.Newf("%s %q: %w", what, id, monitoring.ErrNotFound).
		Component(component).
		Category(errors.CategoryNotFound).
		Context("id", id).
		Build()
}

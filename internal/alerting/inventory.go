package alerting

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

// collectionCommand mutates the collections of one inventory kind. The
// collections are snapshotted before Apply so Rollback can put them back
// before refetching.
type collectionCommand[T any] struct {
	e      *Engine
	kind   monitoring.Kind
	apply  func([]T) []T
	remote func(ctx context.Context) (T, time.Time, error)
	settle func(list []T, result T) []T
	before map[querycache.Key]any
	result T
}

func (c *collectionCommand[T]) Apply() {
	c.before = make(map[querycache.Key]any)
	for _, key := range c.e.cache.Keys(c.kind) {
		if entry, ok := c.e.cache.Peek(key); ok {
			c.before[key] = entry.Value
		}
	}
	if c.apply != nil {
		transformCollections(c.e.cache, c.kind, c.apply)
	}
}

func (c *collectionCommand[T]) Commit(ctx context.Context) error {
	res, _, err := c.remote(ctx)
	if err != nil {
		return err
	}
	c.result = res
	if c.settle != nil {
		transformCollections(c.e.cache, c.kind, func(list []T) []T { return c.settle(list, res) })
	}
	c.e.cache.InvalidateKind(c.kind)
	return nil
}

func (c *collectionCommand[T]) Rollback(ctx context.Context) {
	for key, v := range c.before {
		c.e.cache.SetFromMutation(key, v)
	}
	c.e.refetch(ctx, c.kind)
}

func transformCollections[T any](c *querycache.Cache, kind monitoring.Kind, fn func([]T) []T) {
	for _, key := range c.Keys(kind) {
		_ = c.UpdateFromMutation(key, func(old any, ok bool) (any, error) {
			list, isList := old.([]T)
			if !ok || !isList {
				return nil, errSkip
			}
			return fn(slices.Clone(list)), nil
		})
	}
}

// crudOps binds one inventory kind to its remote endpoints.
type crudOps[T any] struct {
	kind     monitoring.Kind
	id       func(*T) string
	setID    func(*T, string)
	validate func(*T) error
	create   func(ctx context.Context, item T) (T, time.Time, error)
	update   func(ctx context.Context, id string, item T) (T, time.Time, error)
	remove   func(ctx context.Context, id string) error
}

func upsertItem[T any](id func(*T) string, list []T, item T) []T {
	want := id(&item)
	if i := slices.IndexFunc(list, func(v T) bool { return id(&v) == want }); i >= 0 {
		list[i] = item
		return list
	}
	return append(list, item)
}

func dropItem[T any](id func(*T) string, list []T, want string) []T {
	return slices.DeleteFunc(list, func(v T) bool { return id(&v) == want })
}

// findItem returns the element with id from the first collection of kind
// holding it.
func findItem[T any](c *querycache.Cache, kind monitoring.Kind, id func(*T) string, want string) (T, bool) {
	for _, key := range c.Keys(kind) {
		entry, ok := c.Peek(key)
		if !ok {
			continue
		}
		list, _ := entry.Value.([]T)
		if i := slices.IndexFunc(list, func(v T) bool { return id(&v) == want }); i >= 0 {
			return list[i], true
		}
	}
	var zero T
	return zero, false
}

func createItem[T any](ctx context.Context, e *Engine, ops crudOps[T], item T) (T, error) {
	var zero T
	if err := ops.validate(&item); err != nil {
		return zero, err
	}
	pendingID := pendingIDPrefix + uuid.NewString()
	ops.setID(&item, pendingID)
	cc := &collectionCommand[T]{
		e:     e,
		kind:  ops.kind,
		apply: func(list []T) []T { return append(list, item) },
		remote: func(ctx context.Context) (T, time.Time, error) {
			in := item
			ops.setID(&in, "")
			return ops.create(ctx, in)
		},
		settle: func(list []T, res T) []T {
			return upsertItem(ops.id, dropItem(ops.id, list, pendingID), res)
		},
	}
	if err := e.execute(ctx, CmdCreate, string(ops.kind)+":"+pendingID, func() (command, error) { return cc, nil }); err != nil {
		return zero, err
	}
	return cc.result, nil
}

func updateItem[T any](ctx context.Context, e *Engine, ops crudOps[T], id string, item T, check func(current *T) error) (T, error) {
	var zero T
	if strings.TrimSpace(id) == "" {
		return zero, invalidInput("update %s: empty id", ops.kind)
	}
	ops.setID(&item, id)
	if err := ops.validate(&item); err != nil {
		return zero, err
	}
	var cc *collectionCommand[T]
	err := e.execute(ctx, CmdUpdate, string(ops.kind)+":"+id, func() (command, error) {
		if check != nil {
			if current, ok := findItem(e.cache, ops.kind, ops.id, id); ok {
				if err := check(&current); err != nil {
					return nil, err
				}
			}
		}
		cc = &collectionCommand[T]{
			e:      e,
			kind:   ops.kind,
			apply:  func(list []T) []T { return upsertItem(ops.id, list, item) },
			remote: func(ctx context.Context) (T, time.Time, error) { return ops.update(ctx, id, item) },
			settle: func(list []T, res T) []T { return upsertItem(ops.id, list, res) },
		}
		return cc, nil
	})
	if err != nil {
		return zero, err
	}
	return cc.result, nil
}

func deleteItem[T any](ctx context.Context, e *Engine, ops crudOps[T], id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidInput("delete %s: empty id", ops.kind)
	}
	cc := &collectionCommand[T]{
		e:     e,
		kind:  ops.kind,
		apply: func(list []T) []T { return dropItem(ops.id, list, id) },
		remote: func(ctx context.Context) (T, time.Time, error) {
			var zero T
			return zero, time.Time{}, ops.remove(ctx, id)
		},
	}
	return e.execute(ctx, CmdDelete, string(ops.kind)+":"+id, func() (command, error) { return cc, nil })
}

func requireName(kind monitoring.Kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidInput("%s: empty name", kind)
	}
	return nil
}

func (e *Engine) healthChecks() crudOps[monitoring.HealthCheck] {
	return crudOps[monitoring.HealthCheck]{
		kind:  monitoring.KindHealthChecks,
		id:    func(h *monitoring.HealthCheck) string { return h.ID },
		setID: func(h *monitoring.HealthCheck, id string) { h.ID = id },
		validate: func(h *monitoring.HealthCheck) error {
			if err := requireName(monitoring.KindHealthChecks, h.Name); err != nil {
				return err
			}
			if strings.TrimSpace(h.Target) == "" {
				return invalidInput("health check %q: empty target", h.Name)
			}
			if h.Status == "" {
				h.Status = monitoring.HealthUnknown
			}
			return nil
		},
		create: e.remote.CreateHealthCheck,
		update: e.remote.UpdateHealthCheck,
		remove: e.remote.DeleteHealthCheck,
	}
}

func (e *Engine) services() crudOps[monitoring.Service] {
	return crudOps[monitoring.Service]{
		kind:  monitoring.KindServices,
		id:    func(s *monitoring.Service) string { return s.ID },
		setID: func(s *monitoring.Service, id string) { s.ID = id },
		validate: func(s *monitoring.Service) error {
			return requireName(monitoring.KindServices, s.Name)
		},
		create: e.remote.CreateService,
		update: e.remote.UpdateService,
		remove: e.remote.DeleteService,
	}
}

func (e *Engine) endpoints() crudOps[monitoring.Endpoint] {
	return crudOps[monitoring.Endpoint]{
		kind:  monitoring.KindEndpoints,
		id:    func(ep *monitoring.Endpoint) string { return ep.ID },
		setID: func(ep *monitoring.Endpoint, id string) { ep.ID = id },
		validate: func(ep *monitoring.Endpoint) error {
			if strings.TrimSpace(ep.URL) == "" {
				return invalidInput("endpoint %q: empty url", ep.Name)
			}
			if ep.Method == "" {
				ep.Method = "GET"
			}
			ep.Method = strings.ToUpper(ep.Method)
			return nil
		},
		create: e.remote.CreateEndpoint,
		update: e.remote.UpdateEndpoint,
		remove: e.remote.DeleteEndpoint,
	}
}

func (e *Engine) dependencies() crudOps[monitoring.Dependency] {
	return crudOps[monitoring.Dependency]{
		kind:  monitoring.KindDependencies,
		id:    func(d *monitoring.Dependency) string { return d.ID },
		setID: func(d *monitoring.Dependency, id string) { d.ID = id },
		validate: func(d *monitoring.Dependency) error {
			return requireName(monitoring.KindDependencies, d.Name)
		},
		create: e.remote.CreateDependency,
		update: e.remote.UpdateDependency,
		remove: e.remote.DeleteDependency,
	}
}

// RunHealthCheck executes health check id immediately and records the result.
func (e *Engine) RunHealthCheck(ctx context.Context, id string) (monitoring.HealthCheck, error) {
	if strings.TrimSpace(id) == "" {
		return monitoring.HealthCheck{}, invalidInput("run health check: empty id")
	}
	ops := e.healthChecks()
	cc := &collectionCommand[monitoring.HealthCheck]{
		e:      e,
		kind:   ops.kind,
		remote: func(ctx context.Context) (monitoring.HealthCheck, time.Time, error) { return e.remote.RunHealthCheck(ctx, id) },
		settle: func(list []monitoring.HealthCheck, res monitoring.HealthCheck) []monitoring.HealthCheck {
			return upsertItem(ops.id, list, res)
		},
	}
	if err := e.execute(ctx, CmdRun, string(ops.kind)+":"+id, func() (command, error) { return cc, nil }); err != nil {
		return monitoring.HealthCheck{}, err
	}
	return cc.result, nil
}

func (e *Engine) CreateHealthCheck(ctx context.Context, hc monitoring.HealthCheck) (monitoring.HealthCheck, error) {
	return createItem(ctx, e, e.healthChecks(), hc)
}

func (e *Engine) UpdateHealthCheck(ctx context.Context, id string, hc monitoring.HealthCheck) (monitoring.HealthCheck, error) {
	return updateItem(ctx, e, e.healthChecks(), id, hc, nil)
}

func (e *Engine) DeleteHealthCheck(ctx context.Context, id string) error {
	return deleteItem(ctx, e, e.healthChecks(), id)
}

func (e *Engine) CreateService(ctx context.Context, s monitoring.Service) (monitoring.Service, error) {
	return createItem(ctx, e, e.services(), s)
}

func (e *Engine) UpdateService(ctx context.Context, id string, s monitoring.Service) (monitoring.Service, error) {
	return updateItem(ctx, e, e.services(), id, s, nil)
}

func (e *Engine) DeleteService(ctx context.Context, id string) error {
	return deleteItem(ctx, e, e.services(), id)
}

func (e *Engine) CreateEndpoint(ctx context.Context, ep monitoring.Endpoint) (monitoring.Endpoint, error) {
	return createItem(ctx, e, e.endpoints(), ep)
}

func (e *Engine) UpdateEndpoint(ctx context.Context, id string, ep monitoring.Endpoint) (monitoring.Endpoint, error) {
	return updateItem(ctx, e, e.endpoints(), id, ep, nil)
}

func (e *Engine) DeleteEndpoint(ctx context.Context, id string) error {
	return deleteItem(ctx, e, e.endpoints(), id)
}

func (e *Engine) CreateDependency(ctx context.Context, d monitoring.Dependency) (monitoring.Dependency, error) {
	return createItem(ctx, e, e.dependencies(), d)
}

func (e *Engine) UpdateDependency(ctx context.Context, id string, d monitoring.Dependency) (monitoring.Dependency, error) {
	return updateItem(ctx, e, e.dependencies(), id, d, nil)
}

func (e *Engine) DeleteDependency(ctx context.Context, id string) error {
	return deleteItem(ctx, e, e.dependencies(), id)
}

func (e *Engine) maintenance() crudOps[monitoring.MaintenanceWindow] {
	return crudOps[monitoring.MaintenanceWindow]{
		kind:  monitoring.KindMaintenance,
		id:    func(w *monitoring.MaintenanceWindow) string { return w.ID },
		setID: func(w *monitoring.MaintenanceWindow, id string) { w.ID = id },
		validate: func(w *monitoring.MaintenanceWindow) error {
			if strings.TrimSpace(w.Title) == "" {
				return invalidInput("maintenance window: empty title")
			}
			if !w.EndsAt.After(w.StartsAt) {
				return invalidInput("maintenance window %q: end must be after start", w.Title)
			}
			if w.Status == "" {
				w.Status = monitoring.MaintenanceScheduled
			}
			return nil
		},
		create: e.remote.CreateMaintenanceWindow,
		update: e.remote.UpdateMaintenanceWindow,
	}
}

func maintenanceOpen(w *monitoring.MaintenanceWindow) error {
	switch w.Status {
	case monitoring.MaintenanceCompleted, monitoring.MaintenanceCancelled:
		return invalidTransition("maintenance window", w.ID, string(w.Status))
	}
	return nil
}

func (e *Engine) CreateMaintenanceWindow(ctx context.Context, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, error) {
	return createItem(ctx, e, e.maintenance(), w)
}

// UpdateMaintenanceWindow edits a scheduled or active window.
func (e *Engine) UpdateMaintenanceWindow(ctx context.Context, id string, w monitoring.MaintenanceWindow) (monitoring.MaintenanceWindow, error) {
	return updateItem(ctx, e, e.maintenance(), id, w, maintenanceOpen)
}

// CancelMaintenanceWindow cancels a scheduled or active window.
func (e *Engine) CancelMaintenanceWindow(ctx context.Context, id string) (monitoring.MaintenanceWindow, error) {
	if strings.TrimSpace(id) == "" {
		return monitoring.MaintenanceWindow{}, invalidInput("cancel maintenance window: empty id")
	}
	ops := e.maintenance()
	var cc *collectionCommand[monitoring.MaintenanceWindow]
	err := e.execute(ctx, CmdCancel, string(ops.kind)+":"+id, func() (command, error) {
		current, known := findItem(e.cache, ops.kind, ops.id, id)
		if known {
			if err := maintenanceOpen(&current); err != nil {
				return nil, err
			}
		}
		cc = &collectionCommand[monitoring.MaintenanceWindow]{
			e:    e,
			kind: ops.kind,
			apply: func(list []monitoring.MaintenanceWindow) []monitoring.MaintenanceWindow {
				if !known {
					return list
				}
				cancelled := current
				cancelled.Status = monitoring.MaintenanceCancelled
				return upsertItem(ops.id, list, cancelled)
			},
			remote: func(ctx context.Context) (monitoring.MaintenanceWindow, time.Time, error) {
				return e.remote.CancelMaintenanceWindow(ctx, id)
			},
			settle: func(list []monitoring.MaintenanceWindow, res monitoring.MaintenanceWindow) []monitoring.MaintenanceWindow {
				return upsertItem(ops.id, list, res)
			},
		}
		return cc, nil
	})
	if err != nil {
		return monitoring.MaintenanceWindow{}, err
	}
	return cc.result, nil
}

// configCommand merges a partial settings update into the cached
// configuration.
type configCommand struct {
	e       *Engine
	partial map[string]any
	before  any
	had     bool
	result  monitoring.Configuration
}

func configKey() querycache.Key {
	return querycache.CollectionKey(monitoring.KindConfiguration, "")
}

func (c *configCommand) Apply() {
	if entry, ok := c.e.cache.Peek(configKey()); ok {
		c.before, c.had = entry.Value, true
	}
	_ = c.e.cache.UpdateFromMutation(configKey(), func(old any, ok bool) (any, error) {
		cfg, isCfg := old.(monitoring.Configuration)
		if !ok || !isCfg {
			return nil, errSkip
		}
		settings := maps.Clone(cfg.Settings)
		if settings == nil {
			settings = make(map[string]any, len(c.partial))
		}
		maps.Copy(settings, c.partial)
		cfg.Settings = settings
		return cfg, nil
	})
}

func (c *configCommand) Commit(ctx context.Context) error {
	res, serverTime, err := c.e.remote.UpdateConfiguration(ctx, c.partial)
	if err != nil {
		return err
	}
	c.e.cache.Store(configKey(), res, serverTime)
	c.e.cache.Invalidate(configKey())
	c.result = res
	return nil
}

func (c *configCommand) Rollback(ctx context.Context) {
	if c.had {
		c.e.cache.SetFromMutation(configKey(), c.before)
	}
	c.e.refetch(ctx, monitoring.KindConfiguration)
}

// UpdateConfiguration applies a partial settings update.
func (e *Engine) UpdateConfiguration(ctx context.Context, partial map[string]any) (monitoring.Configuration, error) {
	if len(partial) == 0 {
		return monitoring.Configuration{}, invalidInput("update configuration: no settings given")
	}
	cc := &configCommand{e: e, partial: maps.Clone(partial)}
	if err := e.execute(ctx, CmdUpdate, string(monitoring.KindConfiguration), func() (command, error) { return cc, nil }); err != nil {
		return monitoring.Configuration{}, err
	}
	return cc.result, nil
}

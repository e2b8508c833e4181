// Package querycache holds the last known value of every monitored resource
// and applies updates from the push channel, polling and local mutations.
//
// Writes from the remote system carry a server timestamp and are accepted
// only if they are not older than the stored one, so the cache never
// regresses regardless of delivery order. Reads never block: a stale entry
// is returned immediately while a refresh runs in the background.
package querycache

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/observability/metrics"
)

const defaultRefreshTimeout = 10 * time.Second

// ErrDiscarded is returned by a Fetcher whose result no longer applies. A
// refresh ending with it leaves the entry as it was and reports no error.
var ErrDiscarded = errors.NewStd("fetch result discarded")

// Key identifies a cache entry: a resource kind, the canonical filter key
// and, for per-entity records, the entity id.
type Key struct {
	Kind   monitoring.Kind
	Filter string
	ID     string
}

// CollectionKey returns the key of a collection read with the given filter.
func CollectionKey(kind monitoring.Kind, filter string) Key {
	return Key{Kind: kind, Filter: filter}
}

// EntityKey returns the key of a single entity record.
func EntityKey(kind monitoring.Kind, id string) Key {
	return Key{Kind: kind, ID: id}
}

func (k Key) String() string {
	s := string(k.Kind)
	if k.Filter != "" {
		s += "?" + k.Filter
	}
	if k.ID != "" {
		s += "/" + k.ID
	}
	return s
}

// Source records which channel produced an entry's value.
type Source string

const (
	SourcePush     Source = "push"
	SourceFetch    Source = "fetch"
	SourceMutation Source = "mutation"
)

// Entry is a snapshot of a cache entry.
type Entry struct {
	Value      any
	ServerTime time.Time
	Stale      bool
	Loading    bool
	Err        error
	Source     Source
	UpdatedAt  time.Time
}

// Fetcher reads the authoritative value of key from the remote system.
type Fetcher func(ctx context.Context, key Key) (value any, serverTime time.Time, err error)

// Merger combines the stored value with an accepted incoming one. It is used
// to keep counters monotone across writes.
type Merger func(old, incoming any) any

// Observer is called after every accepted write, outside the cache lock.
type Observer func(key Key, entry Entry)

type entry struct {
	Entry
	// epoch advances on every invalidation so a refresh that started before
	// an invalidation leaves the entry stale.
	epoch uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	fetchers  map[monitoring.Kind]Fetcher
	mergers   map[monitoring.Kind]Merger
	observers []Observer

	log            logger.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
	refreshTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock used for UpdatedAt.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Cache) { c.metrics = m } }

// WithRefreshTimeout bounds background refreshes.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// New creates an empty cache.
func New(log logger.Logger, opts ...Option) *Cache {
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:        make(map[Key]*entry),
		fetchers:       make(map[monitoring.Kind]Fetcher),
		mergers:        make(map[monitoring.Kind]Merger),
		log:            log.Module("querycache"),
		now:            time.Now,
		refreshTimeout: defaultRefreshTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs the fetcher used to refresh entries of kind.
func (c *Cache) Register(kind monitoring.Kind, f Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[kind] = f
}

// SetMerger installs the merger applied to accepted writes of kind.
func (c *Cache) SetMerger(kind monitoring.Kind, m Merger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergers[kind] = m
}

// OnUpdate registers an observer.
func (c *Cache) OnUpdate(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Get returns the entry for key. If the entry is missing or stale and a
// fetcher is registered for its kind, a background refresh is started and
// the returned entry has Loading set. ok is false if no value has been
// stored yet.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	e, exists := c.entries[key]
	_, canFetch := c.fetchers[key.Kind]
	if canFetch && c.ctx.Err() == nil && (!exists || e.Stale) && (!exists || !e.Loading) {
		if !exists {
			e = &entry{Entry: Entry{Stale: true}}
			c.entries[key] = e
		}
		e.Loading = true
		c.wg.Add(1)
		go c.backgroundRefresh(key)
	}
	if e == nil {
		c.mu.Unlock()
		return Entry{}, false
	}
	snap := e.Entry
	c.mu.Unlock()
	return snap, snap.Value != nil
}

// Peek returns the entry for key without triggering a refresh.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, e.Value != nil
}

// Keys returns the keys of kind currently held, in a stable order.
func (c *Cache) Keys(kind monitoring.Kind) []Key {
	c.mu.Lock()
	out := make([]Key, 0)
	for k := range c.entries {
		if k.Kind == kind {
			out = append(out, k)
		}
	}
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b Key) int {
		return cmp.Or(strings.Compare(a.Filter, b.Filter), strings.Compare(a.ID, b.ID))
	})
	return out
}

// Patch stores value for key if serverTime is not older than the stored
// server time. It reports whether the write was accepted. Patches with equal
// timestamps are accepted, which makes redelivery idempotent.
func (c *Cache) Patch(key Key, value any, serverTime time.Time) bool {
	return c.write(key, value, serverTime, SourcePush)
}

// Store is Patch for values read from the remote system by a poll or a
// refresh.
func (c *Cache) Store(key Key, value any, serverTime time.Time) bool {
	return c.write(key, value, serverTime, SourceFetch)
}

func (c *Cache) write(key Key, value any, serverTime time.Time, src Source) bool {
	c.mu.Lock()
	e, exists := c.entries[key]
	if exists && serverTime.Before(e.ServerTime) {
		stored := e.ServerTime
		c.mu.Unlock()
		c.metrics.CachePatch(string(key.Kind), "dropped")
		c.log.Debug("dropped out-of-order update",
			logger.String("key", key.String()),
			logger.Time("server_time", serverTime),
			logger.Time("stored_time", stored))
		return false
	}
	if !exists {
		e = &entry{}
		c.entries[key] = e
	}
	if m := c.mergers[key.Kind]; m != nil && e.Value != nil {
		value = m(e.Value, value)
	}
	e.Value = value
	e.ServerTime = serverTime
	e.Stale = false
	e.Err = nil
	e.Source = src
	e.UpdatedAt = c.now()
	snap := e.Entry
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	c.metrics.CachePatch(string(key.Kind), "applied")
	c.notify(observers, key, snap)
	return true
}

// SetFromMutation replaces the value of key with an optimistic one. The
// server time is left unchanged so the next authoritative update wins.
func (c *Cache) SetFromMutation(key Key, value any) {
	c.mu.Lock()
	e, exists := c.entries[key]
	if !exists {
		e = &entry{}
		c.entries[key] = e
	}
	e.Value = value
	e.Source = SourceMutation
	e.UpdatedAt = c.now()
	snap := e.Entry
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	c.notify(observers, key, snap)
}

// UpdateFromMutation atomically replaces the value of key with fn(old). fn
// runs under the cache lock and must not call back into the cache. If fn
// returns an error the entry is left untouched.
func (c *Cache) UpdateFromMutation(key Key, fn func(old any, ok bool) (any, error)) error {
	c.mu.Lock()
	e, exists := c.entries[key]
	var old any
	if exists {
		old = e.Value
	}
	next, err := fn(old, exists && old != nil)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !exists {
		e = &entry{}
		c.entries[key] = e
	}
	e.Value = next
	e.Source = SourceMutation
	e.UpdatedAt = c.now()
	snap := e.Entry
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	c.notify(observers, key, snap)
	return nil
}

// Invalidate marks key stale. The next Get refreshes it.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.Stale = true
		e.epoch++
	}
}

// InvalidateKind marks every entry of kind stale.
func (c *Cache) InvalidateKind(kind monitoring.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if k.Kind == kind {
			e.Stale = true
			e.epoch++
		}
	}
}

// Delete removes key.
func (c *Cache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// ResetServerTime clears the stored server time of key so the next
// authoritative write is accepted even if it predates the previous one.
// Used after a push/poll mode switch, when the new channel's timestamps are
// not comparable with the old one's.
func (c *Cache) ResetServerTime(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.ServerTime = time.Time{}
	}
}

// Refresh fetches key synchronously and stores the result. On failure the
// cached value is kept and the error is recorded on the entry.
func (c *Cache) Refresh(ctx context.Context, key Key) error {
	c.mu.Lock()
	f, ok := c.fetchers[key.Kind]
	e, exists := c.entries[key]
	if !exists {
		e = &entry{Entry: Entry{Stale: true}}
		c.entries[key] = e
	}
	e.Loading = true
	epoch := e.epoch
	c.mu.Unlock()

	if !ok {
		c.finishLoading(key, epoch, false)
		return errors.Newf("no fetcher registered for %s: %w", key.Kind, monitoring.ErrQuery).
			Component("querycache").
			Category(errors.CategoryConfiguration).
			Build()
	}

	start := time.Now()
	value, serverTime, err := f(ctx, key)
	c.metrics.ObserveRefresh(string(key.Kind), time.Since(start).Seconds())
	if errors.Is(err, ErrDiscarded) {
		c.finishLoading(key, epoch, false)
		return nil
	}
	if err != nil {
		if !errors.Is(err, monitoring.ErrQuery) {
			err = errors.Newf("refresh %s: %w: %w", key, monitoring.ErrQuery, err).
				Component("querycache").
				Category(errors.CategoryQuery).
				Context("key", key.String()).
				Build()
		}
		c.metrics.QueryError(string(key.Kind))
		c.log.Warn("refresh failed", logger.String("key", key.String()), logger.Error(err))
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			e.Err = err
			e.Loading = false
		}
		c.mu.Unlock()
		return err
	}

	c.Store(key, value, serverTime)
	c.finishLoading(key, epoch, true)
	return nil
}

// finishLoading clears the loading flag. An entry invalidated while the
// refresh was in flight stays stale.
func (c *Cache) finishLoading(key Key, epoch uint64, fetched bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.Loading = false
		switch {
		case e.epoch != epoch:
			e.Stale = true
		case fetched:
			e.Stale = false
		}
	}
}

func (c *Cache) backgroundRefresh(key Key) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(c.ctx, c.refreshTimeout)
	defer cancel()
	_ = c.Refresh(ctx, key)
}

// Close cancels background refreshes and waits for them to return.
func (c *Cache) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Cache) notify(observers []Observer, key Key, snap Entry) {
	for _, o := range observers {
		c.safeCall(o, key, snap)
	}
}

func (c *Cache) safeCall(o Observer, key Key, snap Entry) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cache observer panicked",
				logger.String("key", key.String()),
				logger.Any("panic", r))
		}
	}()
	o(key, snap)
}

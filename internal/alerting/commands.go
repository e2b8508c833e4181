package alerting

import (
	"context"
	"slices"

	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

// command is one lifecycle mutation. Apply writes the optimistic result to
// the cache, Commit performs the remote call and records the authoritative
// result, Rollback undoes Apply after a failed Commit.
type command interface {
	Apply()
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

// execute runs the command produced by build while holding the lock of
// lockKey. build reads the current state, so a command that waited for
// another one validates against the newer state. Validation failures are
// returned before anything is written or sent.
func (e *Engine) execute(ctx context.Context, name Command, lockKey string, build func() (command, error)) error {
	release, err := e.locks.acquire(ctx, lockKey)
	if err != nil {
		return errors.Newf("%s %s: %w", name, lockKey, err).
			Component(component).
			Category(errors.CategoryState).
			Context("command", string(name)).
			Build()
	}
	defer release()

	cmd, err := build()
	if err != nil {
		e.metrics.Mutation(string(name), "rejected")
		return err
	}

	cmd.Apply()
	if err := cmd.Commit(ctx); err != nil {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		cmd.Rollback(rbCtx)
		cancel()
		e.metrics.Mutation(string(name), "failed")
		e.log.Warn("command failed, rolled back",
			logger.String("command", string(name)),
			logger.String("target", lockKey),
			logger.Error(err))
		return mutationError(name, lockKey, err)
	}
	e.metrics.Mutation(string(name), "ok")
	return nil
}

// refetch invalidates every collection of kind and reloads it. Failures are
// left on the entries.
func (e *Engine) refetch(ctx context.Context, kind monitoring.Kind) {
	e.cache.InvalidateKind(kind)
	for _, key := range e.cache.Keys(kind) {
		if err := e.cache.Refresh(ctx, key); err != nil {
			e.log.Debug("refetch after rollback failed", logger.String("key", key.String()), logger.Error(err))
		}
	}
}

var errSkip = errors.NewStd("skip")

// replaceInCollections swaps item into every collection of kind that holds
// an element with the same id.
func replaceInCollections[T any](c *querycache.Cache, kind monitoring.Kind, id func(*T) string, item T) {
	want := id(&item)
	for _, key := range c.Keys(kind) {
		_ = c.UpdateFromMutation(key, func(old any, ok bool) (any, error) {
			list, isList := old.([]T)
			if !ok || !isList {
				return nil, errSkip
			}
			i := slices.IndexFunc(list, func(v T) bool { return id(&v) == want })
			if i < 0 {
				return nil, errSkip
			}
			next := slices.Clone(list)
			next[i] = item
			return next, nil
		})
	}
}

// removeFromCollections drops the element with the given id from every
// collection of kind.
func removeFromCollections[T any](c *querycache.Cache, kind monitoring.Kind, id func(*T) string, want string) {
	for _, key := range c.Keys(kind) {
		_ = c.UpdateFromMutation(key, func(old any, ok bool) (any, error) {
			list, isList := old.([]T)
			if !ok || !isList {
				return nil, errSkip
			}
			if !slices.ContainsFunc(list, func(v T) bool { return id(&v) == want }) {
				return nil, errSkip
			}
			return slices.DeleteFunc(slices.Clone(list), func(v T) bool { return id(&v) == want }), nil
		})
	}
}

// appendToCollections adds item to every loaded collection of kind.
// Collections that were never loaded are left alone so the first read
// still fetches them.
func appendToCollections[T any](c *querycache.Cache, kind monitoring.Kind, item T) {
	for _, key := range c.Keys(kind) {
		_ = c.UpdateFromMutation(key, func(old any, ok bool) (any, error) {
			list, isList := old.([]T)
			if !ok || !isList {
				return nil, errSkip
			}
			return append(slices.Clone(list), item), nil
		})
	}
}

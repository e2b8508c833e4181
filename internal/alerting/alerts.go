package alerting

import (
	"context"
	"strings"
	"time"

	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

// alertCommand is a transition of one alert. remote is nil for local-only
// commands, whose optimistic result stands until the next authoritative
// update.
type alertCommand struct {
	e         *Engine
	before    monitoring.Alert
	after     monitoring.Alert
	hadEntity bool
	remote    func(ctx context.Context) (monitoring.Alert, time.Time, error)
	result    monitoring.Alert
}

func (c *alertCommand) key() querycache.Key {
	return querycache.EntityKey(monitoring.KindAlert, c.before.ID)
}

func (c *alertCommand) Apply() {
	_, c.hadEntity = c.e.cache.Peek(c.key())
	c.e.cache.SetFromMutation(c.key(), c.after.Clone())
	replaceInCollections(c.e.cache, monitoring.KindAlerts, alertView.id, c.after.Clone())
}

func (c *alertCommand) Commit(ctx context.Context) error {
	if c.remote == nil {
		c.result = c.after
		return nil
	}
	res, serverTime, err := c.remote(ctx)
	if err != nil {
		return err
	}
	if res.ID == "" {
		res = c.after
	}
	c.e.cache.Store(c.key(), res.Clone(), serverTime)
	if entry, ok := c.e.cache.Peek(c.key()); ok {
		if merged, isAlert := entry.Value.(monitoring.Alert); isAlert {
			res = merged
		}
	}
	replaceInCollections(c.e.cache, monitoring.KindAlerts, alertView.id, res.Clone())
	c.e.cache.InvalidateKind(monitoring.KindAlerts)
	c.result = res
	return nil
}

func (c *alertCommand) Rollback(ctx context.Context) {
	if c.hadEntity {
		c.e.cache.SetFromMutation(c.key(), c.before.Clone())
	} else {
		c.e.cache.Delete(c.key())
	}
	replaceInCollections(c.e.cache, monitoring.KindAlerts, alertView.id, c.before.Clone())
	c.e.refetch(ctx, monitoring.KindAlerts)
}

// runAlert validates cmd against the current record of id, lets mutate
// shape the optimistic result and executes the command.
func (e *Engine) runAlert(ctx context.Context, id string, cmd Command, event EventType, actor string,
	mutate func(a *monitoring.Alert),
	remote func(ctx context.Context) (monitoring.Alert, time.Time, error),
) (monitoring.Alert, error) {
	if strings.TrimSpace(id) == "" {
		return monitoring.Alert{}, invalidInput("%s: empty alert id", cmd)
	}
	var ac *alertCommand
	err := e.execute(ctx, cmd, "alert:"+id, func() (command, error) {
		current, err := e.Alert(id)
		if err != nil {
			return nil, err
		}
		next, err := NextAlertStatus(current.Status, cmd)
		if err != nil {
			return nil, err
		}
		after := current.Clone()
		after.Status = next
		mutate(&after)
		ac = &alertCommand{e: e, before: current, after: after, remote: remote}
		return ac, nil
	})
	if err != nil {
		return monitoring.Alert{}, err
	}
	e.publish(alertEvent(event, ac.result, actor))
	return ac.result.Clone(), nil
}

// Acknowledge marks an active alert as acknowledged by userID.
func (e *Engine) Acknowledge(ctx context.Context, id, userID string) (monitoring.Alert, error) {
	if strings.TrimSpace(userID) == "" {
		return monitoring.Alert{}, invalidInput("acknowledge %s: empty user id", id)
	}
	return e.runAlert(ctx, id, CmdAcknowledge, EventAlertAcknowledged, userID,
		func(a *monitoring.Alert) {
			now := e.now()
			a.AcknowledgedBy = userID
			a.AcknowledgedAt = &now
		},
		func(ctx context.Context) (monitoring.Alert, time.Time, error) {
			return e.remote.AcknowledgeAlert(ctx, id, userID)
		})
}

// Resolve closes an active or acknowledged alert.
func (e *Engine) Resolve(ctx context.Context, id, userID, resolution string) (monitoring.Alert, error) {
	return e.runAlert(ctx, id, CmdResolve, EventAlertResolved, userID,
		func(a *monitoring.Alert) {
			now := e.now()
			a.ResolvedBy = userID
			a.ResolvedAt = &now
			a.Resolution = resolution
			a.SuppressedUntil = nil
		},
		func(ctx context.Context) (monitoring.Alert, time.Time, error) {
			return e.remote.ResolveAlert(ctx, id, userID, resolution)
		})
}

// Suppress silences an active or acknowledged alert for durationMinutes,
// at most MaxSuppressMinutes. The alert becomes active again once the
// window has elapsed.
func (e *Engine) Suppress(ctx context.Context, id string, durationMinutes int) (monitoring.Alert, error) {
	if durationMinutes <= 0 {
		return monitoring.Alert{}, invalidInput("suppress %s: duration must be positive, got %d", id, durationMinutes)
	}
	if durationMinutes > MaxSuppressMinutes {
		return monitoring.Alert{}, invalidInput("suppress %s: duration %d exceeds %d minutes", id, durationMinutes, MaxSuppressMinutes)
	}
	return e.runAlert(ctx, id, CmdSuppress, EventAlertSuppressed, "",
		func(a *monitoring.Alert) {
			until := e.now().Add(time.Duration(durationMinutes) * time.Minute)
			a.SuppressedUntil = &until
		},
		func(ctx context.Context) (monitoring.Alert, time.Time, error) {
			return e.remote.SuppressAlert(ctx, id, durationMinutes)
		})
}

// Escalate raises the escalation level of an active alert by one. The
// remote system has no escalation endpoint, so the change is local.
func (e *Engine) Escalate(ctx context.Context, id string) (monitoring.Alert, error) {
	a, err := e.runAlert(ctx, id, CmdEscalate, EventAlertEscalated, "",
		func(a *monitoring.Alert) { a.EscalationLevel++ },
		nil)
	if err == nil {
		e.metrics.Escalation()
	}
	return a, err
}

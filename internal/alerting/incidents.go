package alerting

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

const pendingIDPrefix = "pending-"

// IsPendingID reports whether id is a temporary id given to a record whose
// create command has not completed yet.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, pendingIDPrefix)
}

// incidentCommand is a transition of one existing incident.
type incidentCommand struct {
	e         *Engine
	before    monitoring.Incident
	after     monitoring.Incident
	hadEntity bool
	remote    func(ctx context.Context) (monitoring.Incident, time.Time, error)
	result    monitoring.Incident
}

func (c *incidentCommand) key() querycache.Key {
	return querycache.EntityKey(monitoring.KindIncident, c.before.ID)
}

func (c *incidentCommand) Apply() {
	_, c.hadEntity = c.e.cache.Peek(c.key())
	c.e.cache.SetFromMutation(c.key(), c.after.Clone())
	replaceInCollections(c.e.cache, monitoring.KindIncidents, incidentView.id, c.after.Clone())
}

func (c *incidentCommand) Commit(ctx context.Context) error {
	res, serverTime, err := c.remote(ctx)
	if err != nil {
		return err
	}
	if res.ID == "" {
		res = c.after
	}
	c.e.cache.Store(c.key(), res.Clone(), serverTime)
	replaceInCollections(c.e.cache, monitoring.KindIncidents, incidentView.id, res.Clone())
	c.e.cache.InvalidateKind(monitoring.KindIncidents)
	c.result = res
	return nil
}

func (c *incidentCommand) Rollback(ctx context.Context) {
	if c.hadEntity {
		c.e.cache.SetFromMutation(c.key(), c.before.Clone())
	} else {
		c.e.cache.Delete(c.key())
	}
	replaceInCollections(c.e.cache, monitoring.KindIncidents, incidentView.id, c.before.Clone())
	c.e.refetch(ctx, monitoring.KindIncidents)
}

// createIncidentCommand shows a pending incident under a temporary id until
// the remote system assigns the real one.
type createIncidentCommand struct {
	e       *Engine
	in      monitoring.IncidentInput
	pending monitoring.Incident
	result  monitoring.Incident
}

func (c *createIncidentCommand) pendingKey() querycache.Key {
	return querycache.EntityKey(monitoring.KindIncident, c.pending.ID)
}

func (c *createIncidentCommand) Apply() {
	c.e.cache.SetFromMutation(c.pendingKey(), c.pending.Clone())
}

func (c *createIncidentCommand) Commit(ctx context.Context) error {
	res, serverTime, err := c.e.remote.CreateIncident(ctx, c.in)
	if err != nil {
		return err
	}
	c.e.cache.Delete(c.pendingKey())
	if res.ID == "" {
		return invalidInput("create incident: response carries no id")
	}
	c.e.cache.Store(querycache.EntityKey(monitoring.KindIncident, res.ID), res.Clone(), serverTime)
	c.e.cache.InvalidateKind(monitoring.KindIncidents)
	c.result = res
	return nil
}

func (c *createIncidentCommand) Rollback(ctx context.Context) {
	c.e.cache.Delete(c.pendingKey())
	c.e.refetch(ctx, monitoring.KindIncidents)
}

// CreateIncident opens a new incident.
func (e *Engine) CreateIncident(ctx context.Context, in monitoring.IncidentInput) (monitoring.Incident, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return monitoring.Incident{}, invalidInput("create incident: empty title")
	}
	if !in.Severity.Valid() {
		return monitoring.Incident{}, invalidInput("create incident: invalid severity %q", in.Severity)
	}
	pendingID := pendingIDPrefix + uuid.NewString()
	var cc *createIncidentCommand
	err := e.execute(ctx, CmdCreateIncident, "incident:"+pendingID, func() (command, error) {
		now := e.now()
		cc = &createIncidentCommand{
			e:  e,
			in: in,
			pending: monitoring.Incident{
				ID:          pendingID,
				Title:       in.Title,
				Description: in.Description,
				Severity:    in.Severity,
				Status:      monitoring.IncidentOpen,
				CreatedAt:   now,
				UpdatedAt:   now,
				Assignee:    in.Assignee,
				AlertIDs:    in.AlertIDs,
			},
		}
		return cc, nil
	})
	if err != nil {
		return monitoring.Incident{}, err
	}
	e.publish(incidentEvent(EventIncidentCreated, cc.result, ""))
	return cc.result.Clone(), nil
}

func (e *Engine) runIncident(ctx context.Context, id string, cmd Command, event EventType,
	mutate func(inc *monitoring.Incident) error,
	remote func(ctx context.Context) (monitoring.Incident, time.Time, error),
) (monitoring.Incident, error) {
	if strings.TrimSpace(id) == "" {
		return monitoring.Incident{}, invalidInput("%s: empty incident id", cmd)
	}
	if IsPendingID(id) {
		return monitoring.Incident{}, invalidInput("%s %s: incident is still being created", cmd, id)
	}
	var ic *incidentCommand
	err := e.execute(ctx, cmd, "incident:"+id, func() (command, error) {
		current, err := e.Incident(id)
		if err != nil {
			return nil, err
		}
		next, err := NextIncidentStatus(current.Status, cmd)
		if err != nil {
			return nil, err
		}
		after := current.Clone()
		after.Status = next
		after.UpdatedAt = e.now()
		if err := mutate(&after); err != nil {
			return nil, err
		}
		ic = &incidentCommand{e: e, before: current, after: after, remote: remote}
		return ic, nil
	})
	if err != nil {
		return monitoring.Incident{}, err
	}
	e.publish(incidentEvent(event, ic.result, ""))
	return ic.result.Clone(), nil
}

// InvestigateIncident moves an open incident to investigating.
func (e *Engine) InvestigateIncident(ctx context.Context, id string) (monitoring.Incident, error) {
	status := monitoring.IncidentInvestigating
	return e.runIncident(ctx, id, CmdInvestigateIncident, EventIncidentInvestigating,
		func(inc *monitoring.Incident) error {
			now := e.now()
			inc.InvestigatingAt = &now
			return nil
		},
		func(ctx context.Context) (monitoring.Incident, time.Time, error) {
			return e.remote.UpdateIncident(ctx, id, monitoring.IncidentUpdate{Status: &status})
		})
}

// UpdateIncident edits the non-status fields of an unresolved incident.
func (e *Engine) UpdateIncident(ctx context.Context, id string, u monitoring.IncidentUpdate) (monitoring.Incident, error) {
	if u.Status != nil {
		return monitoring.Incident{}, invalidInput("update incident %s: status changes go through investigate or resolve", id)
	}
	if u.Severity != nil && !u.Severity.Valid() {
		return monitoring.Incident{}, invalidInput("update incident %s: invalid severity %q", id, *u.Severity)
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return monitoring.Incident{}, invalidInput("update incident %s: empty title", id)
	}
	return e.runIncident(ctx, id, CmdUpdateIncident, EventIncidentUpdated,
		func(inc *monitoring.Incident) error {
			u.ApplyTo(inc)
			return nil
		},
		func(ctx context.Context) (monitoring.Incident, time.Time, error) {
			return e.remote.UpdateIncident(ctx, id, u)
		})
}

// ResolveIncident closes an incident under investigation.
func (e *Engine) ResolveIncident(ctx context.Context, id, resolution string) (monitoring.Incident, error) {
	return e.runIncident(ctx, id, CmdResolveIncident, EventIncidentResolved,
		func(inc *monitoring.Incident) error {
			now := e.now()
			inc.ResolvedAt = &now
			inc.Resolution = resolution
			return nil
		},
		func(ctx context.Context) (monitoring.Incident, time.Time, error) {
			return e.remote.ResolveIncident(ctx, id, resolution)
		})
}

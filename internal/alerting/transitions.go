package alerting

import (
	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/monitoring"
)

// alertTransitions is the complete alert state machine. A command missing
// from a state's row is rejected.
var alertTransitions = map[monitoring.AlertStatus]map[Command]monitoring.AlertStatus{
	monitoring.AlertActive: {
		CmdAcknowledge: monitoring.AlertAcknowledged,
		CmdResolve:     monitoring.AlertResolved,
		CmdSuppress:    monitoring.AlertSuppressed,
		CmdEscalate:    monitoring.AlertActive,
	},
	monitoring.AlertAcknowledged: {
		CmdResolve:  monitoring.AlertResolved,
		CmdSuppress: monitoring.AlertSuppressed,
	},
	monitoring.AlertSuppressed: {
		CmdExpire: monitoring.AlertActive,
	},
	monitoring.AlertResolved: {},
}

// incidentTransitions is the linear incident state machine. CmdUpdateIncident
// edits fields without changing status.
var incidentTransitions = map[monitoring.IncidentStatus]map[Command]monitoring.IncidentStatus{
	monitoring.IncidentOpen: {
		CmdInvestigateIncident: monitoring.IncidentInvestigating,
		CmdUpdateIncident:      monitoring.IncidentOpen,
	},
	monitoring.IncidentInvestigating: {
		CmdResolveIncident: monitoring.IncidentResolved,
		CmdUpdateIncident:  monitoring.IncidentInvestigating,
	},
	monitoring.IncidentResolved: {},
}

// NextAlertStatus returns the status reached by applying cmd in from, or an
// error wrapping monitoring.ErrInvalidTransition.
func NextAlertStatus(from monitoring.AlertStatus, cmd Command) (monitoring.AlertStatus, error) {
	if to, ok := alertTransitions[from][cmd]; ok {
		return to, nil
	}
	return "", errors.Newf("cannot %s alert in status %q: %w", cmd, from, monitoring.ErrInvalidTransition).
		Component(component).
		Category(errors.CategoryState).
		Context("from", string(from)).
		Context("command", string(cmd)).
		Build()
}

// NextIncidentStatus is NextAlertStatus for incidents.
func NextIncidentStatus(from monitoring.IncidentStatus, cmd Command) (monitoring.IncidentStatus, error) {
	if to, ok := incidentTransitions[from][cmd]; ok {
		return to, nil
	}
	return "", errors.Newf("cannot %s incident in status %q: %w", cmd, from, monitoring.ErrInvalidTransition).
		Component(component).
		Category(errors.CategoryState).
		Context("from", string(from)).
		Context("command", string(cmd)).
		Build()
}

// AllowedAlertCommands lists the commands valid in status s.
func AllowedAlertCommands(s monitoring.AlertStatus) []Command {
	out := make([]Command, 0, len(alertTransitions[s]))
	for _, cmd := range []Command{CmdAcknowledge, CmdResolve, CmdSuppress, CmdEscalate, CmdExpire} {
		if _, ok := alertTransitions[s][cmd]; ok {
			out = append(out, cmd)
		}
	}
	return out
}

func invalidTransition(what, id, status string) error {
	return errors.Newf("%s %s is %s: %w", what, id, status, monitoring.ErrInvalidTransition).
		Component(component).
		Category(errors.CategoryState).
		Context("id", id).
		Build()
}

package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/monitoring"
)

func TestNextAlertStatus_AllEdges(t *testing.T) {
	t.Parallel()

	const invalid = monitoring.AlertStatus("")
	tests := []struct {
		from monitoring.AlertStatus
		want map[Command]monitoring.AlertStatus
	}{
		{monitoring.AlertActive, map[Command]monitoring.AlertStatus{
			CmdAcknowledge: monitoring.AlertAcknowledged,
			CmdResolve:     monitoring.AlertResolved,
			CmdSuppress:    monitoring.AlertSuppressed,
			CmdEscalate:    monitoring.AlertActive,
			CmdExpire:      invalid,
		}},
		{monitoring.AlertAcknowledged, map[Command]monitoring.AlertStatus{
			CmdAcknowledge: invalid,
			CmdResolve:     monitoring.AlertResolved,
			CmdSuppress:    monitoring.AlertSuppressed,
			CmdEscalate:    invalid,
			CmdExpire:      invalid,
		}},
		{monitoring.AlertSuppressed, map[Command]monitoring.AlertStatus{
			CmdAcknowledge: invalid,
			CmdResolve:     invalid,
			CmdSuppress:    invalid,
			CmdEscalate:    invalid,
			CmdExpire:      monitoring.AlertActive,
		}},
		{monitoring.AlertResolved, map[Command]monitoring.AlertStatus{
			CmdAcknowledge: invalid,
			CmdResolve:     invalid,
			CmdSuppress:    invalid,
			CmdEscalate:    invalid,
			CmdExpire:      invalid,
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			t.Parallel()
			for cmd, want := range tt.want {
				got, err := NextAlertStatus(tt.from, cmd)
				if want == invalid {
					require.Error(t, err, "%s from %s", cmd, tt.from)
					assert.ErrorIs(t, err, monitoring.ErrInvalidTransition)
					continue
				}
				require.NoError(t, err, "%s from %s", cmd, tt.from)
				assert.Equal(t, want, got, "%s from %s", cmd, tt.from)
			}
		})
	}
}

func TestNextAlertStatus_ResolvedNeverReturnsToActive(t *testing.T) {
	t.Parallel()

	for _, cmd := range []Command{CmdAcknowledge, CmdResolve, CmdSuppress, CmdEscalate, CmdExpire} {
		_, err := NextAlertStatus(monitoring.AlertResolved, cmd)
		assert.ErrorIs(t, err, monitoring.ErrInvalidTransition, string(cmd))
	}
}

func TestNextIncidentStatus_Linear(t *testing.T) {
	t.Parallel()

	next, err := NextIncidentStatus(monitoring.IncidentOpen, CmdInvestigateIncident)
	require.NoError(t, err)
	assert.Equal(t, monitoring.IncidentInvestigating, next)

	next, err = NextIncidentStatus(monitoring.IncidentInvestigating, CmdResolveIncident)
	require.NoError(t, err)
	assert.Equal(t, monitoring.IncidentResolved, next)

	next, err = NextIncidentStatus(monitoring.IncidentOpen, CmdUpdateIncident)
	require.NoError(t, err)
	assert.Equal(t, monitoring.IncidentOpen, next, "updates keep the status")

	for _, tc := range []struct {
		from monitoring.IncidentStatus
		cmd  Command
	}{
		{monitoring.IncidentOpen, CmdResolveIncident},
		{monitoring.IncidentInvestigating, CmdInvestigateIncident},
		{monitoring.IncidentResolved, CmdUpdateIncident},
		{monitoring.IncidentResolved, CmdInvestigateIncident},
		{monitoring.IncidentResolved, CmdResolveIncident},
	} {
		_, err := NextIncidentStatus(tc.from, tc.cmd)
		assert.ErrorIs(t, err, monitoring.ErrInvalidTransition, "%s from %s", tc.cmd, tc.from)
	}
}

func TestAllowedAlertCommands(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Command{CmdAcknowledge, CmdResolve, CmdSuppress, CmdEscalate}, AllowedAlertCommands(monitoring.AlertActive))
	assert.Equal(t, []Command{CmdResolve, CmdSuppress}, AllowedAlertCommands(monitoring.AlertAcknowledged))
	assert.Equal(t, []Command{CmdExpire}, AllowedAlertCommands(monitoring.AlertSuppressed))
	assert.Empty(t, AllowedAlertCommands(monitoring.AlertResolved))
}

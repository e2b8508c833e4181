package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hospitalops/livemon/internal/monitoring"
)

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Disk usage above 90%", want: "Disk usage above 90%"},
		{name: "comparison signs kept", in: "Latency > 2500ms & error rate < 5%", want: "Latency > 2500ms & error rate < 5%"},
		{name: "inline markup", in: "<p>Disk <b>full</b> on db-01</p>", want: "Disk full on db-01"},
		{name: "entities in markup", in: "<span>CPU &gt; 90%</span>", want: "CPU > 90%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, plainText(tt.in))
		})
	}
}

func TestRenderAlert(t *testing.T) {
	t.Parallel()

	value := 93.5
	tests := []struct {
		name      string
		alert     monitoring.Alert
		wantTitle string
		wantBody  string
	}{
		{
			name: "condition body",
			alert: monitoring.Alert{
				Name:         "CPU usage high",
				Severity:     monitoring.SeverityCritical,
				Source:       "node-exporter",
				Condition:    monitoring.Condition{Metric: "cpuUsage", Operator: ">", Threshold: 90, Unit: "%"},
				CurrentValue: &value,
			},
			wantTitle: "Critical alert: CPU usage high",
			wantBody:  "cpuUsage > 90% (current 93.5%) on node-exporter",
		},
		{
			name:      "rich description",
			alert:     monitoring.Alert{Name: "PACS down", Severity: monitoring.SeverityHigh, Description: "<p>Radiology <i>PACS</i> unreachable</p>"},
			wantTitle: "High alert: PACS down",
			wantBody:  "Radiology PACS unreachable",
		},
		{
			name:      "plain description",
			alert:     monitoring.Alert{Name: "Disk usage high", Severity: monitoring.SeverityCritical, Description: "PACS archive volume nearly full"},
			wantTitle: "Critical alert: Disk usage high",
			wantBody:  "PACS archive volume nearly full",
		},
		{
			name:      "unknown severity",
			alert:     monitoring.Alert{Name: "x", Description: "y"},
			wantTitle: "Unknown alert: x",
			wantBody:  "y",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			title, body := renderAlert(&tt.alert)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestRenderIncident(t *testing.T) {
	t.Parallel()

	title, body := renderIncident(&monitoring.Incident{Title: "EHR outage", Severity: monitoring.SeverityHigh, AlertIDs: []string{"a1", "a2"}})
	assert.Equal(t, "Incident: EHR outage", title)
	assert.Equal(t, "Severity: High, 2 linked alert(s)", body)

	_, body = renderIncident(&monitoring.Incident{Title: "x", Description: "<div>Lab feed &amp; HL7 delayed</div>"})
	assert.Equal(t, "Lab feed & HL7 delayed", body)
}

func TestRenderEscalation(t *testing.T) {
	t.Parallel()

	title, _ := renderEscalation(&monitoring.Alert{Name: "Disk usage high", EscalationLevel: 2})
	assert.Equal(t, "Escalated (level 2): Disk usage high", title)
}

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	got := renderTemplate("{{a}}-{{b}}-{{missing}}", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, "1-2-{{missing}}", got)
}

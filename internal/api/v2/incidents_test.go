package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/monitoring"
)

func seedIncidents(f *fixture) {
	f.lifecycle.incidents = []monitoring.Incident{
		{ID: "i1", Title: "EHR outage", Severity: monitoring.SeverityCritical, Status: monitoring.IncidentOpen, CreatedAt: base},
		{ID: "i2", Title: "Pager delays", Severity: monitoring.SeverityMedium, Status: monitoring.IncidentInvestigating,
			CreatedAt: base.Add(time.Hour)},
	}
}

func TestListIncidents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seedIncidents(f)

	rec := f.do(t, http.MethodGet, "/api/v2/incidents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp IncidentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Incidents, 2)
	assert.Equal(t, "i2", resp.Incidents[0].ID, "newest first")

	rec = f.do(t, http.MethodGet, "/api/v2/incidents?status=open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "i1", resp.Incidents[0].ID)
}

func TestCreateIncident(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v2/incidents",
		`{"title":"Imaging backlog","severity":"high","alertIds":["a1","a2"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var inc monitoring.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inc))
	assert.Equal(t, "Imaging backlog", inc.Title)
	assert.Equal(t, monitoring.IncidentOpen, inc.Status)
	assert.Equal(t, []string{"a1", "a2"}, inc.AlertIDs)

	rec = f.do(t, http.MethodPost, "/api/v2/incidents", `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateIncident(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seedIncidents(f)

	rec := f.do(t, http.MethodPatch, "/api/v2/incidents/i1", `{"assignee":"oncall-ops","severity":"high"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var inc monitoring.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inc))
	assert.Equal(t, "oncall-ops", inc.Assignee)
	assert.Equal(t, monitoring.SeverityHigh, inc.Severity)
	assert.Equal(t, "EHR outage", inc.Title, "unset fields are unchanged")
	assert.Nil(t, f.lifecycle.lastPatch.Title)

	rec = f.do(t, http.MethodPatch, "/api/v2/incidents/i1", `{"status":"resolved"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "status goes through the lifecycle routes")

	rec = f.do(t, http.MethodPatch, "/api/v2/incidents/missing", `{"assignee":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIncidentLifecycleRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seedIncidents(f)

	rec := f.do(t, http.MethodPost, "/api/v2/incidents/i1/resolve", `{"resolution":"failover"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "open incidents are investigated first")

	rec = f.do(t, http.MethodPost, "/api/v2/incidents/i1/investigate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v2/incidents/i1/investigate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v2/incidents/i1/resolve", `{"resolution":"failover"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v2/incidents/i1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var inc monitoring.Incident
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inc))
	assert.Equal(t, monitoring.IncidentResolved, inc.Status)
	assert.Equal(t, "failover", inc.Resolution)
}

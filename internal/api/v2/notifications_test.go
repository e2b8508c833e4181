package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/datastore/entities"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/querycache"
)

type historyPage struct {
	History []entities.NotificationHistory `json:"history"`
	Total   int64                          `json:"total"`
	Limit   int                            `json:"limit"`
	Offset  int                            `json:"offset"`
}

func seedHistory(t *testing.T, f *fixture, n int) {
	t.Helper()
	for i := range n {
		kind := "alert"
		if i%2 == 1 {
			kind = "incident"
		}
		require.NoError(t, f.history.Save(context.Background(), &entities.NotificationHistory{
			Kind:     kind,
			Tag:      fmt.Sprintf("%s-%d", kind, i),
			SourceID: fmt.Sprintf("src-%d", i),
			Title:    "Critical alert",
			SentAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestGetNotificationHistory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantLen    int
		wantTotal  int64
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantLen: 5, wantTotal: 5, wantLimit: defaultHistoryLimit},
		{name: "kind filter", query: "?kind=incident", wantLen: 2, wantTotal: 2, wantLimit: defaultHistoryLimit},
		{name: "paging", query: "?limit=2&offset=1", wantLen: 2, wantTotal: 5, wantLimit: 2, wantOffset: 1},
		{name: "limit capped", query: "?limit=5000", wantLen: 5, wantTotal: 5, wantLimit: maxHistoryLimit},
		{name: "invalid limit ignored", query: "?limit=-3&offset=x", wantLen: 5, wantTotal: 5, wantLimit: defaultHistoryLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			seedHistory(t, f, 5)

			rec := f.do(t, http.MethodGet, "/api/v2/notifications/history"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var page historyPage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Len(t, page.History, tt.wantLen)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.wantOffset, page.Offset)
		})
	}
}

func TestGetNotificationHistory_PassesSinceAndSource(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v2/notifications/history?since=2026-03-02T08:30:00Z&source_id=a1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page historyPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.NotNil(t, page.History, "empty history is a list, not null")

	require.Len(t, f.history.filters, 1)
	got := f.history.filters[0]
	assert.Equal(t, "a1", got.SourceID)
	assert.True(t, got.Since.Equal(base.Add(30*time.Minute)))

	rec = f.do(t, http.MethodGet, "/api/v2/notifications/history?since=tuesday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNotificationHistory_StorageFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.history.listErr = errors.New("database is locked")

	rec := f.do(t, http.MethodGet, "/api/v2/notifications/history", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClearNotificationHistory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seedHistory(t, f, 3)

	rec := f.do(t, http.MethodDelete, "/api/v2/notifications/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp["deleted"])
	assert.Empty(t, f.history.rows)
}

func TestNotificationHistory_Unavailable(t *testing.T) {
	t.Parallel()

	cache := querycache.New(logger.Discard())
	t.Cleanup(cache.Close)
	f := &fixture{e: echo.New(), lifecycle: &fakeLifecycle{}, subs: &fakeSubscription{}, cache: cache}
	f.ctrl = New(t.Context(), f.e, Deps{Lifecycle: f.lifecycle, Subscription: f.subs, Cache: cache}, nil)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := f.do(t, method, "/api/v2/notifications/history", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, method)
	}
}

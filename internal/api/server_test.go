package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/logger"
)

func TestServer_RecoversPanicsAndSetsRequestID(t *testing.T) {
	t.Parallel()

	s := New(conf.WebServerSettings{}, logger.Discard())
	s.Echo.GET("/boom", func(echo.Context) error { panic("handler bug") })
	s.Echo.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", http.NoBody))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := New(conf.WebServerSettings{Listen: "127.0.0.1:0"}, logger.Discard())
	s.Echo.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = s.Echo.ListenerAddr()
		return addr != nil
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr.String() + "/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_RunReportsListenFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	s := New(conf.WebServerSettings{Listen: ln.Addr().String()}, logger.Discard())
	err = s.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api server failed")
}

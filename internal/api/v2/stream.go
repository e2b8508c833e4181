package api

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
	"github.com/hospitalops/livemon/internal/querycache"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamMaxMsgSize = 4 * 1024
	streamBuffer     = 64

	// Connection attempts per client IP.
	streamRateLimit  = 10
	streamRateBurst  = 15
	streamRateWindow = time.Minute
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers must match Host; clients without an Origin are local tooling.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// StreamFrame is one cache update as sent to stream clients.
type StreamFrame struct {
	Kind       monitoring.Kind   `json:"kind"`
	Filter     string            `json:"filter,omitempty"`
	ID         string            `json:"id,omitempty"`
	Source     querycache.Source `json:"source,omitempty"`
	ServerTime time.Time         `json:"serverTime,omitzero"`
	Stale      bool              `json:"stale"`
	Error      string            `json:"error,omitempty"`
	Data       any               `json:"data,omitempty"`
}

// streamHub fans cache updates out to connected stream clients. Slow
// clients lose frames instead of blocking the cache.
type streamHub struct {
	mu      sync.Mutex
	clients map[chan StreamFrame]struct{}
	dropped atomic.Uint64
}

func newStreamHub() *streamHub {
	return &streamHub{clients: make(map[chan StreamFrame]struct{})}
}

func (h *streamHub) subscribe() (<-chan StreamFrame, func()) {
	ch := make(chan StreamFrame, streamBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}
}

func (h *streamHub) publish(key querycache.Key, e querycache.Entry) {
	f := StreamFrame{
		Kind:       key.Kind,
		Filter:     key.Filter,
		ID:         key.ID,
		Source:     e.Source,
		ServerTime: e.ServerTime,
		Stale:      e.Stale,
		Data:       e.Value,
	}
	if e.Err != nil {
		f.Error = e.Err.Error()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- f:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *streamHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// initStreamRoutes registers the live update stream.
func (c *Controller) initStreamRoutes() {
	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      streamRateLimit,
			Burst:     streamRateBurst,
			ExpiresIn: streamRateWindow,
		}),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		DenyHandler: func(ctx echo.Context, _ string, _ error) error {
			return ctx.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Too many stream connection attempts",
				Code:  http.StatusTooManyRequests,
			})
		},
	})
	c.Group.GET("/monitoring/stream", c.StreamUpdates, limiter)
}

// StreamUpdates upgrades to a WebSocket and forwards cache updates as JSON
// frames. The optional kinds query parameter is a comma separated list that
// restricts which kinds are sent.
func (c *Controller) StreamUpdates(ctx echo.Context) error {
	kinds, err := parseKinds(ctx.QueryParam("kinds"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid kinds parameter", http.StatusBadRequest)
	}

	conn, err := streamUpgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.log.Warn("stream upgrade failed", logger.Error(err))
		// The upgrader has already written the HTTP error.
		return nil
	}

	frames, unsubscribe := c.stream.subscribe()
	defer unsubscribe()

	conn.SetReadLimit(streamMaxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// The reader only drives pong handling and notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-gone
	}()

	c.log.Debug("stream client connected", logger.Int("clients", c.stream.count()))

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-c.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(streamWriteWait))
			return nil
		case <-gone:
			return nil
		case f := <-frames:
			if kinds != nil {
				if _, ok := kinds[f.Kind]; !ok {
					continue
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(f); err != nil {
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// parseKinds returns nil for an empty list.
func parseKinds(raw string) (map[monitoring.Kind]struct{}, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := make(map[monitoring.Kind]struct{})
	for part := range strings.SplitSeq(raw, ",") {
		k := monitoring.Kind(strings.TrimSpace(part))
		if k == "" {
			continue
		}
		if !k.Valid() {
			return nil, invalidInput("unknown kind %q", k)
		}
		out[k] = struct{}{}
	}
	return out, nil
}

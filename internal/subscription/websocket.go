package subscription

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
)

const (
	wsWriteWait        = 10 * time.Second
	wsPongWait         = 60 * time.Second
	wsPingPeriod       = (wsPongWait * 9) / 10 // must be < pongWait
	wsMaxMessageSize   = 1 << 20
	wsHandshakeTimeout = 10 * time.Second
)

// WebSocketTransport dials the push endpoint over a WebSocket.
type WebSocketTransport struct {
	url        string
	dialer     *websocket.Dialer
	header     http.Header
	pongWait   time.Duration
	pingPeriod time.Duration
	log        logger.Logger
}

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithDialer replaces the default dialer.
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(t *WebSocketTransport) { t.dialer = d }
}

// WithHeader adds request headers sent with the handshake.
func WithHeader(h http.Header) WebSocketOption {
	return func(t *WebSocketTransport) { t.header = h.Clone() }
}

// WithKeepalive sets the pong wait. Pings are sent at nine tenths of it.
func WithKeepalive(pongWait time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		if pongWait > 0 {
			t.pongWait = pongWait
			t.pingPeriod = (pongWait * 9) / 10
		}
	}
}

// WithWebSocketLogger sets the transport logger.
func WithWebSocketLogger(l logger.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		if l != nil {
			t.log = l.Module(component)
		}
	}
}

// NewWebSocketTransport returns a transport for url (ws:// or wss://).
func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:        url,
		dialer:     &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		pongWait:   wsPongWait,
		pingPeriod: wsPingPeriod,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSocketTransport) String() string { return t.url }

// Dial opens the connection and starts its keepalive.
func (t *WebSocketTransport) Dial(ctx context.Context) (Conn, error) {
	ws, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, connectionError("dial", t.url, err)
	}

	c := &wsConn{
		ws:       ws,
		url:      t.url,
		pongWait: t.pongWait,
		done:     make(chan struct{}),
		log:      t.log,
	}
	ws.SetReadLimit(wsMaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(t.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	c.wg.Add(1)
	go c.keepalive(t.pingPeriod)
	return c, nil
}

type wsConn struct {
	ws       *websocket.Conn
	url      string
	pongWait time.Duration
	log      logger.Logger

	// writeMu serializes writes; gorilla allows one concurrent writer and
	// both Send and the ping loop write.
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (c *wsConn) keepalive(period time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("ping failed", logger.String("url", c.url), logger.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return connectionError("send", c.url, err)
	}
	return nil
}

// Receive returns the next data frame. Control frames are handled by
// gorilla; a close frame from the server surfaces as an error.
func (c *wsConn) Receive() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil, connectionError("receive", c.url, errors.NewStd("connection closed"))
			default:
			}
			return nil, connectionError("receive", c.url, err)
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
		c.wg.Wait()
	})
	return err
}

// Package subscription keeps the query cache in sync with the remote
// monitoring system. It owns the push connection, falls back to interval
// polling while the push channel is down and routes inbound messages to the
// cache and the lifecycle engine.
package subscription

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
	"github.com/hospitalops/livemon/internal/monitoring"
)

const component = "subscription"

// Transport names accepted by monitoring.transport.
const (
	TransportWebSocket = "websocket"
	TransportMQTT      = "mqtt"
)

// Conn is an open push channel. Receive blocks until a message arrives or
// the channel fails; Close unblocks a pending Receive.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Transport opens push channels.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// NewTransport returns the transport selected by settings.Transport.
func NewTransport(settings *conf.MonitoringSettings, clientID string, log logger.Logger) (Transport, error) {
	switch strings.ToLower(settings.Transport) {
	case "", TransportWebSocket:
		if settings.PushURL == "" {
			return nil, configError("monitoring.pushurl is required for the websocket transport")
		}
		return NewWebSocketTransport(settings.PushURL, WithWebSocketLogger(log)), nil
	case TransportMQTT:
		if settings.MQTT.Broker == "" {
			return nil, configError("monitoring.mqtt.broker is required for the mqtt transport")
		}
		return NewMQTTTransport(settings.MQTT, clientID, log), nil
	default:
		return nil, configError(fmt.Sprintf("unknown transport %q", settings.Transport))
	}
}

// NewClientID returns a fresh client id for the subscribe message.
func NewClientID() string {
	return "livemon-" + uuid.NewString()[:8]
}

func configError(msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component(component).
		Category(errors.CategoryConfiguration).
		Build()
}

// connectionError wraps a transport failure so callers can match
// monitoring.ErrConnection.
func connectionError(op, target string, err error) error {
	return errors.Newf("%s %s: %w: %w", op, target, monitoring.ErrConnection, err).
		Component(component).
		Category(errors.CategoryNetwork).
		Context("target", target).
		Build()
}

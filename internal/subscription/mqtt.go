package subscription

import (
	"context"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQoS            = 1
	mqttDisconnectMs   = 250
	mqttInboxSize      = 64

	// SubscribeSuffix and UpdatesSuffix are appended to the base topic.
	SubscribeSuffix = "/subscribe"
	UpdatesSuffix   = "/updates"
)

// MQTTTransport carries the push protocol over an MQTT broker. The
// subscribe message is published on <topic>/subscribe and inbound messages
// arrive on <topic>/updates.
type MQTTTransport struct {
	broker   string
	topic    string
	username string
	password string
	clientID string
	log      logger.Logger
}

// NewMQTTTransport returns a transport for the broker in settings.
func NewMQTTTransport(settings conf.MQTTSettings, clientID string, log logger.Logger) *MQTTTransport {
	if log == nil {
		log = logger.Discard()
	}
	topic := settings.Topic
	if topic == "" {
		topic = conf.DefaultMQTTTopic
	}
	return &MQTTTransport{
		broker:   settings.Broker,
		topic:    topic,
		username: settings.Username,
		password: settings.Password,
		clientID: clientID,
		log:      log.Module(component),
	}
}

func (t *MQTTTransport) String() string { return t.broker + "/" + t.topic }

// Dial connects to the broker and subscribes to the updates topic. The
// paho client never reconnects on its own; a lost connection is reported
// by Receive and the controller decides when to dial again.
func (t *MQTTTransport) Dial(ctx context.Context) (Conn, error) {
	c := &mqttConn{
		target:   t.String(),
		pubTopic: t.topic + SubscribeSuffix,
		inbox:    make(chan []byte, mqttInboxSize),
		lost:     make(chan error, 1),
		done:     make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(t.broker)
	opts.SetClientID(t.clientID)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	if t.username != "" {
		opts.SetUsername(t.username)
		opts.SetPassword(t.password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		select {
		case c.lost <- err:
		default:
		}
	})

	c.client = paho.NewClient(opts)
	if err := waitToken(ctx, c.client.Connect()); err != nil {
		return nil, connectionError("connect", c.target, err)
	}
	if err := waitToken(ctx, c.client.Subscribe(t.topic+UpdatesSuffix, mqttQoS, c.deliver)); err != nil {
		c.client.Disconnect(mqttDisconnectMs)
		return nil, connectionError("subscribe", c.target, err)
	}
	t.log.Debug("mqtt transport connected", logger.String("broker", t.broker), logger.String("topic", t.topic))
	return c, nil
}

type mqttConn struct {
	client   paho.Client
	target   string
	pubTopic string

	inbox     chan []byte
	lost      chan error
	done      chan struct{}
	closeOnce sync.Once
}

func (c *mqttConn) deliver(_ paho.Client, m paho.Message) {
	payload := append([]byte(nil), m.Payload()...)
	select {
	case c.inbox <- payload:
	case <-c.done:
	}
}

func (c *mqttConn) Send(ctx context.Context, payload []byte) error {
	if err := waitToken(ctx, c.client.Publish(c.pubTopic, mqttQoS, false, payload)); err != nil {
		return connectionError("publish", c.target, err)
	}
	return nil
}

func (c *mqttConn) Receive() ([]byte, error) {
	select {
	case payload := <-c.inbox:
		return payload, nil
	case err := <-c.lost:
		return nil, connectionError("receive", c.target, err)
	case <-c.done:
		return nil, connectionError("receive", c.target, errors.NewStd("connection closed"))
	}
}

func (c *mqttConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.client.Disconnect(mqttDisconnectMs)
	})
	return nil
}

// waitToken waits for a paho token or for ctx to end.
func waitToken(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MosquittoContainer is an anonymous-access MQTT broker.
type MosquittoContainer struct {
	*started
	brokerURL string
}

// MosquittoConfig configures NewMosquittoContainer.
type MosquittoConfig struct {
	ImageTag string // default "2.0"
}

// NewMosquittoContainer starts a broker and waits until it accepts MQTT
// connections. A nil config uses the defaults.
func NewMosquittoContainer(ctx context.Context, cfg *MosquittoConfig) (*MosquittoContainer, error) {
	tag := "2.0"
	if cfg != nil && cfg.ImageTag != "" {
		tag = cfg.ImageTag
	}

	s, err := start(ctx, "mosquitto", testcontainers.ContainerRequest{
		Image:        "eclipse-mosquitto:" + tag,
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-test.conf"},
		Files: []testcontainers.ContainerFile{{
			Reader:            strings.NewReader(mosquittoConf),
			ContainerFilePath: "/mosquitto-test.conf",
			FileMode:          0o644,
		}},
		WaitingFor: wait.ForLog("mosquitto version").WithStartupTimeout(readyTimeout),
	}, "1883/tcp")
	if err != nil {
		return nil, err
	}

	mc := &MosquittoContainer{
		started:   s,
		brokerURL: "tcp://" + net.JoinHostPort(s.host, strconv.Itoa(s.port)),
	}
	if err := waitReady(ctx, mc.ping); err != nil {
		_ = mc.Terminate(context.Background())
		return nil, fmt.Errorf("mosquitto not ready: %w", err)
	}
	return mc, nil
}

const mosquittoConf = "listener 1883\nallow_anonymous true\n"

// BrokerURL returns the tcp:// URL of the broker.
func (c *MosquittoContainer) BrokerURL() string { return c.brokerURL }

func (c *MosquittoContainer) ping(context.Context) error {
	cl, err := c.Client("livemon-ready")
	if err != nil {
		return err
	}
	cl.Disconnect(100)
	return nil
}

// Client connects a new MQTT client to the broker. The caller disconnects it.
func (c *MosquittoContainer) Client(clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(false)
	cl := mqtt.NewClient(opts)
	tok := cl.Connect()
	if !tok.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("connect timeout for client %s", clientID)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connecting client %s: %w", clientID, err)
	}
	return cl, nil
}

// Terminate stops and removes the broker.
func (c *MosquittoContainer) Terminate(ctx context.Context) error {
	return c.terminate(ctx)
}

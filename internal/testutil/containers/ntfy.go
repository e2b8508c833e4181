//go:build integration

package containers

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NtfyContainer is an ntfy server with an in-memory message cache.
type NtfyContainer struct {
	*started
	http *http.Client
}

// NtfyConfig configures NewNtfyContainer.
type NtfyConfig struct {
	ImageTag string // default "latest"
}

// NewNtfyContainer starts ntfy and waits for its health endpoint. A nil
// config uses the defaults.
func NewNtfyContainer(ctx context.Context, cfg *NtfyConfig) (*NtfyContainer, error) {
	tag := "latest"
	if cfg != nil && cfg.ImageTag != "" {
		tag = cfg.ImageTag
	}
	s, err := start(ctx, "ntfy", testcontainers.ContainerRequest{
		Image:        "binwiederhier/ntfy:" + tag,
		ExposedPorts: []string{"80/tcp"},
		Cmd:          []string{"serve", "--cache-file=/tmp/ntfy/cache.db"},
		Tmpfs:        map[string]string{"/tmp/ntfy": "rw"},
		WaitingFor:   wait.ForHTTP("/v1/health").WithPort("80/tcp").WithStartupTimeout(readyTimeout),
	}, "80/tcp")
	if err != nil {
		return nil, err
	}
	return &NtfyContainer{started: s, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

// Host returns host:port of the server, the form ntfy:// URLs expect.
func (c *NtfyContainer) Host() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// PollMessages returns every cached message of topic. Delivery through
// ntfy is asynchronous, so it retries until at least one message arrives.
func (c *NtfyContainer) PollMessages(ctx context.Context, topic string) ([]NtfyMessage, error) {
	url := fmt.Sprintf("http://%s/%s/json?poll=1", c.Host(), topic)
	var out []NtfyMessage
	err := waitReady(ctx, func(ctx context.Context) error {
		msgs, err := c.poll(ctx, url)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return fmt.Errorf("no messages on %s yet", topic)
		}
		out = msgs
		return nil
	})
	return out, err
}

func (c *NtfyContainer) poll(ctx context.Context, url string) ([]NtfyMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling ntfy: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ntfy response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ntfy poll returned %d: %s", resp.StatusCode, body)
	}
	return ParseNtfyMessages(body)
}

// Terminate stops and removes the server.
func (c *NtfyContainer) Terminate(ctx context.Context) error {
	return c.terminate(ctx)
}

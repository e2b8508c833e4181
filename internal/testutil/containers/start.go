//go:build integration

package containers

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

// readyTimeout bounds how long a started container may take to answer.
const readyTimeout = 30 * time.Second

// started is a running container together with its mapped address.
type started struct {
	container testcontainers.Container
	host      string
	port      int
}

// start runs req and resolves the host mapping of port.
func start(ctx context.Context, name string, req testcontainers.ContainerRequest, port nat.Port) (*started, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting %s container: %w", name, err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("resolving %s host: %w", name, err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("resolving %s port: %w", name, err)
	}
	return &started{container: c, host: host, port: mapped.Int()}, nil
}

// waitReady retries probe with exponential backoff until it succeeds or
// readyTimeout passes.
func waitReady(ctx context.Context, probe func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = readyTimeout
	return backoff.Retry(func() error { return probe(ctx) }, backoff.WithContext(b, ctx))
}

func (s *started) terminate(ctx context.Context) error {
	if s == nil || s.container == nil {
		return nil
	}
	if err := s.container.Terminate(ctx); err != nil {
		return fmt.Errorf("terminating container: %w", err)
	}
	return nil
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ContainerRequest describes a backend container started for a test.
type ContainerRequest struct {
	Image       string
	Port        string // e.g. "5432/tcp"
	Env         map[string]string
	Cmd         []string
	HealthCheck []string // command run inside the container
	Tmpfs       map[string]string
}

// StartContainer starts a container, waits until its health check passes and
// returns the host endpoint of Port. The container is terminated when t
// completes. Tests are skipped in short mode.
func StartContainer(t *testing.T, r ContainerRequest) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        r.Image,
		ExposedPorts: []string{r.Port},
		Env:          r.Env,
		Cmd:          r.Cmd,
		Tmpfs:        r.Tmpfs,
		ConfigModifier: func(c *container.Config) {
			c.Healthcheck = &container.HealthConfig{
				Test:          append([]string{"CMD"}, r.HealthCheck...),
				Interval:      30 * time.Second,
				Timeout:       60 * time.Second,
				Retries:       5,
				StartPeriod:   20 * time.Second,
				StartInterval: 2 * time.Second,
			}
		},
		WaitingFor: wait.ForHealthCheck().WithStartupTimeout(3 * time.Minute),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start %s container: %v", r.Image, err)
	}
	t.Cleanup(func() {
		if cleanupErr := c.Terminate(ctx); cleanupErr != nil {
			t.Fatalf("Failed to terminate %s container: %v", r.Image, cleanupErr)
		}
	})

	endpoint, err := c.PortEndpoint(ctx, nat.Port(r.Port), "")
	if err != nil {
		t.Fatalf("Failed to get %s container endpoint: %v", r.Image, err)
	}
	return endpoint
}

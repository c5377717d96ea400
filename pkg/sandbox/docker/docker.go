// Package docker provides a CodeSandbox that starts one sandbox-server
// container per environment on the local Docker daemon.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/rhuss/codechat/pkg/sandbox"
	"github.com/rhuss/codechat/pkg/sandbox/remote"
)

const (
	DefaultImage = "codechat-sandbox:latest"
	ServerPort   = "8080"

	managedLabel = "codechat.sandbox"
)

var _ sandbox.CodeSandbox = (*Sandbox)(nil)

// containerRuntime is the slice of the Docker API the sandbox needs.
type containerRuntime interface {
	ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error)
	ContainerRemove(ctx context.Context, id string) error
	Close() error
}

// Config configures the Docker sandbox.
type Config struct {
	Image         string
	HealthTimeout time.Duration
	ExecTimeout   time.Duration
	MemoryBytes   int64
}

// Sandbox implements sandbox.CodeSandbox with throwaway containers.
type Sandbox struct {
	rt  containerRuntime
	cfg Config
}

// New connects to the Docker daemon configured in the environment.
func New(cfg Config) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newSandbox(&dockerRuntime{cli: cli}, cfg), nil
}

func newSandbox(rt containerRuntime, cfg Config) *Sandbox {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 60 * time.Second
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
	return &Sandbox{rt: rt, cfg: cfg}
}

// Close releases the Docker client.
func (s *Sandbox) Close() error {
	return s.rt.Close()
}

// Create starts a container, waits for its server to become healthy, and
// returns an environment bound to it. Any container started along the way
// is removed if Create fails.
func (s *Sandbox) Create(ctx context.Context) (sandbox.Environment, error) {
	name := "codechat-sandbox-" + uuid.NewString()
	port := nat.Port(ServerPort + "/tcp")

	cfg := &container.Config{
		Image:        s.cfg.Image,
		ExposedPorts: nat.PortSet{port: {}},
		Labels:       map[string]string{managedLabel: "true"},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "0"}},
		},
		Resources: container.Resources{Memory: s.cfg.MemoryBytes},
	}

	id, err := s.rt.ContainerCreate(ctx, cfg, hostCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	baseURL, err := s.start(ctx, id)
	if err != nil {
		s.remove(id)
		return nil, err
	}

	slog.Debug("sandbox container ready", "container", name, "url", baseURL)

	c := remote.NewClient(baseURL, remote.WithExecTimeout(s.cfg.ExecTimeout))
	return c.Dedicated(name, func(ctx context.Context) error {
		if err := s.rt.ContainerRemove(ctx, id); err != nil {
			return fmt.Errorf("remove container %s: %w", name, err)
		}
		return nil
	}), nil
}

func (s *Sandbox) start(ctx context.Context, id string) (string, error) {
	if err := s.rt.ContainerStart(ctx, id); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	info, err := s.rt.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}
	hostPort, err := mappedPort(info)
	if err != nil {
		return "", err
	}

	baseURL := "http://127.0.0.1:" + hostPort
	if err := waitForHealth(ctx, remote.NewClient(baseURL), s.cfg.HealthTimeout); err != nil {
		return "", err
	}
	return baseURL, nil
}

// remove force-removes a container that never became an environment.
func (s *Sandbox) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.rt.ContainerRemove(ctx, id); err != nil {
		slog.Warn("failed to remove sandbox container", "container", id, "error", err.Error())
	}
}

func mappedPort(info container.InspectResponse) (string, error) {
	if info.NetworkSettings == nil {
		return "", errors.New("container has no network settings")
	}
	bindings := info.NetworkSettings.Ports[nat.Port(ServerPort+"/tcp")]
	if len(bindings) > 0 && bindings[0].HostPort != "" {
		return bindings[0].HostPort, nil
	}
	return "", errors.New("container running but port not mapped")
}

func waitForHealth(ctx context.Context, c *remote.Client, timeout time.Duration) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("timeout waiting for sandbox health (waited %s)", timeout)
		case <-ticker.C:
			if err := c.Health(timeoutCtx); err == nil {
				return nil
			}
		}
	}
}

// dockerRuntime adapts the Docker client to containerRuntime.
type dockerRuntime struct {
	cli *client.Client
}

func (d *dockerRuntime) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *dockerRuntime) ContainerStart(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (d *dockerRuntime) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	return d.cli.ContainerInspect(ctx, id)
}

func (d *dockerRuntime) ContainerRemove(ctx context.Context, id string) error {
	return d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (d *dockerRuntime) Close() error {
	return d.cli.Close()
}

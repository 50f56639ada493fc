package runtime

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"
)

// DockerRuntime implements Runtime against the Docker Engine API.
type DockerRuntime struct {
	client client.APIClient
}

// NewDockerRuntime creates a Docker-backed runtime. An empty socket uses the
// environment defaults (DOCKER_HOST etc.).
func NewDockerRuntime(socket string) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if socket != "" {
		opts = append(opts, client.WithHost("unix://"+socket))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &DockerRuntime{client: cli}, nil
}

// NewDockerRuntimeWithClient wraps an existing API client.
func NewDockerRuntimeWithClient(cli client.APIClient) *DockerRuntime {
	return &DockerRuntime{client: cli}
}

// Create creates a new container from the given spec.
func (d *DockerRuntime) Create(ctx context.Context, spec CreateSpec) (string, error) {
	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)
	for containerPort, binding := range spec.Ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposedPorts[port] = struct{}{}
		portBindings[port] = []nat.PortBinding{
			{
				HostIP:   binding.HostIP,
				HostPort: strconv.Itoa(binding.HostPort),
			},
		}
	}

	var binds []string
	for hostPath, volume := range spec.Volumes {
		bind := hostPath + ":" + volume.Bind
		if volume.Mode != "" {
			bind += ":" + volume.Mode
		}
		binds = append(binds, bind)
	}

	var resources container.Resources
	if spec.MemLimit != "" {
		memBytes, err := units.RAMInBytes(spec.MemLimit)
		if err != nil {
			return "", fmt.Errorf("invalid memory limit %q: %w", spec.MemLimit, err)
		}
		resources.Memory = memBytes
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		WorkingDir:   spec.WorkingDir,
		Env:          spec.Env,
		Entrypoint:   spec.Entrypoint,
		ExposedPorts: exposedPorts,
		Labels:       spec.Labels,
		Tty:          false,
	}

	hostConfig := &container.HostConfig{
		Binds:        binds,
		PortBindings: portBindings,
		ExtraHosts:   spec.ExtraHosts,
		AutoRemove:   spec.AutoRemove,
		Resources:    resources,
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", translateErr(err))
	}

	log.Debug("container created", "id", resp.ID, "image", spec.Image)
	return resp.ID, nil
}

// Inspect returns the engine-reported state of a container.
func (d *DockerRuntime) Inspect(ctx context.Context, id string) (ContainerInfo, error) {
	resp, err := d.client.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerInfo{}, translateErr(err)
	}

	info := ContainerInfo{ID: resp.ID}
	if resp.State != nil {
		info.Status = ContainerStatus(resp.State.Status)
	}
	return info, nil
}

// Start starts a created container.
func (d *DockerRuntime) Start(ctx context.Context, id string) error {
	if err := d.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", id, translateErr(err))
	}

	log.Debug("container started", "id", id)
	return nil
}

// Stop stops a running container.
func (d *DockerRuntime) Stop(ctx context.Context, id string, timeout *time.Duration) error {
	var opts container.StopOptions
	if timeout != nil {
		seconds := int(timeout.Seconds())
		opts.Timeout = &seconds
	}

	if err := d.client.ContainerStop(ctx, id, opts); err != nil {
		return translateErr(err)
	}

	log.Debug("container stopped", "id", id)
	return nil
}

// Remove removes a container.
func (d *DockerRuntime) Remove(ctx context.Context, id string, force bool) error {
	if err := d.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		return translateErr(err)
	}

	log.Debug("container removed", "id", id, "force", force)
	return nil
}

// Attach returns the container's multiplexed output stream, logs included,
// followed until the container exits.
func (d *DockerRuntime) Attach(ctx context.Context, id string) (io.ReadCloser, error) {
	stream, err := d.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container %s: %w", id, translateErr(err))
	}

	return stream, nil
}

// CopyFrom returns a tar archive of the given path inside the container.
func (d *DockerRuntime) CopyFrom(ctx context.Context, id string, path string) (io.ReadCloser, error) {
	archive, _, err := d.client.CopyFromContainer(ctx, id, path)
	if err != nil {
		return nil, fmt.Errorf("failed to copy %s from container %s: %w", path, id, translateErr(err))
	}

	return archive, nil
}

// ConnectNetwork attaches a container to a pre-existing network.
func (d *DockerRuntime) ConnectNetwork(ctx context.Context, networkID string, containerID string) error {
	if err := d.client.NetworkConnect(ctx, networkID, containerID, nil); err != nil {
		return fmt.Errorf("failed to connect container %s to network %s: %w", containerID, networkID, translateErr(err))
	}

	log.Debug("container connected to network", "id", containerID, "network", networkID)
	return nil
}

// translateErr classifies engine errors into the facade sentinels. This is
// the only place engine error text is inspected.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case cerrdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case isRemovalInProgress(err):
		return fmt.Errorf("%w: %v", ErrRemovalInProgress, err)
	case isPortInUse(err):
		return fmt.Errorf("%w: %v", ErrPortInUse, err)
	default:
		return err
	}
}

func isRemovalInProgress(err error) bool {
	return cerrdefs.IsConflict(err) && strings.Contains(err.Error(), "is already in progress")
}

func isPortInUse(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "port is already allocated") ||
		strings.Contains(msg, "address already in use")
}

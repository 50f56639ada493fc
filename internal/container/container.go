// Package container manages the lifecycle of one ephemeral container used
// to run a single piece of user code: create it from an image with the
// right mounts and ports, start it, feed it an invocation, collect its
// output and tear it down.
package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"funcbox/internal/invoke"
	"funcbox/internal/runtime"
	"funcbox/internal/streamio"
)

// RapidPortContainer is the fixed in-container port of the runtime
// interface emulator the invocation protocol talks to.
const RapidPortContainer = 8080

// HostNetworkID is the network identifier sentinel for host networking.
// Containers with this network ID are not attached to any named network.
const HostNetworkID = "host"

const defaultHostInterface = "127.0.0.1"

var (
	// ErrAlreadyCreated indicates Create was called on an entity that
	// already owns a container. Programming error, not retryable.
	ErrAlreadyCreated = errors.New("container is already created")
	// ErrNotCreated indicates an operation that requires an existing
	// container was called before Create.
	ErrNotCreated = errors.New("container is not created")
	// ErrInputNotSupported indicates start-time input injection was
	// requested, which containers do not support.
	ErrInputNotSupported = errors.New("passing input through container STDIN is not supported")
)

// ExecContext distinguishes what the container is being run for. Invoke
// containers additionally mount resolved symlinks so that hot-reload style
// setups see real content instead of dangling links.
type ExecContext int

// Execution contexts.
const (
	ExecContextBuild ExecContext = iota
	ExecContextInvoke
)

// Spec holds the immutable creation parameters of a container. Construct
// one per invocation attempt.
type Spec struct {
	Image      string
	Cmd        []string
	WorkingDir string
	// HostDir is the host source directory bind-mounted at WorkingDir.
	HostDir string
	// MemoryLimitMB caps container memory; zero means unlimited.
	MemoryLimitMB int
	// ExposedPorts maps container ports to host ports, in addition to the
	// always-exposed control port.
	ExposedPorts map[int]int
	Entrypoint   []string
	EnvVars      map[string]string
	// AdditionalVolumes maps extra host paths to container bind specs.
	AdditionalVolumes map[string]runtime.VolumeSpec
	// ContainerHost is the host the invoke endpoint is reached on.
	// Defaults to localhost.
	ContainerHost string
	// ContainerHostInterface is the interface exposed ports bind to.
	// Defaults to 127.0.0.1.
	ContainerHostInterface string
	// ConnectionTimeout bounds the socket-readiness wait before invoking.
	// Zero uses the package default.
	ConnectionTimeout time.Duration
	// PathStyle declares the syntax of host-side mount paths.
	PathStyle PathStyle

	// MountWithWrite switches the working directory mount from read-only
	// to a writable host temp directory, for code that mutates its own
	// tree. HostTmpDir must be set when MountWithWrite is true; the
	// directory is created before start and removed after delete.
	MountWithWrite bool
	HostTmpDir     string

	// Engine passthrough options.
	Labels     map[string]string
	ExtraHosts []string
	AutoRemove bool
}

// Container is one ephemeral execution unit. Lifecycle operations on a
// single Container must be called sequentially by its owner; distinct
// Containers run fully concurrently.
type Container struct {
	spec Spec
	rt   runtime.Runtime

	id        string
	networkID string

	// rapidPortHost is the host-side port of the control port mapping.
	rapidPortHost int
}

// New builds a Container around the given runtime and spec, reserving a
// free host port for the control port mapping.
func New(rt runtime.Runtime, spec Spec) (*Container, error) {
	if spec.ContainerHost == "" {
		spec.ContainerHost = "localhost"
	}
	if spec.ContainerHostInterface == "" {
		spec.ContainerHostInterface = defaultHostInterface
	}
	if spec.MountWithWrite && spec.HostTmpDir == "" {
		return nil, errors.New("writable mount requested without a host temp directory")
	}

	port, err := findFreePort(spec.ContainerHostInterface)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve a host port for the control port: %w", err)
	}

	return &Container{
		spec:          spec,
		rt:            rt,
		rapidPortHost: port,
	}, nil
}

// ID returns the engine-assigned container ID, empty before Create and
// after a successful Delete.
func (c *Container) ID() string { return c.id }

// Image returns the image the container runs.
func (c *Container) Image() string { return c.spec.Image }

// RapidPortHost returns the host-side port of the control port mapping.
func (c *Container) RapidPortHost() int { return c.rapidPortHost }

// SetNetworkID declares the network the container is attached to on
// create. HostNetworkID selects host networking (no attach call).
func (c *Container) SetNetworkID(networkID string) { c.networkID = networkID }

// NetworkID returns the declared network identifier.
func (c *Container) NetworkID() string { return c.networkID }

// HostTmpDir returns the writable-mount temp directory, if any.
func (c *Container) HostTmpDir() string { return c.spec.HostTmpDir }

// Create creates the container. It is an error to call Create on an entity
// that already owns a container; delete it first.
func (c *Container) Create(ctx context.Context, execCtx ExecContext) (string, error) {
	if c.IsCreated(ctx) {
		return "", fmt.Errorf("%w (id %s)", ErrAlreadyCreated, c.id)
	}

	spec := runtime.CreateSpec{
		Image:      c.spec.Image,
		Cmd:        c.spec.Cmd,
		WorkingDir: c.spec.WorkingDir,
		Volumes:    c.buildVolumes(execCtx),
		Ports:      c.buildPorts(),
		Entrypoint: c.spec.Entrypoint,
		Env:        flattenEnv(c.spec.EnvVars),
		Labels:     c.spec.Labels,
		ExtraHosts: c.spec.ExtraHosts,
		AutoRemove: c.spec.AutoRemove,
	}
	if c.spec.MemoryLimitMB > 0 {
		spec.MemLimit = fmt.Sprintf("%dm", c.spec.MemoryLimitMB)
	}

	id, err := c.rt.Create(ctx, spec)
	if err != nil {
		return "", err
	}
	c.id = id

	if c.networkID != "" && c.networkID != HostNetworkID {
		if err := c.rt.ConnectNetwork(ctx, c.networkID, id); err != nil {
			return "", err
		}
	}

	log.Debug("container created", "id", id, "image", c.spec.Image, "rapid_port_host", c.rapidPortHost)
	return id, nil
}

// buildVolumes assembles the create-time volume set: the primary working
// directory mount, caller-declared additional volumes, and, for invoke
// containers, the resolved top-level symlinks of the host directory.
// Later entries overwrite earlier ones for the same host path.
func (c *Container) buildVolumes(execCtx ExecContext) map[string]runtime.VolumeSpec {
	mode := "ro,delegated"
	hostSource := c.spec.HostDir
	if c.spec.MountWithWrite {
		mode = "rw,delegated"
		hostSource = c.spec.HostTmpDir
	}

	volumes := map[string]runtime.VolumeSpec{
		translateMountKey(c.spec.PathStyle, hostSource): {Bind: c.spec.WorkingDir, Mode: mode},
	}

	for hostPath, vol := range c.spec.AdditionalVolumes {
		volumes[translateMountKey(c.spec.PathStyle, hostPath)] = vol
	}

	if execCtx == ExecContextInvoke {
		for hostPath, vol := range mappedSymlinkVolumes(c.spec.HostDir, c.spec.WorkingDir, mode) {
			volumes[hostPath] = vol
		}
	}

	return volumes
}

// buildPorts assembles the caller-declared port mappings plus the fixed
// control port, all bound to the configured host interface.
func (c *Container) buildPorts() map[int]runtime.PortBinding {
	ports := make(map[int]runtime.PortBinding, len(c.spec.ExposedPorts)+1)
	for containerPort, hostPort := range c.spec.ExposedPorts {
		ports[containerPort] = runtime.PortBinding{
			HostIP:   c.spec.ContainerHostInterface,
			HostPort: hostPort,
		}
	}
	ports[RapidPortContainer] = runtime.PortBinding{
		HostIP:   c.spec.ContainerHostInterface,
		HostPort: c.rapidPortHost,
	}
	return ports
}

// Start starts the created container. Input injection is not supported;
// passing input is a caller error. Engine failures, including a declared
// port already being bound on the host, propagate unmodified — retrying is
// an invocation-layer concern.
func (c *Container) Start(ctx context.Context, input []byte) error {
	if input != nil {
		return ErrInputNotSupported
	}
	if !c.IsCreated(ctx) {
		return fmt.Errorf("cannot start: %w", ErrNotCreated)
	}

	if c.spec.MountWithWrite {
		if _, err := os.Stat(c.spec.HostTmpDir); os.IsNotExist(err) {
			if err := os.MkdirAll(c.spec.HostTmpDir, 0o755); err != nil {
				return fmt.Errorf("failed to create host temp directory %s: %w", c.spec.HostTmpDir, err)
			}
		}
	}

	return c.rt.Start(ctx, c.id)
}

// Stop stops the container if it exists. A nil timeout uses the engine
// default grace period. Already-gone containers are a silent no-op; the ID
// is retained either way.
func (c *Container) Stop(ctx context.Context, timeout *time.Duration) error {
	if !c.IsCreated(ctx) {
		log.Debug("skipping stop, container not created")
		return nil
	}

	if err := c.rt.Stop(ctx, c.id, timeout); err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			log.Debug("container already gone on stop", "id", c.id)
			return nil
		}
		return err
	}
	return nil
}

// Delete force-removes the container. "Not found" and "removal already in
// progress" count as success. On success the ID is cleared and the
// writable-mount temp directory, if any, is removed from the host. On a
// genuine engine error the ID is retained so the failure can be inspected
// and the delete retried.
func (c *Container) Delete(ctx context.Context) error {
	if !c.IsCreated(ctx) {
		log.Debug("skipping delete, container not created")
		return nil
	}

	if err := c.rt.Remove(ctx, c.id, true); err != nil {
		switch {
		case errors.Is(err, runtime.ErrNotFound):
			log.Debug("container already gone on delete", "id", c.id)
		case errors.Is(err, runtime.ErrRemovalInProgress):
			log.Debug("container removal already in progress", "id", c.id)
		default:
			return err
		}
	}
	c.id = ""

	if c.spec.MountWithWrite && c.spec.HostTmpDir != "" {
		if _, err := os.Stat(c.spec.HostTmpDir); err == nil {
			if err := os.RemoveAll(c.spec.HostTmpDir); err != nil {
				return fmt.Errorf("failed to remove host temp directory %s: %w", c.spec.HostTmpDir, err)
			}
		}
	}
	return nil
}

// IsCreated reports whether the entity owns a container that currently
// exists in the engine.
func (c *Container) IsCreated(ctx context.Context) bool {
	info, ok := c.lookup(ctx)
	return ok && info.ID != ""
}

// IsRunning reports whether the container currently exists and is running.
func (c *Container) IsRunning(ctx context.Context) bool {
	info, ok := c.lookup(ctx)
	return ok && info.Status == runtime.StatusRunning
}

func (c *Container) lookup(ctx context.Context) (runtime.ContainerInfo, bool) {
	if c.id == "" {
		return runtime.ContainerInfo{}, false
	}

	info, err := c.rt.Inspect(ctx, c.id)
	if err != nil {
		if !errors.Is(err, runtime.ErrNotFound) {
			log.Warn("container lookup failed", "id", c.id, "error", err)
		}
		return runtime.ContainerInfo{}, false
	}
	if info.ID == "" {
		info.ID = c.id
	}
	return info, true
}

// WaitForLogs drains the container's output stream into the given sinks
// until it ends. A nil sink discards its channel; with both sinks nil the
// call is a no-op. The container must currently exist.
func (c *Container) WaitForLogs(ctx context.Context, stdout, stderr *streamio.StreamWriter) error {
	if stdout == nil && stderr == nil {
		log.Debug("no sinks supplied, skipping log drain")
		return nil
	}
	if !c.IsCreated(ctx) {
		return fmt.Errorf("container does not exist, cannot fetch logs: %w", ErrNotCreated)
	}

	stream, err := c.rt.Attach(ctx, c.id)
	if err != nil {
		return err
	}
	defer stream.Close()

	streamio.WriteContainerOutput(streamio.NewDemuxReader(stream), stdout, stderr)
	return nil
}

// WaitForResult feeds the invocation event to the container's runtime
// endpoint and forwards the classified response to the stdout sink, while
// draining container output into both sinks concurrently. startTimer, when
// non-nil, is called immediately before waiting begins and its cancel
// handle is released on every exit path.
func (c *Container) WaitForResult(ctx context.Context, event []byte, fullPath string, stdout, stderr *streamio.StreamWriter, startTimer invoke.TimerFunc) error {
	if !c.IsCreated(ctx) {
		return fmt.Errorf("container does not exist, cannot invoke: %w", ErrNotCreated)
	}

	if startTimer != nil {
		cancel := startTimer()
		defer cancel()
	}

	// Drain logs independently of the request/response cycle so container
	// diagnostics are captured regardless of invocation outcome. Closing
	// the stream on return unblocks the goroutine.
	stream, err := c.rt.Attach(ctx, c.id)
	if err != nil {
		return err
	}
	defer stream.Close()
	go streamio.WriteContainerOutput(streamio.NewDemuxReader(stream), stdout, stderr)

	client := invoke.NewClient(c.spec.ContainerHost, c.rapidPortHost, c.spec.ConnectionTimeout)
	return client.WaitForResult(ctx, event, path.Base(fullPath), stdout)
}

// flattenEnv converts an environment map to the engine's KEY=VALUE form,
// sorted for deterministic create calls.
func flattenEnv(envVars map[string]string) []string {
	if len(envVars) == 0 {
		return nil
	}

	env := make([]string, 0, len(envVars))
	for key, value := range envVars {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)
	return env
}

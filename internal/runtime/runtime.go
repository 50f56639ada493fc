// Package runtime abstracts the container engine operations needed to run
// a single sandboxed invocation: create, inspect, start, stop, remove,
// output attach, archive copy and network attachment.
package runtime

import (
	"context"
	"errors"
	"io"
	"time"
)

// ContainerStatus represents the state of a container as reported by the
// engine.
type ContainerStatus string

// Well-known container statuses returned by Runtime.Inspect.
const (
	StatusCreated ContainerStatus = "created"
	StatusRunning ContainerStatus = "running"
	StatusExited  ContainerStatus = "exited"
)

var (
	// ErrNotFound indicates the referenced container does not exist in the
	// engine.
	ErrNotFound = errors.New("container not found")
	// ErrRemovalInProgress indicates the engine is already removing the
	// container.
	ErrRemovalInProgress = errors.New("container removal already in progress")
	// ErrPortInUse indicates a declared host port is already bound.
	ErrPortInUse = errors.New("host port already in use")
)

// VolumeSpec describes the container side of a bind mount.
type VolumeSpec struct {
	Bind string
	Mode string
}

// PortBinding maps a container port to a host interface and port.
type PortBinding struct {
	HostIP   string
	HostPort int
}

// CreateSpec holds the parameters for a container create call.
type CreateSpec struct {
	Image      string
	Cmd        []string
	WorkingDir string
	// Volumes maps host paths to their container bind specs.
	Volumes map[string]VolumeSpec
	// Ports maps container ports to host bindings.
	Ports      map[int]PortBinding
	Entrypoint []string
	// MemLimit is the memory limit in engine syntax, e.g. "128m". Empty
	// means unlimited.
	MemLimit string
	// Env holds KEY=VALUE pairs.
	Env []string

	// Engine passthrough options.
	Labels     map[string]string
	ExtraHosts []string
	AutoRemove bool
}

// ContainerInfo is the subset of engine-reported container state consumed
// by the lifecycle layer.
type ContainerInfo struct {
	ID     string
	Status ContainerStatus
}

// Runtime is the narrow contract against the container engine. Errors
// crossing this boundary are classified: callers match the sentinel errors
// above with errors.Is and never inspect engine error text.
type Runtime interface {
	// Create creates a container and returns its engine-assigned ID.
	Create(ctx context.Context, spec CreateSpec) (string, error)

	// Inspect returns the current state of a container.
	Inspect(ctx context.Context, id string) (ContainerInfo, error)

	// Start starts a created container.
	Start(ctx context.Context, id string) error

	// Stop stops a running container. A nil timeout uses the engine
	// default grace period.
	Stop(ctx context.Context, id string, timeout *time.Duration) error

	// Remove removes a container.
	Remove(ctx context.Context, id string, force bool) error

	// Attach returns the container's multiplexed stdout/stderr stream,
	// including output emitted before the call, following until the
	// container exits.
	Attach(ctx context.Context, id string) (io.ReadCloser, error)

	// CopyFrom returns a tar archive of the given path inside the
	// container.
	CopyFrom(ctx context.Context, id string, path string) (io.ReadCloser, error)

	// ConnectNetwork attaches a container to a pre-existing network.
	ConnectNetwork(ctx context.Context, networkID string, containerID string) error
}

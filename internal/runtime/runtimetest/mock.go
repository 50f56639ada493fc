// Package runtimetest provides test doubles for the runtime.Runtime
// interface.
package runtimetest

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"funcbox/internal/runtime"
)

// Compile-time assertion that MockRuntime implements runtime.Runtime.
var _ runtime.Runtime = (*MockRuntime)(nil)

// MockRuntime is a testify mock for the runtime.Runtime interface.
type MockRuntime struct {
	mock.Mock
}

// Create creates a container and returns its engine-assigned ID.
func (m *MockRuntime) Create(ctx context.Context, spec runtime.CreateSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

// Inspect returns the current state of a container.
func (m *MockRuntime) Inspect(ctx context.Context, id string) (runtime.ContainerInfo, error) {
	args := m.Called(ctx, id)
	info, _ := args.Get(0).(runtime.ContainerInfo)
	return info, args.Error(1)
}

// Start starts a created container.
func (m *MockRuntime) Start(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// Stop stops a running container.
func (m *MockRuntime) Stop(ctx context.Context, id string, timeout *time.Duration) error {
	return m.Called(ctx, id, timeout).Error(0)
}

// Remove removes a container.
func (m *MockRuntime) Remove(ctx context.Context, id string, force bool) error {
	return m.Called(ctx, id, force).Error(0)
}

// Attach returns the container's multiplexed output stream.
func (m *MockRuntime) Attach(ctx context.Context, id string) (io.ReadCloser, error) {
	args := m.Called(ctx, id)
	stream, _ := args.Get(0).(io.ReadCloser)
	return stream, args.Error(1)
}

// CopyFrom returns a tar archive of the given path inside the container.
func (m *MockRuntime) CopyFrom(ctx context.Context, id string, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, id, path)
	archive, _ := args.Get(0).(io.ReadCloser)
	return archive, args.Error(1)
}

// ConnectNetwork attaches a container to a pre-existing network.
func (m *MockRuntime) ConnectNetwork(ctx context.Context, networkID string, containerID string) error {
	return m.Called(ctx, networkID, containerID).Error(0)
}

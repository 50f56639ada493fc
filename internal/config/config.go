// Package config loads the funcbox tunables from config file and
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EnvContainerConnectionTimeout is the environment variable that overrides
// how long to wait for the container's invoke endpoint to accept
// connections.
const EnvContainerConnectionTimeout = "FUNCBOX_CONTAINER_CONNECTION_TIMEOUT"

// Config holds the runtime tunables.
type Config struct {
	// ContainerConnectionTimeout bounds the socket-readiness wait before
	// the first invoke attempt.
	ContainerConnectionTimeout time.Duration
	// ContainerHost is the host the invoke endpoint is reached on.
	ContainerHost string
	// ContainerHostInterface is the host interface exposed ports bind to.
	ContainerHostInterface string
	// DockerSocket optionally overrides the engine socket path. Empty
	// uses the environment defaults.
	DockerSocket string
}

// Load reads configuration with viper. Environment variables use the
// FUNCBOX_ prefix, e.g. FUNCBOX_CONTAINER_CONNECTION_TIMEOUT=30.
func Load() (*Config, error) {
	viper.SetDefault("container_connection_timeout", 20)
	viper.SetDefault("container_host", "localhost")
	viper.SetDefault("container_host_interface", "127.0.0.1")
	viper.SetDefault("docker_socket", "")

	viper.SetEnvPrefix("FUNCBOX")
	viper.AutomaticEnv()

	timeoutSecs := viper.GetInt("container_connection_timeout")
	if timeoutSecs < 0 {
		return nil, fmt.Errorf("container_connection_timeout must not be negative, got %d", timeoutSecs)
	}

	return &Config{
		ContainerConnectionTimeout: time.Duration(timeoutSecs) * time.Second,
		ContainerHost:              viper.GetString("container_host"),
		ContainerHostInterface:     viper.GetString("container_host_interface"),
		DockerSocket:               viper.GetString("docker_socket"),
	}, nil
}

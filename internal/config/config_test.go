package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.ContainerConnectionTimeout)
	assert.Equal(t, "localhost", cfg.ContainerHost)
	assert.Equal(t, "127.0.0.1", cfg.ContainerHostInterface)
	assert.Empty(t, cfg.DockerSocket)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv(EnvContainerConnectionTimeout, "30")
	t.Setenv("FUNCBOX_CONTAINER_HOST", "host.docker.internal")
	t.Setenv("FUNCBOX_CONTAINER_HOST_INTERFACE", "0.0.0.0")
	t.Setenv("FUNCBOX_DOCKER_SOCKET", "/var/run/docker.sock")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ContainerConnectionTimeout)
	assert.Equal(t, "host.docker.internal", cfg.ContainerHost)
	assert.Equal(t, "0.0.0.0", cfg.ContainerHostInterface)
	assert.Equal(t, "/var/run/docker.sock", cfg.DockerSocket)
}

func TestLoad_RejectsNegativeTimeout(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv(EnvContainerConnectionTimeout, "-1")

	_, err := Load()
	assert.ErrorContains(t, err, "must not be negative")
}

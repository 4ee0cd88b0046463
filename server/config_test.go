package server

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Ensure NewConfig properly parses config files.
func TestNewConfigFromFile(t *testing.T) {
	config, err := NewConfig("configs/full.yaml")
	require.NoError(t, err)

	require.Equal(t, "relay-1", config.ServerID)
	require.Equal(t, "127.0.0.1", config.Host)
	require.Equal(t, 9100, config.Port)
	require.Equal(t, 32, config.Backlog)
	require.Equal(t, 2048, config.MaxEnvelopeBytes)
	require.Equal(t, 5*time.Second, config.HandlerTimeout)
	require.Equal(t, 16, config.KeyCacheSize)
	require.Equal(t, uint32(log.DebugLevel), config.LogLevel)
	require.True(t, config.LogSilent)
	require.Equal(t, "/tmp/cipherrelay.pid", config.PIDFile)
	require.Equal(t, "127.0.0.1:9101", config.MetricsListen)
	require.Equal(t, 9102, config.HealthPort)
}

// Ensure that default config is loaded.
func TestNewConfigDefault(t *testing.T) {
	config, err := NewConfig("")
	require.NoError(t, err)
	require.NotEmpty(t, config.ServerID)
	require.Equal(t, DefaultHost, config.Host)
	require.Equal(t, DefaultPort, config.Port)
	require.Equal(t, 10, config.Backlog)
	require.Equal(t, 1024, config.MaxEnvelopeBytes)
	require.Equal(t, 30*time.Second, config.HandlerTimeout)
	require.Equal(t, 128, config.KeyCacheSize)
	require.Equal(t, uint32(log.InfoLevel), config.LogLevel)
	require.Equal(t, "", config.MetricsListen)
	require.Equal(t, 0, config.HealthPort)
}

// Ensure that both config file and default configs are loaded.
func TestNewConfigDefaultAndFile(t *testing.T) {
	config, err := NewConfig("configs/simple.yaml")
	require.NoError(t, err)
	// Ensure custom configs are loaded
	require.Equal(t, 9200, config.Port)
	require.Equal(t, 4096, config.MaxEnvelopeBytes)

	// Ensure also default values are loaded at the same time
	require.Equal(t, DefaultHost, config.Host)
	require.Equal(t, 10, config.Backlog)
	require.Equal(t, 128, config.KeyCacheSize)
}

// Ensure error is raised when given config file not found.
func TestNewConfigFileNotFound(t *testing.T) {
	_, err := NewConfig("somefile.yaml")
	require.Error(t, err)
}

// Ensure an error is returned when there is an unknown setting in the file.
func TestNewConfigUnknownSetting(t *testing.T) {
	_, err := NewConfig("configs/unknown-setting.yaml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "clustering.raft.bootstrap.seed")
}

// Ensure invalid values are rejected.
func TestNewConfigInvalidValues(t *testing.T) {
	for _, file := range []string{
		"configs/invalid-log-level.yaml",
		"configs/invalid-envelope-size.yaml",
		"configs/invalid-handler-timeout.yaml",
	} {
		_, err := NewConfig(file)
		require.Error(t, err, file)
	}
}

// Ensure envelope.max.bytes is capped so handler buffers stay bounded.
func TestNewConfigEnvelopeSizeLimit(t *testing.T) {
	for _, file := range []string{
		"configs/oversized-envelope-size.yaml",
		"configs/overflow-envelope-size.yaml",
	} {
		_, err := NewConfig(file)
		require.Error(t, err, file)
		require.Contains(t, err.Error(), "exceeds the limit of 1.0 MiB", file)
	}

	config, err := NewConfig("configs/max-envelope-size.yaml")
	require.NoError(t, err)
	require.Equal(t, 1<<20, config.MaxEnvelopeBytes)
}

func TestGetLogLevel(t *testing.T) {
	level, err := GetLogLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, uint32(log.DebugLevel), level)

	level, err = GetLogLevel("warn")
	require.NoError(t, err)
	require.Equal(t, uint32(log.WarnLevel), level)

	_, err = GetLogLevel("trace")
	require.Error(t, err)
}

func TestConfigString(t *testing.T) {
	config := NewDefaultConfig()
	require.Equal(t, "[Backlog: 10, Max envelope: 1.0 KiB, Handler timeout: 30 seconds, Key cache: 128 keys]",
		config.String())

	config.HandlerTimeout = 0
	config.KeyCacheSize = 0
	require.Contains(t, config.String(), "Handler timeout: none")
	require.Contains(t, config.String(), "Key cache: disabled")
}

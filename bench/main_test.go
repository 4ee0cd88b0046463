package main

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cipherrelay/cipherrelay/bench/common"
	"github.com/cipherrelay/cipherrelay/client"
	"github.com/cipherrelay/cipherrelay/server"
	"github.com/cipherrelay/cipherrelay/server/logger"
)

// Ensure the benchmark drives many concurrent clients through a live server
// and every round trip verifies.
func TestRunBenchmark(t *testing.T) {
	config := server.NewDefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 0
	config.LogSilent = true
	s, err := server.RunServerWithConfig(config)
	require.NoError(t, err)
	defer s.Stop()

	_, portStr, err := net.SplitHostPort(s.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	log := logger.NewLogger(0)
	log.Silent(true)
	relay, err := client.New(client.DefaultConfig("127.0.0.1", port), log)
	require.NoError(t, err)

	const clients, requests = 12, 5
	prepared := common.PreGenerateRequests(clients, requests, 64)
	stats := common.NewStats()
	stats.Start()
	runBenchmark(context.Background(), relay, prepared, stats, time.Hour)
	stats.Stop()

	require.Equal(t, int64(clients*requests), stats.Requests())
	require.Equal(t, int64(clients*requests*64), stats.Bytes())
	require.Equal(t, int64(0), stats.Errors())
	require.Equal(t, int64(0), stats.Mismatches())
	require.Equal(t, int64(clients*requests), stats.LatencyCount())
}

// Ensure failed round trips are counted as errors.
func TestRunBenchmarkErrors(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	log := logger.NewLogger(0)
	log.Silent(true)
	config := client.DefaultConfig("127.0.0.1", port)
	config.Timeout = time.Second
	relay, err := client.New(config, log)
	require.NoError(t, err)

	stats := common.NewStats()
	runBenchmark(context.Background(), relay, common.PreGenerateRequests(2, 2, 8), stats, time.Hour)
	require.Equal(t, int64(4), stats.Errors())
	require.Equal(t, int64(0), stats.Requests())
}

package server

import (
	"fmt"
	"io/ioutil"
	"net"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Used by both testing.B and testing.T so need to use
// a common interface: tLogger
type tLogger interface {
	Fatalf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

func stackFatalf(t tLogger, f string, args ...interface{}) {
	lines := make([]string, 0, 32)
	msg := fmt.Sprintf(f, args...)
	lines = append(lines, msg)

	// Generate the Stack of callers:
	for i := 1; true; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		msg := fmt.Sprintf("%d - %s:%d", i, file, line)
		lines = append(lines, msg)
	}

	t.Fatalf("%s", strings.Join(lines, "\n"))
}

func getTestConfig() *Config {
	config := NewDefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 0
	config.LogLevel = uint32(log.DebugLevel)
	config.LogSilent = true
	config.HandlerTimeout = 5 * time.Second
	return config
}

func runServerWithConfig(t *testing.T, config *Config) *Server {
	server, err := RunServerWithConfig(config)
	require.NoError(t, err)
	return server
}

// exchange opens a raw connection to the server, writes request, half-closes
// if asked to and returns everything the server sends before closing.
func exchange(t *testing.T, s *Server, request []byte, closeWrite bool) []byte {
	conn, err := net.DialTimeout("tcp", s.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	if len(request) > 0 {
		_, err = conn.Write(request)
		require.NoError(t, err)
	}
	if closeWrite {
		require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	}
	resp, err := ioutil.ReadAll(conn)
	if err != nil {
		// A reset after an oversized request still counts as no response.
		return nil
	}
	return resp
}

func waitForNoInFlight(t *testing.T, s *Server, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.InFlight() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	stackFatalf(t, "%d handlers still in flight", s.InFlight())
}

// gatherHandled returns the number of reaped handlers per result.
func gatherHandled(t *testing.T, s *Server) map[string]int {
	results := make(map[string]int)
	for _, result := range []string{resultOK, resultDecodeError, resultCipherError, resultSocketError, resultPanic} {
		results[result] = int(testutil.ToFloat64(s.metrics.handled.WithLabelValues(result)))
	}
	return results
}

package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/cipherrelay/cipherrelay/server/health"
	"github.com/cipherrelay/cipherrelay/server/logger"
	"github.com/cipherrelay/cipherrelay/server/socket"
)

// Server accepts relay connections and encrypts one envelope per connection.
// Each accepted connection is served by its own handler goroutine so a slow,
// failing or panicking client cannot affect the accept loop or other
// connections.
type Server struct {
	config        *Config
	listener      *socket.Listener
	logger        logger.Logger
	schedules     *scheduleCache
	metrics       *metrics
	metricsServer *http.Server
	metricsListen net.Addr
	health        *grpc.Server
	reaper        *reaper
	shutdownCh    chan struct{}
	acceptDone    chan struct{}
	acceptErr     error
	startTime     time.Time
	mu            sync.RWMutex
	shutdown      bool
	running       bool
	goroutineWait sync.WaitGroup

	// handlerFault is copied into every new handler. Only tests set it.
	handlerFault func(connState)
}

// New creates a Server from the given Config. The server does not listen
// until Start is called.
func New(config *Config) *Server {
	log := logger.NewLogger(config.LogLevel)
	if config.LogSilent {
		log.Silent(true)
	}
	s := &Server{
		config:     config,
		logger:     log,
		metrics:    newMetrics(),
		shutdownCh: make(chan struct{}),
		acceptDone: make(chan struct{}),
	}
	s.reaper = newReaper(s)
	return s
}

// RunServerWithConfig creates and starts a Server with the given Config.
func RunServerWithConfig(config *Config) (*Server, error) {
	server := New(config)
	if err := server.Start(); err != nil {
		return nil, err
	}
	return server, nil
}

// Start binds the listening socket and begins accepting connections. It
// returns once the accept loop is running.
func (s *Server) Start() error {
	schedules, err := newScheduleCache(s.config.KeyCacheSize, s.metrics)
	if err != nil {
		return errors.Wrap(err, "failed to create key schedule cache")
	}
	s.schedules = schedules

	ep, err := socket.Resolve(s.config.Host, strconv.Itoa(s.config.Port))
	if err != nil {
		return err
	}
	l, err := socket.Listen(ep, s.config.Backlog)
	if err != nil {
		return errors.Wrap(err, "failed starting listener")
	}
	s.listener = l

	s.logger.Infof("Server ID: %s", s.config.ServerID)
	s.logger.Infof("Connection handling: %s", s.config)
	s.logger.Infof("Starting server on %s (%s)...", l.Addr(), ep.Family)

	if s.config.PIDFile != "" {
		if err := writePIDFile(s.config.PIDFile); err != nil {
			s.Stop()
			return err
		}
	}

	if s.config.MetricsListen != "" {
		if err := s.startMetrics(); err != nil {
			s.Stop()
			return errors.Wrap(err, "failed to start metrics endpoint")
		}
	}

	if s.config.HealthPort > 0 {
		if err := s.startHealth(); err != nil {
			s.Stop()
			return errors.Wrap(err, "failed to start health service")
		}
	}

	s.handleSignals()

	s.mu.Lock()
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()
	health.SetServing()

	s.startGoroutine(s.reaper.run)
	s.startGoroutine(s.acceptLoop)
	s.logger.Info("Server waiting for connections...")
	return nil
}

// acceptLoop accepts connections and hands each one to a new handler
// goroutine. It never waits on a handler.
func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if err == socket.ErrListenerClosed || s.isShutdown() {
				return
			}
			s.logger.Errorf("Critical accept failure: %v", err)
			s.acceptErr = errors.Wrap(err, "accept failed")
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			health.SetNotServing()
			return
		}
		s.logger.Debugf("[%s] Accepted connection from %s", conn.ID(), conn.RemoteAddr())
		s.metrics.accepted.Inc()

		h := newHandler(s, conn)
		s.reaper.track(h)
		go h.run()
	}
}

func (s *Server) startMetrics() error {
	l, err := net.Listen("tcp", s.config.MetricsListen)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.handler())
	s.metricsServer = &http.Server{Handler: mux}
	s.metricsListen = l.Addr()
	s.logger.Infof("Serving metrics on %s", l.Addr())
	srv := s.metricsServer
	s.startGoroutine(func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Metrics endpoint failed: %v", err)
		}
	})
	return nil
}

func (s *Server) startHealth() error {
	l, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.HealthPort)))
	if err != nil {
		return err
	}
	s.health = health.NewServer(s.logger)
	s.logger.Infof("Serving health checks on %s", l.Addr())
	srv := s.health
	s.startGoroutine(func() {
		if err := srv.Serve(l); err != nil {
			s.logger.Errorf("Health service failed: %v", err)
		}
	})
	return nil
}

// Wait blocks until the accept loop exits. It returns nil if the server was
// stopped and the accept error otherwise. Wait must only be called after a
// successful Start.
func (s *Server) Wait() error {
	<-s.acceptDone
	return s.acceptErr
}

// Stop closes the listener and stops the server's background goroutines. It
// does not wait for in-flight connection handlers, which run to completion
// on their own.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.logger.Info("Shutting down...")

	close(s.shutdownCh)
	health.SetNotServing()

	if s.health != nil {
		s.health.Stop()
	}

	if s.metricsServer != nil {
		s.metricsServer.Close()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.reaper.stop()

	if s.config.PIDFile != "" {
		if err := removePIDFile(s.config.PIDFile); err != nil {
			s.logger.Warnf("Failed to remove PID file: %v", err)
		}
	}

	if s.running {
		s.logger.Infof("Served %s connections in %s",
			humanize.Comma(int64(s.reaper.reapedCount())), durafmt.Parse(time.Since(s.startTime)))
	}

	s.running = false
	s.shutdown = true
	s.mu.Unlock()

	// Wait for goroutines to stop.
	s.goroutineWait.Wait()

	return nil
}

// Addr returns the address the server is listening on, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) metricsAddr() string {
	if s.metricsListen == nil {
		return ""
	}
	return s.metricsListen.String()
}

// InFlight returns the number of connections whose handlers have not yet been
// reaped.
func (s *Server) InFlight() int {
	return s.reaper.inFlightCount()
}

// IsRunning indicates if the server is currently accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdown
}

func (s *Server) startGoroutine(f func()) {
	select {
	case <-s.shutdownCh:
		return
	default:
	}
	s.goroutineWait.Add(1)
	go func() {
		f()
		s.goroutineWait.Done()
	}()
}

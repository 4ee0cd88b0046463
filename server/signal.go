//go:build !windows

package server

import (
	"os"
	"os/signal"
	"syscall"
)

// handleSignals sets up a handler for SIGINT and SIGTERM to stop the server
// and for SIGHUP to drop cached key schedules.
func (s *Server) handleSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	// Use a naked goroutine instead of startGoroutine because this stops the
	// server which would cause a deadlock.
	go func() {
		defer signal.Stop(c)
		for {
			select {
			case sig := <-c:
				switch sig {
				case os.Interrupt, syscall.SIGTERM:
					if err := s.Stop(); err != nil {
						s.logger.Errorf("Error occurred shutting down server while handling %s: %v", sig, err)
						os.Exit(1)
					}
					os.Exit(0)

				case syscall.SIGHUP:
					n := s.schedules.len()
					s.schedules.purge()
					s.logger.Infof("Purged %d cached key schedules", n)
				}
			case <-s.shutdownCh:
				return
			}
		}
	}()
}

package server

import (
	"os"
	"os/signal"
)

// handleSignals sets up a handler for interrupts to stop the server.
func (s *Server) handleSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			s.Stop()
			os.Exit(0)
		case <-s.shutdownCh:
		}
	}()
}

//go:build !unix

package socket

import (
	"context"
	"net"
)

// listenTCP falls back to the standard listener where raw socket calls are
// unavailable. The backlog is left to the operating system.
func listenTCP(ep *Endpoint, backlog int) (*net.TCPListener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(context.Background(), ep.Network(), ep.String())
	if err != nil {
		return nil, err
	}
	return l.(*net.TCPListener), nil
}

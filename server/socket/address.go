// Package socket provides the stream socket primitives used by the relay
// client and server: literal address resolution with explicit address family
// selection, listening with an explicit backlog, and the one-shot send and
// receive operations a relay connection needs.
package socket

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

// ErrUnsupportedAddress is returned when a host and port cannot be parsed as
// an IPv4 or IPv6 socket address. It is a configuration error and should not
// be retried.
var ErrUnsupportedAddress = errors.New("invalid or unsupported address")

// Family is the address family of an Endpoint.
type Family int

const (
	// IPv4 is the AF_INET family.
	IPv4 Family = iota
	// IPv6 is the AF_INET6 family.
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Endpoint is a resolved socket address along with its address family.
type Endpoint struct {
	Family Family
	Addr   netip.AddrPort
}

// Resolve parses host and port into an Endpoint. The family is decided by the
// literal syntax of host only: host:port is tried as an IPv4 socket address
// first, then [host]:port as IPv6. No name resolution is performed.
func Resolve(host, port string) (*Endpoint, error) {
	if ap, err := netip.ParseAddrPort(host + ":" + port); err == nil && ap.Addr().Is4() {
		return &Endpoint{Family: IPv4, Addr: ap}, nil
	}
	if ap, err := netip.ParseAddrPort("[" + host + "]:" + port); err == nil && ap.Addr().Is6() {
		return &Endpoint{Family: IPv6, Addr: ap}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedAddress, "resolve %q", net.JoinHostPort(host, port))
}

// Network returns the Go network name for the endpoint's family.
func (e *Endpoint) Network() string {
	if e.Family == IPv6 {
		return "tcp6"
	}
	return "tcp4"
}

// TCPAddr returns the endpoint as a *net.TCPAddr.
func (e *Endpoint) TCPAddr() *net.TCPAddr {
	return net.TCPAddrFromAddrPort(e.Addr)
}

func (e *Endpoint) String() string {
	return e.Addr.String()
}

//go:build unix

package socket

import (
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// listenTCP builds the listening socket by hand so the address family and
// backlog are exactly the ones requested.
func listenTCP(ep *Endpoint, backlog int) (*net.TCPListener, error) {
	domain, sa, err := sockaddr(ep)
	if err != nil {
		return nil, err
	}

	syscall.ForkLock.RLock()
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}

	if err := setupListener(fd, domain, sa, backlog); err != nil {
		unix.Close(fd)
		return nil, err
	}

	f := os.NewFile(uintptr(fd), "listener")
	defer f.Close()
	l, err := net.FileListener(f)
	if err != nil {
		return nil, err
	}
	return l.(*net.TCPListener), nil
}

func setupListener(fd, domain int, sa unix.Sockaddr, backlog int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return os.NewSyscallError("setsockopt", err)
	}
	if domain == unix.AF_INET6 {
		// Keep the socket to the one family the endpoint resolved to.
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return os.NewSyscallError("setsockopt", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		return os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return os.NewSyscallError("listen", err)
	}
	return nil
}

func sockaddr(ep *Endpoint) (int, unix.Sockaddr, error) {
	port := int(ep.Addr.Port())
	if ep.Family == IPv4 {
		return unix.AF_INET, &unix.SockaddrInet4{Port: port, Addr: ep.Addr.Addr().As4()}, nil
	}
	sa := &unix.SockaddrInet6{Port: port, Addr: ep.Addr.Addr().As16()}
	if zone := ep.Addr.Addr().Zone(); zone != "" {
		ifi, err := net.InterfaceByName(zone)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "unknown zone %q", zone)
		}
		sa.ZoneId = uint32(ifi.Index)
	}
	return unix.AF_INET6, sa, nil
}

package socket

import (
	"context"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/nats-io/nuid"
	"github.com/pkg/errors"
)

// DefaultBacklog is the listen backlog used when none is configured.
const DefaultBacklog = 10

// ErrListenerClosed is returned by Accept once the listener has been closed.
var ErrListenerClosed = errors.New("listener closed")

// Listener is a bound, listening stream socket.
type Listener struct {
	l        *net.TCPListener
	endpoint *Endpoint
}

// Listen creates a socket of the endpoint's family, binds it to the endpoint
// and starts listening with the given backlog. A backlog of zero or less uses
// DefaultBacklog.
func Listen(ep *Endpoint, backlog int) (*Listener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	l, err := listenTCP(ep, backlog)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s (%s)", ep, ep.Family)
	}
	return &Listener{l: l, endpoint: ep}, nil
}

// Accept waits for the next connection. Interrupted system calls are retried
// transparently. After Close, Accept returns ErrListenerClosed. Any other
// error is returned as is and should be treated as fatal by the caller.
func (l *Listener) Accept() (*Conn, error) {
	for {
		c, err := l.l.AcceptTCP()
		if err == nil {
			return newConn(c), nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, err
	}
}

// Addr returns the listener's bound address. If the endpoint was created with
// port 0 this reports the port chosen by the kernel.
func (l *Listener) Addr() net.Addr {
	return l.l.Addr()
}

// Endpoint returns the endpoint the listener was created for.
func (l *Listener) Endpoint() *Endpoint {
	return l.endpoint
}

// Close stops listening. Connections already accepted are not affected.
func (l *Listener) Close() error {
	return l.l.Close()
}

// Conn is one side of a relay connection. A Conn is owned by a single
// goroutine for its whole life and is not safe for concurrent use.
type Conn struct {
	c  *net.TCPConn
	id string
}

func newConn(c *net.TCPConn) *Conn {
	return &Conn{c: c, id: nuid.Next()}
}

// Dial connects to the endpoint using a socket of the endpoint's family.
func Dial(ctx context.Context, ep *Endpoint) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, ep.Network(), ep.String())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s (%s)", ep, ep.Family)
	}
	return newConn(c.(*net.TCPConn)), nil
}

// ID returns a unique identifier for the connection, used for logging.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.c.RemoteAddr()
}

// SetDeadline bounds every subsequent send and receive on the connection.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.c.SetDeadline(t)
}

// SendAll writes all of b, looping over short writes.
func (c *Conn) SendAll(b []byte) error {
	for len(b) > 0 {
		n, err := c.c.Write(b)
		if err != nil {
			return errors.Wrap(err, "send failed")
		}
		if n == 0 {
			return errors.Wrap(io.ErrShortWrite, "send failed")
		}
		b = b[n:]
	}
	return nil
}

// Receive performs a single read of at most max bytes and returns whatever
// was available. It does not wait for any particular amount of data. At end
// of stream it returns io.EOF with no data.
func (c *Conn) Receive(max int) ([]byte, error) {
	buf := make([]byte, max)
	n, err := c.c.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, "receive failed")
	}
	return nil, nil
}

// CloseWrite shuts down the sending side of the connection.
func (c *Conn) CloseWrite() error {
	return c.c.CloseWrite()
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.c.Close()
}

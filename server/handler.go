package server

import (
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"

	"github.com/cipherrelay/cipherrelay/server/cipher"
	"github.com/cipherrelay/cipherrelay/server/proto"
	"github.com/cipherrelay/cipherrelay/server/socket"
)

// connState is the lifecycle state of a connection handler.
type connState int

const (
	stateAccepted connState = iota
	stateDecoding
	stateEncrypting
	stateResponding
	stateClosed
)

func (c connState) String() string {
	switch c {
	case stateAccepted:
		return "accepted"
	case stateDecoding:
		return "decoding"
	case stateEncrypting:
		return "encrypting"
	case stateResponding:
		return "responding"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("connState(%d)", int(c))
	}
}

// Handler outcomes, used as the metrics result label.
const (
	resultOK          = "ok"
	resultDecodeError = "decode_error"
	resultCipherError = "cipher_error"
	resultSocketError = "socket_error"
	resultPanic       = "panic"
)

// handler serves exactly one connection: it receives one envelope, encrypts
// the message and sends back the raw ciphertext. It owns the connection for
// its whole life.
type handler struct {
	s       *Server
	conn    *socket.Conn
	state   connState
	started time.Time
	result  string
	err     error

	// fault is invoked on entering each state. Tests use it to inject
	// failures.
	fault func(connState)
}

func newHandler(s *Server, conn *socket.Conn) *handler {
	return &handler{
		s:       s,
		conn:    conn,
		state:   stateAccepted,
		started: time.Now(),
		fault:   s.handlerFault,
	}
}

// run serves the connection and always ends in stateClosed, posting the
// handler to the reaper. A panic is contained to this connection.
func (h *handler) run() {
	defer func() {
		if r := recover(); r != nil {
			h.result = resultPanic
			h.err = fmt.Errorf("panic while %s: %v", h.state, r)
			h.s.logger.Errorf("[%s] Handler panic while %s: %v\n%s", h.conn.ID(), h.state, r, debug.Stack())
		}
		h.close()
	}()

	if err := h.serve(); err != nil {
		h.err = err
		h.s.logger.Warnf("[%s] Closing connection while %s: %v", h.conn.ID(), h.state, err)
	}
}

func (h *handler) serve() error {
	if timeout := h.s.config.HandlerTimeout; timeout > 0 {
		if err := h.conn.SetDeadline(h.started.Add(timeout)); err != nil {
			h.result = resultSocketError
			return errors.Wrap(err, "failed to set deadline")
		}
	}

	h.transition(stateDecoding)
	env, err := h.receiveEnvelope()
	if err != nil {
		return err
	}

	h.transition(stateEncrypting)
	schedule, err := h.s.schedules.get(env.EncryptKey)
	if err != nil {
		h.result = resultCipherError
		return err
	}
	ciphertext := schedule.Transform([]byte(env.Message), cipher.Forward)

	h.transition(stateResponding)
	if err := h.conn.SendAll(ciphertext); err != nil {
		h.result = resultSocketError
		return err
	}
	h.s.metrics.bytesEncrypted.Add(float64(len(ciphertext)))
	h.result = resultOK
	h.s.logger.Debugf("[%s] Encrypted %d byte message", h.conn.ID(), len(ciphertext))
	return nil
}

// receiveEnvelope reads into a buffer bounded by the maximum envelope size
// until the bytes decode to an envelope. A full buffer that still does not
// decode is reported as proto.ErrEnvelopeTooLarge.
func (h *handler) receiveEnvelope() (*proto.Envelope, error) {
	max := h.s.config.MaxEnvelopeBytes
	buf := make([]byte, 0, max)
	for {
		chunk, err := h.conn.Receive(max - len(buf))
		if err == io.EOF {
			h.result = resultDecodeError
			if len(buf) == 0 {
				return nil, errors.Wrap(proto.ErrIncompleteEnvelope, "connection closed before envelope")
			}
			_, err := proto.Decode(buf)
			return nil, errors.Wrap(err, "connection closed mid-envelope")
		}
		if err != nil {
			h.result = resultSocketError
			return nil, err
		}
		buf = append(buf, chunk...)

		env, err := proto.Decode(buf)
		switch err {
		case nil:
			return env, nil
		case proto.ErrIncompleteEnvelope:
			if len(buf) >= max {
				h.result = resultDecodeError
				return nil, errors.Wrapf(proto.ErrEnvelopeTooLarge, "no envelope in %d bytes", len(buf))
			}
		default:
			h.result = resultDecodeError
			return nil, err
		}
	}
}

func (h *handler) transition(state connState) {
	h.state = state
	if h.fault != nil {
		h.fault(state)
	}
}

func (h *handler) close() {
	h.state = stateClosed
	if err := h.conn.Close(); err != nil {
		h.s.logger.Debugf("[%s] Error closing connection: %v", h.conn.ID(), err)
	}
	h.s.reaper.done(h)
}

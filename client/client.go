// Package client implements the requesting side of the relay: it sends one
// envelope per connection, reads back the ciphertext and can verify it by
// decrypting locally.
package client

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/cipherrelay/cipherrelay/server/cipher"
	"github.com/cipherrelay/cipherrelay/server/logger"
	"github.com/cipherrelay/cipherrelay/server/proto"
	"github.com/cipherrelay/cipherrelay/server/socket"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrShortResponse is returned when the server closes the connection
	// before sending a ciphertext as long as the message.
	ErrShortResponse = errors.New("server closed connection before full response")

	// ErrRoundTripMismatch is returned when decrypting the server's
	// ciphertext does not yield the original message.
	ErrRoundTripMismatch = errors.New("decrypted message does not match original")
)

// Config contains the settings for a Client.
type Config struct {
	Host string
	Port int

	// Timeout bounds a whole request, from dial to the last byte of the
	// response. Zero means no timeout beyond the caller's context.
	Timeout time.Duration

	// MaxEnvelopeBytes is the largest envelope the client will send. Zero
	// disables the check.
	MaxEnvelopeBytes int
}

// DefaultConfig returns a Config for a server on the given host and port.
func DefaultConfig(host string, port int) Config {
	return Config{
		Host:             host,
		Port:             port,
		Timeout:          defaultTimeout,
		MaxEnvelopeBytes: proto.DefaultMaxEnvelopeSize,
	}
}

// Result is the outcome of a verified round trip.
type Result struct {
	Ciphertext []byte
	Plaintext  string
	Elapsed    time.Duration
}

// Client sends encryption requests to a single relay server. It is safe for
// concurrent use; every request uses its own connection.
type Client struct {
	config   Config
	endpoint *socket.Endpoint
	logger   logger.Logger
}

// New resolves the server endpoint and returns a Client for it. An address
// that is neither an IPv4 nor an IPv6 literal is rejected with
// socket.ErrUnsupportedAddress.
func New(config Config, log logger.Logger) (*Client, error) {
	ep, err := socket.Resolve(config.Host, strconv.Itoa(config.Port))
	if err != nil {
		return nil, err
	}
	return &Client{config: config, endpoint: ep, logger: log}, nil
}

// Endpoint returns the resolved server endpoint.
func (c *Client) Endpoint() *socket.Endpoint {
	return c.endpoint
}

// Encrypt asks the server to encrypt message with key and returns the
// ciphertext. The response is read until the server closes the connection or
// len(message) bytes have arrived.
func (c *Client) Encrypt(ctx context.Context, key, message string) ([]byte, error) {
	if key == "" {
		return nil, cipher.ErrInvalidKey
	}
	data, err := proto.Encode(&proto.Envelope{Message: message, EncryptKey: key}, c.config.MaxEnvelopeBytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode envelope")
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	conn, err := socket.Dial(ctx, c.endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	c.logger.Debugf("[%s] Connected to %s (%s)", conn.ID(), c.endpoint, c.endpoint.Family)

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, errors.Wrap(err, "failed to set deadline")
		}
	}

	if err := conn.SendAll(data); err != nil {
		return nil, err
	}
	c.logger.Debugf("[%s] Sent %d byte envelope", conn.ID(), len(data))

	want := len(message)
	resp := make([]byte, 0, want)
	for len(resp) < want {
		chunk, err := conn.Receive(want - len(resp))
		if err == io.EOF {
			return nil, errors.Wrapf(ErrShortResponse, "received %d of %d bytes", len(resp), want)
		}
		if err != nil {
			return nil, err
		}
		resp = append(resp, chunk...)
	}
	c.logger.Debugf("[%s] Received %d byte ciphertext", conn.ID(), len(resp))
	return resp, nil
}

// RoundTrip encrypts message through the server and decrypts the ciphertext
// locally. If the decryption differs from message the Result is still
// returned along with ErrRoundTripMismatch.
func (c *Client) RoundTrip(ctx context.Context, key, message string) (*Result, error) {
	start := time.Now()
	ciphertext, err := c.Encrypt(ctx, key, message)
	if err != nil {
		return nil, err
	}
	plaintext, err := cipher.Decrypt(ciphertext, []byte(key))
	if err != nil {
		return nil, err
	}
	result := &Result{
		Ciphertext: ciphertext,
		Plaintext:  string(plaintext),
		Elapsed:    time.Since(start),
	}
	if result.Plaintext != message {
		return result, ErrRoundTripMismatch
	}
	return result, nil
}

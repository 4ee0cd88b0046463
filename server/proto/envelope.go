package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"unicode/utf8"
)

const (
	// DefaultMaxEnvelopeSize is the receive buffer capacity for a request
	// envelope. Envelopes which do not fit are rejected.
	DefaultMaxEnvelopeSize = 1024
)

var (
	// ErrMalformedEnvelope is returned when the received bytes cannot form a
	// well-formed envelope no matter how many more bytes arrive.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrIncompleteEnvelope is returned when the received bytes are a valid
	// prefix of an envelope and more data is needed.
	ErrIncompleteEnvelope = errors.New("incomplete envelope")

	// ErrEnvelopeTooLarge is returned when an envelope exceeds the maximum
	// envelope size.
	ErrEnvelopeTooLarge = errors.New("envelope too large")

	// ErrEmptyKey is returned when encoding an envelope without a key.
	ErrEmptyKey = errors.New("envelope key must not be empty")

	// ErrInvalidMessage is returned when the message or key is not valid
	// UTF-8. Such strings cannot cross the wire unchanged.
	ErrInvalidMessage = errors.New("envelope fields must be valid UTF-8")
)

// Envelope is the request sent from client to server: a message to encrypt
// and the key to encrypt it with.
type Envelope struct {
	Message    string `json:"message"`
	EncryptKey string `json:"encrypt_key"`
}

// Encode serializes the envelope into its wire format. It fails if the key is
// empty or if the encoding is larger than maxSize bytes. A maxSize of zero or
// less disables the size check.
func Encode(env *Envelope, maxSize int) ([]byte, error) {
	if env.EncryptKey == "" {
		return nil, ErrEmptyKey
	}
	if !utf8.ValidString(env.Message) || !utf8.ValidString(env.EncryptKey) {
		return nil, ErrInvalidMessage
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && len(data) > maxSize {
		return nil, ErrEnvelopeTooLarge
	}
	return data, nil
}

// Decode parses a single envelope from data. It returns ErrIncompleteEnvelope
// if data is a truncated envelope, ErrInvalidMessage if a complete envelope is
// not valid UTF-8 and ErrMalformedEnvelope for anything else that is not
// exactly one well-formed envelope.
//
// Field names match exactly and each may appear once. Unknown fields are
// skipped.
func Decode(data []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrIncompleteEnvelope
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, decodeError(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrMalformedEnvelope
	}

	var (
		env                  Envelope
		haveMessage, haveKey bool
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, decodeError(err)
		}
		name, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, decodeError(err)
		}

		var field *string
		switch name {
		case "message":
			if haveMessage {
				return nil, ErrMalformedEnvelope
			}
			haveMessage, field = true, &env.Message
		case "encrypt_key":
			if haveKey {
				return nil, ErrMalformedEnvelope
			}
			haveKey, field = true, &env.EncryptKey
		default:
			continue
		}
		if len(raw) == 0 || raw[0] != '"' {
			return nil, ErrMalformedEnvelope
		}
		if err := json.Unmarshal(raw, field); err != nil {
			return nil, ErrMalformedEnvelope
		}
	}

	// Closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, decodeError(err)
	}

	// Only whitespace may follow the envelope.
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrMalformedEnvelope
	}

	if !haveMessage || !haveKey {
		return nil, ErrMalformedEnvelope
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidMessage
	}
	return &env, nil
}

// decodeError maps a JSON decoding error to running out of input or to
// malformed input.
func decodeError(err error) error {
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return ErrIncompleteEnvelope
	}
	return ErrMalformedEnvelope
}

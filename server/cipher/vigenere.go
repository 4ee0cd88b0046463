// Package cipher implements the Vigenère transform applied by the relay.
package cipher

import (
	"errors"
)

// ErrInvalidKey is returned when a transform is attempted with an empty key.
var ErrInvalidKey = errors.New("invalid key: key must not be empty")

// Direction selects whether a transform encrypts or decrypts.
type Direction int

const (
	// Forward shifts letters up the alphabet (encryption).
	Forward Direction = iota
	// Reverse shifts letters down the alphabet (decryption).
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Schedule is the shift table derived from a key. A Schedule is immutable and
// safe for concurrent use; the key cursor lives only for the duration of a
// single Transform call.
type Schedule struct {
	shifts []byte
}

// NewSchedule derives the shift table for key. Key bytes that are not ASCII
// letters contribute a shift of zero but still occupy a cursor position.
func NewSchedule(key []byte) (*Schedule, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	shifts := make([]byte, len(key))
	for i, k := range key {
		shifts[i] = shiftFor(k)
	}
	return &Schedule{shifts: shifts}, nil
}

// Len returns the key length the schedule was derived from.
func (s *Schedule) Len() int {
	return len(s.shifts)
}

// Transform applies the schedule to input in the given direction and returns
// a new slice of the same length.
func (s *Schedule) Transform(input []byte, dir Direction) []byte {
	out := make([]byte, len(input))
	cursor := 0
	for i, c := range input {
		base, ok := letterBase(c)
		if !ok {
			out[i] = c
			continue
		}
		shift := s.shifts[cursor%len(s.shifts)]
		if dir == Reverse {
			shift = 26 - shift
		}
		out[i] = (c-base+shift)%26 + base
		cursor++
	}
	return out
}

// Transform derives a schedule from key and applies it to input.
func Transform(input, key []byte, dir Direction) ([]byte, error) {
	s, err := NewSchedule(key)
	if err != nil {
		return nil, err
	}
	return s.Transform(input, dir), nil
}

// Encrypt returns the Vigenère encryption of plaintext under key.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	return Transform(plaintext, key, Forward)
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	return Transform(ciphertext, key, Reverse)
}

func shiftFor(k byte) byte {
	if base, ok := letterBase(k); ok {
		return k - base
	}
	return 0
}

func letterBase(c byte) (byte, bool) {
	switch {
	case c >= 'A' && c <= 'Z':
		return 'A', true
	case c >= 'a' && c <= 'z':
		return 'a', true
	default:
		return 0, false
	}
}

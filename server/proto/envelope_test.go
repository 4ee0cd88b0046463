package proto

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Ensure the envelope is encoded with the expected field names.
func TestEncodeFieldNames(t *testing.T) {
	data, err := Encode(&Envelope{Message: "Attack at dawn", EncryptKey: "key"}, DefaultMaxEnvelopeSize)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Equal(t, map[string]string{
		"message":     "Attack at dawn",
		"encrypt_key": "key",
	}, fields)
}

// Ensure Encode rejects an empty key.
func TestEncodeEmptyKey(t *testing.T) {
	_, err := Encode(&Envelope{Message: "hello"}, DefaultMaxEnvelopeSize)
	require.Equal(t, ErrEmptyKey, err)
}

// Ensure Encode refuses strings that would not survive the wire unchanged.
func TestEncodeInvalidUTF8(t *testing.T) {
	_, err := Encode(&Envelope{Message: "ab\xffcd", EncryptKey: "key"}, DefaultMaxEnvelopeSize)
	require.Equal(t, ErrInvalidMessage, err)

	_, err = Encode(&Envelope{Message: "abcd", EncryptKey: "k\xc3"}, DefaultMaxEnvelopeSize)
	require.Equal(t, ErrInvalidMessage, err)

	data, err := Encode(&Envelope{Message: "héllo wörld", EncryptKey: "key"}, DefaultMaxEnvelopeSize)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, "héllo wörld", decoded.Message)
}

// Ensure a complete envelope carrying invalid UTF-8 is rejected rather than
// rewritten.
func TestDecodeInvalidUTF8(t *testing.T) {
	_, err := Decode([]byte("{\"message\":\"ab\xffcd\",\"encrypt_key\":\"k\"}"))
	require.Equal(t, ErrInvalidMessage, err)

	_, err = Decode([]byte("{\"message\":\"abcd\",\"encrypt_key\":\"\xfe\"}"))
	require.Equal(t, ErrInvalidMessage, err)

	// Truncated input is still only incomplete.
	_, err = Decode([]byte("{\"message\":\"ab\xffcd"))
	require.Equal(t, ErrIncompleteEnvelope, err)
}

// Ensure field names match exactly and appear once.
func TestDecodeStrictFields(t *testing.T) {
	testCases := []string{
		`{"MESSAGE":"hi","Encrypt_Key":"k"}`,
		`{"Message":"hi","encrypt_key":"k"}`,
		`{"message":"hi","ENCRYPT_KEY":"k"}`,
		`{"message":"hi","message":"bye","encrypt_key":"k"}`,
		`{"message":"hi","encrypt_key":"k","encrypt_key":"j"}`,
		`{"message":null,"encrypt_key":"k"}`,
		`{"message":"hi","encrypt_key":{"k":1}}`,
	}
	for _, tc := range testCases {
		_, err := Decode([]byte(tc))
		require.Equal(t, ErrMalformedEnvelope, err, "input %q", tc)
	}
}

// Ensure Encode enforces the maximum envelope size.
func TestEncodeTooLarge(t *testing.T) {
	env := &Envelope{Message: strings.Repeat("a", DefaultMaxEnvelopeSize), EncryptKey: "key"}
	_, err := Encode(env, DefaultMaxEnvelopeSize)
	require.Equal(t, ErrEnvelopeTooLarge, err)

	// No limit.
	data, err := Encode(env, 0)
	require.NoError(t, err)
	require.True(t, len(data) > DefaultMaxEnvelopeSize)
}

// Ensure an encoded envelope decodes to the same values.
func TestEncodeDecode(t *testing.T) {
	env := &Envelope{Message: "Hello, \"World\"!\n\té", EncryptKey: "key"}
	data, err := Encode(env, DefaultMaxEnvelopeSize)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, env, decoded)
}

// Ensure Decode accepts surrounding whitespace and ignores unknown fields.
func TestDecodeLenient(t *testing.T) {
	decoded, err := Decode([]byte("  {\"encrypt_key\":\"k\",\"extra\":1,\"message\":\"m\"}\r\n"))
	require.NoError(t, err)
	require.Equal(t, &Envelope{Message: "m", EncryptKey: "k"}, decoded)

	// An empty key is a valid envelope; rejecting it is up to the cipher.
	decoded, err = Decode([]byte(`{"message":"m","encrypt_key":""}`))
	require.NoError(t, err)
	require.Equal(t, "", decoded.EncryptKey)
}

// Ensure truncated envelopes are reported as incomplete.
func TestDecodeIncomplete(t *testing.T) {
	full := `{"message":"Attack at dawn","encrypt_key":"key"}`
	for i := 0; i < len(full); i++ {
		_, err := Decode([]byte(full[:i]))
		require.Equal(t, ErrIncompleteEnvelope, err, "prefix %q", full[:i])
	}
}

// Ensure garbage is reported as malformed and never panics.
func TestDecodeMalformed(t *testing.T) {
	testCases := []string{
		"hello",
		"null",
		"[]",
		`"message"`,
		`{"message":"m"}`,
		`{"encrypt_key":"k"}`,
		`{"message":5,"encrypt_key":"k"}`,
		`{"message":"m","encrypt_key":"k"}}`,
		`{"message":"m","encrypt_key":"k"} {"message":"m","encrypt_key":"k"}`,
		`{"message":"m",,"encrypt_key":"k"}`,
		`{"message":"m" "encrypt_key":"k"}`,
		`{"message":"m","encrypt_key":"k"]`,
		`{1:"m"}`,
		"\x00\x01\x02",
	}
	for _, tc := range testCases {
		_, err := Decode([]byte(tc))
		require.Equal(t, ErrMalformedEnvelope, err, "input %q", tc)
	}
}

package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
)

func testKey(fill byte) crypto.Curve25519PublicKey {
	var key crypto.Curve25519PublicKey
	for i := range key {
		key[i] = fill
	}
	return key
}

func TestPreKeyMessageRoundTrip(t *testing.T) {
	oneTimeKey := testKey(0x01)
	baseKey := testKey(0x02)
	identityKey := testKey(0x03)

	// Embed a real normal message, as the session layer would
	inner := NewOlmMessage(testKey(0x04), 0, []byte("ciphertext"))
	inner.AppendMAC(macFromBytes([]byte("MACHEREE")))

	msg := NewPreKeyMessage(oneTimeKey, baseKey, identityKey, inner.Bytes())

	if msg.Bytes()[0] != byte(Version) {
		t.Errorf("version byte = %x, want %x", msg.Bytes()[0], Version)
	}

	decoded, err := PreKeyMessageFromBytes(msg.Bytes()).Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if decoded.OneTimeKey != oneTimeKey {
		t.Errorf("OneTimeKey = %x, want %x", decoded.OneTimeKey, oneTimeKey)
	}
	if decoded.BaseKey != baseKey {
		t.Errorf("BaseKey = %x, want %x", decoded.BaseKey, baseKey)
	}
	if decoded.IdentityKey != identityKey {
		t.Errorf("IdentityKey = %x, want %x", decoded.IdentityKey, identityKey)
	}
	if !bytes.Equal(decoded.Message, inner.Bytes()) {
		t.Error("embedded message mismatch")
	}

	// The embedded message is returned raw and decodes in a second step
	innerDecoded, err := OlmMessageFromBytes(decoded.Message).Decode()
	if err != nil {
		t.Fatalf("embedded Decode() error = %v", err)
	}
	if innerDecoded.ChainIndex != 0 {
		t.Errorf("embedded ChainIndex = %d, want 0", innerDecoded.ChainIndex)
	}
}

func TestPreKeyMessageDecodeMissingVersion(t *testing.T) {
	_, err := PreKeyMessageFromBytes(nil).Decode()
	if !errors.Is(err, ErrMissingVersion) {
		t.Errorf("Decode() error = %v, want ErrMissingVersion", err)
	}
}

func TestPreKeyMessageDecodeInvalidVersion(t *testing.T) {
	msg := NewPreKeyMessage(testKey(0x01), testKey(0x02), testKey(0x03), []byte("m"))

	raw := append([]byte{}, msg.Bytes()...)
	raw[0] = 0x04

	_, err := PreKeyMessageFromBytes(raw).Decode()

	var versionErr *InvalidVersionError
	if !errors.As(err, &versionErr) {
		t.Fatalf("Decode() error = %v, want *InvalidVersionError", err)
	}
	if versionErr.Expected != 3 || versionErr.Actual != 4 {
		t.Errorf("InvalidVersionError = {%d %d}, want {3 4}", versionErr.Expected, versionErr.Actual)
	}
}

func TestPreKeyMessageDecodeInvalidKeyLength(t *testing.T) {
	tests := []struct {
		name string
		body *preKeyMessageBody
	}{
		{
			name: "short one-time key",
			body: &preKeyMessageBody{
				OneTimeKey:  []byte("short"),
				BaseKey:     bytes.Repeat([]byte{0x02}, 32),
				IdentityKey: bytes.Repeat([]byte{0x03}, 32),
				Message:     []byte("m"),
			},
		},
		{
			name: "short base key",
			body: &preKeyMessageBody{
				OneTimeKey:  bytes.Repeat([]byte{0x01}, 32),
				BaseKey:     []byte("short"),
				IdentityKey: bytes.Repeat([]byte{0x03}, 32),
				Message:     []byte("m"),
			},
		},
		{
			name: "long identity key",
			body: &preKeyMessageBody{
				OneTimeKey:  bytes.Repeat([]byte{0x01}, 32),
				BaseKey:     bytes.Repeat([]byte{0x02}, 32),
				IdentityKey: bytes.Repeat([]byte{0x03}, 33),
				Message:     []byte("m"),
			},
		},
		{
			name: "absent keys",
			body: &preKeyMessageBody{
				Message: []byte("m"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := append([]byte{byte(Version)}, tt.body.encode(nil)...)

			_, err := PreKeyMessageFromBytes(raw).Decode()

			var keyErr *InvalidKeyLengthError
			if !errors.As(err, &keyErr) {
				t.Fatalf("Decode() error = %v, want *InvalidKeyLengthError", err)
			}
			if keyErr.Expected != crypto.KeyLength {
				t.Errorf("InvalidKeyLengthError.Expected = %d, want %d", keyErr.Expected, crypto.KeyLength)
			}
		})
	}
}

func TestPreKeyMessageDecodeMalformedBody(t *testing.T) {
	raw := []byte{byte(Version), 0x0A, 0xFF}

	_, err := PreKeyMessageFromBytes(raw).Decode()

	var wireErr *WireFormatError
	if !errors.As(err, &wireErr) {
		t.Errorf("Decode() error = %v, want *WireFormatError", err)
	}
}

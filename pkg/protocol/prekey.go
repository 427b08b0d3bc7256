package protocol

import (
	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
)

// PreKeyMessage is the session-establishing envelope:
//
//	version(1) || body
//
// The body carries the three public keys needed for the initial key
// agreement plus an embedded OlmMessage. There is no MAC of its own;
// integrity comes from the embedded message's MAC.
type PreKeyMessage struct {
	inner []byte
}

// NewPreKeyMessage builds a pre-key message from the session keys and the
// raw bytes of an already-encoded OlmMessage.
func NewPreKeyMessage(oneTimeKey, baseKey, identityKey crypto.Curve25519PublicKey, message []byte) *PreKeyMessage {
	body := &preKeyMessageBody{
		OneTimeKey:  oneTimeKey.Bytes(),
		BaseKey:     baseKey.Bytes(),
		IdentityKey: identityKey.Bytes(),
		Message:     message,
	}

	buf := make([]byte, 0, 1+body.encodedLen())
	buf = append(buf, Version)
	buf = body.encode(buf)

	return &PreKeyMessage{inner: buf}
}

// PreKeyMessageFromBytes wraps raw transport bytes without validating them
func PreKeyMessageFromBytes(b []byte) *PreKeyMessage {
	return &PreKeyMessage{inner: b}
}

// Bytes returns the complete wire representation
func (m *PreKeyMessage) Bytes() []byte {
	return m.inner
}

// DecodedPreKeyMessage holds the validated fields of a pre-key message.
// The embedded message is returned raw; decoding it is the caller's
// responsibility, via OlmMessageFromBytes and Decode.
type DecodedPreKeyMessage struct {
	OneTimeKey  crypto.Curve25519PublicKey
	BaseKey     crypto.Curve25519PublicKey
	IdentityKey crypto.Curve25519PublicKey
	Message     []byte
}

// Decode validates the envelope and parses its fields
func (m *PreKeyMessage) Decode() (*DecodedPreKeyMessage, error) {
	if len(m.inner) == 0 {
		return nil, ErrMissingVersion
	}

	if version := m.inner[0]; version != Version {
		return nil, &InvalidVersionError{Expected: Version, Actual: version}
	}

	body, err := decodePreKeyMessageBody(m.inner[1:])
	if err != nil {
		return nil, err
	}

	for _, key := range [][]byte{body.OneTimeKey, body.BaseKey, body.IdentityKey} {
		if len(key) != crypto.KeyLength {
			return nil, &InvalidKeyLengthError{Expected: crypto.KeyLength, Actual: len(key)}
		}
	}

	decoded := &DecodedPreKeyMessage{Message: body.Message}
	copy(decoded.OneTimeKey[:], body.OneTimeKey)
	copy(decoded.BaseKey[:], body.BaseKey)
	copy(decoded.IdentityKey[:], body.IdentityKey)

	return decoded, nil
}

package protocol

import (
	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
)

// Protocol constants
const (
	// Wire format version shared by both message kinds
	Version uint8 = 3
)

// Field tag bytes of the normal message body. The encoder assembles the
// body by hand rather than going through the generic encoder, which would
// drop a zero-valued chain index that legacy decoders require.
const (
	ratchetKeyTag = 0x0A // field 1, bytes
	chainIndexTag = 0x10 // field 2, varint
	ciphertextTag = 0x22 // field 4, bytes
)

// OlmMessage is a normal ratchet message envelope:
//
//	version(1) || body || mac(8)
//
// The trailing 8 bytes hold a zero placeholder until AppendMAC overwrites
// them with the real truncated MAC.
type OlmMessage struct {
	inner []byte
}

// NewOlmMessage builds a normal message from ratchet state parts.
// The MAC region is zero-filled; compute the MAC over PayloadBytes and
// install it with AppendMAC before transmitting.
func NewOlmMessage(ratchetKey crypto.Curve25519PublicKey, chainIndex uint64, ciphertext []byte) *OlmMessage {
	return newOlmMessage(ratchetKey.Bytes(), chainIndex, ciphertext)
}

// newOlmMessage hand-assembles the wire body. The chain index field is
// always written, even when zero.
func newOlmMessage(ratchetKey []byte, chainIndex uint64, ciphertext []byte) *OlmMessage {
	size := 1 +
		1 + varintLen(uint64(len(ratchetKey))) + len(ratchetKey) +
		1 + varintLen(chainIndex) +
		1 + varintLen(uint64(len(ciphertext))) + len(ciphertext) +
		crypto.MACTruncatedLength

	buf := make([]byte, 0, size)
	buf = append(buf, Version)
	buf = append(buf, ratchetKeyTag)
	buf = appendVarint(buf, uint64(len(ratchetKey)))
	buf = append(buf, ratchetKey...)
	buf = append(buf, chainIndexTag)
	buf = appendVarint(buf, chainIndex)
	buf = append(buf, ciphertextTag)
	buf = appendVarint(buf, uint64(len(ciphertext)))
	buf = append(buf, ciphertext...)
	buf = buf[:size] // zero MAC placeholder

	return &OlmMessage{inner: buf}
}

// OlmMessageFromBytes wraps raw transport bytes without validating them.
// Validation happens when Decode is called.
func OlmMessageFromBytes(b []byte) *OlmMessage {
	return &OlmMessage{inner: b}
}

// Bytes returns the complete wire representation
func (m *OlmMessage) Bytes() []byte {
	return m.inner
}

// PayloadBytes returns the bytes the MAC is computed over: everything
// except the trailing MAC region.
func (m *OlmMessage) PayloadBytes() []byte {
	return m.inner[:len(m.inner)-crypto.MACTruncatedLength]
}

// AppendMAC truncates the MAC and writes it over the trailing placeholder
// in place. The message length never changes, so PayloadBytes stays fixed
// from construction time.
func (m *OlmMessage) AppendMAC(mac crypto.MAC) {
	truncated := mac.Truncate()
	copy(m.inner[len(m.inner)-crypto.MACTruncatedLength:], truncated[:])
}

// DecodedMessage holds the validated fields of a normal message.
// The MAC is returned raw; verification belongs to the ratchet layer.
type DecodedMessage struct {
	RatchetKey crypto.Curve25519PublicKey
	ChainIndex uint64
	Ciphertext []byte
	MAC        [crypto.MACTruncatedLength]byte
}

// Decode validates the envelope and parses its fields.
// No MAC verification is performed here.
func (m *OlmMessage) Decode() (*DecodedMessage, error) {
	if len(m.inner) == 0 {
		return nil, ErrMissingVersion
	}

	if version := m.inner[0]; version != Version {
		return nil, &InvalidVersionError{Expected: Version, Actual: version}
	}

	if len(m.inner) < crypto.MACTruncatedLength+2 {
		return nil, &MessageTooShortError{Length: len(m.inner)}
	}

	body, err := decodeOlmMessageBody(m.inner[1 : len(m.inner)-crypto.MACTruncatedLength])
	if err != nil {
		return nil, err
	}

	if len(body.RatchetKey) != crypto.KeyLength {
		return nil, &InvalidKeyLengthError{Expected: crypto.KeyLength, Actual: len(body.RatchetKey)}
	}

	macSlice := m.inner[len(m.inner)-crypto.MACTruncatedLength:]
	if len(macSlice) != crypto.MACTruncatedLength {
		return nil, &InvalidMACLengthError{Expected: crypto.MACTruncatedLength, Actual: len(macSlice)}
	}

	decoded := &DecodedMessage{
		ChainIndex: body.ChainIndex,
		Ciphertext: body.Ciphertext,
	}
	copy(decoded.RatchetKey[:], body.RatchetKey)
	copy(decoded.MAC[:], macSlice)

	return decoded, nil
}

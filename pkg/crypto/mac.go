package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// MAC lengths
const (
	// Full HMAC-SHA256 output length
	MACLength = 32

	// Length of the truncated MAC appended to messages on the wire
	MACTruncatedLength = 8
)

// MAC represents a full HMAC-SHA256 authentication code
type MAC [MACLength]byte

// ComputeMAC computes HMAC-SHA256 over the message with the given key
func ComputeMAC(key []byte, message []byte) MAC {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)

	var out MAC
	copy(out[:], mac.Sum(nil))
	return out
}

// Truncate returns the first 8 bytes of the MAC, the form sent on the wire
func (m MAC) Truncate() [MACTruncatedLength]byte {
	var truncated [MACTruncatedLength]byte
	copy(truncated[:], m[:MACTruncatedLength])
	return truncated
}

// VerifyTruncatedMAC checks a truncated MAC against the message in constant time
func VerifyTruncatedMAC(key []byte, message []byte, tag [MACTruncatedLength]byte) bool {
	expected := ComputeMAC(key, message).Truncate()
	return hmac.Equal(expected[:], tag[:])
}

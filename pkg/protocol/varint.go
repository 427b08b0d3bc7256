package protocol

// Continuation bit marking a non-final varint byte
const varintMSB = 0x80

// varintLen returns how many bytes v occupies when varint-encoded
func varintLen(v uint64) int {
	if v == 0 {
		return 1
	}

	n := 0
	for v > 0 {
		n++
		v >>= 7
	}
	return n
}

// appendVarint appends the minimal varint encoding of v.
// Each byte carries 7 value bits, low group first, with the high bit set on
// every byte except the last. Zero encodes as a single zero byte.
func appendVarint(buf []byte, v uint64) []byte {
	for v >= varintMSB {
		buf = append(buf, byte(v)|varintMSB)
		v >>= 7
	}
	return append(buf, byte(v))
}

// encodeVarint returns the minimal varint encoding of v
func encodeVarint(v uint64) []byte {
	return appendVarint(make([]byte, 0, varintLen(v)), v)
}

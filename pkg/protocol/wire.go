package protocol

import "errors"

// Wire types of the restricted protobuf framing used by message bodies
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// Structural decode failures. These are wrapped in a *WireFormatError
// before they reach a caller.
var (
	errTruncatedVarint = errors.New("truncated varint")
	errVarintOverflow  = errors.New("varint exceeds 64 bits")
	errTruncatedValue  = errors.New("truncated field value")
	errInvalidWireType = errors.New("invalid wire type")
)

// readVarint decodes a varint from the front of buf.
// Returns the value and the number of bytes consumed.
func readVarint(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint

	for i, b := range buf {
		if shift >= 64 {
			return 0, 0, errVarintOverflow
		}

		// The tenth byte holds only bit 63; anything above overflows
		if shift == 63 && b&0x7F > 1 {
			return 0, 0, errVarintOverflow
		}

		v |= uint64(b&0x7F) << shift
		if b&varintMSB == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}

	return 0, 0, errTruncatedVarint
}

// readLengthDelimited decodes a varint length prefix followed by that many
// raw bytes from the front of buf.
func readLengthDelimited(buf []byte) ([]byte, int, error) {
	length, n, err := readVarint(buf)
	if err != nil {
		return nil, 0, err
	}

	if length > uint64(len(buf)-n) {
		return nil, 0, errTruncatedValue
	}

	return buf[n : n+int(length)], n + int(length), nil
}

// skipField consumes an unknown field's value given its wire type
func skipField(buf []byte, wireType uint64) (int, error) {
	switch wireType {
	case wireVarint:
		_, n, err := readVarint(buf)
		return n, err
	case wireBytes:
		_, n, err := readLengthDelimited(buf)
		return n, err
	case wireFixed64:
		if len(buf) < 8 {
			return 0, errTruncatedValue
		}
		return 8, nil
	case wireFixed32:
		if len(buf) < 4 {
			return 0, errTruncatedValue
		}
		return 4, nil
	default:
		return 0, errInvalidWireType
	}
}

// appendBytesField appends a tag + length + value field.
// Zero-length values are omitted, matching standard encoder behavior for
// default-valued fields.
func appendBytesField(buf []byte, fieldNumber uint64, value []byte) []byte {
	if len(value) == 0 {
		return buf
	}

	buf = appendVarint(buf, fieldNumber<<3|wireBytes)
	buf = appendVarint(buf, uint64(len(value)))
	return append(buf, value...)
}

// bytesFieldLen returns the encoded size of a tag + length + value field
func bytesFieldLen(fieldNumber uint64, value []byte) int {
	if len(value) == 0 {
		return 0
	}
	return varintLen(fieldNumber<<3|wireBytes) + varintLen(uint64(len(value))) + len(value)
}

// olmMessageBody holds the decoded fields of a normal message body.
// Field 3 is reserved and never produced.
type olmMessageBody struct {
	RatchetKey []byte // field 1, bytes
	ChainIndex uint64 // field 2, varint
	Ciphertext []byte // field 4, bytes
}

// decodeOlmMessageBody parses a normal message body.
// Unknown fields are skipped and duplicate fields take the last value,
// matching the permissive behavior of standard protobuf decoders.
func decodeOlmMessageBody(buf []byte) (*olmMessageBody, error) {
	body := &olmMessageBody{}

	for len(buf) > 0 {
		tag, n, err := readVarint(buf)
		if err != nil {
			return nil, &WireFormatError{Err: err}
		}
		buf = buf[n:]

		fieldNumber := tag >> 3
		wireType := tag & 0x7

		switch {
		case fieldNumber == 1 && wireType == wireBytes:
			body.RatchetKey, n, err = readLengthDelimited(buf)
		case fieldNumber == 2 && wireType == wireVarint:
			body.ChainIndex, n, err = readVarint(buf)
		case fieldNumber == 4 && wireType == wireBytes:
			body.Ciphertext, n, err = readLengthDelimited(buf)
		default:
			n, err = skipField(buf, wireType)
		}

		if err != nil {
			return nil, &WireFormatError{Err: err}
		}
		buf = buf[n:]
	}

	return body, nil
}

// preKeyMessageBody holds the decoded fields of a pre-key message body
type preKeyMessageBody struct {
	OneTimeKey  []byte // field 1, bytes
	BaseKey     []byte // field 2, bytes
	IdentityKey []byte // field 3, bytes
	Message     []byte // field 4, bytes
}

// encode serializes the pre-key body fields in ascending tag order
func (b *preKeyMessageBody) encode(buf []byte) []byte {
	buf = appendBytesField(buf, 1, b.OneTimeKey)
	buf = appendBytesField(buf, 2, b.BaseKey)
	buf = appendBytesField(buf, 3, b.IdentityKey)
	buf = appendBytesField(buf, 4, b.Message)
	return buf
}

// encodedLen returns the serialized size of the pre-key body
func (b *preKeyMessageBody) encodedLen() int {
	return bytesFieldLen(1, b.OneTimeKey) +
		bytesFieldLen(2, b.BaseKey) +
		bytesFieldLen(3, b.IdentityKey) +
		bytesFieldLen(4, b.Message)
}

// decodePreKeyMessageBody parses a pre-key message body
func decodePreKeyMessageBody(buf []byte) (*preKeyMessageBody, error) {
	body := &preKeyMessageBody{}

	for len(buf) > 0 {
		tag, n, err := readVarint(buf)
		if err != nil {
			return nil, &WireFormatError{Err: err}
		}
		buf = buf[n:]

		fieldNumber := tag >> 3
		wireType := tag & 0x7

		switch {
		case fieldNumber == 1 && wireType == wireBytes:
			body.OneTimeKey, n, err = readLengthDelimited(buf)
		case fieldNumber == 2 && wireType == wireBytes:
			body.BaseKey, n, err = readLengthDelimited(buf)
		case fieldNumber == 3 && wireType == wireBytes:
			body.IdentityKey, n, err = readLengthDelimited(buf)
		case fieldNumber == 4 && wireType == wireBytes:
			body.Message, n, err = readLengthDelimited(buf)
		default:
			n, err = skipField(buf, wireType)
		}

		if err != nil {
			return nil, &WireFormatError{Err: err}
		}
		buf = buf[n:]
	}

	return body, nil
}

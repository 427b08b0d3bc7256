package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingVersion is returned when a message is empty and the version
	// byte cannot be read.
	ErrMissingVersion = errors.New("message didn't contain a version")
)

// InvalidVersionError is returned when the version byte doesn't match the
// supported protocol version.
type InvalidVersionError struct {
	Expected uint8
	Actual   uint8
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid message version: expected %d, got %d", e.Expected, e.Actual)
}

// MessageTooShortError is returned when a message is shorter than the
// minimum viable payload.
type MessageTooShortError struct {
	Length int
}

func (e *MessageTooShortError) Error() string {
	return fmt.Sprintf("message too short to contain a valid payload: %d bytes", e.Length)
}

// InvalidKeyLengthError is returned when a decoded public key field is not
// exactly the expected key length.
type InvalidKeyLengthError struct {
	Expected int
	Actual   int
}

func (e *InvalidKeyLengthError) Error() string {
	return fmt.Sprintf("invalid public key length: expected %d, got %d", e.Expected, e.Actual)
}

// InvalidMACLengthError is returned when the decoded MAC slice is not
// exactly the truncated MAC length.
type InvalidMACLengthError struct {
	Expected int
	Actual   int
}

func (e *InvalidMACLengthError) Error() string {
	return fmt.Sprintf("invalid MAC length: expected %d, got %d", e.Expected, e.Actual)
}

// SignatureError wraps a signature validation failure from a collaborator
// that shares this error taxonomy. The codec itself never produces it.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid signature: %v", e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// WireFormatError is returned when a message body is structurally malformed:
// truncated tag, length or value, or an invalid varint.
type WireFormatError struct {
	Err error
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("malformed message body: %v", e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

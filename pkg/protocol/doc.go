// Package protocol implements the Zephyr message wire format.
//
// The protocol package defines the binary envelopes exchanged by
// Double-Ratchet encrypted sessions and the codec that produces and
// validates them. The layout is compatible with the legacy Olm decoder,
// which constrains it in two ways a generic encoder would not honor:
//
//   - the chain index field of a normal message is always written, even
//     when its value is zero, because the legacy decoder cannot handle an
//     omitted field;
//   - the trailing 8-byte MAC region is allocated at construction time and
//     filled in later, so the MAC input never includes the MAC itself.
//
// # Message Kinds
//
// Normal message (OlmMessage):
//   - Version (1 byte): 0x03
//   - Ratchet key (tag 0x0A): sender's current ratchet public key, 32 bytes
//   - Chain index (tag 0x10): varint position in the sending chain
//   - Ciphertext (tag 0x22): opaque encrypted payload
//   - MAC (8 bytes): truncated HMAC-SHA256 over everything before it
//
// Pre-key message (PreKeyMessage):
//   - Version (1 byte): 0x03
//   - One-time key, base key, identity key (tags 1-3): 32 bytes each
//   - Message (tag 4): an embedded, already-encoded OlmMessage
//
// Body fields use a restricted protobuf wire convention: single-byte tags,
// varint lengths and values, last occurrence wins, unknown tags skipped.
// Only the two fixed schemas above are supported.
//
// # Decoding
//
// Wrapping received bytes with OlmMessageFromBytes or PreKeyMessageFromBytes
// never fails; all validation happens in Decode. Decode rejects a missing or
// mismatched version byte, a message shorter than the minimum payload, a
// structurally malformed body, and key or MAC fields of the wrong length.
// MAC verification is not performed here; the session layer verifies the
// decoded MAC before trusting the ciphertext.
package protocol

package session

import (
	"encoding/binary"
	"errors"

	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
)

var (
	ErrInvalidPickle = errors.New("invalid session pickle")
)

// Pickle format version
const pickleVersion = 1

// Pickle flags
const (
	pickleFlagRemoteRatchet = 0x01
	pickleFlagPending       = 0x02
)

// Marshal serializes the full session state for persistence.
// The output contains private key material and must be stored encrypted or
// in a protected database.
func (s *Session) Marshal() []byte {
	size := 1 + 32 + 32 + 1 + 32 + 32 + 32 + 8 + 32 + 8 + 4 + len(s.skipped)*(32+8+32)
	if s.pending != nil {
		size += 3 * 32
	}

	buf := make([]byte, size)
	offset := 0

	buf[offset] = pickleVersion
	offset++

	copy(buf[offset:], s.id[:])
	offset += 32

	copy(buf[offset:], s.localRatchet.PrivateBytes())
	offset += 32

	var flags byte
	if s.remoteRatchetSet {
		flags |= pickleFlagRemoteRatchet
	}
	if s.pending != nil {
		flags |= pickleFlagPending
	}
	buf[offset] = flags
	offset++

	copy(buf[offset:], s.remoteRatchet[:])
	offset += 32

	copy(buf[offset:], s.rootKey[:])
	offset += 32

	copy(buf[offset:], s.sending.Key[:])
	offset += 32

	binary.BigEndian.PutUint64(buf[offset:], s.sending.Index)
	offset += 8

	copy(buf[offset:], s.receiving.Key[:])
	offset += 32

	binary.BigEndian.PutUint64(buf[offset:], s.receiving.Index)
	offset += 8

	if s.pending != nil {
		copy(buf[offset:], s.pending.OneTimeKey[:])
		offset += 32
		copy(buf[offset:], s.pending.BaseKey[:])
		offset += 32
		copy(buf[offset:], s.pending.IdentityKey[:])
		offset += 32
	}

	binary.BigEndian.PutUint32(buf[offset:], uint32(len(s.skipped)))
	offset += 4

	for id, key := range s.skipped {
		copy(buf[offset:], id.RatchetKey[:])
		offset += 32
		binary.BigEndian.PutUint64(buf[offset:], id.ChainIndex)
		offset += 8
		copy(buf[offset:], key[:])
		offset += 32
	}

	return buf
}

// Unmarshal restores a session from its serialized state
func Unmarshal(buf []byte) (*Session, error) {
	// Fixed portion before the optional pending block
	const fixedLen = 1 + 32 + 32 + 1 + 32 + 32 + 32 + 8 + 32 + 8

	if len(buf) < fixedLen+4 {
		return nil, ErrInvalidPickle
	}
	if buf[0] != pickleVersion {
		return nil, ErrInvalidPickle
	}
	offset := 1

	s := &Session{
		skipped: make(map[skippedKeyID]MessageKey),
	}

	copy(s.id[:], buf[offset:])
	offset += 32

	localRatchet, err := crypto.Curve25519KeyPairFromPrivate(buf[offset : offset+32])
	if err != nil {
		return nil, ErrInvalidPickle
	}
	s.localRatchet = localRatchet
	offset += 32

	flags := buf[offset]
	offset++

	s.remoteRatchetSet = flags&pickleFlagRemoteRatchet != 0
	copy(s.remoteRatchet[:], buf[offset:])
	offset += 32

	copy(s.rootKey[:], buf[offset:])
	offset += 32

	copy(s.sending.Key[:], buf[offset:])
	offset += 32
	s.sending.Index = binary.BigEndian.Uint64(buf[offset:])
	offset += 8

	copy(s.receiving.Key[:], buf[offset:])
	offset += 32
	s.receiving.Index = binary.BigEndian.Uint64(buf[offset:])
	offset += 8

	if flags&pickleFlagPending != 0 {
		if len(buf) < offset+3*32+4 {
			return nil, ErrInvalidPickle
		}

		s.pending = &pendingPreKey{}
		copy(s.pending.OneTimeKey[:], buf[offset:])
		offset += 32
		copy(s.pending.BaseKey[:], buf[offset:])
		offset += 32
		copy(s.pending.IdentityKey[:], buf[offset:])
		offset += 32
	}

	count := binary.BigEndian.Uint32(buf[offset:])
	offset += 4

	if count > MaxSkippedKeys || len(buf) != offset+int(count)*(32+8+32) {
		return nil, ErrInvalidPickle
	}

	for i := uint32(0); i < count; i++ {
		var id skippedKeyID
		var key MessageKey

		copy(id.RatchetKey[:], buf[offset:])
		offset += 32
		id.ChainIndex = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
		copy(key[:], buf[offset:])
		offset += 32

		s.skipped[id] = key
	}

	return s, nil
}

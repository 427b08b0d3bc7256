package session

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
	"github.com/zephyrmesh/zephyr-node/pkg/protocol"
)

var (
	ErrNotEstablished     = errors.New("session not yet established")
	ErrAlreadyEstablished = errors.New("session already established")
	ErrKeyUnavailable     = errors.New("message key no longer available")
	ErrTooManySkippedKeys = errors.New("skipping too many message keys")
)

// pendingPreKey holds the public keys repeated in every pre-key message
// until the remote side confirms the session by answering.
type pendingPreKey struct {
	OneTimeKey  crypto.Curve25519PublicKey
	BaseKey     crypto.Curve25519PublicKey
	IdentityKey crypto.Curve25519PublicKey
}

// Session is one end of a Double Ratchet conversation. It owns the ratchet
// state and turns plaintext into wire envelopes and back.
//
// A Session is not safe for concurrent use.
type Session struct {
	id [32]byte

	localRatchet     *crypto.Curve25519KeyPair
	remoteRatchet    crypto.Curve25519PublicKey
	remoteRatchetSet bool

	rootKey   RootKey
	sending   chain
	receiving chain

	skipped map[skippedKeyID]MessageKey
	pending *pendingPreKey
}

// NewOutboundSession establishes a session toward a remote party from their
// published identity and one-time keys. The first messages must be sent as
// pre-key messages (EncryptPreKey) until the remote side has answered.
func NewOutboundSession(localIdentity *crypto.Curve25519KeyPair, remoteIdentity, remoteOneTime crypto.Curve25519PublicKey) (*Session, error) {
	base, err := crypto.GenerateCurve25519KeyPair()
	if err != nil {
		return nil, err
	}

	// Triple DH over identity, base and one-time keys
	dh1, err := localIdentity.SharedSecret(remoteOneTime)
	if err != nil {
		return nil, fmt.Errorf("initial DH failed: %w", err)
	}
	dh2, err := base.SharedSecret(remoteIdentity)
	if err != nil {
		return nil, fmt.Errorf("initial DH failed: %w", err)
	}
	dh3, err := base.SharedSecret(remoteOneTime)
	if err != nil {
		return nil, fmt.Errorf("initial DH failed: %w", err)
	}

	rootKey, err := deriveSharedSecret(dh1, dh2, dh3)
	if err != nil {
		return nil, err
	}

	ratchet, err := crypto.GenerateCurve25519KeyPair()
	if err != nil {
		return nil, err
	}

	dh, err := ratchet.SharedSecret(remoteOneTime)
	if err != nil {
		return nil, fmt.Errorf("initial DH failed: %w", err)
	}

	rootKey, sendingKey, err := KDF_RK(rootKey, dh)
	if err != nil {
		return nil, fmt.Errorf("initial KDF failed: %w", err)
	}

	s := &Session{
		localRatchet:     ratchet,
		remoteRatchet:    remoteOneTime,
		remoteRatchetSet: true,
		rootKey:          rootKey,
		sending:          chain{Key: sendingKey},
		skipped:          make(map[skippedKeyID]MessageKey),
		pending: &pendingPreKey{
			OneTimeKey:  remoteOneTime,
			BaseKey:     base.Public,
			IdentityKey: localIdentity.Public,
		},
	}
	s.id = sessionID(s.pending)

	return s, nil
}

// NewInboundSession establishes a session from a received pre-key message,
// using the local identity key pair and the one-time key pair the sender
// claimed. The decoded pre-key message is returned so the caller can verify
// the sender's identity key and decrypt the embedded message.
func NewInboundSession(localIdentity, oneTime *crypto.Curve25519KeyPair, msg *protocol.PreKeyMessage) (*Session, *protocol.DecodedPreKeyMessage, error) {
	decoded, err := msg.Decode()
	if err != nil {
		return nil, nil, err
	}

	// Mirror of the sender's triple DH
	dh1, err := oneTime.SharedSecret(decoded.IdentityKey)
	if err != nil {
		return nil, nil, fmt.Errorf("initial DH failed: %w", err)
	}
	dh2, err := localIdentity.SharedSecret(decoded.BaseKey)
	if err != nil {
		return nil, nil, fmt.Errorf("initial DH failed: %w", err)
	}
	dh3, err := oneTime.SharedSecret(decoded.BaseKey)
	if err != nil {
		return nil, nil, fmt.Errorf("initial DH failed: %w", err)
	}

	rootKey, err := deriveSharedSecret(dh1, dh2, dh3)
	if err != nil {
		return nil, nil, err
	}

	s := &Session{
		localRatchet: oneTime,
		rootKey:      rootKey,
		skipped:      make(map[skippedKeyID]MessageKey),
	}
	s.id = sessionID(&pendingPreKey{
		OneTimeKey:  oneTime.Public,
		BaseKey:     decoded.BaseKey,
		IdentityKey: decoded.IdentityKey,
	})

	return s, decoded, nil
}

// sessionID derives a stable identifier both sides agree on
func sessionID(keys *pendingPreKey) [32]byte {
	var material []byte
	material = append(material, keys.IdentityKey.Bytes()...)
	material = append(material, keys.BaseKey.Bytes()...)
	material = append(material, keys.OneTimeKey.Bytes()...)
	return blake2b.Sum256(material)
}

// ID returns the session identifier as a hex string
func (s *Session) ID() string {
	return hex.EncodeToString(s.id[:])
}

// Established reports whether the remote side has confirmed the session.
// While false, outgoing messages should be wrapped with EncryptPreKey.
func (s *Session) Established() bool {
	return s.pending == nil
}

// Encrypt advances the sending chain and produces a normal message with its
// MAC already installed.
func (s *Session) Encrypt(plaintext []byte) (*protocol.OlmMessage, error) {
	if !s.remoteRatchetSet {
		return nil, ErrNotEstablished
	}

	messageKey, index := s.sending.next()

	cipher, err := crypto.NewMessageCipher(messageKey[:])
	if err != nil {
		return nil, err
	}

	ciphertext, err := cipher.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	msg := protocol.NewOlmMessage(s.localRatchet.Public, index, ciphertext)
	msg.AppendMAC(cipher.MAC(msg.PayloadBytes()))

	return msg, nil
}

// EncryptPreKey encrypts plaintext and wraps it in a pre-key message
// carrying the session-establishment keys.
func (s *Session) EncryptPreKey(plaintext []byte) (*protocol.PreKeyMessage, error) {
	if s.pending == nil {
		return nil, ErrAlreadyEstablished
	}

	inner, err := s.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	return protocol.NewPreKeyMessage(s.pending.OneTimeKey, s.pending.BaseKey, s.pending.IdentityKey, inner.Bytes()), nil
}

// Decrypt decodes, authenticates and decrypts a normal message.
// Ratchet state only advances after the MAC verifies, so a forged message
// cannot desynchronize the session.
func (s *Session) Decrypt(msg *protocol.OlmMessage) ([]byte, error) {
	decoded, err := msg.Decode()
	if err != nil {
		return nil, err
	}

	// Out-of-order message for which a key was stored
	id := skippedKeyID{RatchetKey: decoded.RatchetKey, ChainIndex: decoded.ChainIndex}
	if messageKey, ok := s.skipped[id]; ok {
		plaintext, err := openMessage(messageKey, decoded, msg.PayloadBytes())
		if err != nil {
			return nil, err
		}

		delete(s.skipped, id)
		s.pending = nil
		return plaintext, nil
	}

	// Work on copies until the MAC has verified
	rootKey := s.rootKey
	localRatchet := s.localRatchet
	sending := s.sending
	receiving := s.receiving
	ratcheted := false

	if !s.remoteRatchetSet || decoded.RatchetKey != s.remoteRatchet {
		// DH ratchet step: new receiving chain from their new key, new
		// sending chain from a fresh key pair of our own
		dh, err := localRatchet.SharedSecret(decoded.RatchetKey)
		if err != nil {
			return nil, fmt.Errorf("ratchet DH failed: %w", err)
		}

		newRoot, receivingKey, err := KDF_RK(rootKey, dh)
		if err != nil {
			return nil, fmt.Errorf("ratchet KDF failed: %w", err)
		}

		newRatchet, err := crypto.GenerateCurve25519KeyPair()
		if err != nil {
			return nil, err
		}

		dh2, err := newRatchet.SharedSecret(decoded.RatchetKey)
		if err != nil {
			return nil, fmt.Errorf("ratchet DH failed: %w", err)
		}

		newRoot, sendingKey, err := KDF_RK(newRoot, dh2)
		if err != nil {
			return nil, fmt.Errorf("ratchet KDF failed: %w", err)
		}

		rootKey = newRoot
		localRatchet = newRatchet
		receiving = chain{Key: receivingKey}
		sending = chain{Key: sendingKey}
		ratcheted = true
	}

	if decoded.ChainIndex < receiving.Index {
		return nil, fmt.Errorf("%w: chain index %d already consumed", ErrKeyUnavailable, decoded.ChainIndex)
	}
	if decoded.ChainIndex-receiving.Index > MaxSkippedKeys {
		return nil, fmt.Errorf("%w: %d", ErrTooManySkippedKeys, decoded.ChainIndex-receiving.Index)
	}

	// Store keys for any skipped messages in this chain
	newlySkipped := make(map[skippedKeyID]MessageKey)
	for receiving.Index < decoded.ChainIndex {
		skippedKey, index := receiving.next()
		newlySkipped[skippedKeyID{RatchetKey: decoded.RatchetKey, ChainIndex: index}] = skippedKey
	}

	messageKey, _ := receiving.next()

	plaintext, err := openMessage(messageKey, decoded, msg.PayloadBytes())
	if err != nil {
		return nil, err
	}

	// Commit
	s.rootKey = rootKey
	s.localRatchet = localRatchet
	s.sending = sending
	s.receiving = receiving
	if ratcheted {
		s.remoteRatchet = decoded.RatchetKey
		s.remoteRatchetSet = true
	}
	for id, key := range newlySkipped {
		if len(s.skipped) >= MaxSkippedKeys {
			break
		}
		s.skipped[id] = key
	}
	s.pending = nil

	return plaintext, nil
}

// openMessage verifies the truncated MAC and decrypts the ciphertext with a
// single message key
func openMessage(messageKey MessageKey, decoded *protocol.DecodedMessage, payload []byte) ([]byte, error) {
	cipher, err := crypto.NewMessageCipher(messageKey[:])
	if err != nil {
		return nil, err
	}

	if err := cipher.VerifyTruncatedMAC(payload, decoded.MAC); err != nil {
		return nil, err
	}

	return cipher.Decrypt(decoded.Ciphertext)
}

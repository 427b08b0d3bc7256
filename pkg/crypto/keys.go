package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

var (
	ErrInvalidKey = errors.New("invalid key")
)

// Key lengths
const (
	// Curve25519 public key length (256 bits)
	KeyLength = 32
)

// Curve25519PublicKey represents an X25519 public key (32 bytes)
type Curve25519PublicKey [KeyLength]byte

// Curve25519PublicKeyFromBytes creates a public key from raw bytes
func Curve25519PublicKeyFromBytes(b []byte) (Curve25519PublicKey, error) {
	var key Curve25519PublicKey
	if len(b) != KeyLength {
		return key, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeyLength, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// Curve25519PublicKeyFromBase64 creates a public key from unpadded base64
func Curve25519PublicKeyFromBase64(s string) (Curve25519PublicKey, error) {
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return Curve25519PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return Curve25519PublicKeyFromBytes(raw)
}

// Bytes returns the raw key bytes
func (k Curve25519PublicKey) Bytes() []byte {
	return k[:]
}

// Base64 returns the unpadded base64 encoding of the key
func (k Curve25519PublicKey) Base64() string {
	return base64.RawStdEncoding.EncodeToString(k[:])
}

// Curve25519KeyPair represents an X25519 key pair
type Curve25519KeyPair struct {
	Public  Curve25519PublicKey
	private [KeyLength]byte
}

// GenerateCurve25519KeyPair generates a new X25519 key pair
func GenerateCurve25519KeyPair() (*Curve25519KeyPair, error) {
	kp := &Curve25519KeyPair{}

	if _, err := rand.Read(kp.private[:]); err != nil {
		return nil, err
	}

	curve25519.ScalarBaseMult((*[32]byte)(&kp.Public), &kp.private)

	return kp, nil
}

// Curve25519KeyPairFromPrivate rebuilds a key pair from a stored private key
func Curve25519KeyPairFromPrivate(private []byte) (*Curve25519KeyPair, error) {
	if len(private) != KeyLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeyLength, len(private))
	}

	kp := &Curve25519KeyPair{}
	copy(kp.private[:], private)
	curve25519.ScalarBaseMult((*[32]byte)(&kp.Public), &kp.private)

	return kp, nil
}

// PrivateBytes returns the raw private key bytes for persistence
func (kp *Curve25519KeyPair) PrivateBytes() []byte {
	return kp.private[:]
}

// SharedSecret performs X25519 Diffie-Hellman with a remote public key
func (kp *Curve25519KeyPair) SharedSecret(remote Curve25519PublicKey) ([]byte, error) {
	return curve25519.X25519(kp.private[:], remote[:])
}

package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
)

// Constants
const (
	// Key lengths
	RootKeyLength    = 32 // Root key length (256 bits)
	ChainKeyLength   = 32 // Chain key length (256 bits)
	MessageKeyLength = 32 // Message key length (256 bits)

	// KDF info strings for HKDF
	KDFRootInfo  = "Zephyr Double Ratchet Root"
	KDFSetupInfo = "Zephyr Session Setup"

	// Maximum number of message keys stored for out-of-order delivery
	MaxSkippedKeys = 1000
)

// RootKey represents the root key in the ratchet
type RootKey [RootKeyLength]byte

// ChainKey represents a sending or receiving chain key
type ChainKey [ChainKeyLength]byte

// MessageKey represents a single-message encryption key
type MessageKey [MessageKeyLength]byte

// skippedKeyID identifies a stored message key for out-of-order delivery
type skippedKeyID struct {
	RatchetKey crypto.Curve25519PublicKey
	ChainIndex uint64
}

// KDF_RK performs the root key KDF.
// Derives a new root key and chain key from the current root key and a DH
// output, using HKDF-SHA256 with the root key as salt.
func KDF_RK(rootKey RootKey, dhOutput []byte) (RootKey, ChainKey, error) {
	kdf := hkdf.New(sha256.New, dhOutput, rootKey[:], []byte(KDFRootInfo))

	output := make([]byte, RootKeyLength+ChainKeyLength)
	if _, err := io.ReadFull(kdf, output); err != nil {
		return RootKey{}, ChainKey{}, err
	}

	var newRootKey RootKey
	var newChainKey ChainKey
	copy(newRootKey[:], output[:RootKeyLength])
	copy(newChainKey[:], output[RootKeyLength:])

	return newRootKey, newChainKey, nil
}

// KDF_CK performs the chain key KDF.
// Derives the message key as HMAC(chainKey, 0x01) and the next chain key as
// HMAC(chainKey, 0x02).
func KDF_CK(chainKey ChainKey) (ChainKey, MessageKey) {
	msgMAC := hmac.New(sha256.New, chainKey[:])
	msgMAC.Write([]byte{0x01})

	var messageKey MessageKey
	copy(messageKey[:], msgMAC.Sum(nil))

	chainMAC := hmac.New(sha256.New, chainKey[:])
	chainMAC.Write([]byte{0x02})

	var newChainKey ChainKey
	copy(newChainKey[:], chainMAC.Sum(nil))

	return newChainKey, messageKey
}

// chain tracks one direction of the symmetric-key ratchet
type chain struct {
	Key   ChainKey
	Index uint64
}

// next returns the current message key and advances the chain
func (c *chain) next() (MessageKey, uint64) {
	newKey, messageKey := KDF_CK(c.Key)
	index := c.Index

	c.Key = newKey
	c.Index++

	return messageKey, index
}

// deriveSharedSecret expands triple-DH output into the initial root key
func deriveSharedSecret(dhOutputs ...[]byte) (RootKey, error) {
	var material []byte
	for _, dh := range dhOutputs {
		material = append(material, dh...)
	}

	kdf := hkdf.New(sha256.New, material, nil, []byte(KDFSetupInfo))

	var rootKey RootKey
	if _, err := io.ReadFull(kdf, rootKey[:]); err != nil {
		return RootKey{}, fmt.Errorf("shared secret derivation failed: %w", err)
	}

	return rootKey, nil
}

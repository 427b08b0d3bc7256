package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidPadding    = errors.New("invalid padding")
	ErrMACMismatch       = errors.New("message authentication failed")
)

// Cipher key derivation constants
const (
	// HKDF info string for expanding a message key into cipher keys
	CipherKeysInfo = "OLM_KEYS"

	aesKeyLength = 32
	ivLength     = 16
)

// MessageCipher holds the AES-256-CBC and HMAC-SHA256 keys derived from a
// single message key. One instance encrypts or decrypts exactly one message.
type MessageCipher struct {
	aesKey [aesKeyLength]byte
	macKey [MACLength]byte
	iv     [ivLength]byte
}

// NewMessageCipher derives cipher keys from a message key using HKDF-SHA256
func NewMessageCipher(messageKey []byte) (*MessageCipher, error) {
	expanded := make([]byte, aesKeyLength+MACLength+ivLength)

	kdf := hkdf.New(sha256.New, messageKey, nil, []byte(CipherKeysInfo))
	if _, err := io.ReadFull(kdf, expanded); err != nil {
		return nil, fmt.Errorf("cipher key expansion failed: %w", err)
	}

	c := &MessageCipher{}
	copy(c.aesKey[:], expanded[0:aesKeyLength])
	copy(c.macKey[:], expanded[aesKeyLength:aesKeyLength+MACLength])
	copy(c.iv[:], expanded[aesKeyLength+MACLength:])

	return c, nil
}

// Encrypt encrypts plaintext with AES-256-CBC and PKCS#7 padding
func (c *MessageCipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.aesKey[:])
	if err != nil {
		return nil, err
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))

	mode := cipher.NewCBCEncrypter(block, c.iv[:])
	mode.CryptBlocks(ciphertext, padded)

	return ciphertext, nil
}

// Decrypt decrypts an AES-256-CBC ciphertext and strips PKCS#7 padding
func (c *MessageCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(c.aesKey[:])
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, c.iv[:])
	mode.CryptBlocks(plaintext, ciphertext)

	return unpadPKCS7(plaintext, aes.BlockSize)
}

// MAC computes the HMAC-SHA256 of the message with the derived MAC key
func (c *MessageCipher) MAC(message []byte) MAC {
	return ComputeMAC(c.macKey[:], message)
}

// VerifyTruncatedMAC checks a truncated wire MAC against the message
func (c *MessageCipher) VerifyTruncatedMAC(message []byte, tag [MACTruncatedLength]byte) error {
	if !VerifyTruncatedMAC(c.macKey[:], message, tag) {
		return ErrMACMismatch
	}
	return nil
}

// padPKCS7 pads data to a multiple of blockSize
func padPKCS7(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// unpadPKCS7 strips and validates PKCS#7 padding
func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}

	return data[:len(data)-padLen], nil
}

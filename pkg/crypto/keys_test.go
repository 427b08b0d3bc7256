package crypto

import (
	"bytes"
	"testing"
)

func TestGenerateCurve25519KeyPair(t *testing.T) {
	kp1, err := GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateCurve25519KeyPair() error = %v", err)
	}

	kp2, err := GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateCurve25519KeyPair() error = %v", err)
	}

	if kp1.Public == kp2.Public {
		t.Error("two generated key pairs share a public key")
	}

	zero := Curve25519PublicKey{}
	if kp1.Public == zero {
		t.Error("generated public key is all zeros")
	}
}

func TestSharedSecretAgreement(t *testing.T) {
	alice, err := GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateCurve25519KeyPair() error = %v", err)
	}
	bob, err := GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateCurve25519KeyPair() error = %v", err)
	}

	aliceShared, err := alice.SharedSecret(bob.Public)
	if err != nil {
		t.Fatalf("SharedSecret() error = %v", err)
	}
	bobShared, err := bob.SharedSecret(alice.Public)
	if err != nil {
		t.Fatalf("SharedSecret() error = %v", err)
	}

	if !bytes.Equal(aliceShared, bobShared) {
		t.Error("DH shared secrets do not agree")
	}
}

func TestCurve25519PublicKeyFromBytes(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, KeyLength)

	key, err := Curve25519PublicKeyFromBytes(raw)
	if err != nil {
		t.Fatalf("Curve25519PublicKeyFromBytes() error = %v", err)
	}
	if !bytes.Equal(key.Bytes(), raw) {
		t.Errorf("Bytes() = %x, want %x", key.Bytes(), raw)
	}

	for _, length := range []int{0, 16, 31, 33, 64} {
		if _, err := Curve25519PublicKeyFromBytes(make([]byte, length)); err == nil {
			t.Errorf("Curve25519PublicKeyFromBytes(%d bytes) expected error, got nil", length)
		}
	}
}

func TestCurve25519PublicKeyBase64RoundTrip(t *testing.T) {
	kp, err := GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateCurve25519KeyPair() error = %v", err)
	}

	decoded, err := Curve25519PublicKeyFromBase64(kp.Public.Base64())
	if err != nil {
		t.Fatalf("Curve25519PublicKeyFromBase64() error = %v", err)
	}
	if decoded != kp.Public {
		t.Error("base64 round trip mismatch")
	}
}

func TestCurve25519KeyPairFromPrivate(t *testing.T) {
	kp, err := GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateCurve25519KeyPair() error = %v", err)
	}

	restored, err := Curve25519KeyPairFromPrivate(kp.PrivateBytes())
	if err != nil {
		t.Fatalf("Curve25519KeyPairFromPrivate() error = %v", err)
	}

	if restored.Public != kp.Public {
		t.Error("restored key pair has a different public key")
	}
}

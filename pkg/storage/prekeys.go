package storage

import (
	"database/sql"
	"fmt"

	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
)

// OneTimeKey is a published one-time key awaiting a claim
type OneTimeKey struct {
	KeyID string
	Key   crypto.Curve25519PublicKey
}

// PublishIdentityKey stores (or replaces) a device's long-term identity key
func (s *SessionDB) PublishIdentityKey(deviceID string, key crypto.Curve25519PublicKey) error {
	_, err := s.db.Exec(`
		INSERT INTO identity_keys (device_id, identity_key, published_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(device_id) DO UPDATE SET
			identity_key = excluded.identity_key,
			published_at = excluded.published_at
	`, deviceID, key.Bytes())
	if err != nil {
		return fmt.Errorf("failed to publish identity key: %v", err)
	}

	return nil
}

// GetIdentityKey returns a device's published identity key
func (s *SessionDB) GetIdentityKey(deviceID string) (crypto.Curve25519PublicKey, error) {
	var raw []byte
	err := s.db.QueryRow(`
		SELECT identity_key FROM identity_keys WHERE device_id = ?
	`, deviceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return crypto.Curve25519PublicKey{}, ErrNotFound
	}
	if err != nil {
		return crypto.Curve25519PublicKey{}, fmt.Errorf("failed to load identity key: %v", err)
	}

	return crypto.Curve25519PublicKeyFromBytes(raw)
}

// PublishOneTimeKeys stores a batch of one-time keys for a device.
// Keys with an already-published key ID are ignored.
func (s *SessionDB) PublishOneTimeKeys(deviceID string, keys []OneTimeKey) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO one_time_keys (device_id, key_id, one_time_key)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id, key_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.Exec(deviceID, key.KeyID, key.Key.Bytes()); err != nil {
			return fmt.Errorf("failed to publish one-time key %s: %v", key.KeyID, err)
		}
	}

	return tx.Commit()
}

// ClaimOneTimeKey hands out one unclaimed one-time key for a device and
// marks it as consumed. The single-statement update keeps concurrent
// claims from handing out the same key.
func (s *SessionDB) ClaimOneTimeKey(deviceID string) (*OneTimeKey, error) {
	var (
		keyID string
		raw   []byte
	)
	err := s.db.QueryRow(`
		UPDATE one_time_keys SET claimed = 1
		WHERE id = (
			SELECT id FROM one_time_keys
			WHERE device_id = ? AND claimed = 0
			ORDER BY id ASC LIMIT 1
		)
		RETURNING key_id, one_time_key
	`, deviceID).Scan(&keyID, &raw)
	if err == sql.ErrNoRows {
		return nil, ErrNoKeysLeft
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim one-time key: %v", err)
	}

	key, err := crypto.Curve25519PublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt one-time key %s: %v", keyID, err)
	}

	return &OneTimeKey{KeyID: keyID, Key: key}, nil
}

// CountUnclaimedKeys returns how many one-time keys remain for a device
func (s *SessionDB) CountUnclaimedKeys(deviceID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM one_time_keys
		WHERE device_id = ? AND claimed = 0
	`, deviceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count keys: %v", err)
	}

	return count, nil
}

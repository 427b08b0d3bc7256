package storage

import (
	"database/sql"
	"fmt"

	"github.com/zephyrmesh/zephyr-node/pkg/session"
)

// SaveSession persists a session's pickled state, replacing any previous pickle
func (s *SessionDB) SaveSession(peerID string, sess *session.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, peer_id, pickle, updated_at)
		VALUES (?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(session_id) DO UPDATE SET
			pickle = excluded.pickle,
			updated_at = excluded.updated_at
	`, sess.ID(), peerID, sess.Marshal())
	if err != nil {
		return fmt.Errorf("failed to save session: %v", err)
	}

	return nil
}

// GetSession loads a session by its ID
func (s *SessionDB) GetSession(sessionID string) (*session.Session, error) {
	var pickle []byte
	err := s.db.QueryRow(`
		SELECT pickle FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&pickle)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %v", err)
	}

	sess, err := session.Unmarshal(pickle)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %v", sessionID, err)
	}

	return sess, nil
}

// GetSessionsForPeer loads all sessions established with a peer,
// most recently updated first
func (s *SessionDB) GetSessionsForPeer(peerID string) ([]*session.Session, error) {
	rows, err := s.db.Query(`
		SELECT pickle FROM sessions
		WHERE peer_id = ?
		ORDER BY updated_at DESC
	`, peerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %v", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var pickle []byte
		if err := rows.Scan(&pickle); err != nil {
			return nil, fmt.Errorf("failed to scan session: %v", err)
		}
		sess, err := session.Unmarshal(pickle)
		if err != nil {
			return nil, fmt.Errorf("failed to restore session: %v", err)
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// DeleteSession removes a session by its ID
func (s *SessionDB) DeleteSession(sessionID string) error {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

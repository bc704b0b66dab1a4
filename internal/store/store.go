// Package store provides the durable per-session key-value state backing
// session actors. Values are JSON-encoded blobs keyed by (session, name);
// each key is read and written atomically so a failed write on one state
// entry cannot corrupt another.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_state (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (session_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_state_session ON session_state(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SessionIDs returns every session id with persisted state, used to re-arm
// reminder timers after a restart.
func (s *Store) SessionIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT session_id FROM session_state ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Maintain compacts the database. Run off-peak; touches no session state.
func (s *Store) Maintain() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Session returns a handle scoped to one session id. All reads and writes
// through the handle touch only that session's rows.
func (s *Store) Session(id string) *SessionStore {
	return &SessionStore{db: s.db, sessionID: id}
}

type SessionStore struct {
	db        *sql.DB
	sessionID string
}

// Get loads the named value into v. The second return is false when the key
// has never been written, leaving v untouched.
func (ss *SessionStore) Get(key string, v any) (bool, error) {
	var raw []byte
	err := ss.db.QueryRow(
		`SELECT value FROM session_state WHERE session_id = ? AND key = ?`,
		ss.sessionID, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", ss.sessionID, key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", ss.sessionID, key, err)
	}
	return true, nil
}

func (ss *SessionStore) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", ss.sessionID, key, err)
	}
	_, err = ss.db.Exec(
		`INSERT INTO session_state (session_id, key, value, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		ss.sessionID, key, raw,
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", ss.sessionID, key, err)
	}
	return nil
}

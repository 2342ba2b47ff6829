package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/covenant/vm"
)

var log = commonlog.GetLogger("covenant.store")

// ---------------------------------------------------------------------------
// SQLite-backed store
// ---------------------------------------------------------------------------

// SQLiteStore is a ScriptStore persisted to a SQLite database, so token
// bindings survive restarts.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a script store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS scripts (
		hash BLOB PRIMARY KEY,
		code BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating scripts table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tokens (
		token INTEGER PRIMARY KEY,
		hash BLOB NOT NULL REFERENCES scripts(hash)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tokens table: %w", err)
	}
	log.Infof("opened script store at %s", path)
	return &SQLiteStore{db: db}, nil
}

// Put validates and stores bytecode.
func (s *SQLiteStore) Put(code []byte) (Hash, error) {
	if err := checkScript(code); err != nil {
		return Hash{}, err
	}
	h := HashScript(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO scripts (hash, code) VALUES (?, ?)",
		h[:], code,
	); err != nil {
		return Hash{}, fmt.Errorf("storing script: %w", err)
	}
	log.Debugf("stored script %s (%d bytes)", h, len(code))
	return h, nil
}

// Get returns the bytecode stored under hash.
func (s *SQLiteStore) Get(hash Hash) ([]byte, error) {
	var code []byte
	err := s.db.QueryRow("SELECT code FROM scripts WHERE hash = ?", hash[:]).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScriptNotFound
		}
		return nil, fmt.Errorf("querying script: %w", err)
	}
	return code, nil
}

// Has reports whether hash is present.
func (s *SQLiteStore) Has(hash Hash) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM scripts WHERE hash = ?", hash[:]).Scan(&one)
	return err == nil
}

// BindToken makes token resolve to the script stored under hash.
func (s *SQLiteStore) BindToken(token uint16, hash Hash) error {
	if !s.Has(hash) {
		return ErrScriptNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO tokens (token, hash) VALUES (?, ?)",
		int64(token), hash[:],
	); err != nil {
		return fmt.Errorf("binding token: %w", err)
	}
	return nil
}

// ResolveToken implements vm.TokenResolver.
func (s *SQLiteStore) ResolveToken(token uint16) (*vm.Script, error) {
	var code []byte
	err := s.db.QueryRow(
		"SELECT s.code FROM tokens t JOIN scripts s ON s.hash = t.hash WHERE t.token = ?",
		int64(token),
	).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotBound
		}
		return nil, fmt.Errorf("resolving token: %w", err)
	}
	return vm.NewScript(code), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

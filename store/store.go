package store

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/covenant/vm"
)

// ---------------------------------------------------------------------------
// Content-addressed script store
// ---------------------------------------------------------------------------

// Hash is the content address of a script: the SHA-256 of its bytecode.
type Hash [32]byte

// HashScript computes the content address of bytecode.
func HashScript(code []byte) Hash {
	return sha256.Sum256(code)
}

// String returns the hex form of the hash.
func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// ErrScriptNotFound indicates the requested script is not in the store.
var ErrScriptNotFound = errors.New("script not found")

// ErrTokenNotBound indicates no script is bound to the call token.
var ErrTokenNotBound = errors.New("token not bound")

// ScriptStore keeps scripts by content address and binds call tokens to
// them. Every store is also a vm.TokenResolver.
type ScriptStore interface {
	// Put validates and stores bytecode, returning its content address.
	// Storing the same bytecode twice is a no-op.
	Put(code []byte) (Hash, error)

	// Get returns the bytecode stored under hash.
	Get(hash Hash) ([]byte, error)

	// Has reports whether hash is present.
	Has(hash Hash) bool

	// BindToken makes token resolve to the script stored under hash.
	BindToken(token uint16, hash Hash) error

	// ResolveToken implements vm.TokenResolver.
	ResolveToken(token uint16) (*vm.Script, error)

	// Close releases the store's resources.
	Close() error
}

// checkScript rejects bytecode a strict decode refuses.
func checkScript(code []byte) error {
	if len(code) == 0 {
		return errors.New("empty script")
	}
	if _, err := vm.NewScriptStrict(code); err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// MemoryStore is a ScriptStore held entirely in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	scripts map[Hash][]byte
	tokens  map[uint16]Hash
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scripts: make(map[Hash][]byte),
		tokens:  make(map[uint16]Hash),
	}
}

// Put validates and stores bytecode.
func (s *MemoryStore) Put(code []byte) (Hash, error) {
	if err := checkScript(code); err != nil {
		return Hash{}, err
	}
	h := HashScript(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[h]; !ok {
		stored := make([]byte, len(code))
		copy(stored, code)
		s.scripts[h] = stored
	}
	return h, nil
}

// Get returns the bytecode stored under hash.
func (s *MemoryStore) Get(hash Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.scripts[hash]
	if !ok {
		return nil, ErrScriptNotFound
	}
	out := make([]byte, len(code))
	copy(out, code)
	return out, nil
}

// Has reports whether hash is present.
func (s *MemoryStore) Has(hash Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.scripts[hash]
	return ok
}

// BindToken makes token resolve to the script stored under hash.
func (s *MemoryStore) BindToken(token uint16, hash Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[hash]; !ok {
		return ErrScriptNotFound
	}
	s.tokens[token] = hash
	return nil
}

// ResolveToken implements vm.TokenResolver.
func (s *MemoryStore) ResolveToken(token uint16) (*vm.Script, error) {
	s.mu.RLock()
	hash, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrTokenNotBound
	}
	code, err := s.Get(hash)
	if err != nil {
		return nil, err
	}
	return vm.NewScript(code), nil
}

// Close implements ScriptStore. It is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

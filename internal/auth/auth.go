// Package auth is an optional, stub-but-real connection gate for
// cmd/server: a flat file of "user:bcrypt-hash" lines checked once per TCP
// connection before the statement loop starts. It is not a privilege
// system (no per-table grants, no roles) — just a password check, which
// is the extent spec.md's scope leaves room for above the storage core.
package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Store holds username -> bcrypt password hash.
type Store struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

func NewStore() *Store {
	return &Store{hashes: make(map[string][]byte)}
}

// SetPassword hashes password and stores it for user, replacing any prior entry.
func (s *Store) SetPassword(user, password string) error {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	s.mu.Lock()
	s.hashes[user] = h
	s.mu.Unlock()
	return nil
}

// Verify reports whether password matches the stored hash for user.
func (s *Store) Verify(user, password string) bool {
	s.mu.RLock()
	h, ok := s.hashes[user]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(h, []byte(password)) == nil
}

// LoadStoreFromFile reads "user:bcrypt-hash" lines, one per line, blank
// lines and lines starting with '#' are ignored.
func LoadStoreFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("auth: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	s := NewStore()
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, hash, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("auth: %s:%d: expected \"user:hash\"", path, lineNo)
		}
		s.hashes[user] = []byte(hash)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("auth: read %s: %w", path, err)
	}
	return s, nil
}

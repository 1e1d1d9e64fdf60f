// Package sessions provides the encrypted persistence layer for the engine's
// session state: the cached provider metadata, the in-flight authorization
// request and the issued token set. Each entry is encrypted independently;
// atomicity is guaranteed per entry, not across entries.
package sessions

import (
	"hash/fnv"
	"sync"

	interrors "github.com/jrsteele09/go-oidc-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Storage keys for the three independently-encrypted session entries.
const (
	KeyProviderMetadata = "provider_metadata"
	KeyPendingRequest   = "pending_authorization_request"
	KeyTokenSet         = "token_set"
)

// ErrNotFound is returned by Get when no entry exists under a key, or when
// an entry could not be decrypted and was discarded.
var ErrNotFound = interrors.ErrNotFound

// Store is the raw key-value persistence collaborator underneath the
// SecureStore. Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put stores the value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Delete removes the entry under key. Deleting an absent key is not an error.
	Delete(key string) error
}

const lockStripes = 8

// SecureStore wraps an inner Store with a Cipher, serializing writes per key.
// A read racing a write of the same key observes either the fully-old or
// fully-new value. A payload that fails to decrypt is treated as absent and
// removed, so a session degrades to signed-out instead of failing hard.
type SecureStore struct {
	inner  Store
	cipher Cipher
	locks  [lockStripes]sync.RWMutex
}

// NewSecureStore creates a SecureStore over the given inner store and cipher.
func NewSecureStore(inner Store, cipher Cipher) (*SecureStore, error) {
	if inner == nil {
		return nil, errors.New("[sessions.NewSecureStore] inner store is required")
	}
	if cipher == nil {
		return nil, errors.New("[sessions.NewSecureStore] cipher is required")
	}
	return &SecureStore{inner: inner, cipher: cipher}, nil
}

// Get retrieves and decrypts the entry under key.
func (s *SecureStore) Get(key string) ([]byte, error) {
	lock := s.lockFor(key)
	lock.RLock()
	ciphertext, err := s.inner.Get(key)
	lock.RUnlock()
	if err != nil {
		return nil, err
	}

	plaintext, err := s.cipher.Decrypt(ciphertext)
	if err != nil {
		// Key material invalidated or payload corrupted. The entry is
		// unrecoverable either way; drop it and report absence.
		log.Warn().Str("key", key).Int("ciphertext_len", len(ciphertext)).
			Msg("session entry failed to decrypt, discarding")
		lock.Lock()
		_ = s.inner.Delete(key)
		lock.Unlock()
		return nil, ErrNotFound
	}
	return plaintext, nil
}

// Put encrypts and stores the value under key.
func (s *SecureStore) Put(key string, value []byte) error {
	ciphertext, err := s.cipher.Encrypt(value)
	if err != nil {
		return errors.Wrap(err, "[SecureStore.Put] encrypt")
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.inner.Put(key, ciphertext)
}

// Delete removes the entry under key.
func (s *SecureStore) Delete(key string) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.inner.Delete(key)
}

func (s *SecureStore) lockFor(key string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

package sessions

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// ErrCipherUnavailable signals a recoverable cipher failure: the underlying
// key material was invalidated or the payload cannot be authenticated. The
// SecureStore maps it to an absent entry. Misuse of the cipher (bad
// construction parameters) surfaces as a distinct, fatal error instead.
var ErrCipherUnavailable = errors.New("cipher unavailable")

// Cipher is the secure-storage collaborator: it encrypts session entries
// before they reach the inner store and decrypts them on the way out.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// KeyProvider supplies the symmetric key material for the AES-GCM cipher.
type KeyProvider interface {
	// Key returns the key material. ErrCipherUnavailable when the backing
	// key storage cannot produce it.
	Key() ([]byte, error)
}

// StaticKeyProvider wraps fixed key material, primarily for tests and for
// callers that manage key storage themselves.
type StaticKeyProvider []byte

func (p StaticKeyProvider) Key() ([]byte, error) {
	if len(p) == 0 {
		return nil, ErrCipherUnavailable
	}
	return p, nil
}

const (
	pbkdf2Iterations = 10000
	derivedKeyLength = 32
)

// aes-gcm with a pbkdf2-derived 256-bit key; nonce is prepended to the sealed payload
type aesGCMCipher struct {
	keys KeyProvider
	salt []byte
}

// NewAESGCMCipher creates an AES-256-GCM Cipher deriving its key from the
// provider's material via PBKDF2 with the given salt.
func NewAESGCMCipher(keys KeyProvider, salt []byte) (Cipher, error) {
	if keys == nil {
		return nil, errors.New("[sessions.NewAESGCMCipher] key provider is required")
	}
	if len(salt) == 0 {
		return nil, errors.New("[sessions.NewAESGCMCipher] salt is required")
	}
	return &aesGCMCipher{keys: keys, salt: salt}, nil
}

func (c *aesGCMCipher) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := c.sealer()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "[aesGCMCipher.Encrypt] generating nonce")
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *aesGCMCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := c.sealer()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.Wrap(ErrCipherUnavailable, "ciphertext too short")
	}
	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, errors.Wrap(ErrCipherUnavailable, err.Error())
	}
	return plaintext, nil
}

func (c *aesGCMCipher) sealer() (cipher.AEAD, error) {
	material, err := c.keys.Key()
	if err != nil {
		return nil, errors.Wrap(ErrCipherUnavailable, err.Error())
	}
	key := pbkdf2.Key(material, c.salt, pbkdf2Iterations, derivedKeyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "[aesGCMCipher] creating cipher")
	}
	return cipher.NewGCM(block)
}

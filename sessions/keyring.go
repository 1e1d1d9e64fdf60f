package sessions

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

const keyringEntropyBytes = 32

// KeyringProvider sources the cipher key material from the operating
// system's credential store (Keychain, Secret Service, Windows Credential
// Manager). On first use it generates and stores a random key; afterwards
// the same key is returned for the service/user pair.
//
// When the platform keyring is locked or unavailable the provider reports
// ErrCipherUnavailable, which the SecureStore treats as "entries absent" -
// the session degrades to signed-out rather than failing.
type KeyringProvider struct {
	Service string
	User    string
}

// NewKeyringProvider creates a keyring-backed KeyProvider.
func NewKeyringProvider(service, user string) (*KeyringProvider, error) {
	if service == "" || user == "" {
		return nil, errors.New("[sessions.NewKeyringProvider] service and user are required")
	}
	return &KeyringProvider{Service: service, User: user}, nil
}

// Key implements KeyProvider.
func (p *KeyringProvider) Key() ([]byte, error) {
	secret, err := keyring.Get(p.Service, p.User)
	if err == nil {
		material, decodeErr := base64.StdEncoding.DecodeString(secret)
		if decodeErr != nil {
			return nil, errors.Wrap(ErrCipherUnavailable, "stored key material is corrupt")
		}
		return material, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, errors.Wrap(ErrCipherUnavailable, err.Error())
	}

	material := make([]byte, keyringEntropyBytes)
	if _, err := rand.Read(material); err != nil {
		return nil, errors.Wrap(err, "[KeyringProvider.Key] generating key material")
	}
	if err := keyring.Set(p.Service, p.User, base64.StdEncoding.EncodeToString(material)); err != nil {
		return nil, errors.Wrap(ErrCipherUnavailable, err.Error())
	}
	return material, nil
}

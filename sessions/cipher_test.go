package sessions_test

import (
	"testing"

	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/stretchr/testify/require"
)

func TestAESGCMCipherRoundTrip(t *testing.T) {
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("material"), []byte("salt"))
	require.NoError(t, err)

	ciphertext, err := cipher.Encrypt([]byte("plaintext value"))
	require.NoError(t, err)
	require.NotEqual(t, "plaintext value", string(ciphertext))

	plaintext, err := cipher.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "plaintext value", string(plaintext))
}

func TestAESGCMCipherNoncesDiffer(t *testing.T) {
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("material"), []byte("salt"))
	require.NoError(t, err)

	first, err := cipher.Encrypt([]byte("same input"))
	require.NoError(t, err)
	second, err := cipher.Encrypt([]byte("same input"))
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestAESGCMCipherTamperDetection(t *testing.T) {
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("material"), []byte("salt"))
	require.NoError(t, err)

	ciphertext, err := cipher.Encrypt([]byte("value"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xff

	_, err = cipher.Decrypt(ciphertext)
	require.ErrorIs(t, err, sessions.ErrCipherUnavailable)
}

func TestAESGCMCipherTruncatedCiphertext(t *testing.T) {
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("material"), []byte("salt"))
	require.NoError(t, err)

	_, err = cipher.Decrypt([]byte{0x01, 0x02})
	require.ErrorIs(t, err, sessions.ErrCipherUnavailable)
}

func TestCipherUnavailableKeyProvider(t *testing.T) {
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider(nil), []byte("salt"))
	require.NoError(t, err)

	_, err = cipher.Encrypt([]byte("value"))
	require.ErrorIs(t, err, sessions.ErrCipherUnavailable)
}

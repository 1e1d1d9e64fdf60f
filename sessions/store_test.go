package sessions_test

import (
	"sync"
	"testing"

	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/stretchr/testify/require"
)

func newSecureStore(t *testing.T) *sessions.SecureStore {
	t.Helper()
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("test-key-material"), []byte("test-salt"))
	require.NoError(t, err)
	store, err := sessions.NewSecureStore(sessions.NewMemoryStore(), cipher)
	require.NoError(t, err)
	return store
}

func TestSecureStoreRoundTrip(t *testing.T) {
	store := newSecureStore(t)

	require.NoError(t, store.Put(sessions.KeyTokenSet, []byte(`{"access_token":"AT1"}`)))

	got, err := store.Get(sessions.KeyTokenSet)
	require.NoError(t, err)
	require.Equal(t, `{"access_token":"AT1"}`, string(got))
}

func TestSecureStoreEncryptsAtRest(t *testing.T) {
	inner := sessions.NewMemoryStore()
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("test-key-material"), []byte("test-salt"))
	require.NoError(t, err)
	store, err := sessions.NewSecureStore(inner, cipher)
	require.NoError(t, err)

	require.NoError(t, store.Put(sessions.KeyTokenSet, []byte("secret-payload")))

	raw, err := inner.Get(sessions.KeyTokenSet)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret-payload")
}

func TestSecureStoreMissingKey(t *testing.T) {
	store := newSecureStore(t)

	_, err := store.Get(sessions.KeyPendingRequest)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestSecureStoreDecryptFailureTreatedAsAbsent(t *testing.T) {
	inner := sessions.NewMemoryStore()
	cipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("key-one"), []byte("test-salt"))
	require.NoError(t, err)
	store, err := sessions.NewSecureStore(inner, cipher)
	require.NoError(t, err)
	require.NoError(t, store.Put(sessions.KeyTokenSet, []byte("payload")))

	// Same inner store, different key material: decrypt must fail closed.
	otherCipher, err := sessions.NewAESGCMCipher(sessions.StaticKeyProvider("key-two"), []byte("test-salt"))
	require.NoError(t, err)
	degraded, err := sessions.NewSecureStore(inner, otherCipher)
	require.NoError(t, err)

	_, err = degraded.Get(sessions.KeyTokenSet)
	require.ErrorIs(t, err, sessions.ErrNotFound)

	// The unreadable entry is discarded, not left to fail again.
	_, err = inner.Get(sessions.KeyTokenSet)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestSecureStoreConcurrentSameKey(t *testing.T) {
	store := newSecureStore(t)
	require.NoError(t, store.Put(sessions.KeyTokenSet, []byte("initial")))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Put(sessions.KeyTokenSet, []byte("replacement-value"))
		}()
		go func() {
			defer wg.Done()
			value, err := store.Get(sessions.KeyTokenSet)
			if err != nil {
				return
			}
			// Never a partial value.
			s := string(value)
			require.True(t, s == "initial" || s == "replacement-value", "got %q", s)
		}()
	}
	wg.Wait()
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := sessions.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(sessions.KeyProviderMetadata, []byte("ciphertext-bytes")))

	got, err := store.Get(sessions.KeyProviderMetadata)
	require.NoError(t, err)
	require.Equal(t, "ciphertext-bytes", string(got))

	require.NoError(t, store.Delete(sessions.KeyProviderMetadata))
	_, err = store.Get(sessions.KeyProviderMetadata)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestFileStoreDeleteAbsentKey(t *testing.T) {
	store, err := sessions.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Delete("never-existed"))
}

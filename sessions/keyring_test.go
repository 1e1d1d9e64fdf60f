package sessions_test

import (
	"testing"

	"github.com/jrsteele09/go-oidc-client/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringProviderGeneratesAndReusesKey(t *testing.T) {
	keyring.MockInit()

	provider, err := sessions.NewKeyringProvider("oidc-client-test", "session-key")
	require.NoError(t, err)

	key, err := provider.Key()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	// A second provider over the same service/user sees the stored key.
	again, err := sessions.NewKeyringProvider("oidc-client-test", "session-key")
	require.NoError(t, err)
	sameKey, err := again.Key()
	require.NoError(t, err)
	assert.Equal(t, key, sameKey)
}

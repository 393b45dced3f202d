package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherelay/internal/crypto"
	"cipherelay/internal/services/identity"
	"cipherelay/internal/store"
)

const strongPass = "Correct-Horse-9"

func TestGenerateIdentity_PersistsAndFingerprints(t *testing.T) {
	svc := identity.New(store.NewIdentityFileStore(t.TempDir()))

	keys, fp, err := svc.GenerateIdentity(strongPass)
	require.NoError(t, err)
	assert.Len(t, string(fp), 20)

	loaded, err := svc.LoadIdentity(strongPass)
	require.NoError(t, err)
	assert.Equal(t, keys, loaded)

	again, err := svc.FingerprintIdentity(strongPass)
	require.NoError(t, err)
	assert.Equal(t, fp, again)

	pub, err := crypto.ParsePublicKey(identity.PublicKey(keys))
	require.NoError(t, err)
	assert.Equal(t, keys.XPub, pub)
}

func TestGenerateIdentity_WeakPassphrase(t *testing.T) {
	svc := identity.New(store.NewIdentityFileStore(t.TempDir()))
	for _, p := range []string{"short", "alllowercase-123", "NoDigitsHere!!", "NoSymbols12345"} {
		_, _, err := svc.GenerateIdentity(p)
		assert.ErrorIs(t, err, identity.ErrWeakPassphrase, p)
	}
}

package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cipherelay/internal/app"
	"cipherelay/internal/crypto"
	"cipherelay/internal/domain"
)

const testPassphrase = "Str0ng-Passphrase!"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func startRelay(t *testing.T) string {
	t.Helper()
	cfg := app.DefaultServerConfig()
	cfg.DBPath = ""
	cfg.TokenSecret = "test-secret"
	cfg.BcryptCost = bcrypt.MinCost
	srv, err := app.NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.History.Run(ctx) }()
	hs := httptest.NewServer(srv.Edge.Handler())
	t.Cleanup(func() {
		hs.Close()
		cancel()
	})
	return hs.URL
}

func TestInitAndFingerprint(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, "--home", home, "-p", testPassphrase, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Identity created.")

	fp, err := run(t, "--home", home, "-p", testPassphrase, "fingerprint")
	require.NoError(t, err)
	assert.Contains(t, out, fp[len("Fingerprint: "):len(fp)-1])

	_, err = run(t, "--home", home, "-p", "Wrong-Passphrase1!", "fingerprint")
	assert.Error(t, err)
}

func TestInit_RequiresStrongPassphrase(t *testing.T) {
	_, err := run(t, "--home", t.TempDir(), "init")
	assert.ErrorIs(t, err, errNoPassphrase)

	_, err = run(t, "--home", t.TempDir(), "-p", "weak", "init")
	assert.Error(t, err)
}

func TestRegisterSendAndDirectory(t *testing.T) {
	url := startRelay(t)
	t.Setenv("CIPHERELAY_PASSWORD", "password123")
	alice, bob := t.TempDir(), t.TempDir()
	as := func(home, user string, args ...string) (string, error) {
		return run(t, append([]string{"--home", home, "--server", url, "-p", testPassphrase, "-u", user}, args...)...)
	}

	for home, user := range map[string]string{alice: "alice", bob: "bob"} {
		_, err := as(home, user, "init")
		require.NoError(t, err)
		out, err := as(home, user, "register", user)
		require.NoError(t, err)
		assert.Contains(t, out, "Registered "+user)
	}

	out, err := as(alice, "alice", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "bob")
	assert.NotContains(t, out, "alice")

	key, err := as(alice, "alice", "keys", "bob")
	require.NoError(t, err)
	_, err = crypto.ParsePublicKey(key[:len(key)-1])
	assert.NoError(t, err)

	out, err = as(alice, "alice", "send", "--seal", "bob", "hello", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "bob is offline")

	out, err = as(alice, "alice", "send", "--all", "anyone?")
	require.NoError(t, err)
	assert.Contains(t, out, "to 0 user(s)")

	_, err = as(alice, "alice", "send", "--all", "--seal", "nope")
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		out, err := as(alice, "alice", "history")
		return err == nil && strings.Contains(out, "alice (all): anyone?")
	}, 3*time.Second, 20*time.Millisecond)
	out, err = as(bob, "bob", "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "alice: [sealed] hello bob")

	out, err = as(bob, "bob", "login", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as bob")

	out, err = as(bob, "bob", "online")
	require.NoError(t, err)
	assert.Contains(t, out, "TRANSPORT")
}

func TestCommands_NeedStoredProfile(t *testing.T) {
	url := startRelay(t)
	_, err := run(t, "--home", t.TempDir(), "--server", url, "-p", testPassphrase, "-u", "carol", "users")
	assert.ErrorIs(t, err, errNoProfile)

	_, err = run(t, "--home", t.TempDir(), "--server", url, "-p", testPassphrase, "-u", "", "online")
	assert.ErrorIs(t, err, errNoUsername)
}

func TestSealedPayloads(t *testing.T) {
	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	keys := &domain.IdentityKeys{XPub: pub, XPriv: priv}

	sealed, err := sealPayload(crypto.B64(pub.Slice()), "secret")
	require.NoError(t, err)
	require.True(t, len(sealed) > len(sealedPrefix))

	text, isSealed, err := openPayload(keys, sealed)
	require.NoError(t, err)
	assert.True(t, isSealed)
	assert.Equal(t, "secret", text)

	_, _, err = openPayload(nil, sealed)
	assert.ErrorIs(t, err, crypto.ErrOpen)

	text, isSealed, err = openPayload(nil, "plain text")
	require.NoError(t, err)
	assert.False(t, isSealed)
	assert.Equal(t, "plain text", text)

	_, err = sealPayload("not a key", "x")
	assert.ErrorIs(t, err, crypto.ErrBadPublicKey)
}

func TestFormatEnvelope(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		env  domain.Envelope
		want string
	}{
		{"direct", domain.Envelope{Type: domain.EnvelopeMessage, From: "bob", To: "alice", Payload: "hi", Timestamp: ts}, "bob: hi"},
		{"broadcast", domain.Envelope{Type: domain.EnvelopeMessage, From: "bob", Payload: "hi", Timestamp: ts}, "bob (all): hi"},
		{"unreadable", domain.Envelope{Type: domain.EnvelopeMessage, From: "bob", To: "alice", Payload: sealedPrefix + "AAAA"}, "cannot open"},
		{"error", domain.ErrorEnvelope("Recipient offline"), "error: Recipient offline"},
		{"system", domain.SystemEnvelope("welcome"), "* welcome"},
		{"ack offline", domain.Envelope{Type: domain.EnvelopeSent}, "(recipient offline)"},
		{"ack broadcast", domain.Envelope{Type: domain.EnvelopeSent, Broadcast: true, DeliveredCount: 2}, "(sent to 2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, formatEnvelope(nil, tt.env), tt.want)
		})
	}
}

package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cipherelay/internal/domain"
	"cipherelay/internal/services/auth"
	"cipherelay/internal/store"
)

func newService(t *testing.T) (*auth.Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	svc, err := auth.New(mem, bcrypt.MinCost, zerolog.Nop())
	require.NoError(t, err)
	return svc, mem
}

func TestRegister_ThenLogin_OK(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, "alice", "correct-horse", "pk", true)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("alice"), acct.Username)
	assert.NotEqual(t, "correct-horse", acct.PasswordHash)
	assert.NotEmpty(t, acct.ID)

	got, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name, user, pass, key string
		want                  error
	}{
		{"short username", "al", "password1", "pk", auth.ErrUsernameLength},
		{"long username", strings.Repeat("a", 51), "password1", "pk", auth.ErrUsernameLength},
		{"bad characters", "al ice", "password1", "pk", auth.ErrUsernameFormat},
		{"short password", "alice", "short", "pk", auth.ErrPasswordLength},
		{"missing key", "alice", "password1", "", auth.ErrMissingPublicKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.user, tc.pass, tc.key, true)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegister_DuplicateRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "password1", "pk", true)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "password2", "pk", true)
	require.ErrorIs(t, err, auth.ErrUsernameTaken)

	reason, ok := domain.RejectionReason(err)
	require.True(t, ok)
	assert.Contains(t, reason, "already registered")
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "password1", "pk", true)
	require.NoError(t, err)

	_, errWrong := svc.Login(ctx, "alice", "password2")
	_, errUnknown := svc.Login(ctx, "bob", "password1")
	assert.ErrorIs(t, errWrong, auth.ErrInvalidLogin)
	assert.ErrorIs(t, errUnknown, auth.ErrInvalidLogin)
}

func TestVerifyCredentials_Modes(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	id, err := svc.VerifyCredentials(ctx, domain.AuthModeSignup, "alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("alice"), id)

	id, err = svc.VerifyCredentials(ctx, domain.AuthModeLogin, "alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("alice"), id)

	_, err = svc.VerifyCredentials(ctx, domain.AuthModeSignup, "alice", "password1")
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)

	_, err = svc.VerifyCredentials(ctx, domain.AuthModeToken, "alice", "password1")
	assert.ErrorIs(t, err, auth.ErrUnsupportedMode)
}

func TestDirectory_ExcludesCaller(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		_, err := svc.Register(ctx, u, "password1", "pk-"+u, true)
		require.NoError(t, err)
	}

	list, err := svc.Directory(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.Identity("alice"), list[0].Username)
	assert.Equal(t, domain.Identity("carol"), list[1].Username)
}

func TestTokens_IssueVerify(t *testing.T) {
	svc, mem := newService(t)
	_, err := svc.Register(context.Background(), "alice", "password1", "pk", true)
	require.NoError(t, err)

	tokens, err := auth.NewTokens("secret", time.Hour, mem)
	require.NoError(t, err)

	tok, expires, err := tokens.IssueToken("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	id, err := tokens.VerifyToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("alice"), id)
}

func TestTokens_Rejections(t *testing.T) {
	svc, mem := newService(t)
	_, err := svc.Register(context.Background(), "alice", "password1", "pk", true)
	require.NoError(t, err)
	ctx := context.Background()

	tokens, err := auth.NewTokens("secret", time.Hour, mem)
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.VerifyToken(ctx, "not-a-token")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := auth.NewTokens("other", time.Hour, mem)
		require.NoError(t, err)
		tok, _, err := other.IssueToken("alice")
		require.NoError(t, err)
		_, err = tokens.VerifyToken(ctx, tok)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		tok, _, err := tokens.IssueToken("alice")
		require.NoError(t, err)
		late, err := auth.NewTokens("secret", time.Hour, mem)
		require.NoError(t, err)
		late.SetNow(func() time.Time { return time.Now().Add(2 * time.Hour) })
		_, err = late.VerifyToken(ctx, tok)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
		reason, ok := domain.RejectionReason(err)
		require.True(t, ok)
		assert.Equal(t, auth.ErrInvalidToken.Reason, reason)
	})

	t.Run("unknown account", func(t *testing.T) {
		tok, _, err := tokens.IssueToken("ghost")
		require.NoError(t, err)
		_, err = tokens.VerifyToken(ctx, tok)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestNewTokens_RequiresSecret(t *testing.T) {
	_, err := auth.NewTokens("", time.Hour, nil)
	assert.ErrorIs(t, err, auth.ErrNoSecret)
}

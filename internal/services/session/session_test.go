package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cipherelay/internal/domain"
	"cipherelay/internal/registry"
	"cipherelay/internal/services/auth"
	"cipherelay/internal/services/router"
	"cipherelay/internal/services/session"
	"cipherelay/internal/store"
	"cipherelay/internal/testutil"
)

type harness struct {
	reg    *registry.Registry
	auth   *auth.Service
	tokens *auth.Tokens
	deps   session.Deps
}

func newHarness(t *testing.T, broadcast bool) *harness {
	t.Helper()
	mem := store.NewMemoryStore()
	svc, err := auth.New(mem, bcrypt.MinCost, zerolog.Nop())
	require.NoError(t, err)
	tokens, err := auth.NewTokens("test-secret", time.Hour, mem)
	require.NoError(t, err)
	reg := registry.New(zerolog.Nop())
	rt := router.New(reg, nil, router.Options{Broadcast: broadcast}, zerolog.Nop())
	return &harness{
		reg:    reg,
		auth:   svc,
		tokens: tokens,
		deps: session.Deps{
			Gate:     svc,
			Tokens:   tokens,
			Registry: reg,
			Router:   rt,
			Log:      zerolog.Nop(),
		},
	}
}

func (h *harness) signup(t *testing.T, username string) {
	t.Helper()
	_, err := h.auth.Register(context.Background(), username, "password1", "pk", false)
	require.NoError(t, err)
}

func run(ctx context.Context, s *session.Session) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	return errc
}

func wait(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

// handshake answers the interactive prompts on conn.
func handshake(t *testing.T, conn *testutil.FakeConn, mode, creds string) domain.Envelope {
	t.Helper()
	require.Equal(t, domain.EnvelopeAuthMode, conn.Next(t).Type)
	conn.Push(mode)
	require.Equal(t, domain.EnvelopeSendCredentials, conn.Next(t).Type)
	conn.Push(creds)
	return conn.Next(t)
}

// connect authenticates username on a fresh conn and waits until it is registered.
func (h *harness) connect(t *testing.T, ctx context.Context, username string) (*testutil.FakeConn, <-chan error) {
	t.Helper()
	conn := testutil.NewFakeConn(username)
	errc := run(ctx, session.New(conn, "", h.deps))
	env := handshake(t, conn, "LOGIN", username+"||password1")
	require.Equal(t, domain.EnvelopeAuthSuccess, env.Type, env.Reason)
	require.Eventually(t, func() bool {
		c, ok := h.reg.Lookup(domain.Identity(username))
		return ok && c == domain.Conn(conn)
	}, 2*time.Second, 5*time.Millisecond)
	return conn, errc
}

func TestRun_SignupRegistersIdentity(t *testing.T) {
	h := newHarness(t, false)
	conn := testutil.NewFakeConn("c1")
	s := session.New(conn, "", h.deps)
	errc := run(context.Background(), s)

	env := handshake(t, conn, "SIGNUP", "alice||password1")
	require.Equal(t, domain.EnvelopeAuthSuccess, env.Type)
	assert.Equal(t, domain.Identity("alice"), env.Identity)
	assert.Equal(t, domain.AuthModeSignup, env.Mode)

	require.Eventually(t, func() bool { return h.reg.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.Identity{"alice"}, h.reg.Snapshot())
	assert.Equal(t, session.StateRelaying, s.State())
	assert.Equal(t, domain.Identity("alice"), s.Identity())

	conn.Hangup()
	require.NoError(t, wait(t, errc))
	assert.Equal(t, session.StateClosed, s.State())
	assert.True(t, conn.Closed())
	assert.Zero(t, h.reg.Len())
}

func TestRun_HandshakeRejections(t *testing.T) {
	cases := []struct {
		name, mode, creds string
		wantMode          domain.AuthMode
		wantReason        string
	}{
		{"wrong password", "LOGIN", "alice||password2", domain.AuthModeLogin, "Invalid username or password"},
		{"unknown user", "LOGIN", "mallory||password1", domain.AuthModeLogin, "Invalid username or password"},
		{"taken username", "SIGNUP", "alice||password1", domain.AuthModeSignup, "Username already registered"},
		{"bad format", "LOGIN", "alice-no-separator", domain.AuthModeLogin, "Invalid credential format."},
		{"weak password", "SIGNUP", "bobby||short", domain.AuthModeSignup, "Password must be between 8 and 72 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.signup(t, "alice")
			conn := testutil.NewFakeConn("c1")
			errc := run(context.Background(), session.New(conn, "", h.deps))

			env := handshake(t, conn, tc.mode, tc.creds)
			assert.Equal(t, domain.EnvelopeAuthFail, env.Type)
			assert.Equal(t, tc.wantMode, env.Mode)
			assert.Equal(t, tc.wantReason, env.Reason)

			assert.ErrorIs(t, wait(t, errc), session.ErrAuthFailed)
			assert.True(t, conn.Closed())
			assert.Zero(t, h.reg.Len())
		})
	}
}

func TestRun_DuplicateSignupLeavesRegistryAlone(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, "alice")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, _ := h.connect(t, ctx, "alice")

	intruder := testutil.NewFakeConn("intruder")
	errc := run(ctx, session.New(intruder, "", h.deps))
	env := handshake(t, intruder, "SIGNUP", "alice||password9")
	assert.Equal(t, domain.EnvelopeAuthFail, env.Type)
	assert.Contains(t, env.Reason, "already registered")
	assert.ErrorIs(t, wait(t, errc), session.ErrAuthFailed)

	got, ok := h.reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, alice, got)
	assert.False(t, alice.Closed())
}

func TestRun_UnknownModeRejectedBeforeCredentials(t *testing.T) {
	h := newHarness(t, false)
	conn := testutil.NewFakeConn("c1")
	errc := run(context.Background(), session.New(conn, "", h.deps))

	require.Equal(t, domain.EnvelopeAuthMode, conn.Next(t).Type)
	conn.Push("REGISTER")
	env := conn.Next(t)
	assert.Equal(t, domain.EnvelopeAuthFail, env.Type)
	assert.Equal(t, "Unknown mode.", env.Reason)
	assert.ErrorIs(t, wait(t, errc), session.ErrAuthFailed)
}

func TestRun_TokenHandshake(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, "alice")
	tok, _, err := h.tokens.IssueToken("alice")
	require.NoError(t, err)

	conn := testutil.NewFakeConnWithCodec("c1", transportJSON())
	errc := run(context.Background(), session.New(conn, tok, h.deps))

	env := conn.Next(t)
	require.Equal(t, domain.EnvelopeAuthSuccess, env.Type)
	assert.Equal(t, domain.AuthModeToken, env.Mode)
	assert.Equal(t, domain.Identity("alice"), env.Identity)
	require.Eventually(t, func() bool { return h.reg.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Hangup()
	require.NoError(t, wait(t, errc))
}

func TestRun_BadTokenRejected(t *testing.T) {
	h := newHarness(t, false)
	conn := testutil.NewFakeConnWithCodec("c1", transportJSON())
	errc := run(context.Background(), session.New(conn, "forged", h.deps))

	env := conn.Next(t)
	assert.Equal(t, domain.EnvelopeAuthFail, env.Type)
	assert.Equal(t, auth.ErrInvalidToken.Reason, env.Reason)
	assert.ErrorIs(t, wait(t, errc), session.ErrAuthFailed)
	assert.True(t, conn.Closed())
}

func TestRun_SecondLoginEvictsFirst(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, "alice")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, firstErr := h.connect(t, ctx, "alice")
	second, _ := h.connect(t, ctx, "alice")

	first.WaitClosed(t)
	assert.Equal(t, domain.EnvelopeSystem, first.NextOfType(t, domain.EnvelopeSystem).Type)
	require.NoError(t, wait(t, firstErr))

	// The evicted session's cleanup must not remove its successor.
	got, ok := h.reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.False(t, second.Closed())
}

func TestRun_ExactlyOneReplyPerFrame(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, "alice")
	h.signup(t, "bobby")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice, errc := h.connect(t, ctx, "alice")
	alice.Push("/to bobby are you there")
	alice.Push("/to")
	alice.Push("hello everyone")

	first := alice.Next(t)
	assert.Equal(t, domain.EnvelopeSent, first.Type)
	assert.False(t, first.Delivered)
	assert.Equal(t, domain.EnvelopeError, alice.Next(t).Type)
	broadcastErr := alice.Next(t)
	assert.Equal(t, domain.EnvelopeError, broadcastErr.Type)
	assert.Contains(t, broadcastErr.Reason, "Broadcast is disabled")

	bob, _ := h.connect(t, ctx, "bobby")

	alice.Push("/to bobby hi")
	second := alice.Next(t)
	assert.Equal(t, domain.EnvelopeSent, second.Type)
	assert.True(t, second.Delivered)

	msg := bob.NextOfType(t, domain.EnvelopeMessage)
	assert.Equal(t, domain.Identity("alice"), msg.From)
	assert.Equal(t, "hi", msg.Payload)
	assert.Equal(t, second.MessageID, msg.MessageID)

	alice.Hangup()
	require.NoError(t, wait(t, errc))

	var sent, errs int
	for _, env := range alice.Sent() {
		switch env.Type {
		case domain.EnvelopeSent:
			sent++
		case domain.EnvelopeError:
			errs++
		}
	}
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, errs)
}

func TestRun_BroadcastToOthers(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conns := map[string]*testutil.FakeConn{}
	for _, u := range []string{"alice", "bobby", "carol"} {
		h.signup(t, u)
		conns[u], _ = h.connect(t, ctx, u)
	}

	conns["alice"].Push("hello all")
	ack := conns["alice"].NextOfType(t, domain.EnvelopeSent)
	assert.Equal(t, 2, ack.DeliveredCount)
	for _, u := range []string{"bobby", "carol"} {
		msg := conns[u].NextOfType(t, domain.EnvelopeMessage)
		assert.Equal(t, domain.Identity("alice"), msg.From)
		assert.Equal(t, "hello all", msg.Payload)
	}
}

func TestRun_ExitCommandEndsSession(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, "alice")
	alice, errc := h.connect(t, context.Background(), "alice")

	alice.Push("/exit")
	require.NoError(t, wait(t, errc))
	assert.True(t, alice.Closed())
	assert.Zero(t, h.reg.Len())
}

func TestRun_ContextCancelClosesSession(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, "alice")
	ctx, cancel := context.WithCancel(context.Background())
	alice, errc := h.connect(t, ctx, "alice")

	cancel()
	require.NoError(t, wait(t, errc))
	assert.True(t, alice.Closed())
	assert.Zero(t, h.reg.Len())
}

func TestRun_HandshakeTimeout(t *testing.T) {
	h := newHarness(t, false)
	h.deps.HandshakeTimeout = 50 * time.Millisecond
	conn := testutil.NewFakeConn("idle")
	errc := run(context.Background(), session.New(conn, "", h.deps))

	require.Equal(t, domain.EnvelopeAuthMode, conn.Next(t).Type)
	assert.Error(t, wait(t, errc))
	assert.True(t, conn.Closed())
}

type panicGate struct{}

func (panicGate) VerifyCredentials(context.Context, domain.AuthMode, string, string) (domain.Identity, error) {
	panic("gate exploded")
}

type brokenGate struct{}

func (brokenGate) VerifyCredentials(context.Context, domain.AuthMode, string, string) (domain.Identity, error) {
	return "", errors.New("database unavailable")
}

func TestRun_PanicIsRecovered(t *testing.T) {
	h := newHarness(t, false)
	h.deps.Gate = panicGate{}
	conn := testutil.NewFakeConn("c1")
	errc := run(context.Background(), session.New(conn, "", h.deps))

	require.Equal(t, domain.EnvelopeAuthMode, conn.Next(t).Type)
	conn.Push("LOGIN")
	require.Equal(t, domain.EnvelopeSendCredentials, conn.Next(t).Type)
	conn.Push("alice||password1")

	assert.ErrorIs(t, wait(t, errc), session.ErrPanic)
	assert.True(t, conn.Closed())
	assert.Zero(t, h.reg.Len())
}

func TestRun_GateFailureIsInternalError(t *testing.T) {
	h := newHarness(t, false)
	h.deps.Gate = brokenGate{}
	conn := testutil.NewFakeConn("c1")
	errc := run(context.Background(), session.New(conn, "", h.deps))

	env := handshake(t, conn, "LOGIN", "alice||password1")
	assert.Equal(t, domain.EnvelopeAuthFail, env.Type)
	assert.Equal(t, "internal error", env.Reason)
	assert.ErrorIs(t, wait(t, errc), session.ErrAuthFailed)
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]session.State{
		{session.StateAccepted, session.StateAuthenticating},
		{session.StateAuthenticating, session.StateRelaying},
		{session.StateAuthenticating, session.StateClosed},
		{session.StateRelaying, session.StateRelaying},
		{session.StateRelaying, session.StateClosed},
	}
	for _, tr := range allowed {
		assert.True(t, session.CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]session.State{
		{session.StateAccepted, session.StateRelaying},
		{session.StateRelaying, session.StateAuthenticating},
		{session.StateClosed, session.StateAccepted},
		{session.StateClosed, session.StateRelaying},
		{session.StateClosed, session.StateClosed},
	}
	for _, tr := range denied {
		assert.False(t, session.CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
	assert.Equal(t, "relaying", session.StateRelaying.String())
}

func TestRun_OversizedFrameAnsweredSessionSurvives(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, "alice")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, errc := h.connect(t, ctx, "alice")

	alice.PushErr(domain.ErrFrameTooLarge)
	env := alice.Next(t)
	assert.Equal(t, domain.EnvelopeError, env.Type)
	assert.Equal(t, "Message too large.", env.Reason)

	alice.Push("/to bobby still here")
	ack := alice.Next(t)
	assert.Equal(t, domain.EnvelopeSent, ack.Type)
	got, ok := h.reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, alice, got)

	alice.Hangup()
	require.NoError(t, wait(t, errc))
}

func TestRun_OversizedCredentialsRejected(t *testing.T) {
	h := newHarness(t, false)
	conn := testutil.NewFakeConn("c1")
	errc := run(context.Background(), session.New(conn, "", h.deps))

	require.Equal(t, domain.EnvelopeAuthMode, conn.Next(t).Type)
	conn.Push("LOGIN")
	require.Equal(t, domain.EnvelopeSendCredentials, conn.Next(t).Type)
	conn.PushErr(domain.ErrFrameTooLarge)

	env := conn.Next(t)
	assert.Equal(t, domain.EnvelopeAuthFail, env.Type)
	assert.Equal(t, "Invalid credential format.", env.Reason)
	assert.ErrorIs(t, wait(t, errc), session.ErrAuthFailed)
}

func TestRun_ClosedBeforeRegisterKeepsLiveSession(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, "alice")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	live, _ := h.connect(t, ctx, "alice")

	tok, _, err := h.tokens.IssueToken("alice")
	require.NoError(t, err)
	late := testutil.NewFakeConnWithCodec("late", transportJSON())
	// The handle dies right after auth_success is queued, as when the
	// handshake timer fires at that moment.
	late.CloseAfter(domain.EnvelopeAuthSuccess)

	require.NoError(t, wait(t, run(ctx, session.New(late, tok, h.deps))))

	got, ok := h.reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, live, got)
	assert.False(t, live.Closed())
}

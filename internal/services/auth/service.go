package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"cipherelay/internal/domain"
	"cipherelay/internal/store"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 8
	// bcrypt ignores input beyond this many bytes, so longer passwords are refused.
	maxPasswordLength = 72
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Peer-visible rejections. Compare with errors.Is.
var (
	ErrUsernameTaken  = domain.Reject("Username already registered")
	ErrInvalidLogin   = domain.Reject("Invalid username or password")
	ErrUsernameLength = domain.Reject(fmt.Sprintf(
		"Username must be between %d and %d characters", minUsernameLength, maxUsernameLength))
	ErrUsernameFormat = domain.Reject(
		"Username can only contain letters, numbers, underscores, and hyphens")
	ErrPasswordLength = domain.Reject(fmt.Sprintf(
		"Password must be between %d and %d characters", minPasswordLength, maxPasswordLength))
	ErrMissingPublicKey = domain.Reject("Public key is required")
	ErrUnsupportedMode  = domain.Reject("Unknown mode.")
)

// Service creates and authenticates accounts.
type Service struct {
	accounts domain.AccountStore
	cost     int
	now      func() time.Time
	log      zerolog.Logger
	// dummyHash keeps unknown-user logins as slow as wrong-password ones.
	dummyHash []byte
}

// New returns a Service over accounts hashing with the given bcrypt cost
// (bcrypt.DefaultCost when zero).
func New(accounts domain.AccountStore, cost int, log zerolog.Logger) (*Service, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("cipherelay-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt cost %d: %w", cost, err)
	}
	return &Service{
		accounts:  accounts,
		cost:      cost,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "auth").Logger(),
		dummyHash: dummy,
	}, nil
}

// Register creates a new account. publicKey is required for API signups;
// pass requireKey=false for handshake signups that carry no key.
func (s *Service) Register(
	ctx context.Context,
	username, password, publicKey string,
	requireKey bool,
) (domain.Account, error) {
	if err := validateUsername(username); err != nil {
		return domain.Account{}, err
	}
	if n := len(password); n < minPasswordLength || n > maxPasswordLength {
		return domain.Account{}, ErrPasswordLength
	}
	if requireKey && publicKey == "" {
		return domain.Account{}, ErrMissingPublicKey
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	acct := domain.Account{
		ID:           uuid.NewString(),
		Username:     domain.Identity(username),
		PasswordHash: string(hash),
		PublicKey:    publicKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			return domain.Account{}, ErrUsernameTaken
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.log.Info().Str("username", username).Msg("account registered")
	return acct, nil
}

// Login checks username and password against the directory.
func (s *Service) Login(ctx context.Context, username, password string) (domain.Account, error) {
	acct, ok, err := s.accounts.AccountByUsername(ctx, domain.Identity(username))
	if err != nil {
		return domain.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return domain.Account{}, ErrInvalidLogin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return domain.Account{}, ErrInvalidLogin
	}
	return acct, nil
}

// VerifyCredentials implements domain.CredentialGate.
func (s *Service) VerifyCredentials(
	ctx context.Context,
	mode domain.AuthMode,
	username string,
	password string,
) (domain.Identity, error) {
	var (
		acct domain.Account
		err  error
	)
	switch mode {
	case domain.AuthModeLogin:
		acct, err = s.Login(ctx, username, password)
	case domain.AuthModeSignup:
		acct, err = s.Register(ctx, username, password, "", false)
	default:
		return "", ErrUnsupportedMode
	}
	if err != nil {
		return "", err
	}
	return acct.Username, nil
}

// Directory lists every account except exclude.
func (s *Service) Directory(ctx context.Context, exclude domain.Identity) ([]domain.Account, error) {
	all, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]domain.Account, 0, len(all))
	for _, a := range all {
		if a.Username != exclude {
			out = append(out, a)
		}
	}
	return out, nil
}

// Account returns the account for username.
func (s *Service) Account(ctx context.Context, username domain.Identity) (domain.Account, bool, error) {
	return s.accounts.AccountByUsername(ctx, username)
}

func validateUsername(username string) error {
	if n := len(username); n < minUsernameLength || n > maxUsernameLength {
		return ErrUsernameLength
	}
	if !usernamePattern.MatchString(username) {
		return ErrUsernameFormat
	}
	return nil
}

var _ domain.CredentialGate = (*Service)(nil)

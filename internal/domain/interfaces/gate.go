package interfaces

import (
	"context"
	"time"

	domaintypes "cipherelay/internal/domain/types"
)

// CredentialGate verifies an interactive credential submission. Rejections
// are returned as *types.RejectionError so the reason can reach the peer.
type CredentialGate interface {
	VerifyCredentials(
		ctx context.Context,
		mode domaintypes.AuthMode,
		username string,
		password string,
	) (domaintypes.Identity, error)
}

// TokenVerifier resolves a bearer token to the identity it was issued for.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (domaintypes.Identity, error)
}

// TokenIssuer mints bearer tokens for authenticated identities.
type TokenIssuer interface {
	IssueToken(id domaintypes.Identity) (token string, expires time.Time, err error)
}

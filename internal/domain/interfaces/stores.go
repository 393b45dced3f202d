package interfaces

import (
	"context"

	domaintypes "cipherelay/internal/domain/types"
)

// AccountStore is the server-side user directory.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct domaintypes.Account) error
	AccountByUsername(ctx context.Context, username domaintypes.Identity) (domaintypes.Account, bool, error)
	ListAccounts(ctx context.Context) ([]domaintypes.Account, error)
}

// MessageStore appends relayed messages to durable history.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg domaintypes.Message) error
}

// MessageHistory reads back persisted history visible to one identity:
// messages it sent, messages addressed to it, and broadcasts. Results are
// newest first.
type MessageHistory interface {
	RecentMessages(ctx context.Context, id domaintypes.Identity, limit int) ([]domaintypes.Message, error)
}

// MessageRecorder accepts history records without blocking the caller.
// It reports whether the record was accepted for persistence.
type MessageRecorder interface {
	Record(msg domaintypes.Message) bool
}

// IdentityStore persists a client's long-term key pair.
type IdentityStore interface {
	SaveIdentity(passphrase string, keys domaintypes.IdentityKeys) error
	LoadIdentity(passphrase string) (domaintypes.IdentityKeys, error)
}

// ProfileStore persists per-relay account profiles, including access tokens.
type ProfileStore interface {
	SaveAccountProfile(passphrase string, profile domaintypes.AccountProfile) error
	LoadAccountProfile(
		passphrase string,
		serverURL string,
		username domaintypes.Identity,
	) (domaintypes.AccountProfile, bool, error)
}

package interfaces

import domaintypes "cipherelay/internal/domain/types"

// IdentityService creates, retrieves, and inspects a client's identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.IdentityKeys,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.IdentityKeys, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

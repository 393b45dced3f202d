// Package auth owns the relay's user directory rules: who may sign up, how
// passwords are checked, and how bearer tokens are minted and verified.
//
// Service implements domain.CredentialGate for the interactive handshake and
// backs the HTTP register/login endpoints. Tokens implements
// domain.TokenIssuer and domain.TokenVerifier with HS256 JWTs.
package auth

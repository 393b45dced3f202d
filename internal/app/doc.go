// Package app wires Cipherelay's dependencies.
//
// ServerConfig and ClientConfig carry runtime options (flags with
// CIPHERELAY_* environment defaults). NewServer builds the relay's stores,
// services and network edge; NewClient builds the local stores and API
// client used by the CLI commands.
package app

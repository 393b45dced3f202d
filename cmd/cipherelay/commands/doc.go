// Package commands defines the cipherelay CLI.
//
// Commands
//
//   - serve        Run the relay server (HTTP API, WebSocket and TCP)
//   - init         Create or rotate the local identity key
//   - fingerprint  Print the identity fingerprint
//   - register     Create an account and store its access token
//   - login        Refresh the stored access token
//   - send         Relay one message over WebSocket
//   - listen       Print incoming messages until interrupted
//   - chat         Interactive line-protocol session over TCP
//   - users        List registered users
//   - online       List connected users
//   - keys         Print a user's published public key
//   - history      Print recent messages from the relay's history
//
// # Implementation
//
// Client commands share a dependency graph built by the root command before
// any subcommand runs. serve builds its own graph from server flags.
package commands

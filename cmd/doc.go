// Package cmd implements the osext command-line interface. It provides a
// server command hosting an extension and client commands talking to one.
//
// The package is organized into several subpackages:
//
//   - serve: Starts an extension server with the built-in ping and health
//     actions, an echo action and an optional admin HTTP endpoint
//   - call: Client commands (call, ping, health)
//   - config: Prints the effective configuration as TOML
//   - util: Shared utilities for flags and configuration (internal use)
//
// Configuration is read from flags, OSEXT_ environment variables, .env and
// .env.local files and an optional TOML file given with --config.
//
// See osext -help for a list of all commands.
package cmd

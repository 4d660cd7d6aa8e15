// Package docker runs flamapy inside short-lived Docker containers, for
// hosts that have Docker but no Python toolchain.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Analyzer, a flamapy.Analyzer that executes every operation in a
//     fresh container with the model and configuration directories
//     bind-mounted read-only
//   - Container labels identifying analysis containers, so ones left
//     behind by interrupted sessions can be listed and pruned
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker

// Package nodelink is the panel-side client for game server node agents.
//
// # Overview
//
// A panel manages game servers that run on remote node agents. nodelink is
// the part of the panel that talks to those agents:
//   - Capability tokens: short-lived HS256 JWTs signed with a node's shared
//     secret, scoped to one server and one operation
//   - REST callers: typed wrappers for the node agent HTTP API (servers,
//     power, files, backups, transfers, docker, system)
//   - Session client: a WebSocket client for live console output, stats and
//     power control with authentication, token refresh and reconnects
//
// # Architecture
//
//	┌─────────────────┐
//	│  Panel API      │  nodelink serve
//	│  (Echo REST)    │
//	└────────┬────────┘
//	         │ capability tokens
//	┌────────▼────────┐       ┌─────────────────┐
//	│  Services       │──────►│  Node agent     │
//	│  (REST + WS)    │◄──────┤  (daemon)       │
//	└─────────────────┘       └─────────────────┘
//
// # Getting Started
//
// Write a starter configuration and run the panel API:
//
//	nodelink config init
//	nodelink serve
//
// Attach to a server console:
//
//	nodelink console <server-uuid> --user alice
//
// Configuration is read from nodelink.yaml, a .env file and NL_ prefixed
// environment variables. See internal/config for all settings.
package nodelink

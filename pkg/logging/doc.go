// Package logging provides toolgate's structured logging layer on top of
// the standard library's slog package.
//
// Every log entry carries a subsystem tag ("OAuth", "Registry",
// "MCPClient", ...) so operators can filter connection-lifecycle traffic
// from token-management traffic in aggregated logs. The package exposes
// printf-style helpers because most call sites interpolate identifiers
// (user IDs, server slugs, issuers) into a single human-readable message:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//	logging.Info("OAuth", "exchanged code for token (server=%s)", slug)
//	logging.Error("Store", err, "failed to decrypt tokens for user=%s", userID)
//
// Sensitive material (access tokens, refresh tokens, client secrets, PKCE
// verifiers) must never be logged, at any level. Upstream OAuth error
// bodies are logged at debug level only and never surfaced to callers.
package logging

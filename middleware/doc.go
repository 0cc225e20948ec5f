// Package middleware exposes HTTP adapters for the authkit engine: a
// sliding-window throttle gate for the authentication endpoints and an
// access-token guard for protected routes.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication or throttling logic itself — all decisions are
// delegated to [authkit.Engine].
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make admission decisions beyond pass/reject from the Engine.
package middleware

// Package authkit provides the authentication, session-lifecycle, and
// abuse-throttling core for a user-facing service: credential verification,
// dual-token issuance (short-lived JWT access tokens, long-lived rotating
// refresh tokens), Redis-backed per-device sessions with revocation,
// one-time confirmation and recovery codes, and a sliding-window request
// throttle for the auth endpoints.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator contracts ([UserDirectory], [Notifier]), and value types.
// Session persistence, throttling, and notification dispatch live under
// their own packages and are coordinated only through Engine methods.
//
// # What this package must NOT do
//
//   - Expose Redis clients or storage encodings in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Distinguish expiry from tampering in token failures, or reveal which
//     credential field was wrong on login.
//
// # Failure contract
//
// Expected conditions — bad credentials, expired codes, replayed refresh
// tokens, unknown devices — are typed sentinel errors (see errors.go),
// optionally wrapped in a [FieldError] carrying a field/message pair for
// client display. Only genuine infrastructure faults surface as
// [ErrStoreUnavailable] or unwrapped errors.
package authkit

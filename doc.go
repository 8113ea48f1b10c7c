// Package tokenauth issues paired access/refresh tokens for password and
// federated sign-in and rotates the refresh token on renewal.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokenauth is the public surface. It exposes [Engine], [Builder], [Config],
// value types ([User], [LoginResult], [TokenPair]) and the store boundary
// ([UserStore], [TokenStore], [SessionMarker]). Flow orchestration and audit
// dispatch live under internal/ and are never exported.
//
// # Session model
//
// Each user holds at most one valid refresh token. Login, federated sign-in
// and refresh all overwrite it, so a new sign-in from any device ends every
// other session of that user. Refresh rotation is a compare-and-swap against
// the stored token: of N concurrent refreshes presenting the same token,
// exactly one wins.
//
// # What this package must NOT do
//
//   - Hash passwords, speak HTTP, or run provider-specific OAuth handshakes.
//   - Report a sign-in as successful before the store acknowledged the
//     refresh token write.
//   - Expose why a sign-in was refused beyond [ErrAuthenticationFailed].
package tokenauth

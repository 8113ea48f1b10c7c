// Package refresh implements digest and comparison utilities for refresh
// token strings held server side.
//
// # Storage format
//
// Stores never keep the refresh token in plaintext. They persist the SHA-256
// [Digest] of the token string and compare presented tokens in constant time.
//
// # What this package must NOT do
//
//   - Access Redis, SQL, or any I/O.
//   - Import tokenauth, jwt, or session.
//   - Implement rotation policy.
package refresh

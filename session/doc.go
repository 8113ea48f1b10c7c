// Package session provides the Redis-backed binding between a user and their
// single current refresh token.
//
// # Key layout
//
// One key per user: <prefix>:<userID>:Authentication:Bearer. The value is the
// 32-byte SHA-256 digest of the refresh token; the key TTL is the token's
// remaining lifetime. Storing a token overwrites the previous one, so at most
// one refresh token per user verifies at any time.
//
// # Rotation
//
// [Store.ReplaceRefreshToken] is a single Lua script: it swaps the digest only
// if the stored digest still equals the presented token's digest. Concurrent
// rotations of the same token therefore resolve to exactly one winner.
//
// # What this package must NOT do
//
//   - Import tokenauth or jwt (no upward imports).
//   - Store plaintext refresh tokens.
package session

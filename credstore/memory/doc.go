// Package memory is an in-process tokenauth.CredentialStore for tests,
// demos and single-node tools.
//
// Users are keyed by a generated UUID and indexed by lower-cased email.
// Each user holds at most one refresh token, kept as a SHA-256 digest with
// its expiry; ReplaceRefreshToken swaps it under the store mutex.
package memory

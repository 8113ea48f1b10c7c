// Package jwt issues and verifies the paired access/refresh tokens.
//
// Both tokens are HS256 JWTs, but each purpose signs with its own key derived
// from the configured secret (HKDF-SHA256 with a purpose label) and carries a
// distinct typ header and pur claim. An access token therefore never verifies
// as a refresh token and vice versa.
//
// Issuance is pure: callers inject the reference time, and the only state held
// by an [Issuer] is its immutable configuration and derived keys.
package jwt

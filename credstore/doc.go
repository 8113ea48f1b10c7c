// Package credstore holds what the reference credential stores share. The
// stores themselves live in the memory and sqlite subpackages; both satisfy
// tokenauth.CredentialStore and key the refresh token under
// (user, "Authentication", "Bearer").
package credstore

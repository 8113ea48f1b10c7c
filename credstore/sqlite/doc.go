// Package sqlite is a tokenauth.CredentialStore over SQLite (modernc.org/sqlite,
// no cgo) with goose migrations embedded in the binary.
//
// The refresh token lives in user_tokens under (user_id, "Authentication",
// "Bearer") as a hex SHA-256 digest. Rotation is one conditional UPDATE that
// matches the expected digest and an unexpired row, so concurrent rotations
// of the same token affect at most one row between them.
package sqlite

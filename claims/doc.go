// Package claims derives the claim set embedded in issued access tokens.
//
// # Architecture boundaries
//
// This package owns the claim vocabulary (sub, email) and the ordered,
// type-keyed [Set] container. It knows nothing about signing, storage, or
// the user model beyond the two fields it copies.
//
// # What this package must NOT do
//
//   - Perform I/O or read clocks.
//   - Import tokenauth, jwt, or session.
package claims

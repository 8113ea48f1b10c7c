// Package flows contains the orchestration steps behind every Engine
// operation that mints or rotates a token pair.
//
// Each flow function (RunLogin, RunSignInExisting, RunRegisterAndSignIn,
// RunRefresh) accepts a typed dependency struct and returns a [Result]
// carrying either the issued pair or a [FailureKind]. Steps run strictly in
// sequence (lookup, verify, issue, persist) with no internal concurrency.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenauth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
//   - Report success before the store has acknowledged the refresh token write.
package flows

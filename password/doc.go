// Package password hashes and verifies passwords with Argon2id for the
// reference credential stores.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsRehash] reports hashes produced with weaker parameters than
// the current configuration so a store can re-hash after a successful
// sign-in.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other tokenauth package.
//   - Log plaintext passwords.
package password

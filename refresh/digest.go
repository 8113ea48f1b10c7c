package refresh

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// ErrInvalidDigest is returned by ParseDigest for malformed input.
var ErrInvalidDigest = errors.New("invalid refresh digest")

// Digest is the SHA-256 of a refresh token string.
type Digest [sha256.Size]byte

// Sum hashes a refresh token string.
func Sum(token string) Digest {
	return sha256.Sum256([]byte(token))
}

// Equal compares two digests in constant time.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// IsZero reports whether d is the zero digest (no token stored).
func (d Digest) IsZero() bool {
	var zero Digest
	return d == zero
}

// Matches reports whether token hashes to d. The zero digest matches nothing.
func (d Digest) Matches(token string) bool {
	if d.IsZero() || token == "" {
		return false
	}
	return d.Equal(Sum(token))
}

// String returns the lowercase hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns a copy of the raw digest.
func (d Digest) Bytes() []byte {
	out := make([]byte, len(d))
	copy(out, d[:])
	return out
}

// ParseDigest decodes a hex digest produced by String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(d) {
		return d, ErrInvalidDigest
	}
	copy(d[:], raw)
	return d, nil
}

// DigestFromBytes converts raw bytes as stored by binary-safe backends.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != len(d) {
		return d, ErrInvalidDigest
	}
	copy(d[:], b)
	return d, nil
}

// The single refresh token per user is stored under this provider/name pair.
const (
	LoginProvider = "Authentication"
	TokenName     = "Bearer"
)

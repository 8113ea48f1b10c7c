package credstore

import "strings"

// Seed describes a user to preload into a reference store.
type Seed struct {
	Email            string
	DisplayName      string
	Password         string
	LockedOut        bool
	NotAllowed       bool
	TwoFactorEnabled bool
}

// NormalizeEmail is the uniqueness key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

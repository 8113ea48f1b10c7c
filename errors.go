package tokenauth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed covers unknown accounts, wrong passwords and
	// disallowed sign-in states. It never says which check failed.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvalidRefreshToken is terminal for a refresh attempt; the caller
	// must sign in again.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrValidation reports registration input the caller can correct.
	ErrValidation = errors.New("validation failed")
	// ErrDependencyFailure reports a store, signer or context failure. No
	// token is considered issued when it is returned.
	ErrDependencyFailure = errors.New("dependency failure")
	// ErrConfiguration is fatal at startup.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Store adapter sentinels.
var (
	// ErrUserNotFound is returned by UserStore lookups for a missing account.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by UserStore.CreateUser when the email is taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

func dependencyFailure(cause error) error {
	if cause == nil {
		return ErrDependencyFailure
	}
	return fmt.Errorf("%w: %w", ErrDependencyFailure, cause)
}

func configurationError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

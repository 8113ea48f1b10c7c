package flows

import (
	"context"
	"errors"
)

// FederationDeps captures federated sign-in and registration dependencies.
type FederationDeps struct {
	// Validate checks registration input before anything is created.
	Validate     func(email, displayName string) error
	CreateUser   func(ctx context.Context, email, displayName string) (Account, error)
	MarkSignedIn func(ctx context.Context, acct Account) error
	// DuplicateEmail is the store sentinel for a conflicting registration.
	DuplicateEmail error
	IssueDeps
}

// RunSignInExisting issues and persists a pair for an already resolved
// account, then marks it signed in.
func RunSignInExisting(ctx context.Context, acct Account, deps FederationDeps) Result {
	res := issueAndStore(ctx, acct, deps.IssueDeps)
	if !res.OK() {
		return res
	}
	return markSignedIn(ctx, res, deps)
}

// RunRegisterAndSignIn creates a local account and signs it in. Nothing is
// issued when creation fails.
func RunRegisterAndSignIn(ctx context.Context, email, displayName string, deps FederationDeps) Result {
	input := Account{Email: email, DisplayName: displayName}
	if deps.Validate != nil {
		if err := deps.Validate(email, displayName); err != nil {
			return failed(FailureInvalidInput, err, "registration input rejected", input)
		}
	}

	if res, done := cancelled(ctx, input, "create"); done {
		return res
	}
	acct, err := deps.CreateUser(ctx, email, displayName)
	if err != nil {
		if deps.DuplicateEmail != nil && errors.Is(err, deps.DuplicateEmail) {
			return failed(FailureDuplicate, err, "email already registered", input)
		}
		return failed(FailureDependency, err, "user creation failed", input)
	}

	return RunSignInExisting(ctx, acct, deps)
}

func markSignedIn(ctx context.Context, res Result, deps FederationDeps) Result {
	if deps.MarkSignedIn == nil {
		return res
	}
	if err := deps.MarkSignedIn(ctx, res.Account); err != nil {
		return failed(FailureDependency, err, "sign-in marker failed", res.Account)
	}
	return res
}

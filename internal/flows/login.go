package flows

import (
	"context"
	"errors"
	"strings"
)

// Sign-in failure reasons, in reporting order.
const (
	ReasonLockedOut   = "user is locked out"
	ReasonNotAllowed  = "user is not allowed to sign in"
	ReasonTwoFactor   = "two-factor authentication is required"
	ReasonInvalid     = "invalid login attempt"
	ReasonUnknownUser = "no user with that email"
)

// Verdict is the flow-local password sign-in outcome. Several flags may be
// set at once.
type Verdict struct {
	Succeeded         bool
	LockedOut         bool
	NotAllowed        bool
	RequiresTwoFactor bool
}

// Rejected reports whether the attempt must fail.
func (v Verdict) Rejected() bool {
	return !v.Succeeded || v.LockedOut || v.NotAllowed || v.RequiresTwoFactor
}

// Reasons lists every set failure flag in reporting order. The generic
// reason is appended whenever the attempt did not succeed.
func (v Verdict) Reasons() []string {
	var out []string
	if v.LockedOut {
		out = append(out, ReasonLockedOut)
	}
	if v.NotAllowed {
		out = append(out, ReasonNotAllowed)
	}
	if v.RequiresTwoFactor {
		out = append(out, ReasonTwoFactor)
	}
	if !v.Succeeded {
		out = append(out, ReasonInvalid)
	}
	return out
}

// Reason joins Reasons for logging.
func (v Verdict) Reason() string {
	return strings.Join(v.Reasons(), ", ")
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	FindByEmail    func(ctx context.Context, email string) (Account, error)
	VerifyPassword func(ctx context.Context, email, password string) (Verdict, error)
	// UserNotFound is the store sentinel for a missing account.
	UserNotFound error
	IssueDeps
}

// RunLogin executes lookup, verify, issue and persist in that order. Any
// store error aborts the flow.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) Result {
	if res, done := cancelled(ctx, Account{Email: email}, "lookup"); done {
		return res
	}

	acct, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return failed(FailureUnknownAccount, err, ReasonUnknownUser, Account{Email: email})
		}
		return failed(FailureDependency, err, "user lookup failed", Account{Email: email})
	}

	if res, done := cancelled(ctx, acct, "verify"); done {
		return res
	}
	verdict, err := deps.VerifyPassword(ctx, email, password)
	if err != nil {
		return failed(FailureDependency, err, "password verification failed", acct)
	}
	if verdict.Rejected() {
		res := failed(FailureRejected, nil, verdict.Reason(), acct)
		res.Verdict = verdict
		return res
	}

	return issueAndStore(ctx, acct, deps.IssueDeps)
}

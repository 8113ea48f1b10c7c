package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenauth/claims"
	"github.com/MrEthical07/tokenauth/jwt"
)

// FailureKind classifies flow failures for root-level error mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureUnknownAccount: lookup found no user.
	FailureUnknownAccount
	// FailureRejected: the credential store refused the sign-in attempt.
	FailureRejected
	// FailureInvalidInput: registration input failed validation.
	FailureInvalidInput
	// FailureDuplicate: registration conflicted with an existing account.
	FailureDuplicate
	// FailureTokenInvalid: presented refresh token is malformed, expired,
	// bound to another user or not the stored one.
	FailureTokenInvalid
	// FailureRaceLost: the presented token was current at verification but
	// another rotation replaced it first.
	FailureRaceLost
	// FailureIssue: the signer failed.
	FailureIssue
	// FailureDependency: a store call errored or the context ended.
	FailureDependency
)

// Account is the flow-local user snapshot.
type Account struct {
	ID          string
	Email       string
	DisplayName string
}

// Result carries either the issued token pair or failure metadata.
type Result struct {
	Failure FailureKind
	Err     error
	// Reason is an operator-facing explanation. It is never surfaced to callers.
	Reason  string
	Account Account
	Pair    jwt.Pair
	// Verdict is set when the credential store refused the attempt.
	Verdict Verdict
}

// OK reports whether the flow completed.
func (r Result) OK() bool {
	return r.Failure == FailureNone
}

// IssueDeps captures the shared issuance tail: build claims, sign, persist.
type IssueDeps struct {
	Now   func() time.Time
	Issue func(set claims.Set, now time.Time) (jwt.Pair, error)
	// StoreRefresh overwrites the user's single stored refresh token.
	StoreRefresh func(ctx context.Context, userID, token string, expiresAt time.Time) error
}

func (d IssueDeps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func failed(kind FailureKind, err error, reason string, acct Account) Result {
	return Result{Failure: kind, Err: err, Reason: reason, Account: acct}
}

func cancelled(ctx context.Context, acct Account, step string) (Result, bool) {
	if err := ctx.Err(); err != nil {
		return failed(FailureDependency, err, "context ended before "+step, acct), true
	}
	return Result{}, false
}

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Login      LoginDeps
	Federation FederationDeps
	Refresh    RefreshDeps
}

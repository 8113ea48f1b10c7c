package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenauth/claims"
	"github.com/MrEthical07/tokenauth/jwt"
)

// RefreshDeps captures refresh rotation dependencies.
type RefreshDeps struct {
	Now   func() time.Time
	Issue func(set claims.Set, now time.Time) (jwt.Pair, error)
	// ParseSubject verifies the refresh token signature, purpose and expiry
	// and returns its subject.
	ParseSubject func(token string, now time.Time) (string, error)
	VerifyStored func(ctx context.Context, userID, token string) (bool, error)
	// ReplaceRefresh swaps expected for next only if expected is still stored.
	ReplaceRefresh func(ctx context.Context, userID, expected, next string, expiresAt time.Time) (bool, error)
}

// RunRefresh validates presented against the single stored token for acct
// and, when current, rotates it. Claims are rebuilt from acct, never copied
// from the old tokens. A failed attempt performs no write.
func RunRefresh(ctx context.Context, acct Account, presented string, deps RefreshDeps) Result {
	if res, done := cancelled(ctx, acct, "verify"); done {
		return res
	}
	if presented == "" {
		return failed(FailureTokenInvalid, nil, "empty refresh token", acct)
	}

	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}

	subject, err := deps.ParseSubject(presented, now)
	if err != nil {
		return failed(FailureTokenInvalid, err, "refresh token rejected by issuer", acct)
	}
	if subject != acct.ID {
		return failed(FailureTokenInvalid, nil, "refresh token bound to another user", acct)
	}

	current, err := deps.VerifyStored(ctx, acct.ID, presented)
	if err != nil {
		return failed(FailureDependency, err, "stored token lookup failed", acct)
	}
	if !current {
		return failed(FailureTokenInvalid, nil, "refresh token is not the stored token", acct)
	}

	pair, err := mint(acct, deps.Issue, now)
	if err != nil {
		return failed(FailureIssue, err, "token issuance failed", acct)
	}

	if res, done := cancelled(ctx, acct, "persist"); done {
		return res
	}
	swapped, err := deps.ReplaceRefresh(ctx, acct.ID, presented, pair.Refresh.Value, pair.Refresh.ExpiresAt)
	if err != nil {
		return failed(FailureDependency, err, "refresh token rotation failed", acct)
	}
	if !swapped {
		return failed(FailureRaceLost, nil, "refresh token rotated concurrently", acct)
	}

	return Result{Account: acct, Pair: pair}
}

package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenauth/claims"
	"github.com/MrEthical07/tokenauth/jwt"
)

// mint builds a fresh claim set from the account snapshot and signs a pair.
func mint(acct Account, issue func(claims.Set, time.Time) (jwt.Pair, error), now time.Time) (jwt.Pair, error) {
	return issue(claims.Build(acct.ID, acct.Email), now)
}

// issueAndStore is the tail shared by login and federation: issue a pair and
// overwrite the stored refresh token. The pair is only returned once the
// store acknowledged the write.
func issueAndStore(ctx context.Context, acct Account, deps IssueDeps) Result {
	if res, done := cancelled(ctx, acct, "issue"); done {
		return res
	}

	pair, err := mint(acct, deps.Issue, deps.now())
	if err != nil {
		return failed(FailureIssue, err, "token issuance failed", acct)
	}

	if res, done := cancelled(ctx, acct, "persist"); done {
		return res
	}
	if err := deps.StoreRefresh(ctx, acct.ID, pair.Refresh.Value, pair.Refresh.ExpiresAt); err != nil {
		return failed(FailureDependency, err, "refresh token persistence failed", acct)
	}

	return Result{Account: acct, Pair: pair}
}

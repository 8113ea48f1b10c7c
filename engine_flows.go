package tokenauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenauth/claims"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/jwt"
)

var errIncompleteUser = errors.New("store returned a user without id or email")

func toAccount(u User) flows.Account {
	return flows.Account{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

func checkUser(u User) error {
	if u.ID == "" || u.Email == "" {
		return errIncompleteUser
	}
	return nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	issue := flows.IssueDeps{
		Now:          e.now,
		Issue:        e.issueTimed,
		StoreRefresh: e.tokens.StoreRefreshToken,
	}

	return flows.Deps{
		Login: flows.LoginDeps{
			FindByEmail: func(ctx context.Context, email string) (flows.Account, error) {
				u, err := e.users.FindByEmail(ctx, email)
				if err != nil {
					return flows.Account{}, err
				}
				if err := checkUser(u); err != nil {
					return flows.Account{}, err
				}
				return toAccount(u), nil
			},
			VerifyPassword: func(ctx context.Context, email, password string) (flows.Verdict, error) {
				res, err := e.users.VerifyPassword(ctx, email, password)
				if err != nil {
					return flows.Verdict{}, err
				}
				return res.verdict(), nil
			},
			UserNotFound: ErrUserNotFound,
			IssueDeps:    issue,
		},
		Federation: flows.FederationDeps{
			Validate:   validateRegistration,
			CreateUser: func(ctx context.Context, email, displayName string) (flows.Account, error) {
				u, err := e.users.CreateUser(ctx, email, displayName)
				if err != nil {
					return flows.Account{}, err
				}
				if err := checkUser(u); err != nil {
					return flows.Account{}, err
				}
				return toAccount(u), nil
			},
			DuplicateEmail: ErrDuplicateEmail,
			IssueDeps:      issue,
		},
		Refresh: flows.RefreshDeps{
			Now:          e.now,
			Issue:        e.issueTimed,
			ParseSubject: func(token string, now time.Time) (string, error) {
				c, err := e.issuer.ParseRefresh(token, now)
				if err != nil {
					return "", err
				}
				return c.Subject, nil
			},
			VerifyStored:   e.tokens.VerifyRefreshToken,
			ReplaceRefresh: e.tokens.ReplaceRefreshToken,
		},
	}
}

func (e *Engine) issueTimed(set claims.Set, now time.Time) (jwt.Pair, error) {
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}
	pair, err := e.issuer.Issue(set, now)
	if err != nil {
		return jwt.Pair{}, err
	}
	if !start.IsZero() {
		e.metrics.Observe(MetricIssueLatency, time.Since(start))
	}
	e.metricInc(MetricTokensIssued)
	return pair, nil
}

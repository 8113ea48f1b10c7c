package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenauth/claims"
	"github.com/MrEthical07/tokenauth/jwt"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("duplicate")
	errStoreDown = errors.New("store down")
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	issued []claims.Set
	stored map[string]string
}

func newRecorder() *recorder {
	return &recorder{stored: map[string]string{}}
}

func (r *recorder) issue(set claims.Set, now time.Time) (jwt.Pair, error) {
	r.issued = append(r.issued, set)
	n := len(r.issued)
	return jwt.Pair{
		Access:  jwt.Token{Value: "access-" + set.Subject() + "-" + string(rune('0'+n)), ExpiresAt: now.Add(time.Minute)},
		Refresh: jwt.Token{Value: "refresh-" + set.Subject() + "-" + string(rune('0'+n)), ExpiresAt: now.Add(time.Hour)},
	}, nil
}

func (r *recorder) store(_ context.Context, userID, token string, _ time.Time) error {
	r.stored[userID] = token
	return nil
}

func (r *recorder) issueDeps() IssueDeps {
	return IssueDeps{Now: func() time.Time { return fixedNow }, Issue: r.issue, StoreRefresh: r.store}
}

var alice = Account{ID: "u-1", Email: "alice@example.com", DisplayName: "Alice"}

func loginDeps(r *recorder, verdict Verdict) LoginDeps {
	return LoginDeps{
		FindByEmail: func(_ context.Context, email string) (Account, error) {
			if email == alice.Email {
				return alice, nil
			}
			return Account{}, errNotFound
		},
		VerifyPassword: func(context.Context, string, string) (Verdict, error) { return verdict, nil },
		UserNotFound:   errNotFound,
		IssueDeps:      r.issueDeps(),
	}
}

func TestRunLoginSuccessStoresReturnedRefresh(t *testing.T) {
	r := newRecorder()
	res := RunLogin(context.Background(), alice.Email, "pw", loginDeps(r, Verdict{Succeeded: true}))

	require.True(t, res.OK())
	assert.Equal(t, alice, res.Account)
	assert.Equal(t, res.Pair.Refresh.Value, r.stored[alice.ID])
	require.Len(t, r.issued, 1)
	assert.Equal(t, alice.ID, r.issued[0].Subject())
	assert.Equal(t, alice.Email, r.issued[0].Email())
}

func TestRunLoginUnknownEmailIssuesNothing(t *testing.T) {
	r := newRecorder()
	res := RunLogin(context.Background(), "ghost@example.com", "pw", loginDeps(r, Verdict{Succeeded: true}))

	assert.Equal(t, FailureUnknownAccount, res.Failure)
	assert.Empty(t, r.issued)
	assert.Empty(t, r.stored)
}

func TestRunLoginAggregatesEveryFlag(t *testing.T) {
	r := newRecorder()
	verdict := Verdict{LockedOut: true, NotAllowed: true, RequiresTwoFactor: true}
	res := RunLogin(context.Background(), alice.Email, "pw", loginDeps(r, verdict))

	assert.Equal(t, FailureRejected, res.Failure)
	assert.Equal(t,
		"user is locked out, user is not allowed to sign in, two-factor authentication is required, invalid login attempt",
		res.Reason)
	assert.Equal(t, verdict, res.Verdict)
	assert.Nil(t, res.Err)
	assert.Empty(t, r.issued)
}

func TestRunLoginRejectsFlagEvenWhenSucceeded(t *testing.T) {
	r := newRecorder()
	res := RunLogin(context.Background(), alice.Email, "pw", loginDeps(r, Verdict{Succeeded: true, RequiresTwoFactor: true}))

	assert.Equal(t, FailureRejected, res.Failure)
	assert.Equal(t, ReasonTwoFactor, res.Reason)
}

func TestRunLoginLookupErrorIsDependency(t *testing.T) {
	r := newRecorder()
	deps := loginDeps(r, Verdict{Succeeded: true})
	deps.FindByEmail = func(context.Context, string) (Account, error) { return Account{}, errStoreDown }

	res := RunLogin(context.Background(), alice.Email, "pw", deps)
	assert.Equal(t, FailureDependency, res.Failure)
	assert.ErrorIs(t, res.Err, errStoreDown)
}

func TestRunLoginCancelledBeforePersist(t *testing.T) {
	r := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	deps := loginDeps(r, Verdict{Succeeded: true})
	deps.Issue = func(set claims.Set, now time.Time) (jwt.Pair, error) {
		cancel()
		return r.issue(set, now)
	}

	res := RunLogin(ctx, alice.Email, "pw", deps)
	assert.Equal(t, FailureDependency, res.Failure)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, r.stored)
	assert.Empty(t, res.Pair.Access.Value)
}

func TestRunLoginPersistFailureReturnsNoPair(t *testing.T) {
	r := newRecorder()
	deps := loginDeps(r, Verdict{Succeeded: true})
	deps.StoreRefresh = func(context.Context, string, string, time.Time) error { return errStoreDown }

	res := RunLogin(context.Background(), alice.Email, "pw", deps)
	assert.Equal(t, FailureDependency, res.Failure)
	assert.Empty(t, res.Pair.Refresh.Value)
}

func federationDeps(r *recorder) (FederationDeps, *[]string) {
	var marked []string
	return FederationDeps{
		CreateUser: func(_ context.Context, email, displayName string) (Account, error) {
			if email == alice.Email {
				return Account{}, errDuplicate
			}
			return Account{ID: "u-new", Email: email, DisplayName: displayName}, nil
		},
		MarkSignedIn: func(_ context.Context, acct Account) error {
			marked = append(marked, acct.ID)
			return nil
		},
		DuplicateEmail: errDuplicate,
		IssueDeps:      r.issueDeps(),
	}, &marked
}

func TestRunRegisterAndSignIn(t *testing.T) {
	r := newRecorder()
	deps, marked := federationDeps(r)

	res := RunRegisterAndSignIn(context.Background(), "new@example.com", "Nova", deps)
	require.True(t, res.OK())
	assert.Equal(t, "new@example.com", res.Account.Email)
	assert.Equal(t, "Nova", res.Account.DisplayName)
	assert.Equal(t, res.Pair.Refresh.Value, r.stored["u-new"])
	assert.Equal(t, []string{"u-new"}, *marked)
}

func TestRunRegisterAndSignInDuplicateIssuesNothing(t *testing.T) {
	r := newRecorder()
	deps, marked := federationDeps(r)

	res := RunRegisterAndSignIn(context.Background(), alice.Email, "Alice", deps)
	assert.Equal(t, FailureDuplicate, res.Failure)
	assert.Empty(t, r.issued)
	assert.Empty(t, *marked)
}

func TestRunRegisterAndSignInValidationRunsFirst(t *testing.T) {
	r := newRecorder()
	deps, _ := federationDeps(r)
	created := false
	deps.Validate = func(string, string) error { return errors.New("bad email") }
	deps.CreateUser = func(context.Context, string, string) (Account, error) {
		created = true
		return Account{}, nil
	}

	res := RunRegisterAndSignIn(context.Background(), "nope", "", deps)
	assert.Equal(t, FailureInvalidInput, res.Failure)
	assert.False(t, created)
}

func TestRunSignInExistingMarkerFailure(t *testing.T) {
	r := newRecorder()
	deps, _ := federationDeps(r)
	deps.MarkSignedIn = func(context.Context, Account) error { return errStoreDown }

	res := RunSignInExisting(context.Background(), alice, deps)
	assert.Equal(t, FailureDependency, res.Failure)
	assert.Empty(t, res.Pair.Access.Value)
}

type casStore struct {
	current string
}

func (s *casStore) verify(_ context.Context, _ string, token string) (bool, error) {
	return s.current == token, nil
}

func (s *casStore) replace(_ context.Context, _ string, expected, next string, _ time.Time) (bool, error) {
	if s.current != expected {
		return false, nil
	}
	s.current = next
	return true, nil
}

func refreshDeps(r *recorder, s *casStore) RefreshDeps {
	return RefreshDeps{
		Now:          func() time.Time { return fixedNow },
		Issue:        r.issue,
		ParseSubject: func(token string, _ time.Time) (string, error) {
			if token == "garbage" {
				return "", errors.New("malformed")
			}
			return alice.ID, nil
		},
		VerifyStored:   s.verify,
		ReplaceRefresh: s.replace,
	}
}

func TestRunRefreshRotates(t *testing.T) {
	r := newRecorder()
	s := &casStore{current: "rt-1"}

	res := RunRefresh(context.Background(), alice, "rt-1", refreshDeps(r, s))
	require.True(t, res.OK())
	assert.Equal(t, res.Pair.Refresh.Value, s.current)

	again := RunRefresh(context.Background(), alice, "rt-1", refreshDeps(r, s))
	assert.Equal(t, FailureTokenInvalid, again.Failure)
}

func TestRunRefreshFailuresLeaveStoredToken(t *testing.T) {
	cases := map[string]struct {
		acct  Account
		token string
	}{
		"empty":         {alice, ""},
		"malformed":     {alice, "garbage"},
		"stale":         {alice, "rt-old"},
		"other subject": {Account{ID: "u-2", Email: "bob@example.com"}, "rt-1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := newRecorder()
			s := &casStore{current: "rt-1"}
			res := RunRefresh(context.Background(), tc.acct, tc.token, refreshDeps(r, s))
			assert.Equal(t, FailureTokenInvalid, res.Failure)
			assert.Equal(t, "rt-1", s.current)
			assert.Empty(t, r.issued)
		})
	}
}

func TestRunRefreshRaceLost(t *testing.T) {
	r := newRecorder()
	s := &casStore{current: "rt-1"}
	deps := refreshDeps(r, s)
	deps.ReplaceRefresh = func(context.Context, string, string, string, time.Time) (bool, error) {
		return false, nil
	}

	res := RunRefresh(context.Background(), alice, "rt-1", deps)
	assert.Equal(t, FailureRaceLost, res.Failure)
	assert.Empty(t, res.Pair.Refresh.Value)
}

func TestRunRefreshCancelled(t *testing.T) {
	r := newRecorder()
	s := &casStore{current: "rt-1"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := RunRefresh(ctx, alice, "rt-1", refreshDeps(r, s))
	assert.Equal(t, FailureDependency, res.Failure)
	assert.Equal(t, "rt-1", s.current)
}

package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/jwt"
)

// Engine runs the sign-in, federation and refresh orchestrations. It is safe
// for concurrent use once built.
type Engine struct {
	config  Config
	issuer  *jwt.Issuer
	users   UserStore
	tokens  TokenStore
	marker  SessionMarker
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	now     func() time.Time
	flows   flows.Deps
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.issuer != nil && e.users != nil && e.tokens != nil
}

// Login authenticates email and password and binds a fresh refresh token to
// the user. Unknown accounts and refused sign-ins both return
// [ErrAuthenticationFailed]; the specific reasons go to the audit sink only.
func (e *Engine) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, strings.TrimSpace(email), password, e.flows.Login)
	switch res.Failure {
	case flows.FailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.Account.ID, res.Account.Email, nil, nil)
		return loginResult(res), nil
	case flows.FailureUnknownAccount, flows.FailureRejected:
		e.metricInc(MetricLoginFailure)
		e.emitFlowFailure(ctx, "login", auditEventLoginFailure, res, ErrAuthenticationFailed)
		return LoginResult{}, ErrAuthenticationFailed
	default:
		err := dependencyFailure(res.Err)
		e.emitFlowFailure(ctx, "login", auditEventLoginFailure, res, err)
		return LoginResult{}, err
	}
}

// SignInExisting issues a pair for a local account already resolved from a
// verified external identity, then marks it signed in. Credentials are not
// checked.
func (e *Engine) SignInExisting(ctx context.Context, user User) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	if err := checkUser(user); err != nil {
		return LoginResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	deps := e.flows.Federation
	deps.MarkSignedIn = e.markerFor(user)

	res := flows.RunSignInExisting(ctx, toAccount(user), deps)
	if !res.OK() {
		err := dependencyFailure(res.Err)
		e.emitFlowFailure(ctx, "sign_in_existing", auditEventFederatedSignIn, res, err)
		return LoginResult{}, err
	}

	e.metricInc(MetricFederatedSignIn)
	e.emitAudit(ctx, auditEventFederatedSignIn, true, res.Account.ID, res.Account.Email, nil, nil)
	return loginResult(res), nil
}

// RegisterAndSignIn creates a local account for a verified external identity
// and signs it in. A rejected or conflicting registration returns
// [ErrValidation] and issues nothing.
func (e *Engine) RegisterAndSignIn(ctx context.Context, email, displayName string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}

	var created User
	deps := e.flows.Federation
	createUser := deps.CreateUser
	deps.CreateUser = func(ctx context.Context, email, displayName string) (flows.Account, error) {
		acct, err := createUser(ctx, email, displayName)
		if err == nil {
			created = User{ID: acct.ID, Email: acct.Email, DisplayName: acct.DisplayName}
		}
		return acct, err
	}
	deps.MarkSignedIn = func(ctx context.Context, _ flows.Account) error {
		return e.markerFor(created)(ctx, flows.Account{})
	}

	res := flows.RunRegisterAndSignIn(ctx, strings.TrimSpace(email), strings.TrimSpace(displayName), deps)
	switch res.Failure {
	case flows.FailureNone:
		e.metricInc(MetricFederatedRegistration)
		e.emitAudit(ctx, auditEventFederatedRegistration, true, res.Account.ID, res.Account.Email, nil, nil)
		return loginResult(res), nil
	case flows.FailureInvalidInput, flows.FailureDuplicate:
		err := fmt.Errorf("%w: %w", ErrValidation, res.Err)
		e.metricInc(MetricRegistrationRejected)
		e.emitFlowFailure(ctx, "register", auditEventRegistrationRejected, res, err)
		return LoginResult{}, err
	default:
		err := dependencyFailure(res.Err)
		e.emitFlowFailure(ctx, "register", auditEventRegistrationRejected, res, err)
		return LoginResult{}, err
	}
}

// ResolveFederated signs in the local account matching identity.Email, or
// registers one when none exists. A registration that loses a race to a
// concurrent one falls back to signing in the winner.
func (e *Engine) ResolveFederated(ctx context.Context, identity FederatedIdentity) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}

	email := strings.TrimSpace(identity.Email)
	for attempt := 0; attempt < 2; attempt++ {
		user, err := e.users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return e.SignInExisting(ctx, user)
		case !errors.Is(err, ErrUserNotFound):
			err = dependencyFailure(err)
			e.emitDependencyFailure(ctx, "resolve_federated", email, err)
			return LoginResult{}, err
		}

		result, err := e.RegisterAndSignIn(ctx, email, identity.DisplayName)
		if err == nil || !errors.Is(err, ErrDuplicateEmail) {
			return result, err
		}
	}
	return LoginResult{}, fmt.Errorf("%w: %w", ErrValidation, ErrDuplicateEmail)
}

// Refresh validates presented against the single token stored for user and
// rotates it. Claims are rebuilt from user. Every rejection, including
// losing a concurrent rotation, returns [ErrInvalidRefreshToken]; callers
// must sign in again rather than retry.
func (e *Engine) Refresh(ctx context.Context, user User, presented string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if err := checkUser(user); err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	res := flows.RunRefresh(ctx, toAccount(user), presented, e.flows.Refresh)
	switch res.Failure {
	case flows.FailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Account.ID, res.Account.Email, nil, nil)
		return tokenPair(res), nil
	case flows.FailureTokenInvalid, flows.FailureRaceLost:
		if res.Failure == flows.FailureRaceLost {
			e.metricInc(MetricRefreshRaceLost)
		}
		e.metricInc(MetricRefreshInvalid)
		e.emitFlowFailure(ctx, "refresh", auditEventRefreshInvalid, res, ErrInvalidRefreshToken)
		return TokenPair{}, ErrInvalidRefreshToken
	default:
		err := dependencyFailure(res.Err)
		e.emitFlowFailure(ctx, "refresh", auditEventRefreshInvalid, res, err)
		return TokenPair{}, err
	}
}

// RefreshWithToken resolves the user from the refresh token's subject and
// then behaves like [Engine.Refresh].
func (e *Engine) RefreshWithToken(ctx context.Context, presented string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	rc, err := e.issuer.ParseRefresh(presented, e.now())
	if err != nil {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidRefreshToken, func() map[string]string {
			return map[string]string{"operation": "refresh", "reason": "refresh token rejected by issuer"}
		})
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := e.users.FindByID(ctx, rc.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshInvalid)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, rc.Subject, "", ErrInvalidRefreshToken, func() map[string]string {
				return map[string]string{"operation": "refresh", "reason": "subject no longer exists"}
			})
			return TokenPair{}, ErrInvalidRefreshToken
		}
		e.metricInc(MetricDependencyFailure)
		return TokenPair{}, dependencyFailure(err)
	}
	return e.Refresh(ctx, user, presented)
}

// ValidateAccess verifies an access token's signature, purpose, issuer,
// audience and expiry. Refresh tokens are rejected.
func (e *Engine) ValidateAccess(token string) (*AccessClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	c, err := e.issuer.ParseAccess(token, e.now())
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	out := &AccessClaims{
		TokenID: c.ID,
		UserID:  c.Subject,
		Email:   c.Email,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

// SignOut clears the user's stored refresh token, ending its single active
// session. Outstanding access tokens stay valid until they expire.
func (e *Engine) SignOut(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrValidation)
	}

	if err := e.tokens.ClearRefreshToken(ctx, userID); err != nil {
		err = dependencyFailure(err)
		e.metricInc(MetricDependencyFailure)
		e.emitAudit(ctx, auditEventDependencyFailure, false, userID, "", err, func() map[string]string {
			return map[string]string{"operation": "sign_out"}
		})
		return err
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditEventSignOut, true, userID, "", nil, nil)
	return nil
}

func (e *Engine) markerFor(user User) func(context.Context, flows.Account) error {
	return func(ctx context.Context, _ flows.Account) error {
		if e.marker == nil {
			return nil
		}
		return e.marker.MarkSignedIn(ctx, user)
	}
}

func loginResult(res flows.Result) LoginResult {
	return LoginResult{
		Email:            res.Account.Email,
		AccessToken:      res.Pair.Access.Value,
		RefreshToken:     res.Pair.Refresh.Value,
		DisplayName:      res.Account.DisplayName,
		UserID:           res.Account.ID,
		AccessExpiresAt:  res.Pair.Access.ExpiresAt,
		RefreshExpiresAt: res.Pair.Refresh.ExpiresAt,
	}
}

func tokenPair(res flows.Result) TokenPair {
	return TokenPair{
		AccessToken:      res.Pair.Access.Value,
		RefreshToken:     res.Pair.Refresh.Value,
		AccessExpiresAt:  res.Pair.Access.ExpiresAt,
		RefreshExpiresAt: res.Pair.Refresh.ExpiresAt,
	}
}

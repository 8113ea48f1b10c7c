package tokenauth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/credstore"
	"github.com/MrEthical07/tokenauth/credstore/memory"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/session"
)

var testSecret = []byte("0123456789abcdefghijklmnopqrstuvwxyz-secret")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine *tokenauth.Engine
	store  *memory.Store
	sink   *tokenauth.ChannelSink
	clock  *clock
	alice  tokenauth.User
}

func testConfig() tokenauth.Config {
	cfg := tokenauth.DefaultConfig()
	cfg.JWT.SigningSecret = testSecret
	cfg.JWT.Issuer = "tokenauth-test"
	cfg.JWT.Audience = "tokenauth-clients"
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	return cfg
}

func newHarness(t *testing.T, configure ...func(*tokenauth.Builder)) *harness {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	clk := &clock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	store := memory.New(hasher).WithClock(clk.Now)
	alice, err := store.AddUser(credstore.Seed{Email: "alice@example.com", DisplayName: "Alice", Password: "correct horse"})
	require.NoError(t, err)

	sink := tokenauth.NewChannelSink(256)
	b := tokenauth.New().
		WithConfig(testConfig()).
		WithCredentialStore(store).
		WithAuditSink(sink).
		WithClock(clk.Now)
	for _, fn := range configure {
		fn(b)
	}
	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &harness{engine: engine, store: store, sink: sink, clock: clk, alice: alice}
}

// events flushes the dispatcher and returns everything delivered so far.
func (h *harness) events() []tokenauth.AuditEvent {
	h.engine.Close()
	var out []tokenauth.AuditEvent
	for len(h.sink.Events()) > 0 {
		out = append(out, <-h.sink.Events())
	}
	return out
}

func (h *harness) stored(t *testing.T, token string) bool {
	t.Helper()
	ok, err := h.store.VerifyRefreshToken(context.Background(), h.alice.ID, token)
	require.NoError(t, err)
	return ok
}

func TestLoginReturnsResultAndPersistsRefresh(t *testing.T) {
	h := newHarness(t)

	res, err := h.engine.Login(context.Background(), "alice@example.com", "correct horse")
	require.NoError(t, err)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "Alice", res.DisplayName)
	assert.Equal(t, "alice@example.com", res.Email)
	assert.Equal(t, h.alice.ID, res.UserID)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), res.AccessExpiresAt)
	assert.Equal(t, h.clock.Now().Add(7*24*time.Hour), res.RefreshExpiresAt)
	assert.True(t, h.stored(t, res.RefreshToken), "stored token must equal the returned one")

	events := h.events()
	require.Len(t, events, 1)
	assert.Equal(t, "login_success", events[0].EventType)
	assert.True(t, events[0].Success)
}

func TestLoginUnknownEmail(t *testing.T) {
	h := newHarness(t)

	res, err := h.engine.Login(context.Background(), "ghost@example.com", "correct horse")
	assert.Same(t, tokenauth.ErrAuthenticationFailed, err)
	assert.Empty(t, res.AccessToken)
	assert.Empty(t, res.RefreshToken)
	assert.Zero(t, h.engine.MetricsSnapshot().Counters[tokenauth.MetricTokensIssued])
}

func TestLoginWrongPasswordIsIndistinguishable(t *testing.T) {
	h := newHarness(t)

	_, unknown := h.engine.Login(context.Background(), "ghost@example.com", "correct horse")
	_, wrong := h.engine.Login(context.Background(), "alice@example.com", "wrong horse!")
	assert.Equal(t, unknown, wrong)
	assert.EqualValues(t, 2, h.engine.MetricsSnapshot().Counters[tokenauth.MetricLoginFailure])
}

func TestLoginLockedOutLogsReasonOnly(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SetLockedOut(h.alice.ID, true))

	_, err := h.engine.Login(context.Background(), "alice@example.com", "correct horse")
	require.ErrorIs(t, err, tokenauth.ErrAuthenticationFailed)
	assert.NotContains(t, err.Error(), "locked")

	events := h.events()
	require.Len(t, events, 1)
	assert.Equal(t, "login_failure", events[0].EventType)
	assert.Contains(t, events[0].Metadata["reason"], "locked out")
	assert.Contains(t, events[0].Metadata["reason"], "invalid login attempt")
	assert.Equal(t, "locked_out", events[0].Metadata["outcome"])
}

func TestLoginAggregatesEveryReasonInOrder(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddUser(credstore.Seed{
		Email: "mallory@example.com", Password: "correct horse",
		LockedOut: true, NotAllowed: true, TwoFactorEnabled: true,
	})
	require.NoError(t, err)

	_, err = h.engine.Login(context.Background(), "mallory@example.com", "correct horse")
	require.ErrorIs(t, err, tokenauth.ErrAuthenticationFailed)

	events := h.events()
	require.Len(t, events, 1)
	assert.Equal(t,
		"user is locked out, user is not allowed to sign in, two-factor authentication is required, invalid login attempt",
		events[0].Metadata["reason"])
	assert.Equal(t, "locked_out", events[0].Metadata["outcome"])
}

func TestLoginFailureRecordsOutcomeByPriority(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddUser(credstore.Seed{
		Email: "trent@example.com", Password: "correct horse",
		NotAllowed: true, TwoFactorEnabled: true,
	})
	require.NoError(t, err)
	_, err = h.store.AddUser(credstore.Seed{
		Email: "peggy@example.com", Password: "correct horse",
		TwoFactorEnabled: true,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for _, email := range []string{"trent@example.com", "peggy@example.com", "ghost@example.com"} {
		_, err := h.engine.Login(ctx, email, "correct horse")
		require.ErrorIs(t, err, tokenauth.ErrAuthenticationFailed)
	}
	_, err = h.engine.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, tokenauth.ErrAuthenticationFailed)

	events := h.events()
	require.Len(t, events, 4)
	var outcomes []string
	for _, ev := range events {
		assert.Equal(t, "login_failure", ev.EventType)
		outcomes = append(outcomes, ev.Metadata["outcome"])
	}
	assert.Equal(t, []string{"not_allowed", "requires_two_factor", "invalid", "invalid"}, outcomes)
}

func TestRegisterAndSignInNewUser(t *testing.T) {
	var marked []string
	h := newHarness(t, func(b *tokenauth.Builder) {
		b.WithSessionMarker(tokenauth.SessionMarkerFunc(func(_ context.Context, u tokenauth.User) error {
			marked = append(marked, u.Email)
			return nil
		}))
	})

	res, err := h.engine.RegisterAndSignIn(context.Background(), "new@example.com", "Nova")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", res.Email)
	assert.Equal(t, "Nova", res.DisplayName)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, []string{"new@example.com"}, marked)

	ok, err := h.store.VerifyRefreshToken(context.Background(), res.UserID, res.RefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterAndSignInRejections(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.RegisterAndSignIn(context.Background(), "alice@example.com", "Alice Again")
	assert.ErrorIs(t, err, tokenauth.ErrValidation)
	assert.ErrorIs(t, err, tokenauth.ErrDuplicateEmail)

	_, err = h.engine.RegisterAndSignIn(context.Background(), "not-an-email", "Nova")
	assert.ErrorIs(t, err, tokenauth.ErrValidation)

	snap := h.engine.MetricsSnapshot()
	assert.Zero(t, snap.Counters[tokenauth.MetricTokensIssued])
	assert.EqualValues(t, 2, snap.Counters[tokenauth.MetricRegistrationRejected])
}

func TestSignInExistingSkipsCredentials(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SetLockedOut(h.alice.ID, true))

	res, err := h.engine.SignInExisting(context.Background(), h.alice)
	require.NoError(t, err)
	assert.Equal(t, h.alice.ID, res.UserID)
	assert.True(t, h.stored(t, res.RefreshToken))
}

func TestSignInExistingMarkerFailure(t *testing.T) {
	h := newHarness(t, func(b *tokenauth.Builder) {
		b.WithSessionMarker(tokenauth.SessionMarkerFunc(func(context.Context, tokenauth.User) error {
			return errors.New("cookie jar full")
		}))
	})

	res, err := h.engine.SignInExisting(context.Background(), h.alice)
	assert.ErrorIs(t, err, tokenauth.ErrDependencyFailure)
	assert.Empty(t, res.AccessToken)
}

func TestResolveFederated(t *testing.T) {
	h := newHarness(t)

	existing, err := h.engine.ResolveFederated(context.Background(), tokenauth.FederatedIdentity{Email: "ALICE@example.com", DisplayName: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, h.alice.ID, existing.UserID)
	assert.Equal(t, "Alice", existing.DisplayName)

	created, err := h.engine.ResolveFederated(context.Background(), tokenauth.FederatedIdentity{Email: "nova@example.com", DisplayName: "Nova"})
	require.NoError(t, err)
	assert.NotEqual(t, h.alice.ID, created.UserID)

	again, err := h.engine.ResolveFederated(context.Background(), tokenauth.FederatedIdentity{Email: "nova@example.com"})
	require.NoError(t, err)
	assert.Equal(t, created.UserID, again.UserID)
}

func TestSecondIssuanceInvalidatesFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	second, err := h.engine.SignInExisting(ctx, h.alice)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.False(t, h.stored(t, first.RefreshToken))
	assert.True(t, h.stored(t, second.RefreshToken))

	_, err = h.engine.Refresh(ctx, h.alice, first.RefreshToken)
	assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken)
}

func TestRefreshRotates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	pair, err := h.engine.Refresh(ctx, h.alice, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)
	assert.NotEqual(t, login.AccessToken, pair.AccessToken)
	assert.True(t, h.stored(t, pair.RefreshToken))
	assert.False(t, h.stored(t, login.RefreshToken))

	_, err = h.engine.Refresh(ctx, h.alice, login.RefreshToken)
	assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken, "refresh tokens are single use")
}

func TestRefreshStaleTokenKeepsCurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = h.engine.Refresh(ctx, h.alice, "stale-token")
	assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken)
	assert.True(t, h.stored(t, login.RefreshToken), "failed refresh must not disturb the stored token")

	_, err = h.engine.Refresh(ctx, h.alice, login.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	h.clock.Advance(7*24*time.Hour + time.Second)
	_, err = h.engine.Refresh(ctx, h.alice, login.RefreshToken)
	assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken)
}

func TestRefreshTokenOfAnotherUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob, err := h.store.AddUser(credstore.Seed{Email: "bob@example.com", DisplayName: "Bob", Password: "battery staple"})
	require.NoError(t, err)

	aliceLogin, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = h.engine.Refresh(ctx, bob, aliceLogin.RefreshToken)
	assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken)
	assert.True(t, h.stored(t, aliceLogin.RefreshToken))
}

func TestAccessClaimsFollowUserSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assertOnlySubjectAndEmail(t, login.AccessToken, h.alice.ID, "alice@example.com")

	current := login.RefreshToken
	renamed := h.alice
	renamed.Email = "alice@new.example.com"
	for i := 0; i < 3; i++ {
		pair, err := h.engine.Refresh(ctx, renamed, current)
		require.NoError(t, err)
		current = pair.RefreshToken

		claims, err := h.engine.ValidateAccess(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, h.alice.ID, claims.UserID)
		assert.Equal(t, "alice@new.example.com", claims.Email)
		assertOnlySubjectAndEmail(t, pair.AccessToken, h.alice.ID, "alice@new.example.com")
	}
}

// assertOnlySubjectAndEmail checks the identity claims carried by token. The
// remaining keys are registered JWT fields and the purpose marker.
func assertOnlySubjectAndEmail(t *testing.T, token, sub, email string) {
	t.Helper()
	mc := gojwt.MapClaims{}
	_, _, err := gojwt.NewParser().ParseUnverified(token, mc)
	require.NoError(t, err)

	registered := map[string]bool{"iss": true, "aud": true, "iat": true, "nbf": true, "exp": true, "jti": true, "pur": true}
	var identity []string
	for k := range mc {
		if !registered[k] {
			identity = append(identity, k)
		}
	}
	assert.ElementsMatch(t, []string{"sub", "email"}, identity)
	assert.Equal(t, sub, mc["sub"])
	assert.Equal(t, email, mc["email"])
}

func TestPurposeIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = h.engine.ValidateAccess(login.RefreshToken)
	assert.ErrorIs(t, err, tokenauth.ErrAuthenticationFailed)

	_, err = h.engine.Refresh(ctx, h.alice, login.AccessToken)
	assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken)

	claims, err := h.engine.ValidateAccess(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, h.alice.ID, claims.UserID)
}

func TestRefreshWithToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	pair, err := h.engine.RefreshWithToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.True(t, h.stored(t, pair.RefreshToken))

	_, err = h.engine.RefreshWithToken(ctx, "garbage")
	assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken)
}

func TestSignOutEndsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	require.NoError(t, h.engine.SignOut(ctx, h.alice.ID))
	_, err = h.engine.Refresh(ctx, h.alice, login.RefreshToken)
	assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken)

	assert.ErrorIs(t, h.engine.SignOut(ctx, ""), tokenauth.ErrValidation)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	run := func(t *testing.T, h *harness) {
		ctx := context.Background()
		login, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
		require.NoError(t, err)

		const n = 24
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []tokenauth.TokenPair
			losers  int
		)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				pair, err := h.engine.Refresh(ctx, h.alice, login.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners = append(winners, pair)
					return
				}
				assert.ErrorIs(t, err, tokenauth.ErrInvalidRefreshToken)
				losers++
			}()
		}
		close(start)
		wg.Wait()

		require.Len(t, winners, 1)
		assert.Equal(t, n-1, losers)

		next, err := h.engine.RefreshWithToken(ctx, winners[0].RefreshToken)
		require.NoError(t, err, "only the winner's token survives")
		assert.NotEmpty(t, next.RefreshToken)
		assert.False(t, h.stored(t, login.RefreshToken))
	}

	t.Run("memory", func(t *testing.T) {
		run(t, newHarness(t))
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		h := newHarness(t, func(b *tokenauth.Builder) { b.WithRedis(client) })
		// The harness store no longer holds tokens; check through the engine.
		login, err := h.engine.Login(context.Background(), "alice@example.com", "correct horse")
		require.NoError(t, err)
		keys := mr.Keys()
		require.Len(t, keys, 1)
		assert.True(t, strings.HasSuffix(keys[0], ":Authentication:Bearer"))

		const n = 24
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.engine.Refresh(context.Background(), h.alice, login.RefreshToken)
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.GreaterOrEqual(t, h.engine.MetricsSnapshot().Counters[tokenauth.MetricRefreshInvalid], uint64(n-1))
	})
}

func TestExpiredWriteIsNotReportedAsIssued(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var tokens *session.Store
	h := newHarness(t, func(b *tokenauth.Builder) {
		// The store's clock runs ten days past the engine's, beyond the refresh TTL.
		tokens = session.NewStore(client, "atok")
		b.WithTokenStore(tokens)
	})
	tokens.WithClock(func() time.Time { return h.clock.Now().Add(10 * 24 * time.Hour) })

	res, err := h.engine.SignInExisting(context.Background(), h.alice)
	require.ErrorIs(t, err, tokenauth.ErrDependencyFailure)
	assert.ErrorIs(t, err, session.ErrTokenExpired)
	assert.Empty(t, res.RefreshToken)
	assert.Empty(t, mr.Keys())
	assert.EqualValues(t, 1, h.engine.MetricsSnapshot().Counters[tokenauth.MetricDependencyFailure])

	events := h.events()
	require.Len(t, events, 1)
	assert.Equal(t, "dependency_failure", events[0].EventType)
}

type cancellingTokenStore struct {
	tokenauth.TokenStore
	cancel context.CancelFunc
}

func (s cancellingTokenStore) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	s.cancel()
	return ctx.Err()
}

func TestCancellationBeforeAcknowledgementIsDependencyFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newHarness(t).store

	engine, err := tokenauth.New().
		WithConfig(testConfig()).
		WithUserStore(store).
		WithTokenStore(cancellingTokenStore{TokenStore: store, cancel: cancel}).
		Build()
	require.NoError(t, err)
	defer engine.Close()

	res, err := engine.Login(ctx, "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, tokenauth.ErrDependencyFailure)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, tokenauth.LoginResult{}, res)
}

func TestCancelledContextIssuesNothing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Login(ctx, "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, tokenauth.ErrDependencyFailure)

	_, err = h.engine.RegisterAndSignIn(ctx, "new@example.com", "Nova")
	assert.ErrorIs(t, err, tokenauth.ErrDependencyFailure)

	assert.Zero(t, h.engine.MetricsSnapshot().Counters[tokenauth.MetricTokensIssued])
}

type failingUserStore struct {
	tokenauth.UserStore
	err error
}

func (s failingUserStore) FindByEmail(context.Context, string) (tokenauth.User, error) {
	return tokenauth.User{}, s.err
}

func TestStoreErrorsAreDependencyFailures(t *testing.T) {
	h := newHarness(t)
	down := errors.New("connection refused")

	engine, err := tokenauth.New().
		WithConfig(testConfig()).
		WithUserStore(failingUserStore{UserStore: h.store, err: down}).
		WithTokenStore(h.store).
		Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.Login(context.Background(), "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, tokenauth.ErrDependencyFailure)
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, tokenauth.ErrAuthenticationFailed)
	assert.EqualValues(t, 1, engine.MetricsSnapshot().Counters[tokenauth.MetricDependencyFailure])

	_, err = engine.ResolveFederated(context.Background(), tokenauth.FederatedIdentity{Email: "x@example.com"})
	assert.ErrorIs(t, err, tokenauth.ErrDependencyFailure)
}

func TestResolveFederatedLookupFailureIsAudited(t *testing.T) {
	h := newHarness(t)
	sink := tokenauth.NewChannelSink(8)

	engine, err := tokenauth.New().
		WithConfig(testConfig()).
		WithUserStore(failingUserStore{UserStore: h.store, err: errors.New("connection refused")}).
		WithTokenStore(h.store).
		WithAuditSink(sink).
		Build()
	require.NoError(t, err)

	_, err = engine.ResolveFederated(context.Background(), tokenauth.FederatedIdentity{Email: "x@example.com"})
	require.ErrorIs(t, err, tokenauth.ErrDependencyFailure)
	assert.EqualValues(t, 1, engine.MetricsSnapshot().Counters[tokenauth.MetricDependencyFailure])

	engine.Close()
	require.Len(t, sink.Events(), 1)
	ev := <-sink.Events()
	assert.Equal(t, "dependency_failure", ev.EventType)
	assert.Equal(t, "resolve_federated", ev.Metadata["operation"])
	assert.Equal(t, "x@example.com", ev.Email)
	assert.Equal(t, "dependency_failure", ev.Error)
	assert.False(t, ev.Success)
}

func TestBuildRejectsBadConfiguration(t *testing.T) {
	store := memory.New(nil)

	_, err := tokenauth.New().WithConfig(testConfig()).Build()
	assert.ErrorIs(t, err, tokenauth.ErrConfiguration)

	weak := testConfig()
	weak.JWT.SigningSecret = []byte(strings.Repeat("a", 64))
	_, err = tokenauth.New().WithConfig(weak).WithCredentialStore(store).Build()
	assert.ErrorIs(t, err, tokenauth.ErrConfiguration)

	missing := testConfig()
	missing.JWT.SigningSecret = nil
	_, err = tokenauth.New().WithConfig(missing).WithCredentialStore(store).Build()
	assert.ErrorIs(t, err, tokenauth.ErrConfiguration)

	b := tokenauth.New().WithConfig(testConfig()).WithCredentialStore(store)
	_, err = b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	assert.ErrorIs(t, err, tokenauth.ErrConfiguration)
}

func TestNilEngineNotReady(t *testing.T) {
	var e *tokenauth.Engine
	_, err := e.Login(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, tokenauth.ErrEngineNotReady)
	_, err = e.Refresh(context.Background(), tokenauth.User{}, "rt")
	assert.ErrorIs(t, err, tokenauth.ErrEngineNotReady)
	e.Close()
	assert.Zero(t, e.AuditDropped())
	assert.Empty(t, e.MetricsSnapshot().Counters)
}

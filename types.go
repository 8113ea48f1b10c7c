package tokenauth

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/internal/flows"
	internalmetrics "github.com/MrEthical07/tokenauth/internal/metrics"
)

// User is the credential store's view of a principal. The engine only reads
// it; the stored refresh token lives behind [TokenStore].
type User struct {
	ID               string
	Email            string
	DisplayName      string
	LockedOut        bool
	TwoFactorEnabled bool
}

// SignInResult describes one password sign-in attempt. Stores may set
// several flags at once.
type SignInResult struct {
	Succeeded         bool
	LockedOut         bool
	NotAllowed        bool
	RequiresTwoFactor bool
}

// SignInOutcome is the single terminal state of a sign-in attempt.
type SignInOutcome uint8

const (
	SignInSucceeded SignInOutcome = iota
	SignInLockedOut
	SignInNotAllowed
	SignInRequiresTwoFactor
	SignInInvalid
)

// String returns the snake_case label recorded on audit events.
func (o SignInOutcome) String() string {
	switch o {
	case SignInSucceeded:
		return "succeeded"
	case SignInLockedOut:
		return "locked_out"
	case SignInNotAllowed:
		return "not_allowed"
	case SignInRequiresTwoFactor:
		return "requires_two_factor"
	default:
		return "invalid"
	}
}

// Outcome collapses the flags by priority: locked out, not allowed, two
// factor, then invalid. Succeeded is reported only when no flag is set.
func (r SignInResult) Outcome() SignInOutcome {
	switch {
	case r.LockedOut:
		return SignInLockedOut
	case r.NotAllowed:
		return SignInNotAllowed
	case r.RequiresTwoFactor:
		return SignInRequiresTwoFactor
	case !r.Succeeded:
		return SignInInvalid
	default:
		return SignInSucceeded
	}
}

// Reasons lists every failure flag in reporting order for logs.
func (r SignInResult) Reasons() []string {
	return r.verdict().Reasons()
}

func signInResultOf(v flows.Verdict) SignInResult {
	return SignInResult{
		Succeeded:         v.Succeeded,
		LockedOut:         v.LockedOut,
		NotAllowed:        v.NotAllowed,
		RequiresTwoFactor: v.RequiresTwoFactor,
	}
}

func (r SignInResult) verdict() flows.Verdict {
	return flows.Verdict{
		Succeeded:         r.Succeeded,
		LockedOut:         r.LockedOut,
		NotAllowed:        r.NotAllowed,
		RequiresTwoFactor: r.RequiresTwoFactor,
	}
}

// TokenPair is the result of a refresh rotation.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is returned by every sign-in path. It is a projection and is
// never persisted.
type LoginResult struct {
	Email            string
	AccessToken      string
	RefreshToken     string
	DisplayName      string
	UserID           string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	TokenID   string
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// FederatedIdentity is an identity already verified by an external provider.
type FederatedIdentity struct {
	Email       string
	DisplayName string
}

// UserStore is the account half of the credential store boundary.
//
// FindByEmail and FindByID return [ErrUserNotFound] for a missing account.
// CreateUser returns [ErrDuplicateEmail] when the email is taken.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, userID string) (User, error)
	VerifyPassword(ctx context.Context, email, password string) (SignInResult, error)
	CreateUser(ctx context.Context, email, displayName string) (User, error)
}

// TokenStore holds the single refresh token per user.
//
// StoreRefreshToken overwrites any prior token. ReplaceRefreshToken stores
// next only if expected is still the stored, unexpired token, and reports
// whether it did; it must be a single atomic update per user.
type TokenStore interface {
	StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyRefreshToken(ctx context.Context, userID, token string) (bool, error)
	ReplaceRefreshToken(ctx context.Context, userID, expected, next string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, userID string) error
}

// CredentialStore is the full store boundary.
type CredentialStore interface {
	UserStore
	TokenStore
}

// SessionMarker marks a user as signed in for the current request after a
// federated sign-in.
type SessionMarker interface {
	MarkSignedIn(ctx context.Context, user User) error
}

// SessionMarkerFunc adapts a function to [SessionMarker].
type SessionMarkerFunc func(ctx context.Context, user User) error

// MarkSignedIn calls f(ctx, user).
func (f SessionMarkerFunc) MarkSignedIn(ctx context.Context, user User) error {
	return f(ctx, user)
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes events as structured log records.
type SlogSink = internalaudit.SlogSink

// NewChannelSink returns a sink backed by a buffered channel.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink logs successes at INFO and failures at WARN. A nil logger
// uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies a counter or histogram in the in-process metrics.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricRefreshSuccess        = internalmetrics.MetricRefreshSuccess
	MetricRefreshInvalid        = internalmetrics.MetricRefreshInvalid
	MetricRefreshRaceLost       = internalmetrics.MetricRefreshRaceLost
	MetricFederatedSignIn       = internalmetrics.MetricFederatedSignIn
	MetricFederatedRegistration = internalmetrics.MetricFederatedRegistration
	MetricRegistrationRejected  = internalmetrics.MetricRegistrationRejected
	MetricDependencyFailure     = internalmetrics.MetricDependencyFailure
	MetricTokensIssued          = internalmetrics.MetricTokensIssued
	MetricSignOut               = internalmetrics.MetricSignOut
	MetricIssueLatency          = internalmetrics.MetricIssueLatency
)

// Metrics holds atomic counters and the optional issuance latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

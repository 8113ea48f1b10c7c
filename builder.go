package tokenauth

import (
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, then discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users  UserStore
	tokens TokenStore
	marker SessionMarker

	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the engine configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCredentialStore sets both the user store and, unless overridden by
// WithTokenStore or WithRedis, the token store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.users = store
	if b.tokens == nil {
		b.tokens = store
	}
	return b
}

// WithUserStore sets the account lookup and password verification store.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithTokenStore keeps refresh tokens somewhere other than the user store.
func (b *Builder) WithTokenStore(store TokenStore) *Builder {
	b.tokens = store
	b.redis = nil
	return b
}

// WithRedis keeps refresh tokens in Redis under Config.Session.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionMarker is called after every federated sign-in.
func (b *Builder) WithSessionMarker(marker SessionMarker) *Builder {
	b.marker = marker
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for issuance and token parsing.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the issuance latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. Every failure
// wraps [ErrConfiguration].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, configurationError("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, configurationError("user store required")
	}

	tokens := b.tokens
	if b.redis != nil {
		store := session.NewStore(b.redis, cfg.Session.RedisPrefix)
		if b.now != nil {
			store = store.WithClock(b.now)
		}
		tokens = store
	}
	if tokens == nil {
		return nil, configurationError("token store required")
	}

	issuer, err := jwt.NewIssuer(cfg.JWT.issuerConfig())
	if err != nil {
		return nil, configurationError("%v", err)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		issuer:  issuer,
		users:   b.users,
		tokens:  tokens,
		marker:  b.marker,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}

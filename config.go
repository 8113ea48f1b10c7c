package tokenauth

import (
	"time"

	"github.com/MrEthical07/tokenauth/jwt"
)

// MaxLeeway bounds the clock skew tolerated when parsing tokens.
const MaxLeeway = 2 * time.Minute

// Config is the engine configuration. It is cloned into the Engine at Build
// and is immutable afterwards.
type Config struct {
	JWT     JWTConfig
	Session SessionConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token issuer. SigningSecret is HS256 key material
// from which separate access and refresh keys are derived.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningSecret []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the Redis token store built by
// [Builder.WithRedis].
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns defaults for everything except the signing secret,
// issuer and audience, which callers must supply.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix: "atok",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningSecret = cloneBytes(cfg.JWT.SigningSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c JWTConfig) issuerConfig() jwt.Config {
	return jwt.Config{
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
		Secret:     cloneBytes(c.SigningSecret),
		Issuer:     c.Issuer,
		Audience:   c.Audience,
		Leeway:     c.Leeway,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first problem found, wrapped in [ErrConfiguration].
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return configurationError("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return configurationError("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return configurationError("JWT RefreshTTL must be greater than AccessTTL")
	}
	if err := jwt.ValidateSecret(c.JWT.SigningSecret); err != nil {
		return configurationError("JWT SigningSecret: %v", err)
	}
	if c.JWT.Issuer == "" {
		return configurationError("JWT Issuer must be set")
	}
	if c.JWT.Audience == "" {
		return configurationError("JWT Audience must be set")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > MaxLeeway {
		return configurationError("JWT Leeway must be within [0, %s]", MaxLeeway)
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return configurationError("Session RedisPrefix must be set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configurationError("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

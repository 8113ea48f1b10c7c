package tokenauth

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// configEnv holds raw env values for engine configuration.
type configEnv struct {
	SigningSecret  string        `env:"TOKENAUTH_JWT_SECRET,required,notEmpty"`
	Issuer         string        `env:"TOKENAUTH_JWT_ISSUER,required,notEmpty"`
	Audience       string        `env:"TOKENAUTH_JWT_AUDIENCE,required,notEmpty"`
	AccessTTL      time.Duration `env:"TOKENAUTH_ACCESS_TTL"      envDefault:"15m"`
	RefreshTTL     time.Duration `env:"TOKENAUTH_REFRESH_TTL"     envDefault:"168h"`
	Leeway         time.Duration `env:"TOKENAUTH_JWT_LEEWAY"      envDefault:"0s"`
	RedisPrefix    string        `env:"TOKENAUTH_REDIS_PREFIX"    envDefault:"atok"`
	AuditEnabled   bool          `env:"TOKENAUTH_AUDIT_ENABLED"   envDefault:"false"`
	MetricsEnabled bool          `env:"TOKENAUTH_METRICS_ENABLED" envDefault:"false"`
}

// ConfigFromEnv builds a validated Config from TOKENAUTH_* environment
// variables on top of [DefaultConfig]. Missing or malformed values fail with
// [ErrConfiguration].
func ConfigFromEnv() (Config, error) {
	var raw configEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, configurationError("parse env: %v", err)
	}

	cfg := DefaultConfig()
	cfg.JWT.SigningSecret = []byte(raw.SigningSecret)
	cfg.JWT.Issuer = raw.Issuer
	cfg.JWT.Audience = raw.Audience
	cfg.JWT.AccessTTL = raw.AccessTTL
	cfg.JWT.RefreshTTL = raw.RefreshTTL
	cfg.JWT.Leeway = raw.Leeway
	cfg.Session.RedisPrefix = raw.RedisPrefix
	cfg.Audit.Enabled = raw.AuditEnabled
	cfg.Metrics.Enabled = raw.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

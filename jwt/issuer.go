package jwt

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/claims"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum accepted signing secret size in bytes.
const MinSecretLength = 32

// minDistinctSecretBytes rejects secrets like 32 repeated characters.
const minDistinctSecretBytes = 8

const maxLeeway = 2 * time.Minute

var (
	ErrSecretMissing    = errors.New("signing secret missing")
	ErrSecretWeak       = errors.New("signing secret below minimum entropy")
	ErrInvalidTTL       = errors.New("invalid TTL configuration")
	ErrInvalidLeeway    = errors.New("invalid leeway configuration")
	ErrIssuerMissing    = errors.New("issuer missing")
	ErrAudienceMissing  = errors.New("audience missing")
	ErrSubjectMissing   = errors.New("claim set has no subject")
	ErrPurposeMismatch  = errors.New("token purpose mismatch")
	ErrTokenClaimsShape = errors.New("token claims malformed")
)

// Purpose marks what a token may be used for.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

func (p Purpose) typ() string {
	if p == PurposeRefresh {
		return "rt+jwt"
	}
	return "at+jwt"
}

// Config is the immutable issuer configuration.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Issuer mints and verifies token pairs. It is safe for concurrent use.
type Issuer struct {
	config     Config
	accessKey  []byte
	refreshKey []byte
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Email   string  `json:"email"`
	Purpose Purpose `json:"pur"`
	jwt.RegisteredClaims
}

// ClaimSet rebuilds the subject claim set carried by the token.
func (c *AccessClaims) ClaimSet() claims.Set {
	return claims.Build(c.Subject, c.Email)
}

// RefreshClaims is the payload of a refresh token. It deliberately carries
// no identity claims beyond the subject.
type RefreshClaims struct {
	Purpose Purpose `json:"pur"`
	jwt.RegisteredClaims
}

// Token is a signed token string with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Pair is the joint issuance result.
type Pair struct {
	Access  Token
	Refresh Token
}

// NewIssuer validates cfg and derives the per-purpose signing keys.
func NewIssuer(cfg Config) (*Issuer, error) {
	if err := ValidateSecret(cfg.Secret); err != nil {
		return nil, err
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, ErrInvalidTTL
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("%w: refresh TTL must exceed access TTL", ErrInvalidTTL)
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, ErrInvalidLeeway
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Issuer == "" {
		return nil, ErrIssuerMissing
	}
	if cfg.Audience == "" {
		return nil, ErrAudienceMissing
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	accessKey, err := deriveKey(secret, PurposeAccess)
	if err != nil {
		return nil, err
	}
	refreshKey, err := deriveKey(secret, PurposeRefresh)
	if err != nil {
		return nil, err
	}

	return &Issuer{config: cfg, accessKey: accessKey, refreshKey: refreshKey}, nil
}

// ValidateSecret reports whether secret is usable as a signing secret.
func ValidateSecret(secret []byte) error {
	if len(secret) == 0 {
		return ErrSecretMissing
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: need at least %d bytes, got %d", ErrSecretWeak, MinSecretLength, len(secret))
	}
	var seen [256]bool
	distinct := 0
	for _, b := range secret {
		if !seen[b] {
			seen[b] = true
			distinct++
		}
	}
	if distinct < minDistinctSecretBytes {
		return fmt.Errorf("%w: only %d distinct byte values", ErrSecretWeak, distinct)
	}
	return nil
}

func deriveKey(secret []byte, purpose Purpose) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("tokenauth/"+string(purpose)))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.config.RefreshTTL }

// Issue mints an access/refresh pair for the claim set at reference time now.
// Every call yields a distinct refresh token, even for identical inputs.
func (i *Issuer) Issue(set claims.Set, now time.Time) (Pair, error) {
	subject := set.Subject()
	if subject == "" {
		return Pair{}, ErrSubjectMissing
	}

	accessExp := now.Add(i.config.AccessTTL)
	access := AccessClaims{
		Email:            set.Email(),
		Purpose:          PurposeAccess,
		RegisteredClaims: i.registered(subject, now, accessExp),
	}
	accessStr, err := i.sign(PurposeAccess, access)
	if err != nil {
		return Pair{}, err
	}

	refreshExp := now.Add(i.config.RefreshTTL)
	refresh := RefreshClaims{
		Purpose:          PurposeRefresh,
		RegisteredClaims: i.registered(subject, now, refreshExp),
	}
	refreshStr, err := i.sign(PurposeRefresh, refresh)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		Access:  Token{Value: accessStr, ExpiresAt: accessExp},
		Refresh: Token{Value: refreshStr, ExpiresAt: refreshExp},
	}, nil
}

func (i *Issuer) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.config.Issuer,
		Audience:  jwt.ClaimStrings{i.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

func (i *Issuer) sign(purpose Purpose, c jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	token.Header["typ"] = purpose.typ()
	signed, err := token.SignedString(i.key(purpose))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

func (i *Issuer) key(purpose Purpose) []byte {
	if purpose == PurposeRefresh {
		return i.refreshKey
	}
	return i.accessKey
}

// ParseAccess verifies an access token as of now.
func (i *Issuer) ParseAccess(tokenStr string, now time.Time) (*AccessClaims, error) {
	c := &AccessClaims{}
	if err := i.parse(tokenStr, now, PurposeAccess, c); err != nil {
		return nil, err
	}
	if c.Purpose != PurposeAccess {
		return nil, ErrPurposeMismatch
	}
	if c.Subject == "" || c.Email == "" {
		return nil, ErrTokenClaimsShape
	}
	return c, nil
}

// ParseRefresh verifies a refresh token as of now. It proves the token was
// minted by this issuer and has not expired; whether it is still the user's
// current token is for the store to decide.
func (i *Issuer) ParseRefresh(tokenStr string, now time.Time) (*RefreshClaims, error) {
	c := &RefreshClaims{}
	if err := i.parse(tokenStr, now, PurposeRefresh, c); err != nil {
		return nil, err
	}
	if c.Purpose != PurposeRefresh {
		return nil, ErrPurposeMismatch
	}
	if c.Subject == "" {
		return nil, ErrTokenClaimsShape
	}
	return c, nil
}

func (i *Issuer) parse(tokenStr string, now time.Time, purpose Purpose, c jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithAudience(i.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, c, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if typ, _ := t.Header["typ"].(string); typ != purpose.typ() {
			return nil, ErrPurposeMismatch
		}
		return i.key(purpose), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

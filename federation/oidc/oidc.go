package oidc

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/MrEthical07/tokenauth"
)

var (
	// ErrEmailMissing is returned when the ID token has no email claim.
	ErrEmailMissing = errors.New("oidc: email claim missing")
	// ErrEmailUnverified is returned when the provider has not verified the email.
	ErrEmailUnverified = errors.New("oidc: email not verified by provider")
)

// IDToken is a minimal interface for token payloads that allows extracting
// claims. It is satisfied by *oidc.IDToken and by test fakes.
type IDToken interface {
	Claims(v any) error
}

// TokenVerifier checks a raw ID token and returns its payload.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (IDToken, error)
}

// Resolver signs in or registers a verified identity.
type Resolver interface {
	ResolveFederated(ctx context.Context, identity tokenauth.FederatedIdentity) (tokenauth.LoginResult, error)
}

// Verifier wraps the OIDC token verifier.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers issuer and returns a verifier for tokens minted for
// clientID.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewStaticVerifier verifies tokens against fixed public keys without
// discovery. now may be nil.
func NewStaticVerifier(issuer, clientID string, now func() time.Time, keys ...crypto.PublicKey) *Verifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &Verifier{verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID, Now: now})}
}

// Verify verifies the raw ID token.
func (v *Verifier) Verify(ctx context.Context, raw string) (IDToken, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

type identityClaims struct {
	Email             string `json:"email"`
	EmailVerified     *bool  `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// Federator bridges an OIDC verifier to the engine.
type Federator struct {
	verifier TokenVerifier
	resolver Resolver
}

// NewFederator returns a Federator that signs verified identities in through resolver.
func NewFederator(verifier TokenVerifier, resolver Resolver) *Federator {
	return &Federator{verifier: verifier, resolver: resolver}
}

// Identity verifies raw and extracts the identity. Rejected tokens and
// unusable claims wrap [tokenauth.ErrAuthenticationFailed].
func (f *Federator) Identity(ctx context.Context, raw string) (tokenauth.FederatedIdentity, error) {
	token, err := f.verifier.Verify(ctx, raw)
	if err != nil {
		return tokenauth.FederatedIdentity{}, fmt.Errorf("%w: %w", tokenauth.ErrAuthenticationFailed, err)
	}
	return identityFrom(token)
}

// SignIn verifies raw and signs in the identity it carries.
func (f *Federator) SignIn(ctx context.Context, raw string) (tokenauth.LoginResult, error) {
	identity, err := f.Identity(ctx, raw)
	if err != nil {
		return tokenauth.LoginResult{}, err
	}
	return f.resolver.ResolveFederated(ctx, identity)
}

func identityFrom(token IDToken) (tokenauth.FederatedIdentity, error) {
	var c identityClaims
	if err := token.Claims(&c); err != nil {
		return tokenauth.FederatedIdentity{}, fmt.Errorf("%w: decode claims: %w", tokenauth.ErrAuthenticationFailed, err)
	}

	email := strings.TrimSpace(c.Email)
	if email == "" {
		return tokenauth.FederatedIdentity{}, fmt.Errorf("%w: %w", tokenauth.ErrAuthenticationFailed, ErrEmailMissing)
	}
	// Absent email_verified is treated as unverified.
	if c.EmailVerified == nil || !*c.EmailVerified {
		return tokenauth.FederatedIdentity{}, fmt.Errorf("%w: %w", tokenauth.ErrAuthenticationFailed, ErrEmailUnverified)
	}

	return tokenauth.FederatedIdentity{Email: email, DisplayName: displayName(c, email)}, nil
}

func displayName(c identityClaims, email string) string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(c.PreferredUsername); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// Package oidc turns a verified OpenID Connect ID token into a local sign-in.
//
// A [Verifier] checks the token signature, issuer, audience and expiry with
// github.com/coreos/go-oidc. A [Federator] then requires a verified email
// claim and hands the identity to [tokenauth.Engine.ResolveFederated], which
// signs in the matching local account or registers a new one.
package oidc
